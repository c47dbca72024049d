package codec

// MixMuLaw mixes two mu-law streams sample-by-sample by averaging their
// linear-PCM values and re-encoding. The shorter buffer is padded with
// silence so the result is commutative and has length max(len(a), len(b)).
func MixMuLaw(a, b []byte) []byte {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		var av, bv int16
		if i < len(a) {
			av = MuLawToLinear(a[i])
		} else {
			av = MuLawToLinear(SilenceByte)
		}
		if i < len(b) {
			bv = MuLawToLinear(b[i])
		} else {
			bv = MuLawToLinear(SilenceByte)
		}
		out[i] = LinearToMuLaw(int16((int32(av) + int32(bv)) / 2))
	}
	return out
}
