package codec

// PCMUToPCM16LE converts a mu-law byte buffer to little-endian 16-bit PCM bytes.
func PCMUToPCM16LE(pcmuData []byte) []byte {
	out := make([]byte, len(pcmuData)*2)
	for i, b := range pcmuData {
		s := muLawDecompressTable[b]
		out[i*2] = byte(s & 0xFF)
		out[i*2+1] = byte((s >> 8) & 0xFF)
	}
	return out
}

// PCM16LEToPCMU converts little-endian 16-bit PCM bytes to mu-law.
func PCM16LEToPCMU(pcm16 []byte) []byte {
	if len(pcm16)%2 != 0 {
		pcm16 = append(pcm16, 0)
	}
	out := make([]byte, len(pcm16)/2)
	for i := 0; i < len(pcm16); i += 2 {
		s := int16(pcm16[i]) | (int16(pcm16[i+1]) << 8)
		out[i/2] = LinearToMuLaw(s)
	}
	return out
}

// ResampleLinear resamples little-endian 16-bit PCM bytes between sample
// rates using linear interpolation. A no-op when fromRate == toRate.
func ResampleLinear(pcm16 []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || len(pcm16) < 4 {
		return pcm16
	}

	ratio := float64(toRate) / float64(fromRate)
	newLen := int(float64(len(pcm16)) * ratio)
	if newLen%2 != 0 {
		newLen++
	}
	out := make([]byte, newLen)

	for i := 0; i < newLen/2; i++ {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos) * 2
		switch {
		case srcIdx+3 < len(pcm16):
			frac := srcPos - float64(int(srcPos))
			s1 := int16(pcm16[srcIdx]) | (int16(pcm16[srcIdx+1]) << 8)
			s2 := int16(pcm16[srcIdx+2]) | (int16(pcm16[srcIdx+3]) << 8)
			interp := int16(float64(s1)*(1-frac) + float64(s2)*frac)
			out[i*2] = byte(interp & 0xFF)
			out[i*2+1] = byte((interp >> 8) & 0xFF)
		case srcIdx+1 < len(pcm16):
			out[i*2] = pcm16[srcIdx]
			out[i*2+1] = pcm16[srcIdx+1]
		}
	}
	return out
}

// MuLawToPCM16Resampled converts mu-law at fromRate to little-endian PCM16 at toRate.
func MuLawToPCM16Resampled(pcmuData []byte, fromRate, toRate int) []byte {
	pcm16 := PCMUToPCM16LE(pcmuData)
	if fromRate != toRate {
		pcm16 = ResampleLinear(pcm16, fromRate, toRate)
	}
	return pcm16
}

// PCM16ToMuLawResampled converts little-endian PCM16 at fromRate to mu-law at toRate.
func PCM16ToMuLawResampled(pcm16 []byte, fromRate, toRate int) []byte {
	if fromRate != toRate {
		pcm16 = ResampleLinear(pcm16, fromRate, toRate)
	}
	return PCM16LEToPCMU(pcm16)
}
