package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMuLawRoundTripIsDeterministic(t *testing.T) {
	for _, sample := range []int16{0, 1, -1, 100, -100, 8000, -8000, 32000, -32000} {
		a := LinearToMuLaw(sample)
		b := LinearToMuLaw(sample)
		assert.Equal(t, a, b, "encoding must be a pure function of the input sample")
	}
}

func TestMuLawDecodeEncodeTable(t *testing.T) {
	for b := 0; b < 256; b++ {
		linear := MuLawToLinear(byte(b))
		_ = LinearToMuLaw(linear) // must not panic across the full byte range
	}
}

func TestALawMuLawTranslationIsTableDriven(t *testing.T) {
	mulaw := EncodeMuLaw([]int16{0, 1000, -1000, 30000, -30000})
	alaw := MuLawToALaw(mulaw)
	assert.Len(t, alaw, len(mulaw))

	back := ALawToMuLaw(alaw)
	assert.Len(t, back, len(alaw))
}

func TestSilenceByteRoundTrips(t *testing.T) {
	// 0x7F and 0xFF both decode to zero amplitude; the encoder emits 0xFF for
	// zero, so the silence byte round-trips to the same amplitude, not the same byte.
	silence := MuLawToLinear(SilenceByte)
	assert.Equal(t, int16(0), silence)
	assert.Equal(t, byte(0xFF), LinearToMuLaw(silence))
	assert.Equal(t, silence, MuLawToLinear(LinearToMuLaw(silence)))
}
