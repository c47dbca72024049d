package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	wavlib "github.com/youpy/go-wav"
)

func TestWrapMuLawWAVHeaderFields(t *testing.T) {
	payload := EncodeMuLaw([]int16{0, 100, -100, 200, -200})

	wav := WrapMuLawWAV(payload)
	reader := wavlib.NewReader(bytes.NewReader(wav))

	format, err := reader.Format()
	require.NoError(t, err)

	assert.EqualValues(t, wavFormatMuLaw, format.AudioFormat)
	assert.EqualValues(t, 1, format.NumChannels)
	assert.EqualValues(t, 8000, format.SampleRate)
	assert.EqualValues(t, 8, format.BitsPerSample)
}

func TestWrapMuLawWAVLength(t *testing.T) {
	payload := EncodeMuLaw(make([]int16, 160))
	wav := WrapMuLawWAV(payload)
	assert.Equal(t, 44+len(payload), len(wav))
}
