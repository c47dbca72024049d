package codec

import (
	"bytes"
	"encoding/binary"
)

// wavFormatMuLaw is the WAVE_FORMAT_MULAW tag (7) in the fmt chunk.
const wavFormatMuLaw = 7

// WrapMuLawWAV wraps a raw mu-law payload in a 44-byte RIFF/WAVE header
// (mono, 8 kHz, 8 bits/sample, audio format 7) followed by the payload.
func WrapMuLawWAV(payload []byte) []byte {
	var buf bytes.Buffer

	dataSize := uint32(len(payload))
	riffSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16)) // fmt chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(wavFormatMuLaw))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // channels
	binary.Write(&buf, binary.LittleEndian, uint32(8000))
	binary.Write(&buf, binary.LittleEndian, uint32(8000)) // byte rate = sampleRate*channels*bitsPerSample/8
	binary.Write(&buf, binary.LittleEndian, uint16(1))    // block align
	binary.Write(&buf, binary.LittleEndian, uint16(8))    // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(payload)

	return buf.Bytes()
}
