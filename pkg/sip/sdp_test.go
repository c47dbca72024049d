package sip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOfferAdvertisesPCMUAndPCMA(t *testing.T) {
	offer := BuildOffer("203.0.113.5", 12000)
	require.NotEmpty(t, offer)
	s := string(offer)
	assert.Contains(t, s, "203.0.113.5")
	assert.Contains(t, s, "m=audio 12000 RTP/AVP 0 8")
	assert.Contains(t, s, "ptime:20")
}

func TestParseRemoteSDPExtractsHostPortCodec(t *testing.T) {
	answer := []byte("v=0\r\n" +
		"o=- 1 1 IN IP4 198.51.100.9\r\n" +
		"s=-\r\n" +
		"c=IN IP4 198.51.100.9\r\n" +
		"t=0 0\r\n" +
		"m=audio 40000 RTP/AVP 8\r\n" +
		"a=rtpmap:8 PCMA/8000\r\n")

	media, err := ParseRemoteSDP(answer)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.9", media.Host)
	assert.Equal(t, 40000, media.Port)
	assert.Equal(t, CodecPCMA, media.Codec)
}

func TestParseRemoteSDPRejectsMissingMedia(t *testing.T) {
	answer := []byte("v=0\r\no=- 1 1 IN IP4 198.51.100.9\r\ns=-\r\nt=0 0\r\n")
	_, err := ParseRemoteSDP(answer)
	assert.Error(t, err)
}

func TestCanonicalizeNumberStripsPlusAndCountryCode(t *testing.T) {
	assert.Equal(t, "9876543210", CanonicalizeNumber("+919876543210", "91", 10))
	assert.Equal(t, "919876543", CanonicalizeNumber("+919876543", "91", 10), "too short after stripping country code, left untouched")
	assert.Equal(t, "14155551234", CanonicalizeNumber("+14155551234", "91", 10), "no country-code prefix match, only '+' stripped")
}

func TestCanonicalizeNumberNoConfiguredPrefix(t *testing.T) {
	assert.Equal(t, "14155551234", CanonicalizeNumber("+14155551234", "", 10))
}
