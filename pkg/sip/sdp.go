package sip

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
)

// Codec payload types negotiated for telephony audio.
const (
	CodecPCMU = 0
	CodecPCMA = 8
)

// BuildOffer constructs an SDP offer advertising PCMU and PCMA at 20ms
// ptime, sendrecv, bound to rtpPort on publicIP (§4.6 step 1).
func BuildOffer(publicIP string, rtpPort int) []byte {
	sessionID := uint64(time.Now().UnixNano())
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: publicIP,
		},
		SessionName: "call-engine",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: publicIP},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: rtpPort},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{"0", "8"},
				},
				Attributes: []sdp.Attribute{
					sdp.NewAttribute("rtpmap", "0 PCMU/8000"),
					sdp.NewAttribute("rtpmap", "8 PCMA/8000"),
					sdp.NewAttribute("ptime", "20"),
					sdp.NewAttribute("sendrecv", ""),
				},
			},
		},
	}

	raw, err := desc.Marshal()
	if err != nil {
		return nil
	}
	return raw
}

// RemoteMedia is the information extracted from a remote SDP answer or
// offer needed to drive an RTP session.
type RemoteMedia struct {
	Host  string
	Port  int
	Codec int // 0 = PCMU, 8 = PCMA
}

// ParseRemoteSDP extracts the remote RTP endpoint and preferred codec from
// an SDP answer (§4.6 step 3).
func ParseRemoteSDP(body []byte) (RemoteMedia, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return RemoteMedia{}, fmt.Errorf("sip: parse remote sdp: %w", err)
	}

	host := ""
	if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		host = desc.ConnectionInformation.Address.Address
	}

	if len(desc.MediaDescriptions) == 0 {
		return RemoteMedia{}, fmt.Errorf("sip: remote sdp has no media descriptions")
	}
	media := desc.MediaDescriptions[0]
	if media.ConnectionInformation != nil && media.ConnectionInformation.Address != nil {
		host = media.ConnectionInformation.Address.Address
	}
	if host == "" {
		return RemoteMedia{}, fmt.Errorf("sip: remote sdp missing connection address")
	}

	codec := CodecPCMU
	for _, fmtStr := range media.MediaName.Formats {
		if n, err := strconv.Atoi(fmtStr); err == nil {
			codec = n
			break
		}
	}

	return RemoteMedia{
		Host:  host,
		Port:  media.MediaName.Port.Value,
		Codec: codec,
	}, nil
}

// CanonicalizeNumber strips a leading '+' and, when prefix names a
// configured country code and the remainder is at least minLocalDigits
// digits long, drops the prefix to match trunk-provider expectations
// (§4.6 Number canonicalization).
func CanonicalizeNumber(number, countryCodePrefix string, minLocalDigits int) string {
	n := strings.TrimPrefix(number, "+")
	if countryCodePrefix == "" {
		return n
	}
	if strings.HasPrefix(n, countryCodePrefix) {
		rest := strings.TrimPrefix(n, countryCodePrefix)
		if len(rest) >= minLocalDigits {
			return rest
		}
	}
	return n
}
