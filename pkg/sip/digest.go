package sip

import (
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
)

// digestAuthHeader computes the Authorization/Proxy-Authorization header
// value for challenge against method and uri, per the HA1/HA2/response
// recipe in §4.6 (RFC 2617 digest, delegated to icholy/digest).
func digestAuthHeader(challenge string, method, uri, username, password string) (string, error) {
	chal, err := digest.ParseChallenge(challenge)
	if err != nil {
		return "", err
	}
	cred, err := digest.Digest(chal, digest.Options{
		Method:   method,
		URI:      uri,
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", err
	}
	return cred.String(), nil
}

// challengeHeaderName returns the request header that should carry the
// computed credentials for a given 401/407 challenge, and the response
// header the challenge itself arrived on.
func challengeHeaderName(statusCode sip.StatusCode) (authenticate, authorization string) {
	if statusCode == sip.StatusProxyAuthRequired {
		return "Proxy-Authenticate", "Proxy-Authorization"
	}
	return "WWW-Authenticate", "Authorization"
}

func isAuthChallenge(statusCode sip.StatusCode) bool {
	return statusCode == sip.StatusUnauthorized || statusCode == sip.StatusProxyAuthRequired
}
