package negotiate

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// MalformedHeaderError describes an Authorization header that cannot be used.
// Its message names the offending scheme but never echoes the credential.
type MalformedHeaderError struct {
	Scheme string
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	if e.Scheme == "" {
		return "malformed Authorization header: " + e.Reason
	}
	return fmt.Sprintf("malformed Authorization header: %s: %s", e.Scheme, e.Reason)
}

// EncodeToken encodes a security token for an HTTP header.
func EncodeToken(token []byte) string {
	return base64.StdEncoding.EncodeToString(token)
}

// DecodeToken decodes a security token from an HTTP header.
func DecodeToken(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// ParseAuthorization extracts the token from an Authorization header value
// using the given scheme. The scheme comparison ignores case.
func ParseAuthorization(header, scheme string) ([]byte, error) {
	got, value, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(got, scheme) {
		return nil, &MalformedHeaderError{Scheme: quoteScheme(got), Reason: "expected " + scheme}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, &MalformedHeaderError{Scheme: scheme, Reason: "missing token"}
	}
	token, err := DecodeToken(value)
	if err != nil {
		return nil, &MalformedHeaderError{Scheme: scheme, Reason: "token is not valid base64"}
	}
	if len(token) == 0 {
		return nil, &MalformedHeaderError{Scheme: scheme, Reason: "missing token"}
	}
	return token, nil
}

// ChallengeHeader formats a WWW-Authenticate value, with the token if any.
func ChallengeHeader(scheme string, token []byte) string {
	if len(token) == 0 {
		return scheme
	}
	return scheme + " " + EncodeToken(token)
}

// quoteScheme bounds and quotes a client-supplied scheme word for messages.
func quoteScheme(s string) string {
	const maxLen = 32
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return fmt.Sprintf("%q", s)
}
