package initiator

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxLegs bounds the handshake so a misbehaving server cannot loop us.
const maxLegs = 5

// ErrHandshakeFailed is returned when the server keeps answering 401.
var ErrHandshakeFailed = errors.New("initiator: negotiate authentication failed")

// Transport is an http.RoundTripper that authenticates each request with a
// fresh Initiator. Legs after the first go out on the same connection when
// the base transport keeps it alive, and carry any cookie the server set.
type Transport struct {
	// Base performs the requests. Default: http.DefaultTransport.
	Base http.RoundTripper

	// NewInitiator creates the initiator for one request.
	NewInitiator func() (Initiator, error)

	// Scheme is the authorization scheme. Default: Negotiate.
	Scheme string
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) scheme() string {
	if t.Scheme != "" {
		return t.Scheme
	}
	return "Negotiate"
}

// RoundTrip runs the request through the challenge-response handshake.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Buffer the request body upfront so we can retry
	var bodyBytes []byte
	if req.Body != nil && req.ContentLength != 0 {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	init, err := t.NewInitiator()
	if err != nil {
		return nil, fmt.Errorf("create initiator: %w", err)
	}
	defer func() { _ = init.Close() }()

	var (
		clientToken []byte
		cookies     []*http.Cookie
		leg         int
	)
	for ; leg < maxLegs; leg++ {
		// Clone request to avoid data races
		legReq := req.Clone(req.Context())
		if bodyBytes != nil {
			legReq.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			legReq.ContentLength = int64(len(bodyBytes))
			legReq.GetBody = func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(bodyBytes)), nil
			}
		}
		for _, c := range cookies {
			legReq.AddCookie(c)
		}
		if clientToken != nil {
			legReq.Header.Set("Authorization", t.scheme()+" "+base64.StdEncoding.EncodeToString(clientToken))
		}

		resp, err := t.base().RoundTrip(legReq)
		if err != nil {
			return nil, err
		}
		cookies = mergeCookies(cookies, resp.Cookies())

		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}

		serverToken, ok := parseChallenge(resp.Header.Values("WWW-Authenticate"), t.scheme())
		if !ok {
			// Not our challenge, return as-is
			return resp, nil
		}
		drain(resp)

		if leg > 0 && len(serverToken) == 0 {
			// A bare challenge after we sent a token is a rejection.
			break
		}
		if leg > 0 && init.Complete() {
			break
		}

		var cont bool
		clientToken, cont, err = init.Step(req.Context(), serverToken)
		if err != nil {
			return nil, fmt.Errorf("negotiate step failed: %w", err)
		}
		if len(clientToken) == 0 && !cont {
			break
		}
	}

	return nil, fmt.Errorf("%w after %d legs", ErrHandshakeFailed, min(leg+1, maxLegs))
}

// parseChallenge finds the scheme among the WWW-Authenticate values and
// returns its token, which may be empty.
func parseChallenge(values []string, scheme string) ([]byte, bool) {
	for _, v := range values {
		name, rest, _ := strings.Cut(strings.TrimSpace(v), " ")
		if !strings.EqualFold(name, scheme) {
			continue
		}
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return nil, true
		}
		tok, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, true
		}
		return tok, true
	}
	return nil, false
}

func mergeCookies(have, set []*http.Cookie) []*http.Cookie {
	for _, c := range set {
		replaced := false
		for i, h := range have {
			if h.Name == c.Name {
				have[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			have = append(have, c)
		}
	}
	return have
}

// drain reads and closes the body so the connection can be reused for the
// next leg.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
