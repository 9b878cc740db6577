package initiator

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Azure/go-ntlmssp"
	ntlmcbt "github.com/smnsjas/go-ntlm-cbt"
)

// NTLMConfig holds the configuration for the NTLMInitiator.
type NTLMConfig struct {
	Credentials Credentials

	// Workstation is sent in the NEGOTIATE message (optional).
	Workstation string

	// ServerCertificate, when set, binds the handshake to the TLS channel
	// (Extended Protection for Authentication).
	ServerCertificate *x509.Certificate

	// Logger receives debug output. Default: slog.Default().
	Logger *slog.Logger
}

// NTLMInitiator implements Initiator with raw NTLMSSP messages. Windows
// Negotiate acceptors take raw NTLM tokens in a Negotiate header.
type NTLMInitiator struct {
	user         string
	domain       string
	domainNeeded bool
	password     string
	workstation  string
	cbt          *ntlmcbt.Negotiator
	legs         int
	complete     bool
	logger       *slog.Logger
}

// NewNTLMInitiator creates an NTLM initiator.
func NewNTLMInitiator(cfg NTLMConfig) (*NTLMInitiator, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	user, domain, domainNeeded := ntlmssp.GetDomain(cfg.Credentials.Username)
	if cfg.Credentials.Domain != "" {
		domain = cfg.Credentials.Domain
		domainNeeded = true
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	n := &NTLMInitiator{
		user:         user,
		domain:       domain,
		domainNeeded: domainNeeded,
		password:     cfg.Credentials.Password,
		workstation:  cfg.Workstation,
		logger:       logger,
	}
	if cfg.ServerCertificate != nil {
		n.cbt = &ntlmcbt.Negotiator{ChannelBindings: ntlmcbt.ComputeTLSServerEndpoint(cfg.ServerCertificate)}
	}
	return n, nil
}

// Step returns NEGOTIATE on the first call and AUTHENTICATE for the
// server's CHALLENGE.
func (n *NTLMInitiator) Step(_ context.Context, input []byte) ([]byte, bool, error) {
	n.legs++
	switch {
	case n.legs == 1:
		var (
			msg []byte
			err error
		)
		if n.cbt != nil {
			msg, err = n.cbt.Negotiate(n.domain, n.workstation)
		} else {
			msg, err = ntlmssp.NewNegotiateMessage(n.domain, n.workstation)
		}
		if err != nil {
			return nil, false, fmt.Errorf("build NTLM negotiate message: %w", err)
		}
		n.logger.Debug("NTLM negotiate", "domain", n.domain, "channelBinding", n.cbt != nil)
		return msg, true, nil

	case n.legs == 2:
		if len(input) == 0 {
			return nil, false, errors.New("server sent no NTLM challenge")
		}
		var (
			msg []byte
			err error
		)
		if n.cbt != nil {
			msg, err = n.cbt.ChallengeResponse(input, n.user, n.password)
		} else {
			msg, err = ntlmssp.ProcessChallenge(input, n.user, n.password, n.domainNeeded)
		}
		if err != nil {
			return nil, false, fmt.Errorf("process NTLM challenge: %w", err)
		}
		n.complete = true
		return msg, false, nil

	default:
		// NTLM has no third server token.
		return nil, false, nil
	}
}

// Complete returns true once AUTHENTICATE has been produced.
func (n *NTLMInitiator) Complete() bool {
	return n.complete
}

// Close clears the password.
func (n *NTLMInitiator) Close() error {
	n.password = ""
	return nil
}
