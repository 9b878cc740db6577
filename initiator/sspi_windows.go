//go:build windows

package initiator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexbrainman/sspi"
	"github.com/alexbrainman/sspi/negotiate"
)

// SSPIConfig holds configuration for the SSPI initiator.
type SSPIConfig struct {
	// Credentials are explicit credentials. Nil uses the logged-on user (SSO).
	Credentials *Credentials

	// Logger receives debug output. Default: slog.Default().
	Logger *slog.Logger
}

// SSPIInitiator implements Initiator with the Windows Negotiate package.
type SSPIInitiator struct {
	cfg       SSPIConfig
	targetSPN string
	cred      *sspi.Credentials
	ctx       *negotiate.ClientContext
	complete  bool
	logger    *slog.Logger
}

// NewSSPIInitiator creates an SSPI initiator for targetSPN.
func NewSSPIInitiator(cfg SSPIConfig, targetSPN string) (*SSPIInitiator, error) {
	if _, err := negotiate.GetPackageInfo(); err != nil {
		return nil, fmt.Errorf("query SSPI package: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SSPIInitiator{cfg: cfg, targetSPN: targetSPN, logger: logger}, nil
}

// Step calls InitializeSecurityContext.
func (s *SSPIInitiator) Step(_ context.Context, input []byte) ([]byte, bool, error) {
	if s.complete {
		return nil, false, nil
	}

	if s.ctx == nil {
		if err := s.acquire(); err != nil {
			return nil, false, err
		}
		cc, out, err := negotiate.NewClientContext(s.cred, s.targetSPN)
		if err != nil {
			return nil, false, fmt.Errorf("initialize security context: %w", err)
		}
		s.ctx = cc
		s.logger.Debug("SSPI initial token", "spn", s.targetSPN, "tokenLen", len(out))
		return out, true, nil
	}

	done, out, err := s.ctx.Update(input)
	if err != nil {
		return nil, false, fmt.Errorf("update security context: %w", err)
	}
	s.complete = done
	s.logger.Debug("SSPI step", "complete", done, "tokenLen", len(out))
	return out, !done, nil
}

func (s *SSPIInitiator) acquire() error {
	var (
		cred *sspi.Credentials
		err  error
	)
	if c := s.cfg.Credentials; c != nil && c.Username != "" {
		cred, err = negotiate.AcquireUserCredentials(c.Domain, c.Username, c.Password)
	} else {
		cred, err = negotiate.AcquireCurrentUserCredentials()
	}
	if err != nil {
		return fmt.Errorf("acquire SSPI client credentials: %w", err)
	}
	s.cred = cred
	return nil
}

// Complete returns true once the context is established.
func (s *SSPIInitiator) Complete() bool {
	return s.complete
}

// Close releases the context and credential handles.
func (s *SSPIInitiator) Close() error {
	var firstErr error
	if s.ctx != nil {
		firstErr = s.ctx.Release()
		s.ctx = nil
	}
	if s.cred != nil {
		if err := s.cred.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.cred = nil
	}
	return firstErr
}

// SupportsSSO reports whether the platform can use the logged-on user.
func SupportsSSO() bool {
	return true
}
