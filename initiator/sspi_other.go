//go:build !windows

package initiator

import (
	"context"
	"log/slog"
)

// SSPIConfig holds configuration for the SSPI initiator.
type SSPIConfig struct {
	Credentials *Credentials
	Logger      *slog.Logger
}

// SSPIInitiator is unavailable outside Windows.
type SSPIInitiator struct{}

// NewSSPIInitiator returns ErrSSPIUnavailable on this platform.
func NewSSPIInitiator(SSPIConfig, string) (*SSPIInitiator, error) {
	return nil, ErrSSPIUnavailable
}

// Step returns ErrSSPIUnavailable.
func (*SSPIInitiator) Step(context.Context, []byte) ([]byte, bool, error) {
	return nil, false, ErrSSPIUnavailable
}

// Complete returns false.
func (*SSPIInitiator) Complete() bool { return false }

// Close does nothing.
func (*SSPIInitiator) Close() error { return nil }

// SupportsSSO reports whether the platform can use the logged-on user.
func SupportsSSO() bool {
	return false
}
