//go:build !windows

package secctx

import (
	"context"
	"fmt"
	"log/slog"
)

// SSPIConfig holds configuration for the SSPI provider.
type SSPIConfig struct {
	SkipTokenGroups bool
	Logger          *slog.Logger
}

// SSPIProvider is unavailable outside Windows; every method returns ErrNotSupported.
type SSPIProvider struct{}

// NewSSPIProvider returns ErrNotSupported on this platform.
func NewSSPIProvider(SSPIConfig) (*SSPIProvider, error) {
	return nil, fmt.Errorf("sspi provider: %w", ErrNotSupported)
}

// Arena returns nil on this platform.
func (*SSPIProvider) Arena() *Arena {
	return nil
}

// AcquireCredential returns ErrNotSupported.
func (*SSPIProvider) AcquireCredential(context.Context, Mechanism, string) (*Credential, error) {
	return nil, fmt.Errorf("sspi provider: %w", ErrNotSupported)
}

// AcceptContext returns ErrNotSupported.
func (*SSPIProvider) AcceptContext(context.Context, *Credential, *ContextHandle, []byte) (StepResult, error) {
	return StepResult{}, fmt.Errorf("sspi provider: %w", ErrNotSupported)
}

// SupportsSSPI reports whether the SSPI provider is available on this platform.
func SupportsSSPI() bool {
	return false
}
