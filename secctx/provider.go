package secctx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrReleased is returned when a handle or credential is released twice.
	ErrReleased = errors.New("secctx: handle already released")

	// ErrNotSupported is returned when a provider cannot serve the requested mechanism
	// or is not available on this platform.
	ErrNotSupported = errors.New("secctx: not supported")
)

// Mechanism names the security package used for the handshake.
type Mechanism string

const (
	// MechanismNegotiate selects SPNEGO, preferring Kerberos and falling back to NTLM.
	MechanismNegotiate Mechanism = "Negotiate"
	// MechanismKerberos restricts the handshake to Kerberos.
	MechanismKerberos Mechanism = "Kerberos"
	// MechanismNTLM restricts the handshake to NTLM.
	MechanismNTLM Mechanism = "NTLM"
)

// Scheme returns the HTTP authentication scheme advertised for the mechanism.
func (m Mechanism) Scheme() string {
	if m == MechanismNTLM {
		return "NTLM"
	}
	return "Negotiate"
}

// Valid reports whether m is a known mechanism.
func (m Mechanism) Valid() bool {
	switch m {
	case MechanismNegotiate, MechanismKerberos, MechanismNTLM:
		return true
	}
	return false
}

// Status is the outcome of a single accept step.
type Status int

const (
	// StatusContinueNeeded means the client must send another token.
	StatusContinueNeeded Status = iota + 1
	// StatusOK means the security context is established.
	StatusOK
	// StatusLogonDenied means the provider rejected the client's credentials.
	StatusLogonDenied
	// StatusFailed covers every other provider-side failure status.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusContinueNeeded:
		return "CONTINUE_NEEDED"
	case StatusOK:
		return "OK"
	case StatusLogonDenied:
		return "LOGON_DENIED"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Identity holds the principal fields a provider extracts from an established context.
type Identity struct {
	// Principal is the fully qualified name (user@REALM or DOMAIN\user).
	Principal string

	// User is the account name without the domain.
	User string

	// Domain is the NetBIOS domain or Kerberos realm.
	Domain string

	// SID is the security identifier, if the provider can resolve it.
	SID string

	// DisplayName is the human-readable name, if known.
	DisplayName string

	// Groups are the group identifiers the provider reported (SIDs or names).
	Groups []string

	// Anonymous is set for anonymous logons.
	Anonymous bool

	// Guest is set when the logon was mapped to the guest account.
	Guest bool
}

// StepResult is what AcceptContext returns for one handshake leg.
type StepResult struct {
	// Context is the security context after the step. It is the existing handle
	// advanced in place, or a new handle when none was passed in. It may be nil
	// when the provider failed before a context existed.
	Context *ContextHandle

	// Output is the token to send to the client, if any.
	Output []byte

	// Status is the provider's verdict for this leg.
	Status Status

	// Identity is set when Status is StatusOK.
	Identity *Identity
}

// Provider is the server-side security provider.
//
// AcceptContext must be safe for concurrent use across different context
// handles; callers never step the same handle concurrently.
type Provider interface {
	// AcquireCredential acquires the long-lived server credential for mech.
	// principal optionally names the service principal; empty selects the
	// provider default (process identity, or any keytab entry).
	AcquireCredential(ctx context.Context, mech Mechanism, principal string) (*Credential, error)

	// AcceptContext runs one accept step with the client's input token.
	// A non-nil error reports an unexpected failure; rejected logons are
	// reported through StepResult.Status.
	AcceptContext(ctx context.Context, cred *Credential, existing *ContextHandle, input []byte) (StepResult, error)
}

// Credential is a long-lived server credential handle.
type Credential struct {
	// Mechanism is the mechanism the credential was acquired for.
	Mechanism Mechanism

	// Principal is the principal the credential was acquired for.
	Principal string

	// Expiry is when the credential stops being valid. Zero means it never expires.
	Expiry time.Time

	native any
	free   func(native any) error
	once   sync.Once
}

// NewCredential wraps a native credential. free is called at most once.
func NewCredential(mech Mechanism, principal string, expiry time.Time, native any, free func(native any) error) *Credential {
	return &Credential{
		Mechanism: mech,
		Principal: principal,
		Expiry:    expiry,
		native:    native,
		free:      free,
	}
}

// Native returns the provider-specific value.
func (c *Credential) Native() any {
	return c.native
}

// Expired reports whether the credential has expired at now.
func (c *Credential) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// Free releases the native credential. Only the first call reaches the provider.
func (c *Credential) Free() error {
	if c == nil {
		return nil
	}
	err := ErrReleased
	c.once.Do(func() {
		err = nil
		if c.free != nil {
			err = c.free(c.native)
		}
	})
	return err
}
