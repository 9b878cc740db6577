package negotiate

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smnsjas/go-negotiate/directory"
	"github.com/smnsjas/go-negotiate/secctx"
)

// Default configuration values.
const (
	DefaultCookieName    = "NEGOTIATE_ID"
	DefaultMaxContextAge = 10 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

var (
	// ErrConflictingKeyModes is returned when both correlation key modes are enabled.
	ErrConflictingKeyModes = errors.New("negotiate: UseConnectionKey and UseCookies are mutually exclusive")

	// ErrNoProvider is returned when Config.Provider is nil.
	ErrNoProvider = errors.New("negotiate: a security provider is required")

	// ErrInvalidMechanism is returned for an unknown Config.Mechanism.
	ErrInvalidMechanism = errors.New("negotiate: invalid mechanism")

	// ErrMissingLookup is returned when an enrichment is enabled without its lookup.
	ErrMissingLookup = errors.New("negotiate: enrichment enabled without a lookup")

	// ErrInvalidDuration is returned for a non-positive age or interval.
	ErrInvalidDuration = errors.New("negotiate: durations must be positive")
)

// Config holds the Authenticator configuration.
type Config struct {
	// Provider performs the security context steps. Required.
	Provider secctx.Provider

	// Mechanism selects the security package. Default: secctx.MechanismNegotiate.
	Mechanism secctx.Mechanism

	// Principal optionally names the service principal used to acquire the
	// server credential.
	Principal string

	// UseConnectionKey correlates handshake legs by the underlying connection.
	// Requires http.Server.ConnContext = negotiate.ConnContext; without it the
	// remote address is used.
	UseConnectionKey bool

	// UseCookies correlates handshake legs by a server-issued cookie.
	// Mutually exclusive with UseConnectionKey. When neither is set, the
	// connection is used.
	UseCookies bool

	// CookieName is the correlation cookie name. Default: DefaultCookieName.
	CookieName string

	// CookieSecure sets the Secure attribute on the correlation cookie.
	CookieSecure bool

	// MaxContextAge is how long a pending handshake may sit idle before the
	// sweep releases it. Default: DefaultMaxContextAge.
	MaxContextAge time.Duration

	// SweepInterval is the period of the sweep. Default: DefaultSweepInterval.
	SweepInterval time.Duration

	// UseGroups adds group names to the session.
	UseGroups bool

	// Groups looks group membership up. When nil, the groups reported by the
	// provider are used.
	Groups directory.GroupLookup

	// GroupNames translates provider group identifiers (SIDs) into names.
	// Only used when Groups is nil.
	GroupNames directory.GroupResolver

	// GroupFilter keeps only group names matching this regular expression.
	GroupFilter string

	// UseDirectory adds the directory record to the session. Requires Directory.
	UseDirectory bool

	// Directory looks user records up.
	Directory directory.UserLookup

	// UseOwner adds the process owner to the session. Requires Owner.
	UseOwner bool

	// Owner looks the process owner up.
	Owner directory.OwnerLookup

	// AllowAnonymous accepts anonymous logons. Default: false (treated as denied).
	AllowAnonymous bool

	// AllowGuest accepts logons mapped to the guest account. Default: false.
	AllowGuest bool

	// RequireAuth answers denied logons with a fresh challenge instead of
	// passing the request through unauthenticated.
	RequireAuth bool

	// Logger receives handshake logs. Default: slog.Default().
	Logger *slog.Logger

	// AuditLogger receives security audit events. Nil disables auditing.
	AuditLogger *slog.Logger

	// Registerer registers the Prometheus collectors. Nil skips registration.
	Registerer prometheus.Registerer

	// Clock is the time source. Default: system time.
	Clock Clock
}

// DefaultConfig returns a Config with default values. Provider must still be set.
func DefaultConfig() Config {
	return Config{
		Mechanism:     secctx.MechanismNegotiate,
		CookieName:    DefaultCookieName,
		MaxContextAge: DefaultMaxContextAge,
		SweepInterval: DefaultSweepInterval,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.UseConnectionKey && c.UseCookies {
		return ErrConflictingKeyModes
	}
	if c.Provider == nil {
		return ErrNoProvider
	}
	if c.Mechanism != "" && !c.Mechanism.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMechanism, c.Mechanism)
	}
	if c.MaxContextAge < 0 || c.SweepInterval < 0 {
		return ErrInvalidDuration
	}
	if c.UseDirectory && c.Directory == nil {
		return fmt.Errorf("%w: UseDirectory requires Directory", ErrMissingLookup)
	}
	if c.UseOwner && c.Owner == nil {
		return fmt.Errorf("%w: UseOwner requires Owner", ErrMissingLookup)
	}
	if c.GroupFilter != "" {
		if _, err := regexp.Compile(c.GroupFilter); err != nil {
			return fmt.Errorf("negotiate: invalid group filter: %w", err)
		}
	}
	return nil
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Mechanism == "" {
		c.Mechanism = secctx.MechanismNegotiate
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.MaxContextAge == 0 {
		c.MaxContextAge = DefaultMaxContextAge
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	return c
}
