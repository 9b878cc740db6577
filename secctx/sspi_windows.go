//go:build windows

package secctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"syscall"

	"github.com/alexbrainman/sspi"
	"github.com/alexbrainman/sspi/negotiate"
	"golang.org/x/sys/windows"
)

// SSPIConfig holds configuration for the SSPI provider.
type SSPIConfig struct {
	// SkipTokenGroups disables impersonation to read the client's SID and groups.
	SkipTokenGroups bool

	// Logger receives debug output. Default: slog.Default().
	Logger *slog.Logger
}

// SSPIProvider implements Provider with the Windows SSPI AcceptSecurityContext API.
type SSPIProvider struct {
	cfg    SSPIConfig
	arena  *Arena
	logger *slog.Logger
}

// NewSSPIProvider creates a new SSPI-based provider.
func NewSSPIProvider(cfg SSPIConfig) (*SSPIProvider, error) {
	// Fail early if the Negotiate package is unavailable.
	if _, err := negotiate.GetPackageInfo(); err != nil {
		return nil, fmt.Errorf("query SSPI package: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SSPIProvider{
		cfg: cfg,
		arena: NewArena(func(native any) error {
			sc, ok := native.(*negotiate.ServerContext)
			if !ok {
				return nil
			}
			return sc.Release()
		}),
		logger: logger,
	}, nil
}

// Arena exposes the provider's handle arena.
func (p *SSPIProvider) Arena() *Arena {
	return p.arena
}

// AcquireCredential acquires inbound credentials for the mechanism's SSPI package.
func (p *SSPIProvider) AcquireCredential(_ context.Context, mech Mechanism, principal string) (*Credential, error) {
	var pkg string
	switch mech {
	case MechanismKerberos:
		pkg = sspi.MICROSOFT_KERBEROS_NAME
	case MechanismNTLM:
		pkg = sspi.NTLMSP_NAME
	default:
		pkg = sspi.NEGOSSP_NAME
	}

	p.logger.Debug("Acquiring SSPI server credentials", "package", pkg, "principal", principal)
	cred, err := sspi.AcquireCredentials(principal, pkg, sspi.SECPKG_CRED_INBOUND, nil)
	if err != nil {
		return nil, fmt.Errorf("acquire SSPI credentials: %w", err)
	}
	return NewCredential(mech, principal, cred.Expiry(), cred, func(native any) error {
		return native.(*sspi.Credentials).Release()
	}), nil
}

// AcceptContext calls AcceptSecurityContext for the client's token.
func (p *SSPIProvider) AcceptContext(_ context.Context, cred *Credential, existing *ContextHandle, input []byte) (StepResult, error) {
	creds, ok := cred.Native().(*sspi.Credentials)
	if !ok {
		return StepResult{}, fmt.Errorf("sspi provider: credential holds %T, want *sspi.Credentials", cred.Native())
	}

	var (
		h        = existing
		authDone bool
		output   []byte
		err      error
	)
	if h == nil {
		var sctx *negotiate.ServerContext
		sctx, authDone, output, err = negotiate.NewServerContext(creds, input)
		if err == nil {
			h = p.arena.New(sctx)
		}
	} else {
		sctx, ok := h.Native().(*negotiate.ServerContext)
		if !ok {
			return StepResult{}, fmt.Errorf("sspi provider: context holds %T", h.Native())
		}
		authDone, output, err = sctx.Update(input)
	}

	p.logger.Debug("SSPI accept result", "authDone", authDone, "tokenLen", len(output), "error", err)

	if err != nil {
		var errno syscall.Errno
		switch {
		case errors.Is(err, sspi.SEC_E_LOGON_DENIED):
			return StepResult{Context: h, Status: StatusLogonDenied}, nil
		case errors.As(err, &errno):
			return StepResult{Context: h, Status: StatusFailed}, nil
		default:
			return StepResult{Context: h}, fmt.Errorf("sspi accept: %w", err)
		}
	}
	if !authDone {
		return StepResult{Context: h, Output: output, Status: StatusContinueNeeded}, nil
	}

	id, err := p.identity(h.Native().(*negotiate.ServerContext))
	if err != nil {
		return StepResult{Context: h}, err
	}
	return StepResult{Context: h, Output: output, Status: StatusOK, Identity: id}, nil
}

func (p *SSPIProvider) identity(sc *negotiate.ServerContext) (*Identity, error) {
	name, err := sc.GetUsername()
	if err != nil {
		return nil, fmt.Errorf("query client name: %w", err)
	}
	id := &Identity{Principal: name, User: name}
	if domain, user, found := strings.Cut(name, `\`); found {
		id.Domain, id.User = domain, user
	}

	if p.cfg.SkipTokenGroups {
		return id, nil
	}
	if err := readClientToken(sc, id); err != nil {
		p.logger.Warn("SSPI client token unavailable", "user", name, "error", err)
	}
	return id, nil
}

// readClientToken impersonates the client on a locked OS thread to read the
// SID and group SIDs from its access token.
func readClientToken(sc *negotiate.ServerContext, id *Identity) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := sc.ImpersonateUser(); err != nil {
		return fmt.Errorf("impersonate client: %w", err)
	}
	defer func() { _ = sc.RevertToSelf() }()

	var tok windows.Token
	if err := windows.OpenThreadToken(windows.CurrentThread(), windows.TOKEN_QUERY, true, &tok); err != nil {
		return fmt.Errorf("open thread token: %w", err)
	}
	defer tok.Close()

	user, err := tok.GetTokenUser()
	if err != nil {
		return fmt.Errorf("query token user: %w", err)
	}
	id.SID = user.User.Sid.String()
	id.Anonymous = user.User.Sid.IsWellKnown(windows.WinAnonymousSid)
	id.Guest = strings.HasSuffix(id.SID, "-501")

	groups, err := tok.GetTokenGroups()
	if err != nil {
		return fmt.Errorf("query token groups: %w", err)
	}
	for _, g := range groups.AllGroups() {
		id.Groups = append(id.Groups, g.Sid.String())
	}
	return nil
}

// SupportsSSPI reports whether the SSPI provider is available on this platform.
func SupportsSSPI() bool {
	return true
}
