package secctx

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/service"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// gokrb5 stores the verified credentials under this untyped string key.
const gokrb5CtxCredentials = "github.com/jcmturner/gokrb5/v8/ctxCredentials"

// DefaultKeytabReload is how long a loaded keytab is used before it is read again.
const DefaultKeytabReload = 10 * time.Minute

// Fixed NegTokenResp bodies for a KRB5 acceptor.
var (
	negTokenRespAcceptCompleted = mustDecode("oRQwEqADCgEAoQsGCSqGSIb3EgECAg==")
	negTokenRespIncompleteKRB5  = mustDecode("oRQwEqADCgEBoQsGCSqGSIb3EgECAg==")
	negTokenRespReject          = mustDecode("oQcwBaADCgEC")
)

func mustDecode(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// KerberosConfig holds the configuration for the KerberosProvider.
type KerberosConfig struct {
	// KeytabPath is the path to the service keytab.
	// If empty, KRB5_KTNAME is used (a leading "FILE:" is stripped).
	KeytabPath string

	// ReloadInterval is the credential lifetime. When it passes, the keytab
	// is loaded again so rotated keys are picked up. Default: DefaultKeytabReload.
	ReloadInterval time.Duration

	// MaxClockSkew is the tolerated clock difference to the client. Zero uses the gokrb5 default.
	MaxClockSkew time.Duration

	// DecodePAC enables decoding of the Microsoft PAC for SID, groups and display name.
	DecodePAC bool

	// Logger receives debug output. Default: slog.Default().
	Logger *slog.Logger
}

// KerberosProvider is a keytab-based Kerberos acceptor built on gokrb5.
// It serves MechanismNegotiate and MechanismKerberos; NTLM tokens are rejected.
type KerberosProvider struct {
	cfg    KerberosConfig
	arena  *Arena
	logger *slog.Logger
	now    func() time.Time
}

// NewKerberosProvider creates a new pure Go Kerberos acceptor.
func NewKerberosProvider(cfg KerberosConfig) (*KerberosProvider, error) {
	if cfg.KeytabPath == "" {
		cfg.KeytabPath = strings.TrimPrefix(os.Getenv("KRB5_KTNAME"), "FILE:")
	}
	if cfg.KeytabPath == "" {
		return nil, fmt.Errorf("keytab path is required (set KeytabPath or KRB5_KTNAME)")
	}
	if cfg.ReloadInterval <= 0 {
		cfg.ReloadInterval = DefaultKeytabReload
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &KerberosProvider{
		cfg:    cfg,
		arena:  NewArena(nil),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Arena exposes the provider's handle arena.
func (p *KerberosProvider) Arena() *Arena {
	return p.arena
}

// AcquireCredential loads the keytab.
func (p *KerberosProvider) AcquireCredential(_ context.Context, mech Mechanism, principal string) (*Credential, error) {
	if mech == MechanismNTLM {
		return nil, fmt.Errorf("kerberos provider: mechanism %s: %w", mech, ErrNotSupported)
	}
	kt, err := keytab.Load(p.cfg.KeytabPath)
	if err != nil {
		return nil, fmt.Errorf("load keytab from %s: %w", p.cfg.KeytabPath, err)
	}
	p.logger.Debug("Kerberos keytab loaded", "path", p.cfg.KeytabPath, "principal", principal)
	return NewCredential(mech, principal, p.now().Add(p.cfg.ReloadInterval), kt, nil), nil
}

// AcceptContext verifies the client's AP-REQ. Kerberos over SPNEGO completes
// in one leg, so an existing handle is never advanced; a fresh one is returned.
func (p *KerberosProvider) AcceptContext(_ context.Context, cred *Credential, existing *ContextHandle, input []byte) (StepResult, error) {
	kt, ok := cred.Native().(*keytab.Keytab)
	if !ok {
		return StepResult{}, fmt.Errorf("kerberos provider: credential holds %T, want *keytab.Keytab", cred.Native())
	}

	st, err := decodeContextToken(input)
	if err != nil {
		p.logger.Debug("Kerberos token not decodable", "error", err, "mechanism", Label(input))
		return StepResult{Context: existing, Output: negTokenRespReject, Status: StatusFailed}, nil
	}

	opts := []func(*service.Settings){service.DecodePAC(p.cfg.DecodePAC)}
	if p.cfg.MaxClockSkew > 0 {
		opts = append(opts, service.MaxClockSkew(p.cfg.MaxClockSkew))
	}
	if cred.Principal != "" {
		opts = append(opts, service.KeytabPrincipal(cred.Principal))
	}
	svc := spnego.SPNEGOService(kt, opts...)

	authed, actx, status := svc.AcceptSecContext(st)
	p.logger.Debug("Kerberos accept result", "status", status.Code, "authenticated", authed)

	switch {
	case status.Code == gssapi.StatusContinueNeeded:
		h := existing
		if h == nil {
			h = p.arena.New(nil)
		}
		return StepResult{Context: h, Output: negTokenRespIncompleteKRB5, Status: StatusContinueNeeded}, nil

	case authed && status.Code == gssapi.StatusComplete:
		creds, ok := actx.Value(gokrb5CtxCredentials).(*credentials.Credentials)
		if !ok {
			return StepResult{}, fmt.Errorf("kerberos provider: verified context carries no credentials")
		}
		return StepResult{
			Context:  p.arena.New(creds),
			Output:   negTokenRespAcceptCompleted,
			Status:   StatusOK,
			Identity: kerberosIdentity(creds),
		}, nil

	case status.Code == gssapi.StatusDefectiveCredential:
		return StepResult{Context: existing, Output: negTokenRespReject, Status: StatusLogonDenied}, nil

	default:
		return StepResult{Context: existing, Output: negTokenRespReject, Status: StatusFailed}, nil
	}
}

// decodeContextToken parses an SPNEGO token, accepting a bare KRB5 token as
// some clients send one without the SPNEGO wrapper.
func decodeContextToken(b []byte) (*spnego.SPNEGOToken, error) {
	var st spnego.SPNEGOToken
	if err := st.Unmarshal(b); err != nil {
		var k5t spnego.KRB5Token
		if k5err := k5t.Unmarshal(b); k5err != nil {
			return nil, fmt.Errorf("unmarshal SPNEGO token: %w", err)
		}
		st.Init = true
		st.NegTokenInit.MechTypes = append(st.NegTokenInit.MechTypes, k5t.OID)
		st.NegTokenInit.MechTokenBytes = b
	}
	if st.Init && len(st.NegTokenInit.MechTypes) == 0 {
		return nil, fmt.Errorf("SPNEGO NegTokenInit lists no mechanisms")
	}
	return &st, nil
}

func kerberosIdentity(c *credentials.Credentials) *Identity {
	id := &Identity{
		Principal:   c.UserName() + "@" + c.Domain(),
		User:        c.UserName(),
		Domain:      c.Domain(),
		DisplayName: c.DisplayName(),
	}
	ad := c.GetADCredentials()
	if ad.LogonDomainID != "" {
		id.SID = ad.LogonDomainID + "-" + strconv.Itoa(ad.UserID)
	}
	if ad.LogonDomainName != "" {
		id.Domain = ad.LogonDomainName
	}
	if len(ad.GroupMembershipSIDs) > 0 {
		id.Groups = append([]string(nil), ad.GroupMembershipSIDs...)
	}
	// Well-known RID 501 is the built-in guest account.
	id.Guest = ad.LogonDomainID != "" && ad.UserID == 501
	return id
}
