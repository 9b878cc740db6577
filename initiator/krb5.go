package initiator

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// KerberosConfig holds the configuration for the KerberosInitiator.
type KerberosConfig struct {
	// Realm is the Kerberos realm (e.g. EXAMPLE.COM).
	Realm string

	// Krb5ConfPath is the path to krb5.conf. Default: $KRB5_CONFIG or /etc/krb5.conf.
	Krb5ConfPath string

	// KeytabPath is the path to a client keytab (optional).
	KeytabPath string

	// CCachePath is the path to a credential cache (optional).
	CCachePath string

	// Credentials are used when neither keytab nor ccache is set.
	Credentials *Credentials

	// Logger receives debug output. Default: slog.Default().
	Logger *slog.Logger
}

// KerberosInitiator implements Initiator using the pure Go gokrb5 library.
type KerberosInitiator struct {
	client    *client.Client
	spnego    *spnego.SPNEGO
	targetSPN string
	complete  bool
	logger    *slog.Logger
}

// NewKerberosInitiator creates a Kerberos initiator for targetSPN
// (e.g. HTTP/web.example.com).
func NewKerberosInitiator(cfg KerberosConfig, targetSPN string) (*KerberosInitiator, error) {
	if cfg.Krb5ConfPath == "" {
		cfg.Krb5ConfPath = os.Getenv("KRB5_CONFIG")
		if cfg.Krb5ConfPath == "" {
			cfg.Krb5ConfPath = "/etc/krb5.conf"
		}
	}
	conf, err := config.Load(cfg.Krb5ConfPath)
	if err != nil {
		return nil, fmt.Errorf("load krb5.conf: %w", err)
	}

	// Disable FAST for compatibility with older KDCs
	opts := []func(*client.Settings){client.DisablePAFXFAST(true)}

	var cl *client.Client
	switch {
	case cfg.KeytabPath != "":
		if cfg.Credentials == nil {
			return nil, fmt.Errorf("keytab login needs a username")
		}
		if err := cfg.Credentials.ValidateForKerberos(); err != nil {
			return nil, err
		}
		kt, err := keytab.Load(cfg.KeytabPath)
		if err != nil {
			return nil, fmt.Errorf("load keytab: %w", err)
		}
		cl = client.NewWithKeytab(cfg.Credentials.Username, cfg.Realm, kt, conf, opts...)
	case cfg.CCachePath != "":
		cc, err := credentials.LoadCCache(cfg.CCachePath)
		if err != nil {
			return nil, fmt.Errorf("load ccache: %w", err)
		}
		cl, err = client.NewFromCCache(cc, conf, opts...)
		if err != nil {
			return nil, fmt.Errorf("create client from ccache: %w", err)
		}
	case cfg.Credentials != nil:
		if err := cfg.Credentials.Validate(); err != nil {
			return nil, err
		}
		cl = client.NewWithPassword(cfg.Credentials.Username, cfg.Realm, cfg.Credentials.Password, conf, opts...)
	default:
		return nil, fmt.Errorf("no credentials provided (keytab, ccache, or password required)")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &KerberosInitiator{client: cl, targetSPN: targetSPN, logger: logger}, nil
}

// Step produces the SPNEGO NegTokenInit on the first call. Kerberos over
// SPNEGO completes in one leg; a later server token is the mutual
// authentication answer and is only checked for rejection.
func (k *KerberosInitiator) Step(_ context.Context, input []byte) ([]byte, bool, error) {
	if len(input) > 0 {
		return nil, false, k.checkResponse(input)
	}

	if k.spnego == nil {
		if err := k.client.Login(); err != nil {
			return nil, false, fmt.Errorf("kerberos login: %w", err)
		}
		k.spnego = spnego.SPNEGOClient(k.client, k.targetSPN)
	}

	tok, err := k.spnego.InitSecContext()
	if err != nil {
		return nil, false, fmt.Errorf("init security context for %s: %w", k.targetSPN, err)
	}
	b, err := tok.Marshal()
	if err != nil {
		return nil, false, fmt.Errorf("marshal token: %w", err)
	}
	k.logger.Debug("Kerberos initial token", "spn", k.targetSPN, "tokenLen", len(b))
	k.complete = true
	return b, false, nil
}

func (k *KerberosInitiator) checkResponse(input []byte) error {
	isInit, v, err := spnego.UnmarshalNegToken(input)
	if err != nil || isInit {
		// Not a NegTokenResp; nothing to verify.
		return nil
	}
	resp := v.(spnego.NegTokenResp)
	if resp.State() == spnego.NegStateReject {
		k.complete = false
		return fmt.Errorf("server rejected the Kerberos token")
	}
	return nil
}

// Complete returns true once the token has been produced.
func (k *KerberosInitiator) Complete() bool {
	return k.complete
}

// Close destroys the client's tickets.
func (k *KerberosInitiator) Close() error {
	k.client.Destroy()
	return nil
}
