package negotiate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/smnsjas/go-negotiate/secctx"
)

// ErrProviderPanic wraps a panic raised inside the security provider.
var ErrProviderPanic = errors.New("negotiate: security provider panicked")

// Outcome is the result of one request through the middleware.
type Outcome string

const (
	OutcomeChallenge     Outcome = "challenge"
	OutcomeContinue      Outcome = "continue"
	OutcomeOK            Outcome = "ok"
	OutcomeDenied        Outcome = "denied"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeProviderError Outcome = "provider_error"
)

// Attempt describes one request's part in a handshake.
type Attempt struct {
	Key          string
	Token        []byte
	Mechanism    string
	Continuation bool
	Outcome      Outcome
	Principal    string
	Source       string
	Target       string
	Correlation  string
}

// Authenticator is HTTP middleware performing Negotiate authentication.
// Create it with New and stop it with Close.
type Authenticator struct {
	cfg       Config
	scheme    string
	logger    *slog.Logger
	creds     *credentialCache
	table     *contextTable
	sweeper   *sweeper
	keys      keySource
	assembler *sessionAssembler
	audit     *SecurityLogger
	metrics   *metrics

	closeOnce sync.Once
}

// New validates cfg, acquires the server credential and starts the sweep.
func New(cfg Config) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	a := &Authenticator{
		cfg:       cfg,
		scheme:    cfg.Mechanism.Scheme(),
		logger:    cfg.Logger,
		table:     newContextTable(cfg.Clock, cfg.MaxContextAge, cfg.Logger),
		assembler: newSessionAssembler(cfg),
		audit:     NewSecurityLogger(cfg.AuditLogger),
	}
	a.audit.clock = cfg.Clock
	a.metrics = newMetrics(cfg.Registerer, func() float64 { return float64(a.table.Len()) })
	a.creds = newCredentialCache(cfg, a.metrics)

	if cfg.UseCookies {
		a.keys = cookieKeys{name: cfg.CookieName, secure: cfg.CookieSecure}
	} else {
		a.keys = connectionKeys{}
	}

	ref, err := a.creds.get(context.Background())
	if err != nil {
		return nil, fmt.Errorf("negotiate: %w", err)
	}
	ref.release()

	a.sweeper = newSweeper(a.table, cfg.SweepInterval, func(n int) { a.metrics.swept.Add(float64(n)) })
	a.sweeper.start()
	return a, nil
}

// Close stops the sweep, deletes idle pending handshakes and drops the
// server credential.
func (a *Authenticator) Close() error {
	a.closeOnce.Do(func() {
		a.sweeper.stop()
		a.table.Close()
		a.creds.close()
	})
	return nil
}

// Scheme returns the advertised authentication scheme.
func (a *Authenticator) Scheme() string {
	return a.scheme
}

// PendingContexts returns the number of handshakes awaiting another leg.
func (a *Authenticator) PendingContexts() int {
	return a.table.Len()
}

// Middleware wraps next with Negotiate authentication. Authenticated
// requests carry a Session; rejected logons pass through without one.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		att := &Attempt{Source: r.RemoteAddr, Target: r.URL.Path}

		header := r.Header.Get("Authorization")
		if header == "" {
			att.Key = a.keys.key(w, r)
			a.challenge(w, r, att)
			return
		}

		// Malformed input is answered before a key is derived or issued.
		token, err := ParseAuthorization(header, a.scheme)
		if err != nil {
			att.Outcome = OutcomeMalformed
			a.logger.Debug("Rejecting malformed Authorization header", "source", att.Source, "error", err)
			a.record(att, SeverityWarning, nil)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		att.Key = a.keys.key(w, r)
		att.Token = token
		att.Mechanism = secctx.Label(token)

		a.step(w, r, next, att)
	})
}

// challenge answers a request without credentials once no other request
// for the key is mid-handshake.
func (a *Authenticator) challenge(w http.ResponseWriter, r *http.Request, att *Attempt) {
	lease, err := a.table.AwaitFree(r.Context(), att.Key)
	if err != nil {
		a.logger.Debug("Client left while waiting for its key", "key", att.Key, "error", err)
		return
	}
	defer lease.Release()

	att.Outcome = OutcomeChallenge
	att.Correlation = lease.Correlation()
	a.record(att, SeverityInfo, nil)

	w.Header().Set("WWW-Authenticate", a.scheme)
	w.WriteHeader(http.StatusUnauthorized)
}

// step runs one accept step for the request's token.
func (a *Authenticator) step(w http.ResponseWriter, r *http.Request, next http.Handler, att *Attempt) {
	lease, err := a.table.Acquire(r.Context(), att.Key)
	if err != nil {
		a.logger.Debug("Client left while waiting for its key", "key", att.Key, "error", err)
		return
	}
	defer lease.Release()

	att.Correlation = lease.Correlation()
	pending := lease.Pending()
	att.Continuation = pending != nil
	a.logger.Debug("Accepting security token",
		"key", att.Key, "mechanism", att.Mechanism, "tokenLen", len(att.Token), "context", pending)

	res, err := a.accept(r.Context(), pending, att.Token)
	if err == nil {
		err = checkResult(res)
	}
	if err != nil {
		lease.Complete(res.Context)
		att.Outcome = OutcomeProviderError
		a.logger.Error("Negotiate step failed", "key", att.Key, "mechanism", att.Mechanism, "error", err)
		a.record(att, SeverityError, map[string]any{"error": err.Error()})
		http.Error(w, "authentication failed", http.StatusBadRequest)
		return
	}

	switch res.Status {
	case secctx.StatusContinueNeeded:
		lease.Store(res.Context)
		att.Outcome = OutcomeContinue
		a.record(att, SeverityInfo, nil)
		w.Header().Set("WWW-Authenticate", ChallengeHeader(a.scheme, res.Output))
		w.WriteHeader(http.StatusUnauthorized)

	case secctx.StatusOK:
		if reason := a.refuse(res.Identity); reason != "" {
			lease.Complete(res.Context)
			att.Principal = res.Identity.Principal
			a.deny(w, r, next, att, reason)
			return
		}
		if len(res.Output) > 0 {
			w.Header().Set("WWW-Authenticate", ChallengeHeader(a.scheme, res.Output))
		}
		session := a.assembler.assemble(r.Context(), res.Identity, att.Mechanism)
		lease.Complete(res.Context)

		att.Outcome = OutcomeOK
		att.Principal = session.Principal
		a.logger.Debug("Negotiate authentication complete", "key", att.Key, "session", session)
		a.record(att, SeverityInfo, nil)
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))

	default:
		lease.Complete(res.Context)
		a.deny(w, r, next, att, res.Status.String())
	}
}

// deny lets the request through unauthenticated, or challenges again when
// authentication is required.
func (a *Authenticator) deny(w http.ResponseWriter, r *http.Request, next http.Handler, att *Attempt, reason string) {
	att.Outcome = OutcomeDenied
	a.logger.Debug("Negotiate logon denied", "key", att.Key, "mechanism", att.Mechanism, "reason", reason)
	a.record(att, SeverityWarning, map[string]any{"reason": reason})

	if a.cfg.RequireAuth {
		w.Header().Set("WWW-Authenticate", a.scheme)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	next.ServeHTTP(w, r)
}

// accept calls the provider with a referenced credential. A panic in the
// provider is returned as an error.
func (a *Authenticator) accept(ctx context.Context, pending *secctx.ContextHandle, token []byte) (res secctx.StepResult, err error) {
	cred, err := a.creds.get(ctx)
	if err != nil {
		return secctx.StepResult{}, err
	}
	defer cred.release()

	defer func() {
		if p := recover(); p != nil {
			res = secctx.StepResult{}
			err = fmt.Errorf("%w: %v", ErrProviderPanic, p)
		}
	}()
	// A running step is never cancelled by the client going away.
	return a.cfg.Provider.AcceptContext(context.WithoutCancel(ctx), cred.cred, pending, token)
}

// checkResult rejects step results the driver cannot act on.
func checkResult(res secctx.StepResult) error {
	switch res.Status {
	case secctx.StatusContinueNeeded:
		if len(res.Output) == 0 {
			return errors.New("provider requested another leg without a token")
		}
		if res.Context == nil {
			return errors.New("provider requested another leg without a context")
		}
	case secctx.StatusOK:
		if res.Identity == nil {
			return errors.New("provider completed without an identity")
		}
	case secctx.StatusLogonDenied, secctx.StatusFailed:
	default:
		return fmt.Errorf("provider returned unknown status %s", res.Status)
	}
	return nil
}

// refuse returns a reason when policy rejects an established identity.
func (a *Authenticator) refuse(id *secctx.Identity) string {
	switch {
	case id.Anonymous && !a.cfg.AllowAnonymous:
		return "anonymous logon"
	case id.Guest && !a.cfg.AllowGuest:
		return "guest logon"
	}
	return ""
}

func (a *Authenticator) record(att *Attempt, severity string, details map[string]any) {
	a.metrics.steps.WithLabelValues(string(att.Outcome), att.Mechanism).Inc()

	var subtype string
	switch att.Outcome {
	case OutcomeOK:
		subtype = SubtypeAuthSuccess
	case OutcomeDenied:
		subtype = SubtypeAuthDenied
	case OutcomeContinue:
		subtype = SubtypeAuthChallenge
	case OutcomeMalformed, OutcomeProviderError:
		subtype = SubtypeAuthFailure
	default:
		// First leg: the client was challenged and sent no token yet.
		subtype = SubtypeAuthAttempt
	}
	a.audit.LogAuthentication(att, subtype, severity, details)
}
