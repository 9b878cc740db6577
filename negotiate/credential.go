package negotiate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/smnsjas/go-negotiate/secctx"
)

// ErrClosed is returned after the Authenticator has been closed.
var ErrClosed = errors.New("negotiate: authenticator closed")

// credRef is a reference-counted server credential. The cache holds one
// reference while the credential is current; every in-flight step holds one
// more. The native credential is freed when the count drops to zero.
type credRef struct {
	cred   *secctx.Credential
	refs   atomic.Int64
	logger *slog.Logger
}

func (r *credRef) release() {
	if r.refs.Add(-1) != 0 {
		return
	}
	if err := r.cred.Free(); err != nil {
		r.logger.Warn("Free server credential failed", "mechanism", r.cred.Mechanism, "error", err)
		return
	}
	r.logger.Debug("Server credential freed", "mechanism", r.cred.Mechanism)
}

// credentialCache owns the server credential for one mechanism and renews
// it when it expires.
type credentialCache struct {
	provider  secctx.Provider
	mech      secctx.Mechanism
	principal string
	clock     Clock
	logger    *slog.Logger
	metrics   *metrics

	flight singleflight.Group

	mu     sync.RWMutex
	cur    *credRef
	closed bool
}

func newCredentialCache(cfg Config, m *metrics) *credentialCache {
	return &credentialCache{
		provider:  cfg.Provider,
		mech:      cfg.Mechanism,
		principal: cfg.Principal,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   m,
	}
}

// get returns a referenced, unexpired credential. Callers must release it.
func (c *credentialCache) get(ctx context.Context) (*credRef, error) {
	if r, err := c.current(false); r != nil || err != nil {
		return r, err
	}

	// A request that goes away must not abort a renewal other requests wait on.
	_, err, _ := c.flight.Do("renew", func() (any, error) {
		return nil, c.renew(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}

	r, err := c.current(true)
	if err == nil && r == nil {
		err = fmt.Errorf("negotiate: no server credential after renewal")
	}
	return r, err
}

// current references the current credential. An expired credential is only
// returned when allowExpired is set.
func (c *credentialCache) current(allowExpired bool) (*credRef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	r := c.cur
	if r == nil || (!allowExpired && r.cred.Expired(c.clock.Now())) {
		return nil, nil
	}
	r.refs.Add(1)
	return r, nil
}

// renew acquires a new credential and swaps it in. The retired credential is
// freed once the last in-flight step releases it.
func (c *credentialCache) renew(ctx context.Context) error {
	c.mu.RLock()
	fresh := c.cur != nil && !c.cur.cred.Expired(c.clock.Now())
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	c.logger.Debug("Acquiring server credential", "mechanism", c.mech, "principal", c.principal)
	cred, err := c.provider.AcquireCredential(ctx, c.mech, c.principal)
	if err != nil {
		return fmt.Errorf("acquire %s credential: %w", c.mech, err)
	}
	next := &credRef{cred: cred, logger: c.logger}
	next.refs.Store(1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		next.release()
		return ErrClosed
	}
	old := c.cur
	c.cur = next
	c.mu.Unlock()

	if old != nil {
		old.release()
		c.metrics.renewals.Inc()
	}
	c.logger.Debug("Server credential ready", "mechanism", c.mech, "expiry", cred.Expiry)
	return nil
}

// close drops the cache's reference to the current credential.
func (c *credentialCache) close() {
	c.mu.Lock()
	old := c.cur
	c.cur = nil
	c.closed = true
	c.mu.Unlock()

	if old != nil {
		old.release()
	}
}
