package negotiate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-negotiate/internal/testprovider"
	"github.com/smnsjas/go-negotiate/secctx"
)

func newTestCache(p *testprovider.Provider, clock Clock) *credentialCache {
	cfg := Config{Provider: p, Mechanism: secctx.MechanismNegotiate, Clock: clock, Logger: discardLogger()}
	return newCredentialCache(cfg, newMetrics(nil, func() float64 { return 0 }))
}

func TestCredentialCache_ReusesUntilExpiry(t *testing.T) {
	clock := newMockClock(time.Unix(1000, 0))
	p := testprovider.New()
	p.TTL = time.Minute
	p.Now = clock.Now
	c := newTestCache(p, clock)
	ctx := context.Background()

	r1, err := c.get(ctx)
	require.NoError(t, err)
	r1.release()
	r2, err := c.get(ctx)
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	r2.release()
	assert.Equal(t, 1, p.Acquired())

	clock.Advance(time.Minute)
	r3, err := c.get(ctx)
	require.NoError(t, err)
	assert.NotSame(t, r1, r3)
	assert.Equal(t, 2, p.Acquired())
	assert.Equal(t, 1, p.Freed(), "retired credential freed once unreferenced")
	r3.release()

	c.close()
	assert.Equal(t, 2, p.Freed())
	_, err = c.get(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCredentialCache_RetiredHeldUntilReleased(t *testing.T) {
	clock := newMockClock(time.Unix(1000, 0))
	p := testprovider.New()
	p.TTL = time.Minute
	p.Now = clock.Now
	c := newTestCache(p, clock)
	ctx := context.Background()

	inFlight, err := c.get(ctx)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	fresh, err := c.get(ctx)
	require.NoError(t, err)
	assert.NotSame(t, inFlight, fresh)

	// The step still using the old credential keeps it alive.
	assert.Equal(t, 0, p.Freed())
	inFlight.release()
	assert.Equal(t, 1, p.Freed())
	fresh.release()
}

func TestCredentialCache_ConcurrentRenewalAcquiresOnce(t *testing.T) {
	clock := newMockClock(time.Unix(1000, 0))
	p := testprovider.New()
	p.TTL = time.Minute
	p.Now = clock.Now
	c := newTestCache(p, clock)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.get(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			r.release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, p.Acquired())
}

func TestCredentialCache_AcquireError(t *testing.T) {
	p := testprovider.New()
	p.AcquireErr = errors.New("no keytab")
	c := newTestCache(p, realClock{})

	_, err := c.get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no keytab")
}

func TestCredentialCache_RenewalIgnoresCancelledRequest(t *testing.T) {
	p := testprovider.New()
	c := newTestCache(p, realClock{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := c.get(ctx)
	require.NoError(t, err)
	r.release()
}
