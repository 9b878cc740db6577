// Package testprovider implements a scripted secctx.Provider for tests.
package testprovider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smnsjas/go-negotiate/secctx"
)

// ErrUnscripted is returned by AcceptContext for an input token with no step.
var ErrUnscripted = errors.New("testprovider: no step scripted for token")

// Step is the canned answer for one input token.
type Step struct {
	// Output is returned as the output token.
	Output []byte

	// Status is the step verdict.
	Status secctx.Status

	// Identity is returned with StatusOK.
	Identity *secctx.Identity

	// Err makes AcceptContext fail with this error.
	Err error

	// Panic makes AcceptContext panic with this value.
	Panic any
}

// Call records one AcceptContext invocation.
type Call struct {
	Input    string
	Existing *secctx.ContextHandle
}

// Provider answers AcceptContext from a script keyed by the input token.
// Handles come from an arena so tests can assert that none leak.
type Provider struct {
	// TTL is the lifetime of acquired credentials. Zero never expires.
	TTL time.Duration

	// Now is the time source for credential expiry. Default: time.Now.
	Now func() time.Time

	// AcquireErr makes AcquireCredential fail.
	AcquireErr error

	// Hook, if set, runs at the start of every AcceptContext call.
	Hook func(input []byte)

	mu       sync.Mutex
	steps    map[string]Step
	calls    []Call
	acquired int
	freed    int
	arena    *secctx.Arena
}

// New creates an empty scripted provider.
func New() *Provider {
	return &Provider{
		steps: make(map[string]Step),
		arena: secctx.NewArena(func(any) error { return nil }),
	}
}

// On scripts the answer for input.
func (p *Provider) On(input string, step Step) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps[input] = step
	return p
}

// Arena returns the handle arena.
func (p *Provider) Arena() *secctx.Arena {
	return p.arena
}

// Calls returns the AcceptContext calls so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Acquired returns how many credentials were acquired.
func (p *Provider) Acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

// Freed returns how many credentials were freed.
func (p *Provider) Freed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freed
}

// AcquireCredential returns a fresh credential numbered by acquisition order.
func (p *Provider) AcquireCredential(_ context.Context, mech secctx.Mechanism, principal string) (*secctx.Credential, error) {
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	p.mu.Lock()
	p.acquired++
	n := p.acquired
	p.mu.Unlock()

	var expiry time.Time
	if p.TTL > 0 {
		expiry = now().Add(p.TTL)
	}
	return secctx.NewCredential(mech, principal, expiry, fmt.Sprintf("cred-%d", n), func(any) error {
		p.mu.Lock()
		p.freed++
		p.mu.Unlock()
		return nil
	}), nil
}

// AcceptContext answers from the script. CONTINUE_NEEDED and OK advance the
// existing handle or allocate a new one; other statuses return existing.
func (p *Provider) AcceptContext(_ context.Context, cred *secctx.Credential, existing *secctx.ContextHandle, input []byte) (secctx.StepResult, error) {
	if p.Hook != nil {
		p.Hook(input)
	}

	p.mu.Lock()
	p.calls = append(p.calls, Call{Input: string(input), Existing: existing})
	step, ok := p.steps[string(input)]
	p.mu.Unlock()

	if cred == nil {
		return secctx.StepResult{}, errors.New("testprovider: nil credential")
	}
	if !ok {
		return secctx.StepResult{Context: existing}, fmt.Errorf("%w: %q", ErrUnscripted, input)
	}
	if step.Panic != nil {
		panic(step.Panic)
	}
	if step.Err != nil {
		return secctx.StepResult{Context: existing}, step.Err
	}

	h := existing
	switch step.Status {
	case secctx.StatusContinueNeeded, secctx.StatusOK:
		if h == nil {
			h = p.arena.New(string(input))
		}
	}
	return secctx.StepResult{
		Context:  h,
		Output:   step.Output,
		Status:   step.Status,
		Identity: step.Identity,
	}, nil
}
