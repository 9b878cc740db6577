package secctx

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArena_ReleaseOnce(t *testing.T) {
	var deleted []any
	a := NewArena(func(native any) error {
		deleted = append(deleted, native)
		return nil
	})

	h := a.New("ctx-1")
	assert.Equal(t, 1, a.Live())
	assert.Equal(t, "ctx(1)", h.String())

	require.NoError(t, h.Release())
	assert.True(t, h.Released())
	assert.ErrorIs(t, h.Release(), ErrReleased)

	assert.Equal(t, []any{"ctx-1"}, deleted)
	assert.Equal(t, 0, a.Live())
	assert.Equal(t, uint64(1), a.Deleted())
}

func TestArena_NilNativeSkipsDelete(t *testing.T) {
	calls := 0
	a := NewArena(func(any) error {
		calls++
		return nil
	})

	h := a.New(nil)
	require.NoError(t, h.Release())
	assert.Zero(t, calls)
	assert.Equal(t, uint64(1), a.Deleted())
}

func TestArena_DeleteError(t *testing.T) {
	boom := errors.New("boom")
	a := NewArena(func(any) error { return boom })

	h := a.New("x")
	err := h.Release()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	// The handle is gone from the arena even when the provider complains.
	assert.Equal(t, 0, a.Live())
}

func TestArena_Close(t *testing.T) {
	a := NewArena(nil)
	h1 := a.New(1)
	a.New(2)
	a.New(3)
	require.NoError(t, h1.Release())

	require.NoError(t, a.Close())
	assert.Equal(t, 0, a.Live())
	assert.Equal(t, uint64(3), a.Deleted())
}

func TestContextHandle_NilRelease(t *testing.T) {
	var h *ContextHandle
	assert.NoError(t, h.Release())
	assert.Equal(t, "ctx(<nil>)", h.String())
}

func TestCredential_FreeOnce(t *testing.T) {
	calls := 0
	c := NewCredential(MechanismNegotiate, "HTTP/web", time.Time{}, "native", func(native any) error {
		assert.Equal(t, "native", native)
		calls++
		return nil
	})

	require.NoError(t, c.Free())
	assert.ErrorIs(t, c.Free(), ErrReleased)
	assert.Equal(t, 1, calls)
}

func TestCredential_Expired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	never := NewCredential(MechanismKerberos, "", time.Time{}, nil, nil)
	assert.False(t, never.Expired(now))

	c := NewCredential(MechanismKerberos, "", now.Add(time.Minute), nil, nil)
	assert.False(t, c.Expired(now))
	assert.True(t, c.Expired(now.Add(time.Minute)))
	assert.True(t, c.Expired(now.Add(time.Hour)))
}

func TestMechanism(t *testing.T) {
	tests := []struct {
		mech   Mechanism
		scheme string
		valid  bool
	}{
		{MechanismNegotiate, "Negotiate", true},
		{MechanismKerberos, "Negotiate", true},
		{MechanismNTLM, "NTLM", true},
		{Mechanism("Digest"), "Negotiate", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mech), func(t *testing.T) {
			assert.Equal(t, tt.scheme, tt.mech.Scheme())
			assert.Equal(t, tt.valid, tt.mech.Valid())
		})
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "CONTINUE_NEEDED", StatusContinueNeeded.String())
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "LOGON_DENIED", StatusLogonDenied.String())
	assert.Equal(t, "FAILED", StatusFailed.String())
	assert.Equal(t, "Status(0)", Status(0).String())
}
