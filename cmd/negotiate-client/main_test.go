package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-negotiate/initiator"
)

func TestAutoMechanism(t *testing.T) {
	if !initiator.SupportsSSO() {
		assert.Equal(t, "ntlm", autoMechanism(options{}))
	}
	assert.Equal(t, "kerberos", autoMechanism(options{user: "alice", ccache: "/tmp/krb5cc"}))
	assert.Equal(t, "kerberos", autoMechanism(options{user: "alice", realm: "EXAMPLE.COM"}))
	assert.Equal(t, "ntlm", autoMechanism(options{user: `EXAMPLE\alice`}))
}

func TestNeedsPassword(t *testing.T) {
	assert.True(t, needsPassword(options{mech: "ntlm"}))
	assert.True(t, needsPassword(options{mech: "kerberos"}))
	assert.False(t, needsPassword(options{mech: "kerberos", ccache: "/tmp/krb5cc"}))
	assert.False(t, needsPassword(options{mech: "sspi"}))
}

func TestInitiatorFactory(t *testing.T) {
	newInit, err := initiatorFactory(options{mech: "ntlm", user: "alice", password: "pw"})
	require.NoError(t, err)
	init, err := newInit()
	require.NoError(t, err)
	assert.NoError(t, init.Close())

	_, err = initiatorFactory(options{mech: "ntlm", user: "alice"})
	assert.Error(t, err, "ntlm needs a password")

	_, err = initiatorFactory(options{mech: "kerberos"})
	assert.Error(t, err)

	_, err = initiatorFactory(options{mech: "digest"})
	assert.Error(t, err)
}
