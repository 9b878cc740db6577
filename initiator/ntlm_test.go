package initiator

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNTLMInitiator_NegotiateMessage(t *testing.T) {
	n, err := NewNTLMInitiator(NTLMConfig{Credentials: Credentials{Username: `EXAMPLE\alice`, Password: "pw"}})
	require.NoError(t, err)
	assert.Equal(t, "alice", n.user)
	assert.Equal(t, "EXAMPLE", n.domain)

	msg, cont, err := n.Step(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, cont)
	assert.True(t, bytes.HasPrefix(msg, []byte("NTLMSSP\x00\x01\x00\x00\x00")))
	assert.False(t, n.Complete())
}

func TestNTLMInitiator_BadChallenge(t *testing.T) {
	n, err := NewNTLMInitiator(NTLMConfig{Credentials: Credentials{Username: "alice", Password: "pw", Domain: "EXAMPLE"}})
	require.NoError(t, err)

	_, _, err = n.Step(context.Background(), nil)
	require.NoError(t, err)

	_, _, err = n.Step(context.Background(), nil)
	assert.Error(t, err, "missing challenge")
}

func TestNTLMInitiator_GarbageChallenge(t *testing.T) {
	n, err := NewNTLMInitiator(NTLMConfig{Credentials: Credentials{Username: "alice", Password: "pw"}})
	require.NoError(t, err)

	_, _, err = n.Step(context.Background(), nil)
	require.NoError(t, err)
	_, _, err = n.Step(context.Background(), []byte("not a challenge"))
	assert.Error(t, err)
	assert.False(t, n.Complete())
	assert.NoError(t, n.Close())
}

func TestNTLMInitiator_RequiresCredentials(t *testing.T) {
	_, err := NewNTLMInitiator(NTLMConfig{})
	assert.Error(t, err)
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name     string
		creds    Credentials
		wantErr  bool
		kerberos bool
	}{
		{"complete", Credentials{Username: "u", Password: "p"}, false, false},
		{"no user", Credentials{Password: "p"}, true, false},
		{"no password", Credentials{Username: "u"}, true, false},
		{"kerberos without password", Credentials{Username: "u"}, false, true},
		{"kerberos without user", Credentials{}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.kerberos {
				err = tt.creds.ValidateForKerberos()
			} else {
				err = tt.creds.Validate()
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewKerberosInitiator_MissingConfig(t *testing.T) {
	_, err := NewKerberosInitiator(KerberosConfig{Krb5ConfPath: "/nonexistent/krb5.conf"}, "HTTP/web")
	assert.Error(t, err)
}
