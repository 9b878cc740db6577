package secctx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKerberosProvider_KeytabFromEnv(t *testing.T) {
	t.Setenv("KRB5_KTNAME", "FILE:/etc/http.keytab")

	p, err := NewKerberosProvider(KerberosConfig{})
	require.NoError(t, err)
	assert.Equal(t, "/etc/http.keytab", p.cfg.KeytabPath)
	assert.Equal(t, DefaultKeytabReload, p.cfg.ReloadInterval)
}

func TestNewKerberosProvider_NoKeytab(t *testing.T) {
	t.Setenv("KRB5_KTNAME", "")

	_, err := NewKerberosProvider(KerberosConfig{})
	assert.Error(t, err)
}

func TestKerberosProvider_AcquireCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "http.keytab")
	kt := keytab.New()
	require.NoError(t, kt.AddEntry("HTTP/web.example.com", "EXAMPLE.COM", "secret", time.Now(), 1, 18))
	b, err := kt.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := NewKerberosProvider(KerberosConfig{KeytabPath: path, ReloadInterval: time.Minute})
	require.NoError(t, err)
	p.now = func() time.Time { return now }

	cred, err := p.AcquireCredential(context.Background(), MechanismNegotiate, "HTTP/web.example.com")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), cred.Expiry)
	assert.IsType(t, &keytab.Keytab{}, cred.Native())
	assert.NoError(t, cred.Free())

	_, err = p.AcquireCredential(context.Background(), MechanismNTLM, "")
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestKerberosProvider_AcquireCredential_MissingFile(t *testing.T) {
	p, err := NewKerberosProvider(KerberosConfig{KeytabPath: filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)

	_, err = p.AcquireCredential(context.Background(), MechanismKerberos, "")
	assert.Error(t, err)
}

func TestKerberosProvider_AcceptGarbage(t *testing.T) {
	p, err := NewKerberosProvider(KerberosConfig{KeytabPath: "unused"})
	require.NoError(t, err)
	cred := NewCredential(MechanismNegotiate, "", time.Time{}, keytab.New(), nil)

	res, err := p.AcceptContext(context.Background(), cred, nil, []byte("not a token"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, negTokenRespReject, res.Output)
	assert.Nil(t, res.Context)
	assert.Equal(t, 0, p.Arena().Live())
}

func TestKerberosProvider_WrongCredentialType(t *testing.T) {
	p, err := NewKerberosProvider(KerberosConfig{KeytabPath: "unused"})
	require.NoError(t, err)
	cred := NewCredential(MechanismNegotiate, "", time.Time{}, "not a keytab", nil)

	_, err = p.AcceptContext(context.Background(), cred, nil, []byte{0x60})
	assert.Error(t, err)
}

func TestDecodeContextToken_Garbage(t *testing.T) {
	_, err := decodeContextToken([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestKerberosIdentity(t *testing.T) {
	c := credentials.New("alice", "EXAMPLE.COM")
	c.SetDisplayName("Alice Example")
	c.SetADCredentials(credentials.ADCredentials{
		EffectiveName:       "alice",
		UserID:              1104,
		LogonDomainName:     "EXAMPLE",
		LogonDomainID:       "S-1-5-21-1-2-3",
		GroupMembershipSIDs: []string{"S-1-5-21-1-2-3-513"},
	})

	id := kerberosIdentity(c)
	assert.Equal(t, "alice@EXAMPLE.COM", id.Principal)
	assert.Equal(t, "alice", id.User)
	assert.Equal(t, "EXAMPLE", id.Domain)
	assert.Equal(t, "S-1-5-21-1-2-3-1104", id.SID)
	assert.Equal(t, "Alice Example", id.DisplayName)
	assert.Equal(t, []string{"S-1-5-21-1-2-3-513"}, id.Groups)
	assert.False(t, id.Guest)
}

func TestKerberosIdentity_NoPAC(t *testing.T) {
	c := credentials.New("bob", "EXAMPLE.COM")

	id := kerberosIdentity(c)
	assert.Equal(t, "EXAMPLE.COM", id.Domain)
	assert.Empty(t, id.SID)
	assert.Empty(t, id.Groups)
}
