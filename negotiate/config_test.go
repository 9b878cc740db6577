package negotiate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smnsjas/go-negotiate/directory"
	"github.com/smnsjas/go-negotiate/internal/testprovider"
	"github.com/smnsjas/go-negotiate/secctx"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, secctx.MechanismNegotiate, cfg.Mechanism)
	assert.Equal(t, DefaultCookieName, cfg.CookieName)
	assert.Equal(t, DefaultMaxContextAge, cfg.MaxContextAge)
	assert.Equal(t, DefaultSweepInterval, cfg.SweepInterval)
	assert.False(t, cfg.UseCookies)
	assert.False(t, cfg.UseConnectionKey)
}

func TestConfig_Validate(t *testing.T) {
	p := testprovider.New()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"conflicting key modes", func(c *Config) { c.UseCookies, c.UseConnectionKey = true, true }, ErrConflictingKeyModes},
		{"conflict reported before missing provider", func(c *Config) {
			c.Provider = nil
			c.UseCookies, c.UseConnectionKey = true, true
		}, ErrConflictingKeyModes},
		{"no provider", func(c *Config) { c.Provider = nil }, ErrNoProvider},
		{"bad mechanism", func(c *Config) { c.Mechanism = "Digest" }, ErrInvalidMechanism},
		{"negative age", func(c *Config) { c.MaxContextAge = -1 }, ErrInvalidDuration},
		{"directory without lookup", func(c *Config) { c.UseDirectory = true }, ErrMissingLookup},
		{"owner without lookup", func(c *Config) { c.UseOwner = true }, ErrMissingLookup},
		{"owner with lookup", func(c *Config) { c.UseOwner, c.Owner = true, directory.OS{} }, nil},
		{"groups need no lookup", func(c *Config) { c.UseGroups = true }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Provider = p
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfig_ValidateGroupFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = testprovider.New()
	cfg.GroupFilter = "("
	assert.Error(t, cfg.Validate())
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, secctx.MechanismNegotiate, cfg.Mechanism)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Clock)
	assert.Equal(t, DefaultCookieName, cfg.CookieName)
}
