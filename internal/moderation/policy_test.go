package moderation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicies_NoPath(t *testing.T) {
	p, err := NewPolicies("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p.Current())
	assert.NoError(t, p.Reload())
}

func TestNewPolicies_MissingFile(t *testing.T) {
	p, err := NewPolicies("/nonexistent/path/policy.json")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p.Current())
}

func TestNewPolicies_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte("not valid json"), 0644))

	_, err := NewPolicies(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse policy file")
}

func TestNewPolicies_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		field string
	}{
		{"moderate below staff", `{"staff_level": 4, "moderate_level": 3}`, "moderate_level"},
		{"audit below moderate", `{"audit_level": 1}`, "audit_level"},
		{"zero quota", `{"rate_limit": {"quota": 0, "window": "1m"}}`, "rate_limit.quota"},
		{"zero window", `{"rate_limit": {"quota": 5, "window": "0s"}}`, "rate_limit.window"},
		{"inverted username bounds", `{"username": {"min": 10, "max": 3}}`, "username"},
		{"empty reason bounds", `{"reason": {"min": 0, "max": 0}}`, "reason"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "policy.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.json), 0644))

			_, err := NewPolicies(path)
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestNewPolicies_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rate_limit": {"quota": 5, "window": 60}}`), 0644))

	_, err := NewPolicies(path)
	assert.Error(t, err)
}

func TestNewPolicies_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rate_limit": {"quota": 10, "window": "90s"}}`), 0644))

	p, err := NewPolicies(path)
	require.NoError(t, err)

	got := p.Current()
	assert.Equal(t, 10, got.RateLimit.Quota)
	assert.Equal(t, Duration(90*time.Second), got.RateLimit.Window)
	assert.Equal(t, 2, got.StaffLevel)
	assert.Equal(t, Bounds{Min: 15, Max: 150}, got.Reason)
}

func TestPolicies_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rate_limit": {"quota": 10, "window": "1m"}}`), 0644))

	p, err := NewPolicies(path)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Current().RateLimit.Quota)

	require.NoError(t, os.WriteFile(path, []byte(`{"rate_limit": {"quota": 20, "window": "1m"}}`), 0644))
	require.NoError(t, p.Reload())
	assert.Equal(t, 20, p.Current().RateLimit.Quota)

	// A broken file leaves the previous policy in force.
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
	assert.Error(t, p.Reload())
	assert.Equal(t, 20, p.Current().RateLimit.Quota)
}

func TestDurationJSON(t *testing.T) {
	d := Duration(2 * time.Minute)
	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2m0s"`, string(b))

	var back Duration
	require.NoError(t, back.UnmarshalJSON(b))
	assert.Equal(t, d, back)
}
