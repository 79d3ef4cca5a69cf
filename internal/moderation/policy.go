package moderation

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Duration is a time.Duration that reads Go duration strings ("90s", "1m") from JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Bounds is an inclusive character-length range.
type Bounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (b Bounds) contains(n int) bool {
	return n >= b.Min && n <= b.Max
}

// RateLimitPolicy is the per-actor quota for moderation attempts.
type RateLimitPolicy struct {
	Quota  int      `json:"quota"`
	Window Duration `json:"window"`
}

// Policy holds the tunable thresholds of the moderation workflow.
type Policy struct {
	// StaffLevel is the highest permission level that can still be sanctioned.
	StaffLevel int `json:"staff_level"`
	// ModerateLevel is the minimum actor level for moderation actions.
	ModerateLevel int `json:"moderate_level"`
	// AuditLevel is the minimum actor level for reading the audit log.
	AuditLevel int `json:"audit_level"`

	RateLimit RateLimitPolicy `json:"rate_limit"`
	Username  Bounds          `json:"username"`
	Reason    Bounds          `json:"reason"`
}

// DefaultPolicy returns the thresholds used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		StaffLevel:    2,
		ModerateLevel: 4,
		AuditLevel:    5,
		RateLimit: RateLimitPolicy{
			Quota:  30,
			Window: Duration(time.Minute),
		},
		Username: Bounds{Min: 3, Max: 21},
		Reason:   Bounds{Min: 15, Max: 150},
	}
}

// Validate checks that the policy is usable
func (p *Policy) Validate() error {
	if p.ModerateLevel <= p.StaffLevel {
		return &ConfigError{Field: "moderate_level", Message: "must be above staff_level"}
	}
	if p.AuditLevel < p.ModerateLevel {
		return &ConfigError{Field: "audit_level", Message: "must not be below moderate_level"}
	}
	if p.RateLimit.Quota <= 0 {
		return &ConfigError{Field: "rate_limit.quota", Message: "must be positive"}
	}
	if p.RateLimit.Window <= 0 {
		return &ConfigError{Field: "rate_limit.window", Message: "must be positive"}
	}
	if p.Username.Min <= 0 || p.Username.Max < p.Username.Min {
		return &ConfigError{Field: "username", Message: "invalid length bounds"}
	}
	if p.Reason.Min <= 0 || p.Reason.Max < p.Reason.Min {
		return &ConfigError{Field: "reason", Message: "invalid length bounds"}
	}
	return nil
}

// ConfigError represents a policy validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "moderation policy error in " + e.Field + ": " + e.Message
}

// Policies serves the current Policy, loaded from an optional JSON file.
type Policies struct {
	mu     sync.RWMutex
	policy Policy
	path   string
}

// NewPolicies loads the policy file at path over the defaults.
// If path is empty, or the file does not exist, the defaults are used.
func NewPolicies(path string) (*Policies, error) {
	p := &Policies{policy: DefaultPolicy(), path: path}

	if path == "" {
		log.Info().Msg("moderation: no policy path provided, using defaults")
		return p, nil
	}

	if err := p.load(); err != nil {
		return nil, fmt.Errorf("failed to load moderation policy: %w", err)
	}
	return p, nil
}

// StaticPolicies wraps a fixed policy, mostly for tests.
func StaticPolicies(policy Policy) *Policies {
	return &Policies{policy: policy}
}

func (p *Policies) load() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", p.path).Msg("moderation: policy file not found, using defaults")
			return nil
		}
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	// Fields missing from the file keep their default values.
	policy := DefaultPolicy()
	if err := json.Unmarshal(data, &policy); err != nil {
		return fmt.Errorf("failed to parse policy file: %w", err)
	}

	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	p.mu.Lock()
	p.policy = policy
	p.mu.Unlock()

	log.Info().
		Int("staff_level", policy.StaffLevel).
		Int("moderate_level", policy.ModerateLevel).
		Int("rate_limit_quota", policy.RateLimit.Quota).
		Dur("rate_limit_window", time.Duration(policy.RateLimit.Window)).
		Str("path", p.path).
		Msg("moderation: policy loaded")

	return nil
}

// Reload re-reads the policy file from disk
func (p *Policies) Reload() error {
	if p.path == "" {
		return nil
	}
	return p.load()
}

// Current returns a copy of the active policy.
func (p *Policies) Current() Policy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.policy
}
