package password

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/tenantauth/internal"
)

// Character classes recognised by Policy.
const (
	Uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Lowercase = "abcdefghijklmnopqrstuvwxyz"
	Digits    = "0123456789"
	Special   = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	minTemporaryLength = 12
)

// Rule identifiers carried by Violation.
const (
	RuleMinLength = "min_length"
	RuleMaxLength = "max_length"
	RuleUppercase = "uppercase"
	RuleLowercase = "lowercase"
	RuleDigit     = "digit"
	RuleSpecial   = "special"
)

// PolicyConfig controls strength, history and aging rules.
type PolicyConfig struct {
	MinLength        int  `yaml:"min_length"`
	MaxLength        int  `yaml:"max_length"`
	RequireUppercase bool `yaml:"require_uppercase"`
	RequireLowercase bool `yaml:"require_lowercase"`
	RequireDigit     bool `yaml:"require_digit"`
	RequireSpecial   bool `yaml:"require_special"`
	// HistoryCount is how many previous hashes are kept and checked for reuse.
	HistoryCount int `yaml:"history_count"`
	// MaxAgeDays of 0 disables expiry.
	MaxAgeDays int `yaml:"max_age_days"`
}

// DefaultPolicyConfig returns 8-128 characters, all classes required, 5 remembered
// passwords and 90 day expiry.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MinLength:        8,
		MaxLength:        128,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSpecial:   true,
		HistoryCount:     5,
		MaxAgeDays:       90,
	}
}

// Validate checks internal consistency of the configuration.
func (c PolicyConfig) Validate() error {
	if c.MinLength < 1 {
		return errors.New("password policy MinLength must be >= 1")
	}
	if c.MaxLength < c.MinLength {
		return errors.New("password policy MaxLength must be >= MinLength")
	}
	if c.HistoryCount < 0 {
		return errors.New("password policy HistoryCount must be >= 0")
	}
	if c.MaxAgeDays < 0 {
		return errors.New("password policy MaxAgeDays must be >= 0")
	}
	return nil
}

// Violation is one failed rule.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Policy validates passwords and generates temporary ones. It performs no I/O.
type Policy struct {
	cfg PolicyConfig
}

func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Policy{cfg: cfg}, nil
}

func (p *Policy) Config() PolicyConfig {
	return p.cfg
}

// Validate returns every violated rule; an empty result means the password is acceptable.
func (p *Policy) Validate(password string) []Violation {
	var out []Violation

	n := utf8.RuneCountInString(password)
	if n < p.cfg.MinLength {
		out = append(out, Violation{RuleMinLength, fmt.Sprintf("Password must be at least %d characters", p.cfg.MinLength)})
	}
	if n > p.cfg.MaxLength {
		out = append(out, Violation{RuleMaxLength, fmt.Sprintf("Password must not exceed %d characters", p.cfg.MaxLength)})
	}
	if p.cfg.RequireUppercase && !strings.ContainsAny(password, Uppercase) {
		out = append(out, Violation{RuleUppercase, "Password must contain at least one uppercase letter"})
	}
	if p.cfg.RequireLowercase && !strings.ContainsAny(password, Lowercase) {
		out = append(out, Violation{RuleLowercase, "Password must contain at least one lowercase letter"})
	}
	if p.cfg.RequireDigit && !strings.ContainsAny(password, Digits) {
		out = append(out, Violation{RuleDigit, "Password must contain at least one digit"})
	}
	if p.cfg.RequireSpecial && !strings.ContainsAny(password, Special) {
		out = append(out, Violation{RuleSpecial, "Password must contain at least one special character"})
	}

	return out
}

// GenerateTemporary returns a password of max(12, MinLength) characters (capped at
// MaxLength) with at least one character from every required class, in random order.
func (p *Policy) GenerateTemporary() (string, error) {
	var required []string
	if p.cfg.RequireUppercase {
		required = append(required, Uppercase)
	}
	if p.cfg.RequireLowercase {
		required = append(required, Lowercase)
	}
	if p.cfg.RequireDigit {
		required = append(required, Digits)
	}
	if p.cfg.RequireSpecial {
		required = append(required, Special)
	}

	length := p.cfg.MinLength
	if length < minTemporaryLength {
		length = minTemporaryLength
	}
	if length > p.cfg.MaxLength {
		length = p.cfg.MaxLength
	}
	if length < len(required) {
		return "", errors.New("password policy MaxLength too small for required classes")
	}

	all := Uppercase + Lowercase + Digits + Special
	buf := make([]byte, 0, length)
	for _, class := range required {
		c, err := internal.RandomChar(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < length {
		c, err := internal.RandomChar(all)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	if err := internal.Shuffle(buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

// IsExpired is true when mustChange is set, or when MaxAgeDays has elapsed since changedAt.
// A zero changedAt never expires by age.
func (p *Policy) IsExpired(mustChange bool, changedAt, now time.Time) bool {
	if mustChange {
		return true
	}
	if p.cfg.MaxAgeDays <= 0 || changedAt.IsZero() {
		return false
	}
	return changedAt.AddDate(0, 0, p.cfg.MaxAgeDays).Before(now)
}

// RejectsReuse reports whether candidate matches the current hash or one of the first
// HistoryCount entries of history (newest first).
func (p *Policy) RejectsReuse(h Hasher, currentHash string, history []string, candidate string) (bool, error) {
	return RejectsReuse(h, currentHash, history, candidate, p.cfg.HistoryCount)
}

// RejectsReuse is the policy-free form of Policy.RejectsReuse.
func RejectsReuse(h Hasher, currentHash string, history []string, candidate string, depth int) (bool, error) {
	if currentHash != "" {
		ok, err := h.Verify(candidate, currentHash)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	if depth > len(history) {
		depth = len(history)
	}
	for i := 0; i < depth; i++ {
		ok, err := h.Verify(candidate, history[i])
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
