// Package policy holds the active password policy.
package policy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/pkg/errors"
)

// MinAllowedLength is the floor every policy's MinLength must respect.
const MinAllowedLength = 8

// Violation messages, in check order.
const (
	ViolationMinAboveMax         = "minLength > maxLength"
	ViolationMinTooSmall         = "minLength < 8"
	ViolationMaxAgeBelowWarning  = "maxAgeDays < warningDays"
	ViolationSpecialAboveMin     = "minSpecialChars > minLength"
	ViolationNegativeReuse       = "preventReuse < 0"
	ViolationNegativeSpecial     = "minSpecialChars < 0"
	ViolationNegativeWarningDays = "warningDays < 0"
)

// Store holds the single active policy. Reads see a complete, validated
// snapshot; writes are serialised and replace the whole policy.
type Store struct {
	mu       sync.Mutex
	current  atomic.Pointer[model.PasswordPolicy]
	modified atomic.Pointer[time.Time]
}

// NewStore creates a store holding the default policy.
func NewStore() *Store {
	s := &Store{}
	p := model.DefaultPasswordPolicy()
	s.current.Store(&p)
	return s
}

// Get returns a copy of the active policy.
func (s *Store) Get() model.PasswordPolicy {
	return *s.current.Load()
}

// LastModified returns when the policy was last replaced, or nil when it
// still holds the startup defaults.
func (s *Store) LastModified() *time.Time {
	return s.modified.Load()
}

// Set validates candidate and, if it passes, installs it. On failure the
// active policy is unchanged and a *errors.PolicyValidationError lists
// every violation.
func (s *Store) Set(candidate model.PasswordPolicy) error {
	if err := Validate(candidate); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(candidate)
	return nil
}

// Reset installs the default policy.
func (s *Store) Reset() model.PasswordPolicy {
	p := model.DefaultPasswordPolicy()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(p)
	return p
}

// Restore installs a persisted policy without stamping a modification time.
func (s *Store) Restore(p model.PasswordPolicy, modified *time.Time) error {
	if err := Validate(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(&p)
	s.modified.Store(modified)
	return nil
}

func (s *Store) swap(p model.PasswordPolicy) {
	now := time.Now().UTC()
	s.current.Store(&p)
	s.modified.Store(&now)
}

// Validate checks candidate against the policy invariants and reports all
// violations at once.
func Validate(p model.PasswordPolicy) error {
	var violations []string

	if p.MinLength > p.MaxLength {
		violations = append(violations, ViolationMinAboveMax)
	}
	if p.MinLength < MinAllowedLength {
		violations = append(violations, ViolationMinTooSmall)
	}
	if p.MaxAgeDays < p.WarningDays {
		violations = append(violations, ViolationMaxAgeBelowWarning)
	}
	if p.MinSpecialChars > p.MinLength {
		violations = append(violations, ViolationSpecialAboveMin)
	}
	if p.PreventReuse < 0 {
		violations = append(violations, ViolationNegativeReuse)
	}
	if p.MinSpecialChars < 0 {
		violations = append(violations, ViolationNegativeSpecial)
	}
	if p.WarningDays < 0 {
		violations = append(violations, ViolationNegativeWarningDays)
	}

	if len(violations) > 0 {
		return &errors.PolicyValidationError{Violations: violations}
	}
	return nil
}
