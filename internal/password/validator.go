package password

import (
	"unicode/utf8"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/pkg/errors"
)

// ReuseChecker answers reuse questions for an identity's password history.
// HistoryTracker implements it.
type ReuseChecker interface {
	// Known reports whether any history exists for the identity.
	Known(identityID string) bool
	// IsReusedWithin reports whether password matches one of the window most
	// recent entries.
	IsReusedWithin(identityID, password string, window int) bool
}

// Validator orchestrates the policy rule checks, scoring and reuse check
// into a single verdict.
type Validator struct {
	dictionary []string
}

// NewValidator creates a validator using dictionary for common-password
// checks. A nil or empty dictionary selects DefaultCommonPasswords.
func NewValidator(dictionary []string) *Validator {
	if len(dictionary) == 0 {
		dictionary = DefaultCommonPasswords
	}
	return &Validator{dictionary: append([]string(nil), dictionary...)}
}

// Validate runs every check against password and returns the verdict. All
// checks run so the caller sees every violation at once. A failed verdict is
// not an error; the error return is reserved for malformed input.
func (v *Validator) Validate(password string, identity model.IdentityInfo, policy model.PasswordPolicy, history ReuseChecker) (*model.ValidationResult, error) {
	if !utf8.ValidString(password) {
		return nil, errors.InvalidInput("password must be valid UTF-8 text")
	}

	length := utf8.RuneCountInString(password)
	classes := classify(password)
	issues := make([]model.IssueCode, 0, 4)

	if length < policy.MinLength {
		issues = append(issues, model.IssueTooShort)
	}
	if length > policy.MaxLength {
		issues = append(issues, model.IssueTooLong)
	}

	if policy.RequireUppercase && !classes.upper {
		issues = append(issues, model.IssueMissingUppercase)
	}
	if policy.RequireLowercase && !classes.lower {
		issues = append(issues, model.IssueMissingLowercase)
	}
	if policy.RequireNumbers && !classes.digit {
		issues = append(issues, model.IssueMissingNumber)
	}
	if policy.RequireSpecialChars && classes.special < policy.MinSpecialChars {
		issues = append(issues, model.IssueInsufficientSpecialChars)
	}

	if policy.PreventCommonPasswords && IsCommonPassword(v.dictionary, password) {
		issues = append(issues, model.IssueCommonPassword)
	}
	if policy.PreventUserInfo && ContainsUserInfo(identity, password) {
		issues = append(issues, model.IssueContainsPersonalInfo)
	}

	if history != nil && identity.ID != "" && policy.PreventReuse > 0 && history.Known(identity.ID) {
		if history.IsReusedWithin(identity.ID, password, policy.PreventReuse) {
			issues = append(issues, model.IssuePasswordReused)
		}
	}

	s := score(password, length, classes, policy)
	result := &model.ValidationResult{
		IsValid:     len(issues) == 0 && s >= ValidScoreThreshold,
		Score:       s,
		Strength:    LabelFor(s),
		Issues:      issues,
		Suggestions: []string{},
	}
	if len(issues) > 0 {
		result.Suggestions = Suggestions(issues)
	}
	return result, nil
}
