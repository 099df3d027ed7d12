package model

// IssueCode names the rule a candidate password failed.
type IssueCode string

const (
	IssueTooShort                 IssueCode = "too_short"
	IssueTooLong                  IssueCode = "too_long"
	IssueMissingUppercase         IssueCode = "missing_uppercase"
	IssueMissingLowercase         IssueCode = "missing_lowercase"
	IssueMissingNumber            IssueCode = "missing_number"
	IssueInsufficientSpecialChars IssueCode = "insufficient_special_chars"
	IssueCommonPassword           IssueCode = "common_password"
	IssueContainsPersonalInfo     IssueCode = "contains_personal_info"
	IssuePasswordReused           IssueCode = "password_reused"
)

// StrengthLabel is the qualitative bucket derived from a score.
type StrengthLabel string

const (
	StrengthVeryWeak  StrengthLabel = "Very Weak"
	StrengthWeak      StrengthLabel = "Weak"
	StrengthFair      StrengthLabel = "Fair"
	StrengthGood      StrengthLabel = "Good"
	StrengthStrong    StrengthLabel = "Strong"
	StrengthExcellent StrengthLabel = "Excellent"
)

// ValidationResult is the verdict returned for one candidate password.
// A failed verdict is a normal result, not an error.
type ValidationResult struct {
	IsValid     bool          `json:"is_valid"`
	Score       int           `json:"score"`
	Strength    StrengthLabel `json:"strength"`
	Issues      []IssueCode   `json:"issues"`
	Suggestions []string      `json:"suggestions"`
}

// HasIssue reports whether code was raised.
func (r *ValidationResult) HasIssue(code IssueCode) bool {
	for _, issue := range r.Issues {
		if issue == code {
			return true
		}
	}
	return false
}

// IdentityInfo is caller-supplied metadata used for personal-info checks
// and to key password history. The engine never persists the name fields.
type IdentityInfo struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Fields returns the personal-info values in check order.
func (i IdentityInfo) Fields() []string {
	return []string{i.FirstName, i.LastName, i.Email, i.Username}
}
