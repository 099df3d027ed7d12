package model

import "time"

// PasswordPolicy is the single active rule set. It is a closed structure:
// decoders at the boundary reject fields not listed here.
type PasswordPolicy struct {
	MinLength              int  `json:"min_length" db:"min_length" mapstructure:"min_length"`
	MaxLength              int  `json:"max_length" db:"max_length" mapstructure:"max_length"`
	RequireUppercase       bool `json:"require_uppercase" db:"require_uppercase" mapstructure:"require_uppercase"`
	RequireLowercase       bool `json:"require_lowercase" db:"require_lowercase" mapstructure:"require_lowercase"`
	RequireNumbers         bool `json:"require_numbers" db:"require_numbers" mapstructure:"require_numbers"`
	RequireSpecialChars    bool `json:"require_special_chars" db:"require_special_chars" mapstructure:"require_special_chars"`
	MinSpecialChars        int  `json:"min_special_chars" db:"min_special_chars" mapstructure:"min_special_chars"`
	PreventCommonPasswords bool `json:"prevent_common_passwords" db:"prevent_common_passwords" mapstructure:"prevent_common_passwords"`
	PreventUserInfo        bool `json:"prevent_user_info" db:"prevent_user_info" mapstructure:"prevent_user_info"`
	PreventReuse           int  `json:"prevent_reuse" db:"prevent_reuse" mapstructure:"prevent_reuse"`
	MaxAgeDays             int  `json:"max_age_days" db:"max_age_days" mapstructure:"max_age_days"`
	WarningDays            int  `json:"warning_days" db:"warning_days" mapstructure:"warning_days"`

	// Lockout settings are consumed by the authentication layer only.
	LockoutAttempts        int `json:"lockout_attempts" db:"lockout_attempts" mapstructure:"lockout_attempts"`
	LockoutDurationMinutes int `json:"lockout_duration_minutes" db:"lockout_duration_minutes" mapstructure:"lockout_duration_minutes"`
}

// DefaultPasswordPolicy returns the policy installed at process start.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:              12,
		MaxLength:              128,
		RequireUppercase:       true,
		RequireLowercase:       true,
		RequireNumbers:         true,
		RequireSpecialChars:    true,
		MinSpecialChars:        2,
		PreventCommonPasswords: true,
		PreventUserInfo:        true,
		PreventReuse:           5,
		MaxAgeDays:             90,
		WarningDays:            14,
		LockoutAttempts:        5,
		LockoutDurationMinutes: 30,
	}
}

// PolicyExportVersion is stamped on exported policy documents.
const PolicyExportVersion = "1.0"

// PolicyExport is the document produced by export and accepted by import.
type PolicyExport struct {
	Policies   PasswordPolicy `json:"policies"`
	ExportDate time.Time      `json:"export_date"`
	ExportedBy string         `json:"exported_by,omitempty"`
	Version    string         `json:"version"`
}

// PolicyStatistics summarises the administrative state of the policy.
type PolicyStatistics struct {
	TotalPolicyChanges   int        `json:"total_policy_changes"`
	CurrentPolicyVersion string     `json:"current_policy_version"`
	LastModified         *time.Time `json:"last_modified,omitempty"`
	ComplianceLevel      int        `json:"compliance_level"`
}

// ComplianceLevel rates how strict a policy is on a 0-100 scale.
func (p PasswordPolicy) ComplianceLevel() int {
	score := 0

	switch {
	case p.MinLength >= 12:
		score += 20
	case p.MinLength >= 8:
		score += 10
	}

	for _, required := range []bool{p.RequireUppercase, p.RequireLowercase, p.RequireNumbers, p.RequireSpecialChars} {
		if required {
			score += 15
		}
	}

	if p.PreventCommonPasswords {
		score += 10
	}
	if p.PreventUserInfo {
		score += 5
	}
	if p.PreventReuse > 0 {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

// PolicyRecord is the persisted form of the active policy.
type PolicyRecord struct {
	PasswordPolicy
	Version   int       `json:"version" db:"version"`
	UpdatedBy string    `json:"updated_by" db:"updated_by"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
