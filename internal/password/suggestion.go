package password

import "github.com/jwalitptl/passpolicy/internal/model"

var suggestionTexts = map[model.IssueCode][]string{
	model.IssueTooShort: {
		"Try using a passphrase with multiple words",
		"Add more characters to meet minimum length requirement",
	},
	model.IssueTooLong: {
		"Shorten the password to meet maximum length requirement",
	},
	model.IssueMissingUppercase: {
		"Add at least one uppercase letter (A-Z)",
	},
	model.IssueMissingLowercase: {
		"Add at least one lowercase letter (a-z)",
	},
	model.IssueMissingNumber: {
		"Include at least one number (0-9)",
	},
	model.IssueInsufficientSpecialChars: {
		"Add special characters like: " + SpecialChars[:10] + "...",
	},
	model.IssueCommonPassword: {
		"Avoid common passwords and dictionary words",
		"Create a unique combination of words and characters",
	},
	model.IssueContainsPersonalInfo: {
		"Avoid using your name, email, or other personal information",
	},
	model.IssuePasswordReused: {
		"Choose a password you have not used recently",
	},
}

// Suggestions maps issues to remediation text, preserving issue order.
func Suggestions(issues []model.IssueCode) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, suggestionTexts[issue]...)
	}
	return out
}
