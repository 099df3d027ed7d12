package password

import (
	"strings"

	"github.com/jwalitptl/passpolicy/internal/model"
)

// Character classes recognised by the engine. Class checks are ASCII only.
const (
	UppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	LowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	DigitChars     = "0123456789"
	SpecialChars   = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// DefaultCommonPasswords is the curated dictionary used when no other is
// configured. Entries are lower case.
var DefaultCommonPasswords = []string{
	"password", "123456", "123456789", "qwerty", "abc123",
	"password123", "admin", "letmein", "welcome", "monkey",
	"dragon", "master", "shadow", "superman", "michael",
	"football", "baseball", "liverpool", "jordan", "harley",
}

var sequences = []string{"abc", "123", "qwe", "asd", "zxc"}

// charClasses counts the character classes present in a password.
type charClasses struct {
	upper   bool
	lower   bool
	digit   bool
	special int
}

func classify(password string) charClasses {
	var c charClasses
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			c.upper = true
		case r >= 'a' && r <= 'z':
			c.lower = true
		case r >= '0' && r <= '9':
			c.digit = true
		case isSpecial(r):
			c.special++
		}
	}
	return c
}

func isSpecial(r rune) bool {
	return strings.ContainsRune(SpecialChars, r)
}

// HasRepeatingPattern reports whether any 3-character window occurs again
// later in the password, overlapping occurrences included.
func HasRepeatingPattern(password string) bool {
	runes := []rune(password)
	for i := 0; i+3 <= len(runes); i++ {
		window := string(runes[i : i+3])
		if strings.Contains(string(runes[i+1:]), window) {
			return true
		}
	}
	return false
}

// HasSequentialChars reports whether the lower-cased password contains one
// of the fixed keyboard, alphabet or numeric runs, forwards or reversed.
func HasSequentialChars(password string) bool {
	lower := strings.ToLower(password)
	for _, seq := range sequences {
		if strings.Contains(lower, seq) || strings.Contains(lower, reverse(seq)) {
			return true
		}
	}
	return false
}

// IsCommonPassword reports whether the lower-cased password contains, or is
// contained by, any dictionary entry.
func IsCommonPassword(dictionary []string, password string) bool {
	lower := strings.ToLower(password)
	for _, common := range dictionary {
		if containsEither(lower, strings.ToLower(common)) {
			return true
		}
	}
	return false
}

// ContainsUserInfo reports whether the lower-cased password contains, or is
// contained by, any non-empty identity field.
func ContainsUserInfo(identity model.IdentityInfo, password string) bool {
	lower := strings.ToLower(password)
	for _, field := range identity.Fields() {
		if field == "" {
			continue
		}
		if containsEither(lower, strings.ToLower(field)) {
			return true
		}
	}
	return false
}

func containsEither(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
