package password

import (
	"unicode/utf8"

	"github.com/jwalitptl/passpolicy/internal/model"
)

// Point allocation.
const (
	pointsLength  = 20
	pointsClass   = 15
	pointsSpecial = 20
	maxBonus      = 15

	// ValidScoreThreshold is the minimum score a valid password must reach.
	ValidScoreThreshold = 60
	MaxScore            = 100
)

// Score computes the 0-100 strength score of password under policy.
func Score(password string, policy model.PasswordPolicy) int {
	return score(password, utf8.RuneCountInString(password), classify(password), policy)
}

func score(password string, length int, c charClasses, policy model.PasswordPolicy) int {
	total := 0
	if length >= policy.MinLength {
		total += pointsLength
	}
	if c.upper {
		total += pointsClass
	}
	if c.lower {
		total += pointsClass
	}
	if c.digit {
		total += pointsClass
	}
	if policy.RequireSpecialChars && c.special >= policy.MinSpecialChars {
		total += pointsSpecial
	}
	total += ComplexityBonus(password)

	if total > MaxScore {
		total = MaxScore
	}
	return total
}

// ComplexityBonus awards up to 15 points for length, character variety and
// the absence of repeated or sequential runs.
func ComplexityBonus(password string) int {
	runes := []rune(password)
	bonus := 0

	if len(runes) >= 16 {
		bonus += 10
	}
	if len(runes) >= 20 {
		bonus += 5
	}

	unique := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		unique[r] = struct{}{}
	}
	if float64(len(unique)) >= float64(len(runes))*0.7 {
		bonus += 10
	}

	if !HasRepeatingPattern(password) {
		bonus += 5
	}
	if !HasSequentialChars(password) {
		bonus += 5
	}

	if bonus > maxBonus {
		bonus = maxBonus
	}
	return bonus
}

// LabelFor maps a score to its strength bucket.
func LabelFor(score int) model.StrengthLabel {
	switch {
	case score >= 90:
		return model.StrengthExcellent
	case score >= 75:
		return model.StrengthStrong
	case score >= 60:
		return model.StrengthGood
	case score >= 40:
		return model.StrengthFair
	case score >= 20:
		return model.StrengthWeak
	default:
		return model.StrengthVeryWeak
	}
}
