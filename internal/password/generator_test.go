package password

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/pkg/errors"
)

func TestGenerateDefaultPolicy(t *testing.T) {
	v := NewValidator(nil)
	g := NewGenerator(v, 0)
	policy := model.DefaultPasswordPolicy()

	pw, err := g.Generate(policy, 16)
	require.NoError(t, err)
	assert.Len(t, pw, 16)

	c := classify(pw)
	assert.True(t, c.upper)
	assert.True(t, c.lower)
	assert.True(t, c.digit)
	assert.GreaterOrEqual(t, c.special, policy.MinSpecialChars)

	result, err := v.Validate(pw, model.IdentityInfo{}, policy, nil)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestGenerateLengthContract(t *testing.T) {
	g := NewGenerator(NewValidator(nil), 0)
	policy := model.DefaultPasswordPolicy()

	_, err := g.Generate(policy, policy.MinLength-1)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = g.Generate(policy, policy.MaxLength+1)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	pw, err := g.Generate(policy, policy.MaxLength)
	require.NoError(t, err)
	assert.Len(t, pw, policy.MaxLength)
}

func TestGenerateUnsatisfiable(t *testing.T) {
	g := NewGenerator(NewValidator(nil), 5)
	policy := model.PasswordPolicy{
		MinLength:           8,
		MaxLength:           8,
		RequireUppercase:    true,
		RequireSpecialChars: true,
		MinSpecialChars:     8,
		MaxAgeDays:          90,
	}

	_, err := g.Generate(policy, 8)
	assert.ErrorIs(t, err, errors.ErrPolicyUnsatisfiable)
}

func TestGenerateOptionalClassesOnly(t *testing.T) {
	g := NewGenerator(NewValidator(nil), 0)
	policy := model.PasswordPolicy{MinLength: 8, MaxLength: 32, MaxAgeDays: 90}

	pw, err := g.Generate(policy, 10)
	require.NoError(t, err)
	assert.Len(t, pw, 10)
	assert.False(t, strings.ContainsAny(pw, SpecialChars))
}

func TestGenerateAlwaysValidates(t *testing.T) {
	v := NewValidator(nil)
	g := NewGenerator(v, 0)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		minLength := 8 + rng.Intn(33)
		maxLength := minLength + rng.Intn(129-minLength)
		policy := model.PasswordPolicy{
			MinLength:              minLength,
			MaxLength:              maxLength,
			RequireUppercase:       rng.Intn(2) == 0,
			RequireLowercase:       rng.Intn(2) == 0,
			RequireNumbers:         rng.Intn(2) == 0,
			RequireSpecialChars:    rng.Intn(2) == 0,
			MinSpecialChars:        rng.Intn(4),
			PreventCommonPasswords: rng.Intn(2) == 0,
			PreventUserInfo:        rng.Intn(2) == 0,
			PreventReuse:           rng.Intn(10),
			MaxAgeDays:             90,
			WarningDays:            14,
		}
		length := minLength + rng.Intn(maxLength-minLength+1)

		pw, err := g.Generate(policy, length)
		require.NoError(t, err, "policy %+v length %d", policy, length)
		assert.Len(t, pw, length)

		result, err := v.Validate(pw, model.IdentityInfo{}, policy, nil)
		require.NoError(t, err)
		assert.True(t, result.IsValid, "policy %+v password %q issues %v", policy, pw, result.Issues)
	}
}
