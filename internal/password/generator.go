package password

import (
	"crypto/rand"
	"math/big"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/pkg/errors"
)

// DefaultMaxAttempts bounds the generate-validate loop.
const DefaultMaxAttempts = 100

// Generator produces random passwords that satisfy a policy.
type Generator struct {
	validator   *Validator
	maxAttempts int
}

// NewGenerator creates a generator that checks candidates with validator.
func NewGenerator(validator *Validator, maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{validator: validator, maxAttempts: maxAttempts}
}

// Generate returns a password of length characters that validates under
// policy against an empty history and identity.
func (g *Generator) Generate(policy model.PasswordPolicy, length int) (string, error) {
	pw, _, err := g.GenerateWithAttempts(policy, length)
	return pw, err
}

// GenerateWithAttempts is Generate that also reports how many candidates
// were composed.
func (g *Generator) GenerateWithAttempts(policy model.PasswordPolicy, length int) (string, int, error) {
	if length < policy.MinLength {
		return "", 0, errors.InvalidInput("length %d is below the policy minimum of %d", length, policy.MinLength)
	}
	if length > policy.MaxLength {
		return "", 0, errors.InvalidInput("length %d exceeds the policy maximum of %d", length, policy.MaxLength)
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		candidate, err := compose(policy, length)
		if err != nil {
			return "", attempt, err
		}
		result, err := g.validator.Validate(candidate, model.IdentityInfo{}, policy, nil)
		if err != nil {
			return "", attempt, err
		}
		if result.IsValid {
			return candidate, attempt, nil
		}
	}
	return "", g.maxAttempts, errors.Unsatisfiable("no compliant password found for the active policy")
}

// compose draws the required characters first, tops up with the classes
// that carry score points while room remains, fills the rest from the union
// alphabet and shuffles.
func compose(policy model.PasswordPolicy, length int) (string, error) {
	out := make([]byte, 0, length)
	var alphabet string

	specials := 0
	if policy.RequireSpecialChars {
		specials = policy.MinSpecialChars
		if specials < 1 {
			specials = 1
		}
	}

	mandatory := specials
	for _, required := range []bool{policy.RequireUppercase, policy.RequireLowercase, policy.RequireNumbers} {
		if required {
			mandatory++
		}
	}
	if mandatory > length {
		return "", errors.Unsatisfiable("policy requires more characters than the requested length")
	}

	// Classes not required by the policy still join when they fit.
	room := length - mandatory
	for _, class := range []struct {
		chars    string
		required bool
	}{
		{UppercaseChars, policy.RequireUppercase},
		{LowercaseChars, policy.RequireLowercase},
		{DigitChars, policy.RequireNumbers},
	} {
		if !class.required {
			if room == 0 {
				continue
			}
			room--
		}
		c, err := randomChar(class.chars)
		if err != nil {
			return "", err
		}
		out = append(out, c)
		alphabet += class.chars
	}

	if specials > 0 {
		for i := 0; i < specials; i++ {
			c, err := randomChar(SpecialChars)
			if err != nil {
				return "", err
			}
			out = append(out, c)
		}
		alphabet += SpecialChars
	}

	if alphabet == "" {
		alphabet = LowercaseChars
	}
	for len(out) < length {
		c, err := randomChar(alphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	if err := shuffle(out); err != nil {
		return "", err
	}
	return string(out), nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(v.Int64()), nil
}

func randomChar(chars string) (byte, error) {
	i, err := randomIndex(len(chars))
	if err != nil {
		return 0, err
	}
	return chars[i], nil
}

// shuffle is a Fisher-Yates shuffle driven by crypto/rand.
func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return err
		}
		b[i], b[j] = b[j], b[i]
	}
	return nil
}
