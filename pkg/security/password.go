package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed = errors.New("password hashing failed")
	ErrMismatch      = errors.New("password does not match digest")
)

// PasswordHasher turns a candidate password into a stored digest and checks
// a candidate against a digest.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(digest, password string) error
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a new password hasher using bcrypt
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(prehash(password), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

// Compare is constant-time with respect to the password contents.
func (b *bcryptHasher) Compare(digest, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(digest), prehash(password)); err != nil {
		return ErrMismatch
	}
	return nil
}

// prehash keeps inputs under bcrypt's 72-byte limit; policies allow up to
// 128 characters.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

// PlaintextHasher stores passwords verbatim. It exists for fixtures and for
// reading history written before digests were introduced; never wire it in
// production.
type PlaintextHasher struct{}

func (PlaintextHasher) Hash(password string) (string, error) {
	return password, nil
}

func (PlaintextHasher) Compare(digest, password string) error {
	if subtle.ConstantTimeCompare([]byte(digest), []byte(password)) != 1 {
		return ErrMismatch
	}
	return nil
}
