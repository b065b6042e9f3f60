package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	PasswordHashCost = 12

	// bcrypt only reads this many bytes of a password
	bcryptMaxPasswordBytes = 72
)

var ErrEmptyPassword = errors.New("password empty")

// HashPassword returns a salted bcrypt digest; two calls with the same input differ.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, PasswordHashCost)
}

func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the digest. A malformed digest
// is just a mismatch.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password)) == nil
}

// bcryptInput cuts long passwords to the bytes bcrypt actually uses, the same way other
// bcrypt implementations do silently. x/crypto rejects them instead.
func bcryptInput(password string) []byte {
	b := []byte(password)
	if len(b) > bcryptMaxPasswordBytes {
		b = b[:bcryptMaxPasswordBytes]
	}
	return b
}
