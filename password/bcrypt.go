package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor applied to every new hash.
const Cost = 12

var (
	// ErrHashing is returned when the underlying library cannot produce a
	// hash, typically on RNG failure.
	ErrHashing = errors.New("password: hashing failed")

	// ErrComparison is returned when the stored hash is malformed and a
	// comparison cannot be made.
	ErrComparison = errors.New("password: comparison failed")
)

// Hash applies a salted one-way bcrypt hash to the plaintext.
func Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), Cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return string(hash), nil
}

// Compare reports whether the plaintext matches the stored hash. The
// comparison itself is delegated to bcrypt, which is constant-time over the
// derived key. A malformed hash yields ErrComparison, never a silent false.
func Compare(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrComparison, err)
}
