package accounts

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt work factor used when none is configured
const DefaultHashCost = 10

// BcryptHasher implements PasswordHasher using bcrypt
type BcryptHasher struct {
	cost int
}

var _ PasswordHasher = (*BcryptHasher)(nil)

// NewBcryptHasher returns a hasher with the given cost. Out of range values
// fall back to DefaultHashCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the configured work factor
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash will generate a salted password hash
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(b), err
}

// Verify reports whether password matches hash. A malformed hash is a
// mismatch.
func (h *BcryptHasher) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
