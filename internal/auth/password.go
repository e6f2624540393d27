package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt work factor for account passwords.
// Each +1 doubles hashing time; 10 is roughly 70ms on a modern core.
const DefaultPasswordCost = 10

// ErrPasswordMismatch means the hash is valid but the plaintext is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService hashes and checks account passwords with bcrypt.
//
// bcrypt stores the salt and the cost inside the hash string itself
// ("$2a$10$<salt><digest>"), so Verify needs nothing but the stored hash.
type PasswordService struct {
	cost int
}

// NewPasswordService returns a PasswordService with the given cost, falling
// back to DefaultPasswordCost when cost is outside bcrypt's accepted range.
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultPasswordCost
	}
	return &PasswordService{cost: cost}
}

// NewPasswordServiceForTest returns a PasswordService with the minimum cost
// so tests in other packages hash in microseconds.
func NewPasswordServiceForTest() *PasswordService {
	return &PasswordService{cost: bcrypt.MinCost}
}

func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		// bcrypt silently truncates passwords longer than 72 bytes.
		// We reject them explicitly so callers aren't surprised.
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify returns nil on a match, ErrPasswordMismatch on a wrong password,
// and a wrapped bcrypt error when the stored hash itself is malformed.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
