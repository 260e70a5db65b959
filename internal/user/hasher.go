package user

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher is the opaque credential oracle used by the store.
type Hasher interface {
	Hash(secret string) (string, error)
	// Compare returns ErrMismatch when secret does not match hash.
	Compare(hash, secret string) error
}

var ErrMismatch = errors.New("credential mismatch")

type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h BcryptHasher) Compare(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
