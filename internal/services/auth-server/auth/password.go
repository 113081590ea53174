package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
)

func (u *Usecase) hashPassword(p string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(p), u.cfg.BcryptCost)
	if err != nil {
		return "", autherr.Infra(err, "hash password")
	}
	return string(hash), nil
}

// passwordMatches reports a mismatch as false; any other bcrypt failure
// (a corrupt stored hash) is an error.
func passwordMatches(hash, p string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(p))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, autherr.Infra(err, "compare password")
	}
}
