package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned by Compare when the password does not match.
var ErrPasswordMismatch = errors.New("password mismatch")

// Hasher produces and checks stored password digests.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
	// Deterministic reports whether equal passwords always hash equally, which
	// lets the store match the digest directly.
	Deterministic() bool
}

// NewHasher returns the hasher registered under name ("sha256" or "bcrypt").
func NewHasher(name string, bcryptCost int) (Hasher, error) {
	switch name {
	case "", "sha256":
		return SHA256Hasher{}, nil
	case "bcrypt":
		return NewBcryptHasher(bcryptCost), nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}

// SHA256Hasher stores the unsalted hex SHA-256 of the password. It exists for
// compatibility with accounts created by the legacy service.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (h SHA256Hasher) Compare(hash, password string) error {
	candidate, _ := h.Hash(password)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

func (SHA256Hasher) Deterministic() bool { return true }

// BcryptHasher hashes passwords with bcrypt. Compare still accepts legacy
// SHA-256 digests so accounts created before the switch can log in.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher clamps cost into bcrypt's accepted range.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return BcryptHasher{Cost: cost}
}

func (h BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (BcryptHasher) Compare(hash, password string) error {
	if !IsBcrypt(hash) {
		return SHA256Hasher{}.Compare(hash, password)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

func (BcryptHasher) Deterministic() bool { return false }

// IsBcrypt reports whether hash is in bcrypt's modular crypt format.
func IsBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2")
}
