// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor for every stored password. 12 keeps a
// single verification around 250ms on the production API nodes.
const PasswordCost = 12

const refreshTokenBytes = 32

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
	IsHash(stored string) bool
	NeedsRehash(hash string) bool
	VerifyDummy(password string)
}

type BcryptHasher struct {
	cost      int
	dummyOnce sync.Once
	dummyHash []byte
}

func NewPasswordHasher() *BcryptHasher {
	return NewPasswordHasherWithCost(PasswordCost)
}

func NewPasswordHasherWithCost(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("hash password: empty password: %w", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("hash password: %w", ErrInvalidInput)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

// Verify reports whether password matches hash. Malformed hashes are a
// mismatch, never an error.
func (h *BcryptHasher) Verify(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (h *BcryptHasher) IsHash(stored string) bool {
	for _, prefix := range bcryptPrefixes {
		if strings.HasPrefix(stored, prefix) {
			return true
		}
	}
	return false
}

func (h *BcryptHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost
}

// VerifyDummy burns the same CPU as a real verification so that unknown
// accounts cannot be told apart by response latency.
func (h *BcryptHasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword(
			[]byte("dummy_password_for_timing_attack_prevention"),
			h.cost,
		)
		if err != nil {
			panic(fmt.Sprintf("security: failed to generate dummy hash: %v", err))
		}
		h.dummyHash = hash
	})

	//nolint:errcheck // result intentionally discarded
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
}

// ConstantTimeEquals compares two secrets without leaking the position of
// the first mismatch.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func GenerateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func GenerateRefreshToken() (string, error) {
	return GenerateSecureToken(refreshTokenBytes)
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

var _ PasswordHasher = (*BcryptHasher)(nil)
