package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DerivedKeyLength is the digest size in bytes.
	DerivedKeyLength = 64
	// DefaultIterations is the PBKDF2 iteration count.
	DefaultIterations = 210000

	randomPasswordLength  = 16
	randomPasswordCharset = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!#$%&*+-="
)

// Hasher derives password digests. The user id acts as the salt, so the
// digest is deterministic per (user, password) pair: that is what makes
// password-history and reuse-blocking comparisons possible without
// storing plaintext.
type Hasher struct {
	iterations int
}

func NewHasher() *Hasher {
	return &Hasher{iterations: DefaultIterations}
}

// NewHasherWithIterations is for tests that do not want to pay the full
// iteration count.
func NewHasherWithIterations(iterations int) *Hasher {
	return &Hasher{iterations: iterations}
}

// Hash derives the digest for the given user and plaintext.
func (h *Hasher) Hash(userID, plaintext string) []byte {
	return pbkdf2.Key([]byte(plaintext), []byte(userID), h.iterations, DerivedKeyLength, sha512.New)
}

// Equal compares two digests in constant time.
func Equal(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandomPassword returns a random password suitable for the
// self-service reset flow.
func GenerateRandomPassword() (string, error) {
	out := make([]byte, randomPasswordLength)
	max := big.NewInt(int64(len(randomPasswordCharset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random password: %w", err)
		}
		out[i] = randomPasswordCharset[n.Int64()]
	}
	return string(out), nil
}
