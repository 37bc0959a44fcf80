package internal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// RandomIndex returns a uniformly distributed index in [0, n) from crypto/rand.
func RandomIndex(n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("random index bound must be > 0")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// RandomChar picks one byte from alphabet.
func RandomChar(alphabet string) (byte, error) {
	i, err := RandomIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

// Shuffle permutes b in place (Fisher-Yates over crypto/rand).
func Shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := RandomIndex(i + 1)
		if err != nil {
			return err
		}
		b[i], b[j] = b[j], b[i]
	}
	return nil
}

// NewClientSecret returns 64 lowercase hex characters built from two random UUIDs.
func NewClientSecret() string {
	a := uuid.New()
	b := uuid.New()
	return strings.ReplaceAll(a.String(), "-", "") + strings.ReplaceAll(b.String(), "-", "")
}

// RandomHex returns 2*n hex characters from n random bytes.
func RandomHex(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("random hex size must be > 0")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
