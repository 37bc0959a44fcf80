package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// DefaultMaxPasswordBytes caps hashing input when Argon2Config.MaxPasswordBytes is zero.
const DefaultMaxPasswordBytes = 1024

// Floors below which NewArgon2 refuses to build a hasher and stored hashes are treated
// as malformed.
const (
	MinArgon2MemoryKB  = 8 * 1024
	MinArgon2SaltBytes = 16
	MinArgon2KeyBytes  = 16
)

var (
	ErrEmptyPassword   = errors.New("password must not be empty")
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned when a stored Argon2id string cannot be decoded.
	ErrMalformedHash = errors.New("malformed argon2id hash")
)

// Argon2Config holds Argon2id cost parameters. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32 `yaml:"memory_kb"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`

	MaxPasswordBytes int `yaml:"max_password_bytes"`
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < MinArgon2MemoryKB:
		return fmt.Errorf("argon2 memory must be >= %d KiB", MinArgon2MemoryKB)
	case c.Time < 1:
		return errors.New("argon2 time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("argon2 parallelism must be >= 1")
	case c.SaltLength < MinArgon2SaltBytes:
		return fmt.Errorf("argon2 salt length must be >= %d", MinArgon2SaltBytes)
	case c.KeyLength < MinArgon2KeyBytes:
		return fmt.Errorf("argon2 key length must be >= %d", MinArgon2KeyBytes)
	case c.MaxPasswordBytes < 0:
		return errors.New("argon2 max password bytes must be >= 0")
	}
	return nil
}

// Argon2 is the primary Algorithm for user passwords. Hashes use the PHC string format
// with unpadded base64 salt and key, as produced by the reference argon2 CLI.
type Argon2 struct {
	cfg Argon2Config
}

func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{cfg: cfg}, nil
}

func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > a.cfg.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2 salt: %w", err)
	}
	h := argonHash{
		memory:  a.cfg.Memory,
		time:    a.cfg.Time,
		threads: a.cfg.Parallelism,
		salt:    salt,
	}
	h.key = h.derive(password, a.cfg.KeyLength)
	return h.String(), nil
}

// Verify recomputes the key with the parameters stored in encodedHash, so hashes made
// under older settings keep verifying after a config change.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.cfg.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	h, err := parseArgonHash(encodedHash)
	if err != nil {
		return false, err
	}
	got := h.derive(password, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

func (a *Argon2) Handles(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, argon2Prefix)
}

// NeedsUpgrade is true when any cost parameter of encodedHash is below the configured one
// or the key length differs.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := parseArgonHash(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := h.memory < a.cfg.Memory ||
		h.time < a.cfg.Time ||
		h.threads < a.cfg.Parallelism ||
		uint32(len(h.key)) != a.cfg.KeyLength
	return weaker, nil
}

type argonHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (h argonHash) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.threads, keyLen)
}

func (h argonHash) String() string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version, h.memory, h.time, h.threads,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

// parseArgonHash decodes "$argon2id$v=19$m=..,t=..,p=..$salt$key". Padded base64 is
// accepted for hashes written by other tools.
func parseArgonHash(s string) (argonHash, error) {
	var h argonHash
	if !strings.HasPrefix(s, argon2Prefix) {
		return h, ErrMalformedHash
	}
	fields := strings.Split(strings.TrimPrefix(s, argon2Prefix), "$")
	if len(fields) != 4 {
		return h, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return h, ErrMalformedHash
	}
	if version != argon2.Version {
		return h, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	var threads uint32
	n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &h.memory, &h.time, &threads)
	if err != nil || n != 3 || fields[1] != fmt.Sprintf("m=%d,t=%d,p=%d", h.memory, h.time, threads) {
		return h, fmt.Errorf("%w: bad parameters", ErrMalformedHash)
	}
	if h.memory < MinArgon2MemoryKB || h.time < 1 || threads < 1 || threads > 255 {
		return h, fmt.Errorf("%w: parameters below floor", ErrMalformedHash)
	}
	h.threads = uint8(threads)

	if h.salt, err = decodeB64(fields[2]); err != nil || len(h.salt) < MinArgon2SaltBytes {
		return h, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if h.key, err = decodeB64(fields[3]); err != nil || len(h.key) == 0 {
		return h, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return h, nil
}

func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
