package password

import "errors"

// ErrUnsupportedHash is returned when no configured algorithm recognises a stored hash.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// Hasher is the one-way primitive used for login verification, history checks and
// client secrets.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Algorithm is a Hasher that can recognise its own encodings.
type Algorithm interface {
	Hasher
	Handles(encodedHash string) bool
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Multi hashes with a primary algorithm and verifies against any configured algorithm,
// selected by hash prefix.
type Multi struct {
	primary Algorithm
	all     []Algorithm
}

// NewMulti returns a Multi. legacy algorithms are only used for verification.
func NewMulti(primary Algorithm, legacy ...Algorithm) *Multi {
	all := make([]Algorithm, 0, 1+len(legacy))
	all = append(all, primary)
	for _, a := range legacy {
		if a != nil {
			all = append(all, a)
		}
	}
	return &Multi{primary: primary, all: all}
}

func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	for _, a := range m.all {
		if a.Handles(encodedHash) {
			return a.Verify(password, encodedHash)
		}
	}
	return false, ErrUnsupportedHash
}

// NeedsRehash is true when encodedHash is not in the primary format or uses weaker
// primary parameters.
func (m *Multi) NeedsRehash(encodedHash string) bool {
	if !m.primary.Handles(encodedHash) {
		return true
	}
	upgrade, err := m.primary.NeedsUpgrade(encodedHash)
	return err == nil && upgrade
}
