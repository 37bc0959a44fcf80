package password

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func argonFor(t *testing.T, mutate func(*Argon2Config)) *Argon2 {
	t.Helper()
	cfg := Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return a
}

func TestArgon2RoundTrip(t *testing.T) {
	a := argonFor(t, nil)

	hash, err := a.Hash("Clinic-Shift7!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %s", hash)
	}
	if strings.Contains(hash, "=$") || strings.HasSuffix(hash, "=") {
		t.Fatalf("expected unpadded base64, got %s", hash)
	}

	for pw, want := range map[string]bool{
		"Clinic-Shift7!": true,
		"clinic-shift7!": false,
		"Clinic-Shift7":  false,
	} {
		ok, err := a.Verify(pw, hash)
		if err != nil {
			t.Fatalf("Verify(%q): %v", pw, err)
		}
		if ok != want {
			t.Fatalf("Verify(%q) = %v, want %v", pw, ok, want)
		}
	}
}

func TestArgon2SaltsDiffer(t *testing.T) {
	a := argonFor(t, nil)
	h1, _ := a.Hash("same-input")
	h2, _ := a.Hash("same-input")
	if h1 == h2 {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestArgon2VerifiesPaddedEncoding(t *testing.T) {
	a := argonFor(t, nil)
	hash, err := a.Hash("padded-please")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	parts := strings.Split(hash, "$")
	for _, i := range []int{4, 5} {
		raw, err := base64.RawStdEncoding.DecodeString(parts[i])
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		parts[i] = base64.StdEncoding.EncodeToString(raw)
	}
	ok, err := a.Verify("padded-please", strings.Join(parts, "$"))
	if err != nil || !ok {
		t.Fatalf("padded hash should verify: ok=%v err=%v", ok, err)
	}
}

func TestArgon2RejectsMalformedHashes(t *testing.T) {
	a := argonFor(t, nil)
	good, _ := a.Hash("anything")

	cases := map[string]string{
		"not phc":        "plain-text",
		"bcrypt":         "$2a$10$abcdefghijklmnopqrstuu",
		"wrong version":  strings.Replace(good, "$v=19$", "$v=16$", 1),
		"missing param":  strings.Replace(good, ",p=1", "", 1),
		"extra param":    strings.Replace(good, ",p=1", ",p=1,x=2", 1),
		"memory floor":   strings.Replace(good, "m=8192", "m=1024", 1),
		"too few fields": strings.Join(strings.Split(good, "$")[:5], "$"),
		"bad salt":       strings.Replace(good, strings.Split(good, "$")[4], "!!", 1),
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := a.Verify("anything", h); !errors.Is(err, ErrMalformedHash) {
				t.Fatalf("expected ErrMalformedHash, got %v", err)
			}
		})
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	weak := argonFor(t, nil)
	hash, _ := weak.Hash("upgrade-me")

	tests := []struct {
		name   string
		mutate func(*Argon2Config)
		want   bool
	}{
		{"same parameters", nil, false},
		{"more memory", func(c *Argon2Config) { c.Memory = 16 * 1024 }, true},
		{"more passes", func(c *Argon2Config) { c.Time = 2 }, true},
		{"more lanes", func(c *Argon2Config) { c.Parallelism = 2 }, true},
		{"different key length", func(c *Argon2Config) { c.KeyLength = 16 }, true},
		{"longer salt only", func(c *Argon2Config) { c.SaltLength = 32 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := argonFor(t, tt.mutate).NeedsUpgrade(hash)
			if err != nil {
				t.Fatalf("NeedsUpgrade: %v", err)
			}
			if got != tt.want {
				t.Fatalf("NeedsUpgrade = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArgon2InputLimits(t *testing.T) {
	a := argonFor(t, func(c *Argon2Config) { c.MaxPasswordBytes = 64 })

	if _, err := a.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("empty: expected ErrEmptyPassword, got %v", err)
	}
	if _, err := a.Hash(strings.Repeat("x", 65)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("65 bytes: expected ErrPasswordTooLong, got %v", err)
	}
	hash, err := a.Hash(strings.Repeat("x", 64))
	if err != nil {
		t.Fatalf("64 bytes should hash: %v", err)
	}
	if _, err := a.Verify(strings.Repeat("x", 65), hash); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("Verify 65 bytes: expected ErrPasswordTooLong, got %v", err)
	}

	// Short inputs are a policy concern, not the hasher's.
	if _, err := a.Hash("ab"); err != nil {
		t.Fatalf("short password should hash: %v", err)
	}

	def := argonFor(t, nil)
	if _, err := def.Hash(strings.Repeat("y", DefaultMaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("default cap not applied: %v", err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Argon2Config){
		"memory":      func(c *Argon2Config) { c.Memory = 4096 },
		"time":        func(c *Argon2Config) { c.Time = 0 },
		"parallelism": func(c *Argon2Config) { c.Parallelism = 0 },
		"salt":        func(c *Argon2Config) { c.SaltLength = 8 },
		"key":         func(c *Argon2Config) { c.KeyLength = 8 },
		"max bytes":   func(c *Argon2Config) { c.MaxPasswordBytes = -1 },
	} {
		cfg := Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("%s: expected config error", name)
		}
	}
}
