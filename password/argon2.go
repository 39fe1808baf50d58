package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	// MaxPasswordBytes bounds the plaintext accepted by Hash and Verify.
	MaxPasswordBytes = 1024
)

var (
	// ErrEmptyPassword is returned by Hash for an empty plaintext.
	ErrEmptyPassword = errors.New("password: empty password")
	// ErrPasswordTooLong is returned by Hash when the plaintext exceeds MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password: password too long")
	// ErrMalformedHash marks an encoded hash that cannot be parsed.
	ErrMalformedHash = errors.New("password: malformed hash")
)

// Config holds the argon2id cost parameters used for new hashes.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the production argon2id parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher produces argon2id PHC hashes and verifies both argon2id and legacy
// bcrypt hashes. A Hasher is immutable and safe for concurrent use.
type Hasher struct {
	config Config
	dummy  string
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Hasher{config: cfg}
	dummy, err := h.Hash("authcore-timing-equalizer")
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// Validate enforces the floor below which hashes are considered too weak.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Memory, validation.Required, validation.Min(uint(minMemoryKB))),
		validation.Field(&c.Time, validation.Required, validation.Min(uint(minTimeCost))),
		validation.Field(&c.Parallelism, validation.Required, validation.Min(uint(minParallelism))),
		validation.Field(&c.SaltLength, validation.Required, validation.Min(uint(minSaltLength))),
		validation.Field(&c.KeyLength, validation.Required, validation.Min(uint(minKeyLength))),
	)
}

// Hash derives a PHC-encoded argon2id hash with a fresh random salt.
// Plaintext bytes are used exactly as provided; no Unicode normalization.
func (h *Hasher) Hash(plaintext string) (string, error) {
	switch {
	case plaintext == "":
		return "", ErrEmptyPassword
	case len(plaintext) > MaxPasswordBytes:
		return "", ErrPasswordTooLong
	}

	p := phc{params: h.config, salt: make([]byte, h.config.SaltLength)}
	if _, err := rand.Read(p.salt); err != nil {
		return "", err
	}
	p.key = p.derive(plaintext)
	return p.String(), nil
}

// Verify reports whether plaintext matches encoded. Malformed or unsupported
// hashes never match.
func (h *Hasher) Verify(plaintext, encoded string) bool {
	if len(plaintext) > MaxPasswordBytes {
		return false
	}
	if isBcrypt(encoded) {
		return verifyBcrypt(plaintext, encoded)
	}

	p, err := parsePHC(encoded)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(p.derive(plaintext), p.key) == 1
}

// DummyVerify spends one verification against an internal hash. Callers use
// it when no account exists so that the miss costs the same as a mismatch.
func (h *Hasher) DummyVerify(plaintext string) {
	_ = h.Verify(plaintext, h.dummy)
}

// NeedsUpgrade reports whether encoded should be replaced by a fresh Hash:
// legacy bcrypt hashes and argon2id hashes with weaker parameters do.
func (h *Hasher) NeedsUpgrade(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	p, err := parsePHC(encoded)
	if err != nil {
		return false
	}
	cur := h.config
	return p.params.Memory < cur.Memory ||
		p.params.Time < cur.Time ||
		p.params.Parallelism < cur.Parallelism ||
		p.params.KeyLength != cur.KeyLength
}

// phc is one decoded $argon2id$ string. params.SaltLength and
// params.KeyLength reflect the decoded byte lengths.
type phc struct {
	params Config
	salt   []byte
	key    []byte
}

func (p phc) derive(plaintext string) []byte {
	return argon2.IDKey([]byte(plaintext), p.salt,
		p.params.Time, p.params.Memory, p.params.Parallelism, p.params.KeyLength)
}

func (p phc) String() string {
	b64 := base64.StdEncoding
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		p.params.Memory, p.params.Time, p.params.Parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func parsePHC(encoded string) (phc, error) {
	var p phc

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != algorithmID {
		return p, fmt.Errorf("%w: not an %s hash", ErrMalformedHash, algorithmID)
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[2])
	}

	var memory, time uint32
	var threads uint8
	n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &memory, &time, &threads)
	if err != nil || n != 3 || fmt.Sprintf("m=%d,t=%d,p=%d", memory, time, threads) != fields[3] {
		return p, fmt.Errorf("%w: bad parameters %q", ErrMalformedHash, fields[3])
	}

	salt, err := base64.StdEncoding.DecodeString(fields[4])
	if err != nil {
		return p, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	key, err := base64.StdEncoding.DecodeString(fields[5])
	if err != nil {
		return p, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}

	p.params = Config{
		Memory:      memory,
		Time:        time,
		Parallelism: threads,
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}
	if err := p.params.Validate(); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	p.salt, p.key = salt, key
	return p, nil
}
