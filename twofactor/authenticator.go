package twofactor

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"io"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultIssuer = "ConnectIT"
	DefaultPeriod = 30 * time.Second
	DefaultSkew   = 1
	DefaultQRSize = 256

	codeDigits = 6
	secretSize = 20
)

var (
	ErrMissingSecret    = errors.New("twofactor: no secret provided")
	ErrInvalidFormat    = errors.New("twofactor: code must be exactly 6 digits")
	ErrDecryptionFailed = errors.New("twofactor: secret decryption failed")
	ErrInvalidIdentity  = errors.New("twofactor: account identity required")
)

// Sealer encrypts secrets before they leave the package and decrypts them
// for verification.
type Sealer interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(encoded string) (string, error)
}

// Config configures an Authenticator.
type Config struct {
	Issuer string
	Period time.Duration
	// Skew is the number of adjacent periods accepted on either side.
	// Zero selects DefaultSkew.
	Skew   uint
	QRSize int
	Now    func() time.Time
}

// Enrollment is handed to the client during setup. The secret only appears
// encrypted and inside the QR image.
type Enrollment struct {
	QRCodePNG       []byte
	QRCodeBase64    string
	EncryptedSecret string
}

// Authenticator enrolls and verifies RFC 6238 TOTP codes.
type Authenticator struct {
	config Config
	sealer Sealer
	rand   io.Reader
}

// New returns an Authenticator. Zero fields in cfg take defaults.
func New(cfg Config, sealer Sealer) (*Authenticator, error) {
	if sealer == nil {
		return nil, errors.New("twofactor: sealer is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Period < time.Second {
		return nil, errors.New("twofactor: period must be >= 1s")
	}
	if cfg.QRSize == 0 {
		cfg.QRSize = DefaultQRSize
	}
	if cfg.Skew == 0 {
		cfg.Skew = DefaultSkew
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Authenticator{config: cfg, sealer: sealer, rand: rand.Reader}, nil
}

// Enroll creates a fresh secret for identity (usually the account email).
func (a *Authenticator) Enroll(identity string) (*Enrollment, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      a.config.Issuer,
		AccountName: identity,
		Period:      uint(a.config.Period / time.Second),
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Rand:        a.rand,
	})
	if err != nil {
		return nil, fmt.Errorf("twofactor: generate: %w", err)
	}

	img, err := key.Image(a.config.QRSize, a.config.QRSize)
	if err != nil {
		return nil, fmt.Errorf("twofactor: qr image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("twofactor: qr encode: %w", err)
	}

	sealed, err := a.sealer.EncryptString(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("twofactor: seal secret: %w", err)
	}

	return &Enrollment{
		QRCodePNG:       buf.Bytes(),
		QRCodeBase64:    base64.StdEncoding.EncodeToString(buf.Bytes()),
		EncryptedSecret: sealed,
	}, nil
}

// Verify checks code against the sealed secret at the current time, allowing
// Skew adjacent periods. A wrong code is (false, nil).
func (a *Authenticator) Verify(code, encryptedSecret string) (bool, error) {
	if encryptedSecret == "" {
		return false, ErrMissingSecret
	}
	if !validFormat(code) {
		return false, ErrInvalidFormat
	}

	secret, err := a.sealer.DecryptString(encryptedSecret)
	if err != nil || secret == "" {
		return false, ErrDecryptionFailed
	}

	ok, err := totp.ValidateCustom(code, secret, a.config.Now(), a.validateOpts())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return ok, nil
}

// Code returns the code for the sealed secret at t.
func (a *Authenticator) Code(encryptedSecret string, t time.Time) (string, error) {
	secret, err := a.sealer.DecryptString(encryptedSecret)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return totp.GenerateCodeCustom(secret, t, a.validateOpts())
}

func (a *Authenticator) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(a.config.Period / time.Second),
		Skew:      a.config.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func validFormat(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
