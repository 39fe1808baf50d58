package twofactor

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/connectit/authcore/vault"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestAuthenticator(t *testing.T, clock *fakeClock) *Authenticator {
	t.Helper()
	key := make([]byte, vault.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	c, err := vault.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	a, err := New(Config{Now: clock.Now}, c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestEnrollProducesQRAndSealedSecret(t *testing.T) {
	a := newTestAuthenticator(t, &fakeClock{now: time.Now()})

	e, err := a.Enroll("alice@example.com")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(e.QRCodePNG)); err != nil {
		t.Fatalf("expected PNG QR code: %v", err)
	}
	if e.QRCodeBase64 != base64.StdEncoding.EncodeToString(e.QRCodePNG) {
		t.Fatal("expected base64 form of the PNG")
	}
	if e.EncryptedSecret == "" {
		t.Fatal("expected sealed secret")
	}

	other, err := a.Enroll("alice@example.com")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if other.EncryptedSecret == e.EncryptedSecret {
		t.Fatal("expected a fresh secret per enrollment")
	}

	if _, err := a.Enroll("  "); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestVerifyCurrentAndAdjacentStep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 4, 12, 0, 15, 0, time.UTC)}
	a := newTestAuthenticator(t, clock)

	e, err := a.Enroll("bob@example.com")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	for _, offset := range []time.Duration{0, -30 * time.Second, 30 * time.Second} {
		code, err := a.Code(e.EncryptedSecret, clock.now.Add(offset))
		if err != nil {
			t.Fatalf("Code: %v", err)
		}
		ok, err := a.Verify(code, e.EncryptedSecret)
		if err != nil || !ok {
			t.Fatalf("offset %v: expected valid, ok=%v err=%v", offset, ok, err)
		}
	}

	code, _ := a.Code(e.EncryptedSecret, clock.now.Add(-90*time.Second))
	if ok, _ := a.Verify(code, e.EncryptedSecret); ok {
		t.Fatal("expected code three steps old to fail")
	}
}

func TestVerifyOneHourLater(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
	a := newTestAuthenticator(t, clock)

	e, err := a.Enroll("carol@example.com")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	code, err := a.Code(e.EncryptedSecret, clock.now)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}

	clock.now = clock.now.Add(time.Hour)
	ok, err := a.Verify(code, e.EncryptedSecret)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected stale code to fail")
	}
}

func TestVerifyOtherSecretFails(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
	a := newTestAuthenticator(t, clock)

	mine, _ := a.Enroll("dave@example.com")
	theirs, _ := a.Enroll("erin@example.com")

	code, err := a.Code(theirs.EncryptedSecret, clock.now)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	mineCode, _ := a.Code(mine.EncryptedSecret, clock.now)
	if code == mineCode {
		t.Skip("codes collided by chance")
	}
	if ok, _ := a.Verify(code, mine.EncryptedSecret); ok {
		t.Fatal("expected code from another secret to fail")
	}
}

func TestVerifyErrors(t *testing.T) {
	a := newTestAuthenticator(t, &fakeClock{now: time.Now()})
	e, _ := a.Enroll("frank@example.com")

	if _, err := a.Verify("123456", ""); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	for _, bad := range []string{"", "12345", "1234567", "12a456", " 12345", "１２３４５６"} {
		if _, err := a.Verify(bad, e.EncryptedSecret); !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("code %q: expected ErrInvalidFormat, got %v", bad, err)
		}
	}
	if _, err := a.Verify("123456", "bm90LWEtYmxvYg=="); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}

	foreign := newTestAuthenticator(t, &fakeClock{now: time.Now()})
	if _, err := foreign.Verify("123456", e.EncryptedSecret); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed under another key, got %v", err)
	}
}

func TestNewFillsZeroConfig(t *testing.T) {
	c, err := vault.NewCipher(bytes.Repeat([]byte{7}, vault.KeySize))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	a, err := New(Config{}, c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.config.Skew != DefaultSkew || a.config.Period != DefaultPeriod || a.config.QRSize != DefaultQRSize || a.config.Issuer != DefaultIssuer {
		t.Fatalf("expected defaults, got %+v", a.config)
	}
}
