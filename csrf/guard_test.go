package csrf

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

var testSecret = []byte("csrf-secret-csrf-secret-csrf-secret!")

func newTestGuard(t *testing.T, clock *fakeClock) *Guard {
	t.Helper()
	g, err := NewGuard(Config{Secret: testSecret, Now: clock.Now})
	if err != nil {
		t.Fatalf("NewGuard error: %v", err)
	}
	return g
}

func TestGenerateAndValidate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGuard(t, clock)

	pair, err := g.GeneratePair("session-1")
	if err != nil {
		t.Fatalf("GeneratePair error: %v", err)
	}
	if err := g.ValidatePair(pair.Secure, pair.Public, "session-1"); err != nil {
		t.Fatalf("expected valid pair, got %v", err)
	}
	if !g.Valid(pair.Secure, pair.Public, "session-1") {
		t.Fatal("expected Valid to report true")
	}

	raw, err := base64.StdEncoding.DecodeString(pair.Secure)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 4 || parts[0] != "1700000000" || parts[1] != "session-1" || len(parts[2]) != 64 {
		t.Fatalf("unexpected secure token layout: %q", raw)
	}
}

func TestPairsAreUnique(t *testing.T) {
	g := newTestGuard(t, &fakeClock{now: time.Now()})

	a, _ := g.GeneratePair("s")
	b, _ := g.GeneratePair("s")
	if a.Secure == b.Secure || a.Public == b.Public {
		t.Fatal("expected distinct pairs")
	}
}

func TestValidateFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGuard(t, clock)

	pair, err := g.GeneratePair("session-1")
	if err != nil {
		t.Fatalf("GeneratePair error: %v", err)
	}
	other, err := g.GeneratePair("session-1")
	if err != nil {
		t.Fatalf("GeneratePair error: %v", err)
	}

	forged := base64.StdEncoding.EncodeToString([]byte("1700000000|session-1|abcd|deadbeef"))

	cases := []struct {
		name    string
		secure  string
		public  string
		session string
		want    error
	}{
		{"missing secure", "", pair.Public, "session-1", ErrTokenMissing},
		{"missing public", pair.Secure, "", "session-1", ErrTokenMissing},
		{"not base64", "%%%", pair.Public, "session-1", ErrTokenMalformed},
		{"wrong shape", base64.StdEncoding.EncodeToString([]byte("a|b")), pair.Public, "session-1", ErrTokenMalformed},
		{"forged mac", forged, pair.Public, "session-1", ErrTokenInvalid},
		{"other session", pair.Secure, pair.Public, "session-2", ErrSessionMismatch},
		{"public from other pair", pair.Secure, other.Public, "session-1", ErrTokenMismatch},
		{"public altered", pair.Secure, strings.ToUpper(pair.Public), "session-1", ErrTokenMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := g.ValidatePair(tc.secure, tc.public, tc.session); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGuard(t, clock)

	pair, err := g.GeneratePair("s")
	if err != nil {
		t.Fatalf("GeneratePair error: %v", err)
	}

	clock.now = clock.now.Add(time.Hour)
	if err := g.ValidatePair(pair.Secure, pair.Public, "s"); err != nil {
		t.Fatalf("expected pair valid at exactly max age, got %v", err)
	}

	clock.now = clock.now.Add(time.Second)
	if err := g.ValidatePair(pair.Secure, pair.Public, "s"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateRejectsFutureTimestamp(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGuard(t, clock)

	clock.now = clock.now.Add(10 * time.Minute)
	pair, err := g.GeneratePair("s")
	if err != nil {
		t.Fatalf("GeneratePair error: %v", err)
	}

	clock.now = clock.now.Add(-10 * time.Minute)
	if err := g.ValidatePair(pair.Secure, pair.Public, "s"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected future-dated token to be rejected, got %v", err)
	}
}

func TestForeignSecretRejected(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	g := newTestGuard(t, clock)
	foreign, err := NewGuard(Config{Secret: []byte("another-csrf-secret-another-secret!!"), Now: clock.Now})
	if err != nil {
		t.Fatalf("NewGuard error: %v", err)
	}

	pair, err := foreign.GeneratePair("s")
	if err != nil {
		t.Fatalf("GeneratePair error: %v", err)
	}
	if err := g.ValidatePair(pair.Secure, pair.Public, "s"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestGeneratePairRejectsUnusableSessionID(t *testing.T) {
	g := newTestGuard(t, &fakeClock{now: time.Now()})
	for _, sid := range []string{"", "a|b"} {
		if _, err := g.GeneratePair(sid); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("GeneratePair(%q): expected ErrInvalidSession, got %v", sid, err)
		}
	}
}

func TestNewGuardRequiresSecret(t *testing.T) {
	if _, err := NewGuard(Config{Secret: []byte("short")}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}
