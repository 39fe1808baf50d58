package jwt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var testSecret = []byte("0123456789abcdef0123456789abcdef-session")

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret:      testSecret,
		TTL:         24 * time.Hour,
		MaxLifetime: 24 * time.Hour,
		Now:         clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return m
}

func testSubject() Subject {
	companyID := int64(7)
	verified := true
	return Subject{
		AccountID: 42,
		Role:      "Company",
		Name:      "Acme",
		CompanyID: &companyID,
		Verified:  &verified,
	}
}

func TestIssueAndDecode(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(t, clock)

	token, issued, err := m.Issue(testSubject(), IssueOptions{})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if issued.ID == "" {
		t.Fatal("expected jti to be generated")
	}

	claims, err := m.Decode(token)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if claims.Subject != "42" || claims.Role != "Company" || claims.Name != "Acme" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.CompanyID == nil || *claims.CompanyID != 7 {
		t.Fatalf("expected companyId 7, got %v", claims.CompanyID)
	}
	if claims.UserID != nil || claims.ProfilePicURL != nil {
		t.Fatal("expected unset optional claims to stay nil")
	}
	if !claims.ExpiresAt.Time.Equal(clock.now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected exp: %v", claims.ExpiresAt.Time)
	}
	if !claims.OrigIssuedAt.Time.Equal(clock.now) {
		t.Fatalf("unexpected origIat: %v", claims.OrigIssuedAt.Time)
	}
}

func TestOptionalClaimsEncodeAsNull(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	_, claims, err := m.Issue(Subject{AccountID: 1, Role: "User", Name: "u"}, IssueOptions{})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	raw, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	for _, field := range []string{`"profilePicUrl":null`, `"userId":null`, `"companyId":null`, `"verified":null`} {
		if !strings.Contains(string(raw), field) {
			t.Fatalf("expected %s in %s", field, raw)
		}
	}
}

func TestDecodeRejectsTampering(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	token, _, err := m.Issue(testSubject(), IssueOptions{})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	parts := strings.Split(token, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	if _, err := m.Decode(strings.Join(parts, ".")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	other, err := NewManager(Config{
		Secret:      []byte("another-secret-another-secret-xxxx"),
		TTL:         time.Hour,
		MaxLifetime: time.Hour,
		Now:         clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if _, err := other.Decode(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected foreign token to be invalid, got %v", err)
	}

	if _, err := m.Decode("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestDecodeRejectsOtherAlgorithms(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	claims := &SessionClaims{
		Role:         "Admin",
		OrigIssuedAt: jwt.NewNumericDate(clock.now),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ID:        "jti",
			IssuedAt:  jwt.NewNumericDate(clock.now),
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	}
	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, err := m.Decode(hs256); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected HS256 token to be rejected, got %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, err := m.Decode(none); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg=none token to be rejected, got %v", err)
	}
}

func TestDecodeRequiresOrigIat(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ID:        "jti",
			IssuedAt:  jwt.NewNumericDate(clock.now),
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, err := m.Decode(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected missing origIat to be invalid, got %v", err)
	}
}

func TestDecodeExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	token, _, err := m.Issue(testSubject(), IssueOptions{})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	clock.Advance(24*time.Hour + time.Second)
	if _, err := m.Decode(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestRefreshPreservesOrigIatAndJTI(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	m := newTestManager(t, clock)

	token, first, err := m.Issue(testSubject(), IssueOptions{})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	clock.Advance(6 * time.Hour)
	refreshed, second, err := m.Refresh(token)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected jti preserved, got %s vs %s", second.ID, first.ID)
	}
	if !second.OrigIssuedAt.Time.Equal(first.OrigIssuedAt.Time) {
		t.Fatal("expected origIat preserved")
	}
	if !second.ExpiresAt.Time.Equal(clock.now.Add(24 * time.Hour)) {
		t.Fatal("expected exp extended from refresh time")
	}
	if second.CompanyID == nil || *second.CompanyID != 7 {
		t.Fatal("expected optional claims carried over")
	}

	if _, err := m.Decode(refreshed); err != nil {
		t.Fatalf("Decode refreshed error: %v", err)
	}
}

func TestRefreshCannotOutliveMaxLifetime(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	m := newTestManager(t, clock)

	token, _, err := m.Issue(testSubject(), IssueOptions{})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	clock.Advance(20 * time.Hour)
	refreshed, _, err := m.Refresh(token)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	clock.Advance(5 * time.Hour)
	if _, err := m.Decode(refreshed); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected refreshed token past origIat cap to expire, got %v", err)
	}
	if _, _, err := m.Refresh(refreshed); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected refresh past cap to fail, got %v", err)
	}
}

func TestKeyRotation(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	oldSecret := []byte("old-secret-old-secret-old-secret-xx")

	old, err := NewManager(Config{Secret: oldSecret, TTL: time.Hour, MaxLifetime: time.Hour, KeyID: "k1", Now: clock.Now})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	current, err := NewManager(Config{
		Secret:      testSecret,
		TTL:         time.Hour,
		MaxLifetime: time.Hour,
		KeyID:       "k2",
		VerifyKeys:  map[string][]byte{"k1": oldSecret},
		Now:         clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	token, _, err := old.Issue(testSubject(), IssueOptions{})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := current.Decode(token); err != nil {
		t.Fatalf("expected rotated key to verify, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{Secret: []byte("short"), TTL: time.Hour, MaxLifetime: time.Hour},
		{Secret: testSecret, TTL: 0, MaxLifetime: time.Hour},
		{Secret: testSecret, TTL: time.Hour, MaxLifetime: 0},
		{Secret: testSecret, TTL: time.Hour, MaxLifetime: time.Hour, Leeway: time.Hour},
		{Secret: testSecret, TTL: time.Hour, MaxLifetime: time.Hour, VerifyKeys: map[string][]byte{"": testSecret}},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}
