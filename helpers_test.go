package authcore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/connectit/authcore/captcha"
	"github.com/redis/go-redis/v9"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct-password-123"
)

type fakeAccounts struct {
	mu       sync.Mutex
	byID     map[int64]*Account
	nextID   int64
	bindings map[int64]string

	getByEmailCalls int
	updateHashCalls int
	failBindings    error
	failUpdateHash  error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		byID:     map[int64]*Account{},
		bindings: map[int64]string{},
		nextID:   1,
	}
}

func (f *fakeAccounts) add(a Account) *Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.AccountID == 0 {
		a.AccountID = f.nextID
		f.nextID++
	}
	stored := a
	f.byID[a.AccountID] = &stored
	return &stored
}

func (f *fakeAccounts) get(id int64) Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

func (f *fakeAccounts) GetAccountByEmail(_ context.Context, email string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getByEmailCalls++
	for _, a := range f.byID {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			cp.CurrentJTI = f.bindings[a.AccountID]
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (f *fakeAccounts) GetAccountByID(_ context.Context, id int64) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	cp.CurrentJTI = f.bindings[id]
	return &cp, nil
}

func (f *fakeAccounts) CreateAccount(_ context.Context, in NewAccount) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if strings.EqualFold(a.Email, in.Email) {
			return nil, ErrAccountExists
		}
	}
	a := &Account{
		AccountID:    f.nextID,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
	}
	f.nextID++
	f.byID[a.AccountID] = a
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateHashCalls++
	if f.failUpdateHash != nil {
		return f.failUpdateHash
	}
	a, ok := f.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (f *fakeAccounts) SetTwoFactor(_ context.Context, id int64, enabled bool, sealed string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.TwoFAEnabled = enabled
	a.TwoFASecret = sealed
	return nil
}

func (f *fakeAccounts) BindJTI(_ context.Context, id int64, jti string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBindings != nil {
		return f.failBindings
	}
	f.bindings[id] = jti
	return nil
}

func (f *fakeAccounts) CurrentJTI(_ context.Context, id int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBindings != nil {
		return "", f.failBindings
	}
	return f.bindings[id], nil
}

func (f *fakeAccounts) ClearJTI(_ context.Context, id int64, jti string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBindings != nil {
		return f.failBindings
	}
	if f.bindings[id] == jti {
		delete(f.bindings, id)
	}
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.Secret = []byte(strings.Repeat("s", 64))
	cfg.CSRF.Secret = []byte(strings.Repeat("c", 32))
	cfg.Documents.Key = []byte(strings.Repeat("k", 32))
	cfg.Captcha.Secret = "test-captcha-secret"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Session.Leeway = 0
	return cfg
}

type testEnv struct {
	engine   *Engine
	accounts *fakeAccounts
	redis    *miniredis.Miniredis
	clock    *fakeClock
	captcha  *stubCaptcha
	alice    *Account
}

type stubCaptcha struct {
	mu    sync.Mutex
	ok    bool
	calls int
}

func (s *stubCaptcha) Verify(_ context.Context, token, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if !s.ok || token == "" {
		return false, captcha.ErrVerificationFailed
	}
	return true, nil
}

func newTestEnv(t *testing.T, mutate func(*Config, *Builder)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	accounts := newFakeAccounts()
	stub := &stubCaptcha{ok: true}

	cfg := testConfig()
	b := New().
		WithRedis(rdb).
		WithAccounts(accounts).
		WithCaptchaVerifier(stub).
		WithClock(clock.Now)
	if mutate != nil {
		mutate(&cfg, b)
	}
	b.WithConfig(cfg)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	hash, err := engine.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	alice := accounts.add(Account{
		Name:         "Alice",
		Email:        testEmail,
		PasswordHash: hash,
		Role:         RoleUser,
	})

	return &testEnv{
		engine:   engine,
		accounts: accounts,
		redis:    mr,
		clock:    clock,
		captcha:  stub,
		alice:    alice,
	}
}

func (env *testEnv) login(t *testing.T, req LoginRequest) *LoginResult {
	t.Helper()

	res, err := env.engine.Login(context.Background(), req)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return res
}
