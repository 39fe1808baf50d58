package authcore

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestLoginSuccessIssuesSessionAndCsrf(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.login(t, LoginRequest{Email: "  Alice@Example.com ", Password: testPassword})

	if res.Account.AccountID != env.alice.AccountID {
		t.Fatalf("expected account %d, got %d", env.alice.AccountID, res.Account.AccountID)
	}
	if res.Session.Token == "" || res.Session.Claims.ID == "" {
		t.Fatal("expected signed token with jti")
	}
	if res.Session.Cookie.Name != "session_token" || !res.Session.Cookie.HttpOnly {
		t.Fatalf("unexpected session cookie: %+v", res.Session.Cookie)
	}
	if res.Session.Cookie.SameSite != http.SameSiteStrictMode || !res.Session.Cookie.Secure {
		t.Fatalf("session cookie must be Secure and SameSite=Strict: %+v", res.Session.Cookie)
	}
	if err := env.engine.ValidateCsrf(res.Csrf.SecureToken, res.Csrf.PublicToken, res.Session.Claims.ID); err != nil {
		t.Fatalf("expected CSRF pair bound to the new session, got %v", err)
	}
	if _, err := env.engine.ValidateRequestSession(context.Background(), res.Session.Token); err != nil {
		t.Fatalf("expected fresh session to validate, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected 1 login success, got %d", got)
	}
}

func TestLoginWrongPasswordAndUnknownEmailLookAlike(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, errWrong := env.engine.Login(ctx, LoginRequest{Email: testEmail, Password: "wrong-password"})
	_, errUnknown := env.engine.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "wrong-password"})

	if !errors.Is(errWrong, ErrInvalidCredentials) || !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", errWrong, errUnknown)
	}
	if errWrong.Error() != errUnknown.Error() {
		t.Fatalf("expected identical messages, got %q and %q", errWrong, errUnknown)
	}

	state, err := env.engine.LockoutState(ctx, testEmail)
	if err != nil {
		t.Fatalf("LockoutState failed: %v", err)
	}
	if state.FailedAttempts != 1 {
		t.Fatalf("expected 1 failure, got %d", state.FailedAttempts)
	}
}

func TestLoginValidationError(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.Login(context.Background(), LoginRequest{Email: "not-an-email"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if _, ok := ae.Fields["email"]; !ok {
		t.Fatalf("expected email field error, got %v", ae.Fields)
	}
	if _, ok := ae.Fields["password"]; !ok {
		t.Fatalf("expected password field error, got %v", ae.Fields)
	}
	if HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", HTTPStatus(err))
	}
}

func TestLoginCaptchaEscalation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.engine.Login(ctx, LoginRequest{Email: testEmail, Password: "wrong-password"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Missing token: rejected without counting.
	_, err := env.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrCaptchaRequired) {
		t.Fatalf("expected ErrCaptchaRequired, got %v", err)
	}
	if HTTPStatus(err) != http.StatusPreconditionRequired {
		t.Fatalf("expected 428, got %d", HTTPStatus(err))
	}
	state, _ := env.engine.LockoutState(ctx, testEmail)
	if state.FailedAttempts != 3 || state.State != ThrottleCaptchaRequired {
		t.Fatalf("expected 3 failures in captcha state, got %+v", state)
	}

	// Rejected token: counted.
	env.captcha.ok = false
	_, err = env.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword, CaptchaToken: "bad"})
	if !errors.Is(err, ErrCaptchaFailed) {
		t.Fatalf("expected ErrCaptchaFailed, got %v", err)
	}
	state, _ = env.engine.LockoutState(ctx, testEmail)
	if state.FailedAttempts != 4 {
		t.Fatalf("expected 4 failures, got %d", state.FailedAttempts)
	}

	// Solved CAPTCHA plus correct password succeeds and resets.
	env.captcha.ok = true
	env.login(t, LoginRequest{Email: testEmail, Password: testPassword, CaptchaToken: "good"})

	state, _ = env.engine.LockoutState(ctx, testEmail)
	if state.FailedAttempts != 0 || state.State != ThrottleUnlocked {
		t.Fatalf("expected reset throttle, got %+v", state)
	}
}

func TestLoginLocksAfterFiveFailuresAndSkipsAccountStore(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	var err error
	for i := 0; i < 5; i++ {
		_, err = env.engine.Login(ctx, LoginRequest{Email: testEmail, Password: "wrong-password", CaptchaToken: "good"})
	}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("fifth failure: expected ErrAccountLocked, got %v", err)
	}
	if HTTPStatus(err) != http.StatusLocked {
		t.Fatalf("expected 423, got %d", HTTPStatus(err))
	}

	lookups := env.accounts.getByEmailCalls
	_, err = env.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword, CaptchaToken: "good"})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked with correct password, got %v", err)
	}
	if env.accounts.getByEmailCalls != lookups {
		t.Fatal("account store consulted while locked")
	}

	env.redis.FastForward(env.engine.config.Throttle.LockoutDuration + time.Second)
	env.login(t, LoginRequest{Email: testEmail, Password: testPassword})
}

func TestLoginDisabledAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	hash, _ := env.engine.hasher.Hash("bob-password-123")
	env.accounts.add(Account{Email: "bob@example.com", PasswordHash: hash, Role: RoleUser, IsDisabled: true})

	_, err := env.engine.Login(context.Background(), LoginRequest{Email: "bob@example.com", Password: "bob-password-123"})
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestLoginPerIPRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, _ *Builder) {
		cfg.RateLimit.LoginPerIP = 2
	})
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, LoginRequest{Email: testEmail, Password: "wrong-password"})
	}
	_, err := env.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if HTTPStatus(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", HTTPStatus(err))
	}

	other := WithClientIP(context.Background(), "203.0.113.8")
	if _, err := env.engine.Login(other, LoginRequest{Email: testEmail, Password: testPassword}); err != nil {
		t.Fatalf("expected other IP to pass, got %v", err)
	}
}

func TestLoginFailsClosedWhenRedisDown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.redis.Close()

	_, err := env.engine.Login(context.Background(), LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if KindOf(err) != KindUnavailable || HTTPStatus(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected unavailable/503, got %v/%d", KindOf(err), HTTPStatus(err))
	}
}

func TestLoginUpgradesLegacyBcryptHash(t *testing.T) {
	env := newTestEnv(t, nil)
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-password-1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	carol := env.accounts.add(Account{Email: "carol@example.com", PasswordHash: string(legacy), Role: RoleCompany})

	env.login(t, LoginRequest{Email: "carol@example.com", Password: "legacy-password-1"})

	upgraded := env.accounts.get(carol.AccountID).PasswordHash
	if upgraded == string(legacy) || env.engine.hasher.NeedsUpgrade(upgraded) {
		t.Fatalf("expected argon2id hash after login, got %q", upgraded)
	}
	if !env.engine.hasher.Verify("legacy-password-1", upgraded) {
		t.Fatal("upgraded hash does not verify")
	}
}

func TestLoginWithTwoFactor(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	enrollment, err := env.engine.EnrollTwoFactor(ctx, testEmail)
	if err != nil {
		t.Fatalf("EnrollTwoFactor failed: %v", err)
	}
	if err := env.accounts.SetTwoFactor(ctx, env.alice.AccountID, true, enrollment.EncryptedSecret); err != nil {
		t.Fatalf("SetTwoFactor failed: %v", err)
	}

	_, err = env.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrTwoFactorRequired) {
		t.Fatalf("expected ErrTwoFactorRequired, got %v", err)
	}

	code, err := env.engine.twoFactor.Code(enrollment.EncryptedSecret, env.clock.Now())
	if err != nil {
		t.Fatalf("Code failed: %v", err)
	}
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = env.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword, TOTPCode: wrong})
	if !errors.Is(err, ErrTwoFactorInvalidCode) {
		t.Fatalf("expected ErrTwoFactorInvalidCode, got %v", err)
	}
	_, err = env.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword, TOTPCode: "12ab56"})
	if !errors.Is(err, ErrTwoFactorInvalidFormat) {
		t.Fatalf("expected ErrTwoFactorInvalidFormat, got %v", err)
	}

	state, _ := env.engine.LockoutState(ctx, testEmail)
	if state.FailedAttempts != 2 {
		t.Fatalf("expected wrong codes to count, got %d", state.FailedAttempts)
	}

	env.login(t, LoginRequest{Email: testEmail, Password: testPassword, TOTPCode: code})
}

func TestVerifyCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	summary, err := env.engine.VerifyCredentials(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("VerifyCredentials failed: %v", err)
	}
	if summary.Email != testEmail {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if _, err := env.engine.VerifyCredentials(ctx, testEmail, "Correct-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	state, _ := env.engine.LockoutState(ctx, testEmail)
	if state.FailedAttempts != 0 {
		t.Fatal("VerifyCredentials must not touch the throttle")
	}
}

func TestRecordLoginAttempt(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	want := []ThrottleState{
		ThrottleUnlocked,
		ThrottleUnlocked,
		ThrottleCaptchaRequired,
		ThrottleCaptchaRequired,
		ThrottleLocked,
	}
	for i, w := range want {
		state, err := env.engine.RecordLoginAttempt(ctx, testEmail, false)
		if err != nil {
			t.Fatalf("RecordLoginAttempt failed: %v", err)
		}
		if state.State != w || state.FailedAttempts != i+1 {
			t.Fatalf("failure %d: expected %v, got %+v", i+1, w, state)
		}
	}

	state, err := env.engine.LockoutState(ctx, testEmail)
	if err != nil || !state.Locked {
		t.Fatalf("expected locked, got %+v (%v)", state, err)
	}

	state, err = env.engine.RecordLoginAttempt(ctx, testEmail, true)
	if err != nil || state.State != ThrottleUnlocked || state.FailedAttempts != 0 {
		t.Fatalf("expected reset, got %+v (%v)", state, err)
	}
	state, _ = env.engine.LockoutState(ctx, testEmail)
	if state.Locked {
		t.Fatal("expected lockout flag cleared")
	}
}
