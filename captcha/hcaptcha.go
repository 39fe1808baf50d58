package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultEndpoint is the hCaptcha siteverify URL.
	DefaultEndpoint       = "https://hcaptcha.com/siteverify"
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 10 * time.Second

	maxResponseBytes = 64 << 10
)

var (
	ErrMissingSecret      = errors.New("captcha: secret not configured")
	ErrMissingToken       = errors.New("captcha: token missing")
	ErrVerificationFailed = errors.New("captcha: verification failed")
	ErrProviderError      = errors.New("captcha: provider error")
)

// Verifier checks a CAPTCHA response token. Implementations fail closed:
// any error means false.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// Config configures an HCaptcha verifier.
type Config struct {
	Secret         string
	Endpoint       string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// HCaptcha calls the hCaptcha siteverify API.
type HCaptcha struct {
	secret   string
	endpoint string
	client   *http.Client
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
}

// NewHCaptcha builds a verifier with bounded connect and read timeouts.
func NewHCaptcha(cfg Config) *HCaptcha {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &HCaptcha{
		secret:   cfg.Secret,
		endpoint: cfg.Endpoint,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
	}
}

// Verify posts the token to siteverify. It returns true only for a
// well-formed success response.
func (h *HCaptcha) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if h.secret == "" {
		return false, ErrMissingSecret
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return false, ErrMissingToken
	}

	form := url.Values{}
	form.Set("secret", h.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("%w: status %d", ErrProviderError, resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	if !out.Success {
		return false, fmt.Errorf("%w: %s", ErrVerificationFailed, strings.Join(out.ErrorCodes, ","))
	}
	return true, nil
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token, remoteIP string) (bool, error)

func (f VerifierFunc) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	return f(ctx, token, remoteIP)
}
