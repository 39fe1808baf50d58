package vault

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Upload roots accepted by Store.
const (
	RootCompanyDocument = "companyDocument"
	RootPortfolio       = "portfolio"
	RootProfilePic      = "profilePic"
	RootResume          = "resume"
)

var (
	ErrRootNotAllowed  = errors.New("vault: upload root not allowed")
	ErrInvalidFilename = errors.New("vault: invalid filename")
	ErrInvalidURI      = errors.New("vault: invalid blob uri")
	ErrNotFound        = errors.New("vault: blob not found")
)

var allowedRoots = map[string]struct{}{
	RootCompanyDocument: {},
	RootPortfolio:       {},
	RootProfilePic:      {},
	RootResume:          {},
}

// Backend stores opaque encrypted blobs. Keys are slash separated relative
// paths; URIs are what the backend hands back for later retrieval.
type Backend interface {
	Put(ctx context.Context, key string, blob []byte) (uri string, err error)
	Get(ctx context.Context, uri string) ([]byte, error)
}

// Vault encrypts documents before they reach a Backend and decrypts on read.
type Vault struct {
	cipher  *Cipher
	backend Backend
	newID   func() string
}

// New returns a Vault writing through backend.
func New(c *Cipher, backend Backend) (*Vault, error) {
	if c == nil {
		return nil, errors.New("vault: cipher is required")
	}
	if backend == nil {
		return nil, errors.New("vault: backend is required")
	}
	return &Vault{cipher: c, backend: backend, newID: uuid.NewString}, nil
}

// Store encrypts data and writes it under root. The returned URI is opaque.
func (v *Vault) Store(ctx context.Context, root, filename string, data []byte) (string, error) {
	if _, ok := allowedRoots[root]; !ok {
		return "", fmt.Errorf("%w: %q", ErrRootNotAllowed, root)
	}

	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}

	blob, err := v.cipher.Encrypt(data)
	if err != nil {
		return "", err
	}

	key := path.Join(root, v.newID()+"-"+name)
	return v.backend.Put(ctx, key, blob)
}

// Load fetches and decrypts the blob at uri.
func (v *Vault) Load(ctx context.Context, uri string) ([]byte, error) {
	blob, err := v.backend.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	return v.cipher.Decrypt(blob)
}

// SanitizeFilename reduces filename to one safe path element.
func SanitizeFilename(filename string) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		return "", ErrInvalidFilename
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	name := strings.TrimLeft(b.String(), ".")
	if name == "" || len(name) > 255 {
		return "", ErrInvalidFilename
	}
	return name, nil
}
