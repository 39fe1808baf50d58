package authcore

import (
	"context"
	"errors"

	"github.com/connectit/authcore/vault"
)

// pdfRoots are the document roots that only accept PDF uploads.
var pdfRoots = map[string]bool{
	vault.RootResume:          true,
	vault.RootCompanyDocument: true,
}

// StoreDocument encrypts data and writes it under root. Résumés and company
// documents must pass the PDF upload policy first.
func (e *Engine) StoreDocument(ctx context.Context, root, filename string, data []byte) (string, error) {
	if pdfRoots[root] {
		if err := vault.CheckPDF(filename, data); err != nil {
			return "", wrap(ErrValidation, err)
		}
	}

	uri, err := e.documents.Store(ctx, root, filename, data)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrRootNotAllowed), errors.Is(err, vault.ErrInvalidFilename):
			return "", wrap(ErrValidation, err)
		}
		return "", e.unavailable(ctx, "document_put", err)
	}

	e.metricInc(MetricDocumentStored)
	e.emitAudit(ctx, auditEventDocumentStored, true, 0, "", "", nil, func() map[string]string {
		return map[string]string{"root": root}
	})
	return uri, nil
}

// LoadDocument reads and decrypts the document at uri.
func (e *Engine) LoadDocument(ctx context.Context, uri string) ([]byte, error) {
	data, err := e.documents.Load(ctx, uri)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrInvalidURI), errors.Is(err, vault.ErrNotFound):
			return nil, wrap(ErrValidation, err)
		case errors.Is(err, vault.ErrCiphertextTooShort), errors.Is(err, vault.ErrDecrypt):
			e.metricInc(MetricDecryptFailure)
			return nil, wrap(ErrCrypto, err)
		}
		return nil, e.unavailable(ctx, "document_get", err)
	}
	return data, nil
}
