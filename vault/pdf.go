package vault

import (
	"bytes"
	"errors"
	"strings"
)

// MaxPDFSize is the largest document accepted by CheckPDF.
const MaxPDFSize = 1 << 20

var (
	ErrNotPDF          = errors.New("vault: file is not a pdf")
	ErrDoubleExtension = errors.New("vault: double extension not allowed")
	ErrTooLarge        = errors.New("vault: file too large")
	ErrEmptyFile       = errors.New("vault: empty file")
)

var pdfMagic = []byte("%PDF")

// CheckPDF applies the upload policy for document roots: a single .pdf
// extension, at most MaxPDFSize bytes and a PDF header.
func CheckPDF(filename string, data []byte) error {
	name := strings.ToLower(strings.TrimSpace(filename))
	if !strings.HasSuffix(name, ".pdf") {
		return ErrNotPDF
	}
	if strings.Count(name, ".") > 1 {
		return ErrDoubleExtension
	}
	if len(data) == 0 {
		return ErrEmptyFile
	}
	if len(data) > MaxPDFSize {
		return ErrTooLarge
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return ErrNotPDF
	}
	return nil
}
