package services

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/itish2003/docchat/models"
)

var pdfLicensed atomic.Bool

var errPDFUnlicensed = fmt.Errorf("%w: no UniDoc license key configured, PDF extraction is disabled", models.ErrConfiguration)

// ConfigurePDFLicense registers the UniDoc metered key. Until it succeeds PDF
// extraction reports a configuration error.
func ConfigurePDFLicense(key string) error {
	if key == "" {
		return errPDFUnlicensed
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("%w: failed to set UniDoc license key: %w", models.ErrConfiguration, err)
	}
	pdfLicensed.Store(true)
	return nil
}

// IsSupportedFile reports whether the file extension can be ingested.
func IsSupportedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".pdf":
		return true
	default:
		return false
	}
}

// ExtractText returns the text content of an uploaded document.
func ExtractText(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".txt", ".md":
		return string(data), nil
	case ".pdf":
		if !pdfLicensed.Load() {
			return "", errPDFUnlicensed
		}
		return extractTextFromPDF(data)
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", models.ErrUnsupportedInput, ext)
	}
}

// extractTextFromPDF joins the text of every page with a newline. A page that
// cannot be read contributes an empty string instead of failing the document.
func extractTextFromPDF(data []byte) (string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("failed to count pdf pages: %w", err)
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		text, err := extractPage(pdfReader, i)
		if err != nil {
			text = ""
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

func extractPage(pdfReader *model.PdfReader, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", num, r)
		}
	}()

	page, err := pdfReader.GetPage(num)
	if err != nil {
		return "", err
	}
	ex, err := extractor.New(page)
	if err != nil {
		return "", err
	}
	return ex.ExtractText()
}
