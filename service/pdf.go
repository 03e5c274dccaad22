package service

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrInvalidDocument is returned for uploads that are not readable PDFs.
var ErrInvalidDocument = errors.New("invalid document")

var pdfMagic = []byte("%PDF-")

func init() {
	// pdfcpu would otherwise write its config under the user's home
	api.DisableConfigDir()
}

// PDFInspector checks uploaded statements before they are stored.
type PDFInspector struct {
	conf     *model.Configuration
	maxPages int
}

// NewPDFInspector returns an inspector using relaxed validation, which
// tolerates the small defects common in scanner output. maxPages <= 0 means
// no page limit.
func NewPDFInspector(maxPages int) *PDFInspector {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFInspector{conf: conf, maxPages: maxPages}
}

// Inspect validates data as a PDF and returns its page count.
func (p *PDFInspector) Inspect(data []byte) (int, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return 0, fmt.Errorf("%w: not a PDF file", ErrInvalidDocument)
	}
	if err := api.Validate(bytes.NewReader(data), p.conf); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	pages, err := api.PageCount(bytes.NewReader(data), p.conf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if pages == 0 {
		return 0, fmt.Errorf("%w: no pages", ErrInvalidDocument)
	}
	if p.maxPages > 0 && pages > p.maxPages {
		return 0, fmt.Errorf("%w: %d pages exceeds limit of %d", ErrInvalidDocument, pages, p.maxPages)
	}
	return pages, nil
}
