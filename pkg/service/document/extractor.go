package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

func init() {
	// pdfcpu otherwise creates a config directory under the user's home
	api.DisableConfigDir()
}

// PageReader returns the plain text of every page of a document, in page order
type PageReader func(path string) ([]string, error)

// Extractor converts an uploaded document into plain text
type Extractor struct {
	readPages PageReader
}

type ExtractorOption func(*Extractor)

// WithPageReader replaces the PDF page reader
func WithPageReader(r PageReader) ExtractorOption {
	return func(x *Extractor) {
		x.readPages = r
	}
}

func NewExtractor(opts ...ExtractorOption) *Extractor {
	x := &Extractor{
		readPages: readPDFPages,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Extract returns the text of all pages concatenated in page order, without separators.
// A document without a text layer yields an empty string.
func (x *Extractor) Extract(ctx context.Context, path string) (string, error) {
	pages, err := x.readPages(path)
	if err != nil {
		return "", model.NewError(model.KindExtraction, "",
			goerr.Wrap(err, "failed to read document", goerr.V("path", path)))
	}

	text := strings.Join(pages, "")
	logging.From(ctx).Info("extracted document text",
		"path", path,
		"pages", len(pages),
		"chars", len([]rune(text)),
	)
	return text, nil
}

func readPDFPages(path string) (pages []string, err error) {
	// pdfcpu parses the cross reference table strictly enough to reject files that are
	// not PDFs before the text reader sees them.
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse PDF")
	}

	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = goerr.New("PDF text reader panicked", goerr.V("panic", fmt.Sprint(r)))
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open PDF")
	}
	defer f.Close()

	if pdfCtx.PageCount == 0 {
		return nil, nil
	}

	numPage := reader.NumPage()
	pages = make([]string, 0, numPage)
	for i := 1; i <= numPage; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to extract page text", goerr.V("page", i))
		}
		pages = append(pages, text)
	}

	return pages, nil
}
