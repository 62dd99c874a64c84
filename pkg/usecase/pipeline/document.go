package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// DocumentInput is an uploaded book
type DocumentInput struct {
	Document io.Reader
	Filename string
}

// DocumentResult summarizes the context that replaced the previous one
type DocumentResult struct {
	Path       string
	Characters int
	Truncated  bool
}

// UploadDocument extracts the text of a new book and makes it the document context.
// The previous context stays in effect unless every step succeeds.
func (u *UseCase) UploadDocument(ctx context.Context, input *DocumentInput) (result *DocumentResult, err error) {
	logger := logging.From(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = model.NewError(model.KindInternal, "",
				goerr.New("panic in document upload", goerr.V("panic", fmt.Sprint(r))))
		}
		if err != nil {
			logger.Error("document upload failed", "kind", model.KindOf(err).String(), "error", err)
		}
	}()

	if input == nil || input.Document == nil {
		return nil, model.NewError(model.KindValidation, "", goerr.New("No book file uploaded"))
	}
	if input.Filename == "" {
		return nil, model.NewError(model.KindValidation, "", goerr.New("No selected file"))
	}

	staged, err := u.uploads.SaveDocument(ctx, input.Document)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := u.uploads.DiscardDocument(ctx, staged); err != nil {
			logger.Warn("failed to discard staged document", "error", err)
		}
	}()
	logger.Info("document uploaded", "filename", input.Filename, "staged", staged)

	text, err := u.extractor.Extract(ctx, staged)
	if err != nil {
		return nil, err
	}

	if err := u.book.Replace(text); err != nil {
		return nil, model.NewError(model.KindInternal, "", err)
	}

	path, err := u.uploads.CommitDocument(ctx, staged)
	if err != nil {
		// The new context is already active; only the raw copy of the book is stale.
		logger.Warn("failed to keep uploaded document", "error", err)
		path = staged
	} else {
		committed = true
	}

	chars := len([]rune(text))
	logger.Info("document context replaced", "chars", chars)
	return &DocumentResult{
		Path:       path,
		Characters: chars,
		Truncated:  chars > model.MaxContextLength,
	}, nil
}

// ContextStatus describes the loaded document context
type ContextStatus struct {
	Loaded     bool
	Characters int
}

// ContextStatus reports the loaded document context. Loaded is false exactly when Ask
// would reject a question for missing context.
func (u *UseCase) ContextStatus() ContextStatus {
	text := u.book.Get()
	return ContextStatus{
		Loaded:     hasContext(text),
		Characters: len([]rune(text)),
	}
}

// hasContext reports whether text can ground an answer
func hasContext(text string) bool {
	return strings.TrimSpace(text) != ""
}
