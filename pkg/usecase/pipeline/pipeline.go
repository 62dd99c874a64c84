package pipeline

import (
	"context"
	"time"

	"github.com/m-mizutani/bookworm/pkg/repository"
	"github.com/m-mizutani/bookworm/pkg/service/document"
	"github.com/m-mizutani/bookworm/pkg/service/inference"
)

// Extractor converts a stored document into plain text
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Gateway uploads a local audio file and returns its object URI
type Gateway interface {
	Store(ctx context.Context, localPath, contentType string) (string, error)
}

// Answerer produces the answer text for one spoken question
type Answerer interface {
	Answer(ctx context.Context, req *inference.Request) (*inference.Response, error)
}

// Synthesizer converts answer text into audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// UseCase sequences the question pipeline and document uploads
type UseCase struct {
	uploads   repository.UploadArea
	sessions  repository.SessionStore
	book      *document.Context
	extractor Extractor
	gateway   Gateway
	answerer  Answerer
	speech    Synthesizer
	now       func() time.Time
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithClock replaces time.Now, which derives session IDs
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// Input holds the collaborators of the pipeline
type Input struct {
	Uploads   repository.UploadArea
	Sessions  repository.SessionStore
	Book      *document.Context
	Extractor Extractor
	Gateway   Gateway
	Answerer  Answerer
	Speech    Synthesizer
}

// New creates a new pipeline UseCase instance
func New(input Input, opts ...Option) *UseCase {
	uc := &UseCase{
		uploads:   input.Uploads,
		sessions:  input.Sessions,
		book:      input.Book,
		extractor: input.Extractor,
		gateway:   input.Gateway,
		answerer:  input.Answerer,
		speech:    input.Speech,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
