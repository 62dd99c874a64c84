package objectstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/bookworm/pkg/adapter"
	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultPrefix  = "audio_inputs"
	DefaultTimeout = 30 * time.Second
)

// Gateway uploads local audio files to blob storage so the inference service can read
// them by URI.
type Gateway struct {
	storage adapter.Storage
	prefix  string
	timeout time.Duration
	newName func() string
}

type Option func(*Gateway)

// WithPrefix sets the logical folder of uploaded blobs
func WithPrefix(prefix string) Option {
	return func(g *Gateway) {
		g.prefix = strings.Trim(prefix, "/")
	}
}

// WithTimeout bounds a single upload. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

// WithNameGenerator replaces the random blob name generator
func WithNameGenerator(f func() string) Option {
	return func(g *Gateway) {
		g.newName = f
	}
}

func New(storage adapter.Storage, opts ...Option) *Gateway {
	g := &Gateway{
		storage: storage,
		prefix:  DefaultPrefix,
		timeout: DefaultTimeout,
		newName: randomName,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// randomName returns 128 random bits as 32 hex characters
func randomName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Store uploads the file at localPath under a fresh blob name and returns its URI.
// Failures are not retried.
func (g *Gateway) Store(ctx context.Context, localPath, contentType string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	key := g.newName() + filepath.Ext(localPath)
	if g.prefix != "" {
		key = g.prefix + "/" + key
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", model.NewError(model.KindUpstream, "",
			goerr.Wrap(err, "failed to open audio file", goerr.V("path", localPath)))
	}
	defer f.Close()

	putCtx, cancelPut := context.WithCancel(ctx)
	defer cancelPut()

	w, err := g.storage.Put(putCtx, key, contentType)
	if err != nil {
		return "", model.NewError(model.KindUpstream, "",
			goerr.Wrap(err, "failed to create object writer", goerr.V("key", key)))
	}

	if _, err := io.Copy(w, f); err != nil {
		// canceled before Close, the truncated object is not committed
		cancelPut()
		_ = w.Close()
		return "", model.NewError(model.KindUpstream, "",
			goerr.Wrap(err, "failed to upload audio", goerr.V("key", key)))
	}

	if err := w.Close(); err != nil {
		return "", model.NewError(model.KindUpstream, "",
			goerr.Wrap(err, "failed to commit audio upload", goerr.V("key", key)))
	}

	uri := g.storage.URI(key)
	logging.From(ctx).Info("uploaded audio to object storage", "uri", uri)
	return uri, nil
}
