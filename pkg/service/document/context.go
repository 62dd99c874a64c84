package document

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/utils/fileutil"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// TextFileName is the file in the upload area that keeps the full extracted text
const TextFileName = "book_text.txt"

// Context is the single-slot holder of the current document context.
//
// Get and Replace are each atomic. A question answered while a new document is being
// uploaded sees either the previous or the new context; which one is not defined.
type Context struct {
	mu   sync.RWMutex
	text string
	path string
}

// NewContext creates a holder that persists the extracted text under dir
func NewContext(dir string) *Context {
	return &Context{path: filepath.Join(dir, TextFileName)}
}

// Load restores the context persisted by a previous process. A missing file leaves the
// slot empty.
func (c *Context) Load(ctx context.Context) error {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to load document text", goerr.V("path", c.path))
	}

	c.mu.Lock()
	c.text = model.TruncateContext(string(data))
	c.mu.Unlock()

	logging.From(ctx).Info("loaded document context", "path", c.path, "chars", len([]rune(string(data))))
	return nil
}

// Get returns the current context, truncated to model.MaxContextLength characters
func (c *Context) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.text
}

// Replace persists fullText and then swaps the slot. If persisting fails the previous
// context stays in place, both on disk and in memory.
func (c *Context) Replace(fullText string) error {
	if err := fileutil.WriteAtomic(c.path, []byte(fullText), 0o644); err != nil {
		return goerr.Wrap(err, "failed to persist document text", goerr.V("path", c.path))
	}

	c.mu.Lock()
	c.text = model.TruncateContext(fullText)
	c.mu.Unlock()
	return nil
}
