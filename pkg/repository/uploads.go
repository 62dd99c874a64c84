package repository

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const BookFileName = "book.pdf"

// FileUploads keeps incoming audio and documents in a local directory
type FileUploads struct {
	dir string
}

var _ UploadArea = (*FileUploads)(nil)

func NewFileUploads(dir string) (*FileUploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create upload directory", goerr.V("dir", dir))
	}
	return &FileUploads{dir: dir}, nil
}

func (u *FileUploads) Dir() string { return u.dir }

func (u *FileUploads) SaveAudio(ctx context.Context, id model.SessionID, ext string, r io.Reader) (string, error) {
	path := filepath.Join(u.dir, string(id)+ext)
	if err := copyToFile(path, r); err != nil {
		return "", goerr.Wrap(err, "failed to save audio", goerr.V("path", path))
	}
	return path, nil
}

func (u *FileUploads) SaveDocument(ctx context.Context, r io.Reader) (string, error) {
	f, err := os.CreateTemp(u.dir, ".book-*.pdf")
	if err != nil {
		return "", goerr.Wrap(err, "failed to create staging file", goerr.V("dir", u.dir))
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(f.Name())
		return "", goerr.Wrap(err, "failed to save document", goerr.V("path", f.Name()))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", goerr.Wrap(err, "failed to save document", goerr.V("path", f.Name()))
	}
	return f.Name(), nil
}

func (u *FileUploads) CommitDocument(ctx context.Context, stagedPath string) (string, error) {
	path := filepath.Join(u.dir, BookFileName)
	if err := os.Rename(stagedPath, path); err != nil {
		return "", goerr.Wrap(err, "failed to commit document", goerr.V("path", stagedPath))
	}
	return path, nil
}

func (u *FileUploads) DiscardDocument(ctx context.Context, stagedPath string) error {
	if filepath.Dir(stagedPath) != filepath.Clean(u.dir) || filepath.Base(stagedPath) == BookFileName {
		return goerr.New("not a staged document", goerr.V("path", stagedPath))
	}
	if err := os.Remove(stagedPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerr.Wrap(err, "failed to discard document", goerr.V("path", stagedPath))
	}
	return nil
}

func copyToFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
