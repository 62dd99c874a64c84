package repository

import (
	"context"
	"io"

	"github.com/m-mizutani/bookworm/pkg/model"
)

// SessionStore persists per-question artifacts and lists answered sessions
type SessionStore interface {
	// Exists reports whether any artifact is already stored under id
	Exists(ctx context.Context, id model.SessionID) bool

	// PutAnswer stores the answer text as <id>.txt
	PutAnswer(ctx context.Context, id model.SessionID, text string) error

	// PutAudio stores the synthesized answer as <id>.mp3
	PutAudio(ctx context.Context, id model.SessionID, audio []byte) error

	// ListSessions returns stored sessions ordered by ID, newest first
	ListSessions(ctx context.Context) ([]*model.Session, error)

	// ArtifactPath resolves a stored artifact file name to its local path
	ArtifactPath(ctx context.Context, name string) (string, error)
}

// UploadArea keeps incoming raw files
type UploadArea interface {
	// Dir is the directory holding uploads
	Dir() string

	// SaveAudio stores a question recording as <id><ext>
	SaveAudio(ctx context.Context, id model.SessionID, ext string, r io.Reader) (string, error)

	// SaveDocument stores an uploaded document under a staging name
	SaveDocument(ctx context.Context, r io.Reader) (string, error)

	// CommitDocument promotes a staged document to the current book
	CommitDocument(ctx context.Context, stagedPath string) (string, error)

	// DiscardDocument drops a staged document that did not become the current book
	DiscardDocument(ctx context.Context, stagedPath string) error
}
