package repository

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/utils/fileutil"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

var ErrArtifactNotFound = errors.New("artifact not found")

type artifacts struct {
	text  string
	audio string
}

// FileSessions stores session artifacts as files in one results directory. The relation
// between IDs and files is kept in an in-memory index that is rebuilt from the directory
// when the store is opened.
type FileSessions struct {
	dir   string
	mu    sync.RWMutex
	index map[model.SessionID]*artifacts
}

var _ SessionStore = (*FileSessions)(nil)

// NewFileSessions opens (creating if needed) the results directory and indexes it
func NewFileSessions(ctx context.Context, dir string) (*FileSessions, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create results directory", goerr.V("dir", dir))
	}

	s := &FileSessions{
		dir:   dir,
		index: make(map[model.SessionID]*artifacts),
	}
	if err := s.rebuild(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSessions) rebuild(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return goerr.Wrap(err, "failed to read results directory", goerr.V("dir", s.dir))
	}

	index := make(map[model.SessionID]*artifacts)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != model.TextExt && ext != model.AudioExt {
			continue
		}
		id := model.SessionID(strings.TrimSuffix(name, ext))
		if err := id.Validate(); err != nil {
			logging.From(ctx).Debug("skip unknown file in results directory", "name", name)
			continue
		}

		a, ok := index[id]
		if !ok {
			a = &artifacts{}
			index[id] = a
		}
		if ext == model.TextExt {
			a.text = name
		} else {
			a.audio = name
		}
	}

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()

	logging.From(ctx).Info("indexed results directory", "dir", s.dir, "sessions", len(index))
	return nil
}

func (s *FileSessions) Exists(ctx context.Context, id model.SessionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

func (s *FileSessions) PutAnswer(ctx context.Context, id model.SessionID, text string) error {
	if err := id.Validate(); err != nil {
		return err
	}

	// A reused ID must not pair the new answer with audio of an earlier one.
	s.mu.Lock()
	if a, ok := s.index[id]; ok {
		a.audio = ""
	}
	s.mu.Unlock()
	audioPath := filepath.Join(s.dir, id.AudioName())
	if err := os.Remove(audioPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerr.Wrap(err, "failed to remove stale answer audio", goerr.V("id", id))
	}

	if err := fileutil.WriteAtomic(filepath.Join(s.dir, id.TextName()), []byte(text), 0o644); err != nil {
		return goerr.Wrap(err, "failed to write answer text", goerr.V("id", id))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(id).text = id.TextName()
	return nil
}

func (s *FileSessions) PutAudio(ctx context.Context, id model.SessionID, audio []byte) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if err := fileutil.WriteAtomic(filepath.Join(s.dir, id.AudioName()), audio, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write answer audio", goerr.V("id", id))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(id).audio = id.AudioName()
	return nil
}

// entry must be called with mu held
func (s *FileSessions) entry(id model.SessionID) *artifacts {
	a, ok := s.index[id]
	if !ok {
		a = &artifacts{}
		s.index[id] = a
	}
	return a
}

// ListSessions reads the answer text of every indexed session. Audio without an answer
// text is not a session and is skipped.
func (s *FileSessions) ListSessions(ctx context.Context) ([]*model.Session, error) {
	s.mu.RLock()
	snapshot := make(map[model.SessionID]artifacts, len(s.index))
	for id, a := range s.index {
		snapshot[id] = *a
	}
	s.mu.RUnlock()

	sessions := make([]*model.Session, 0, len(snapshot))
	for id, a := range snapshot {
		if a.text == "" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, a.text))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read answer text", goerr.V("id", id))
		}

		sessions = append(sessions, &model.Session{
			ID:        id,
			Answer:    string(data),
			TextFile:  a.text,
			AudioFile: a.audio,
			CreatedAt: id.CreatedAt(),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID > sessions[j].ID
	})
	return sessions, nil
}

func (s *FileSessions) ArtifactPath(ctx context.Context, name string) (string, error) {
	if name != filepath.Base(name) {
		return "", goerr.Wrap(ErrArtifactNotFound, "invalid artifact name", goerr.V("name", name))
	}

	ext := filepath.Ext(name)
	id := model.SessionID(strings.TrimSuffix(name, ext))

	s.mu.RLock()
	a, ok := s.index[id]
	s.mu.RUnlock()

	if !ok || (name != a.text && name != a.audio) {
		return "", goerr.Wrap(ErrArtifactNotFound, "unknown artifact", goerr.V("name", name))
	}
	return filepath.Join(s.dir, name), nil
}
