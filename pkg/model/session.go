package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const (
	sessionIDLayout = "20060102-150405"

	TextExt  = ".txt"
	AudioExt = ".mp3"
)

// SessionID identifies one answered question. It is the local creation time at second
// resolution, so lexical order is chronological order.
type SessionID string

// NewSessionID returns the SessionID for a session created at t
func NewSessionID(t time.Time) SessionID {
	return SessionID(t.Format(sessionIDLayout))
}

// Validate checks that the ID has the timestamp layout
func (id SessionID) Validate() error {
	if _, err := time.ParseInLocation(sessionIDLayout, string(id), time.Local); err != nil {
		return goerr.Wrap(err, "invalid session ID", goerr.V("id", id))
	}
	return nil
}

// CreatedAt returns the time encoded in the ID, or zero time if the ID is malformed
func (id SessionID) CreatedAt() time.Time {
	t, err := time.ParseInLocation(sessionIDLayout, string(id), time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (id SessionID) TextName() string  { return string(id) + TextExt }
func (id SessionID) AudioName() string { return string(id) + AudioExt }

// Session is one answered question
type Session struct {
	ID        SessionID
	Answer    string
	TextFile  string
	AudioFile string // empty when synthesis did not complete
	CreatedAt time.Time
}

// Partial reports whether the answer text exists without its audio
func (s *Session) Partial() bool {
	return s.AudioFile == ""
}
