package pipeline

import (
	"context"

	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// ListOptions contains options for listing sessions
type ListOptions struct {
	// IncludePartial adds sessions whose audio synthesis failed
	IncludePartial bool
}

// ListSessions returns answered questions, newest first
func (u *UseCase) ListSessions(ctx context.Context, opts ListOptions) ([]*model.Session, error) {
	sessions, err := u.sessions.ListSessions(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sessions")
	}

	if !opts.IncludePartial {
		filtered := make([]*model.Session, 0, len(sessions))
		for _, s := range sessions {
			if !s.Partial() {
				filtered = append(filtered, s)
			}
		}
		return filtered, nil
	}

	return sessions, nil
}

// ArtifactPath resolves a result file name for download
func (u *UseCase) ArtifactPath(ctx context.Context, name string) (string, error) {
	return u.sessions.ArtifactPath(ctx, name)
}
