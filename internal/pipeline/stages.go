package pipeline

import (
	"context"

	"github.com/go-scripts/oamon/internal/browser"
	"github.com/go-scripts/oamon/internal/notice"
)

// Session is the authenticated browser handle produced by the authentication
// stage. Enumeration and extraction borrow it; the orchestrator closes it at
// the end of the run or on fatal failure.
type Session struct {
	drv browser.Driver
}

// Close releases the underlying browser context. Safe to call on a mock
// session that never opened one.
func (s *Session) Close() error {
	if s == nil || s.drv == nil {
		return nil
	}
	return s.drv.Close()
}

// Authenticator drives WebVPN login and the OTP challenge. A failure is a
// *FatalError; the implementation must release its browser context before
// returning one, since no Session exists yet for the orchestrator to close.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Session, error)
}

// Enumerator scans the OA notice list into stubs. Malformed rows come back
// as soft errors; only list-level conditions are fatal.
type Enumerator interface {
	Enumerate(ctx context.Context, sess *Session) ([]notice.Stub, []StageError, error)
}

// Extractor opens one stub's detail page and reads the full text. Errors are
// per-notice; the orchestrator folds them into the run's soft-error list.
type Extractor interface {
	Extract(ctx context.Context, sess *Session, stub notice.Stub) (notice.Record, error)
}

// Summarizer is the text-in/summary-out AI capability.
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) (string, error)
}

// Store tracks processed notices across runs. IsKnown must be deterministic
// and Save idempotent per identity key.
type Store interface {
	IsKnown(ctx context.Context, key string) (bool, error)
	Save(ctx context.Context, rec notice.Record) error
}
