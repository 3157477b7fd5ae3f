// Package pipeline composes authentication, enumeration, extraction,
// deduplication and summarization into one monitoring cycle over the OA
// notice system.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/go-scripts/oamon/internal/notice"
)

// ErrRunInProgress is returned when a second cycle is requested while one is
// still running. A single run owns the browser session and, while waiting on
// OTP entry, the one pending code slot; overlapping runs would make OTP
// routing ambiguous.
var ErrRunInProgress = errors.New("a monitoring run is already in progress")

// Deps wires the stage collaborators into the orchestrator. Live or mock
// implementations are chosen here, once, by the caller.
type Deps struct {
	Auth      Authenticator
	Enum      Enumerator
	Extract   Extractor
	Summarize Summarizer
	Store     Store
	Logger    *log.Logger
}

// Orchestrator runs monitoring cycles. Stages execute strictly sequentially:
// the browser page is a single mutable resource and each stage depends on
// the navigation state left by the previous one.
type Orchestrator struct {
	deps        Deps
	mode        Mode
	otpRequired bool

	mu      sync.Mutex
	running bool
	status  Status
}

// New builds an orchestrator. mode is recorded on every run it produces.
func New(deps Deps, mode Mode, otpRequired bool) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Orchestrator{
		deps:        deps,
		mode:        mode,
		otpRequired: otpRequired,
		status:      Status{State: StateIdle, Message: "waiting for a run", Updated: time.Now().UTC()},
	}
}

// Status reports where the current (or last) run is, for the caller to poll.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// SetStatus is the notify hook handed to the authentication stage so the
// OTP suspension shows up in Status.
func (o *Orchestrator) SetStatus(state State, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = Status{State: state, Message: msg, Updated: time.Now().UTC()}
}

// Run executes one monitoring cycle and returns its structured result. A
// fatal authentication or enumeration failure is reported inside the Run
// value, not as an error; the error return is reserved for "refused to
// start" and caller cancellation.
func (o *Orchestrator) Run(ctx context.Context) (*Run, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	run := &Run{
		ID:          uuid.New(),
		StartedAt:   time.Now().UTC(),
		Mode:        o.mode,
		OTPRequired: o.otpRequired,
	}

	o.SetStatus(StateAuthenticating, "logging in to WebVPN")
	sess, err := o.deps.Auth.Authenticate(ctx)
	if err != nil {
		return o.failRun(run, err), nil
	}
	defer sess.Close()

	o.SetStatus(StateEnumerating, "scanning the notice list")
	stubs, softs, err := o.deps.Enum.Enumerate(ctx, sess)
	if err != nil {
		return o.failRun(run, err), nil
	}
	run.Errors = append(run.Errors, softs...)

	o.SetStatus(StateExtracting, "reading detail pages")
	records, err := o.extractNew(ctx, sess, stubs, run)
	if err != nil {
		return run, err
	}

	o.SetStatus(StateSummarizing, "summarizing new notices")
	if err := o.summarizeAndStore(ctx, records, run); err != nil {
		return run, err
	}

	if len(run.Errors) == 0 {
		run.Outcome = OutcomeSuccess
	} else {
		run.Outcome = OutcomePartialFailure
	}
	run.FinishedAt = time.Now().UTC()
	o.SetStatus(StateDone, "digest ready")
	o.deps.Logger.Info("run finished", "outcome", run.Outcome, "new", len(run.Notices), "errors", len(run.Errors))
	return run, nil
}

// extractNew walks the stubs in enumeration order and extracts the ones the
// store has not seen. Per-item failures become soft errors.
func (o *Orchestrator) extractNew(ctx context.Context, sess *Session, stubs []notice.Stub, run *Run) ([]notice.Record, error) {
	var records []notice.Record
	for _, stub := range stubs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key := stub.IdentityKey()
		known, err := o.deps.Store.IsKnown(ctx, key)
		if err != nil {
			// Extraction is idempotent and Save is an upsert, so treating a
			// failed lookup as unknown only risks repeated work.
			o.deps.Logger.Warn("dedup lookup failed", "key", key, "error", err)
		}
		if known {
			continue
		}

		rec, err := o.deps.Extract.Extract(ctx, sess, stub)
		if err != nil {
			run.Errors = append(run.Errors, soft(KindExtractionTimeout, stub.Title, err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// summarizeAndStore attaches summaries and persists each record. A failed
// summarization still stores the record, with the summary absent, so a later
// run can retry summarization without re-scraping.
func (o *Orchestrator) summarizeAndStore(ctx context.Context, records []notice.Record, run *Run) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		summary, err := o.deps.Summarize.Summarize(ctx, rec.Title, rec.FullText)
		if err != nil {
			run.Errors = append(run.Errors, soft(KindSummarizationError, rec.IdentityKey(), err))
		} else {
			rec.Summary = summary
			rec.Processed = true
		}

		if err := o.deps.Store.Save(ctx, rec); err != nil {
			run.Errors = append(run.Errors, soft(KindStoreError, rec.IdentityKey(), err))
			continue
		}
		run.Notices = append(run.Notices, rec)
	}
	return nil
}

func (o *Orchestrator) failRun(run *Run, err error) *Run {
	run.Outcome = OutcomeFatal
	var fe *FatalError
	switch {
	case errors.As(err, &fe):
		run.FatalKind = fe.Kind
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		run.FatalKind = KindCancelled
	default:
		run.FatalKind = KindNavigationTimeout
	}
	run.FinishedAt = time.Now().UTC()
	o.SetStatus(StateFailed, err.Error())
	o.deps.Logger.Error("run failed", "kind", run.FatalKind, "error", err)
	return run
}
