package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/go-scripts/oamon/internal/notice"
)

// Mode selects the collaborator set wired into the orchestrator.
type Mode string

const (
	ModeLive Mode = "live"
	ModeMock Mode = "mock"
)

// State tracks where a run is in the cycle. WaitingOTP is the suspension
// point inside authentication where the user has to supply a code.
type State string

const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateWaitingOTP     State = "waiting_otp"
	StateEnumerating    State = "enumerating"
	StateExtracting     State = "extracting"
	StateSummarizing    State = "summarizing"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Outcome is the overall verdict of a finished run.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFatal          Outcome = "fatal"
)

// Run is the ephemeral result of one monitoring cycle: the new notices with
// their summaries, plus every soft error collected along the way. The caller
// renders or persists what it needs; nothing here outlives the run.
type Run struct {
	ID          uuid.UUID       `json:"id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Mode        Mode            `json:"mode"`
	OTPRequired bool            `json:"otp_required"`
	Outcome     Outcome         `json:"outcome"`
	FatalKind   Kind            `json:"fatal_kind,omitempty"`
	Notices     []notice.Record `json:"notices_new"`
	Errors      []StageError    `json:"errors"`
}

// Status is a point-in-time snapshot served to the caller while a run is in
// flight (what the dashboard polls).
type Status struct {
	State   State     `json:"state"`
	Message string    `json:"message"`
	Updated time.Time `json:"updated"`
}
