package pipeline

import "fmt"

// Kind classifies every failure the pipeline can surface. Callers never see
// a raw driver or HTTP error; each one is mapped to a Kind at the stage
// boundary.
type Kind string

const (
	// Fatal to the run.
	KindSelectorMissing    Kind = "selector_missing"
	KindNavigationTimeout  Kind = "navigation_timeout"
	KindCredentialRejected Kind = "credential_rejected"
	KindOtpTimeout         Kind = "otp_timeout"
	KindOtpRejected        Kind = "otp_rejected"

	// Caller cancellation, not a pipeline failure.
	KindCancelled Kind = "cancelled"

	// Per-item; the run continues.
	KindRowParse           Kind = "row_parse_error"
	KindExtractionTimeout  Kind = "extraction_timeout"
	KindSummarizationError Kind = "summarization_error"
	KindStoreError         Kind = "store_error"
)

// FatalError aborts the run. Only authentication and enumeration produce
// these; later stages degrade per item instead.
type FatalError struct {
	Kind Kind
	Err  error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(kind Kind, err error) *FatalError {
	return &FatalError{Kind: kind, Err: err}
}

// StageError records a per-item soft failure. Ref identifies what failed:
// a row title for enumeration, an identity key or detail URL later on.
type StageError struct {
	Kind Kind   `json:"kind"`
	Ref  string `json:"ref"`
	Msg  string `json:"msg"`
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Ref, e.Msg)
}

func soft(kind Kind, ref string, err error) StageError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return StageError{Kind: kind, Ref: ref, Msg: msg}
}
