package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrNoPendingOTP is returned by Relay.Submit when no run is waiting for a
// code, so stray submissions don't get routed into a later run.
var ErrNoPendingOTP = errors.New("no run is waiting for an OTP code")

// OTPSource supplies the one-time password once the gateway has pushed the
// dialog to the user's device. Code blocks until a value arrives or the
// context (which carries the entry deadline) expires.
type OTPSource interface {
	Code(ctx context.Context) (string, error)
}

// Relay is an OTPSource resolved out-of-band: the serving layer calls Submit
// with whatever the user typed in, and the authentication stage picks it up.
type Relay struct {
	mu      sync.Mutex
	waiting chan string
}

func NewRelay() *Relay { return &Relay{} }

// Code registers this run as the pending OTP consumer and blocks.
func (r *Relay) Code(ctx context.Context) (string, error) {
	ch := make(chan string, 1)

	r.mu.Lock()
	r.waiting = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.waiting == ch {
			r.waiting = nil
		}
		r.mu.Unlock()
	}()

	select {
	case code := <-ch:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Submit hands a user-provided code to the waiting run, if there is one.
func (r *Relay) Submit(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.waiting == nil {
		return ErrNoPendingOTP
	}
	r.waiting <- code
	r.waiting = nil
	return nil
}

// Pending reports whether a run is currently blocked on OTP entry.
func (r *Relay) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting != nil
}

// StaticOTP always returns the same code. Used in tests and dev setups where
// the gateway accepts a known value.
type StaticOTP string

func (s StaticOTP) Code(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(s), nil
}
