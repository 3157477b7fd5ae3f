package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/oamon/internal/browser"
	"github.com/go-scripts/oamon/internal/config"
)

// probeTimeout is how long the login-form probe waits when deciding between
// "credentials rejected" and "page still loading".
const probeTimeout = 2 * time.Second

// WebAuthenticator drives a real browser through WebVPN login, the OTP
// challenge, and the post-login verification against the OA entry page.
type WebAuthenticator struct {
	drv    browser.Driver
	cfg    config.Config
	otp    OTPSource
	logger *log.Logger
	notify func(State, string)
}

// NewWebAuthenticator wires the driver, config and OTP source. notify may be
// nil; it reports the WaitingOTP suspension to the orchestrator's status.
func NewWebAuthenticator(drv browser.Driver, cfg config.Config, otp OTPSource, logger *log.Logger, notify func(State, string)) *WebAuthenticator {
	if notify == nil {
		notify = func(State, string) {}
	}
	return &WebAuthenticator{drv: drv, cfg: cfg, otp: otp, logger: logger, notify: notify}
}

var _ Authenticator = (*WebAuthenticator)(nil)

// Authenticate runs the whole handshake. There are no retries here; a failed
// attempt closes the browser context and the next run starts from a fresh
// navigation to the login URL.
func (a *WebAuthenticator) Authenticate(ctx context.Context) (*Session, error) {
	sess, err := a.authenticate(ctx)
	if err != nil {
		_ = a.drv.Close()
		return nil, err
	}
	return sess, nil
}

func (a *WebAuthenticator) authenticate(ctx context.Context) (*Session, error) {
	w := a.cfg.WebVPN
	t := a.cfg.Timeouts

	a.logger.Info("navigating to WebVPN login", "url", w.LoginURL)
	if err := a.drv.Navigate(ctx, w.LoginURL); err != nil {
		return nil, fatal(KindNavigationTimeout, fmt.Errorf("open login page: %w", err))
	}

	for _, sel := range []string{w.UsernameField, w.PasswordField, w.Submit} {
		if err := a.drv.WaitVisible(ctx, sel, t.LoginForm); err != nil {
			return nil, fatal(KindSelectorMissing, fmt.Errorf("login element %q never appeared: %w", sel, err))
		}
	}

	if err := a.drv.SendKeys(ctx, w.UsernameField, w.Username); err != nil {
		return nil, fatal(KindSelectorMissing, fmt.Errorf("type username: %w", err))
	}
	if err := a.drv.SendKeys(ctx, w.PasswordField, w.Password); err != nil {
		return nil, fatal(KindSelectorMissing, fmt.Errorf("type password: %w", err))
	}
	if err := a.drv.Click(ctx, w.Submit); err != nil {
		return nil, fatal(KindSelectorMissing, fmt.Errorf("click submit: %w", err))
	}

	otpRan := false
	if a.cfg.RequireOTP {
		if err := a.completeOTP(ctx); err != nil {
			return nil, err
		}
		otpRan = true
	}

	// Success is verified, not assumed: the session only counts once the OA
	// entry page is actually reachable.
	a.logger.Info("verifying OA entry", "url", a.cfg.OA.EntryURL)
	if err := a.drv.Navigate(ctx, a.cfg.OA.EntryURL); err != nil {
		return nil, fatal(KindNavigationTimeout, fmt.Errorf("open OA entry: %w", err))
	}
	if err := a.drv.WaitVisible(ctx, a.cfg.OA.ReadySelector, t.Navigation); err != nil {
		if a.drv.IsVisible(ctx, w.UsernameField, probeTimeout) {
			return nil, fatal(KindCredentialRejected, fmt.Errorf("login form re-shown after submit"))
		}
		if otpRan {
			return nil, fatal(KindOtpRejected, fmt.Errorf("OA entry unreachable after OTP submit: %w", err))
		}
		return nil, fatal(KindNavigationTimeout, fmt.Errorf("OA entry never became ready: %w", err))
	}

	a.logger.Info("authenticated")
	return &Session{drv: a.drv}, nil
}

func (a *WebAuthenticator) completeOTP(ctx context.Context) error {
	w := a.cfg.WebVPN
	t := a.cfg.Timeouts

	a.logger.Info("waiting for OTP dialog", "window", t.OTPDialog)
	if err := a.drv.WaitVisible(ctx, w.OTPDialog, t.OTPDialog); err != nil {
		if a.drv.IsVisible(ctx, w.UsernameField, probeTimeout) {
			return fatal(KindCredentialRejected, fmt.Errorf("login form re-shown after submit"))
		}
		return fatal(KindOtpTimeout, fmt.Errorf("OTP dialog never appeared: %w", err))
	}

	// The user gets the code out-of-band; this is the one wait in the whole
	// pipeline measured in minutes rather than seconds.
	a.notify(StateWaitingOTP, "waiting for one-time password")
	otpCtx, cancel := context.WithTimeout(ctx, t.OTPEntry)
	defer cancel()

	code, err := a.otp.Code(otpCtx)
	if err != nil {
		return fatal(KindOtpTimeout, fmt.Errorf("no OTP supplied: %w", err))
	}
	a.notify(StateAuthenticating, "submitting one-time password")

	if err := a.drv.SendKeys(ctx, w.OTPInput, code); err != nil {
		return fatal(KindSelectorMissing, fmt.Errorf("type OTP: %w", err))
	}
	if err := a.drv.Click(ctx, w.OTPSubmit); err != nil {
		return fatal(KindSelectorMissing, fmt.Errorf("submit OTP: %w", err))
	}
	return nil
}
