// Package browser wraps a controllable headless-browser context behind a
// small Driver interface so the pipeline stages can be exercised against a
// fake in tests.
package browser

import (
	"context"
	"time"
)

// Field names a sub-element inside a list row. An empty Attr reads the
// element's text; Attr "href" resolves to the absolute link target.
type Field struct {
	Selector string
	Attr     string
}

// Driver is the capability surface the pipeline needs from a browser:
// navigate, wait, type, click, read. Every wait is bounded.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	// IsVisible is a short probe used to tell apart "login form re-shown"
	// from "page still loading"; it never returns an error.
	IsVisible(ctx context.Context, sel string, timeout time.Duration) bool
	SendKeys(ctx context.Context, sel, value string) error
	Click(ctx context.Context, sel string) error
	Text(ctx context.Context, sel string, timeout time.Duration) (string, error)
	// Rows scans every match of rowSel and reads the given fields relative
	// to each row, preserving on-page order. A field whose selector matches
	// nothing inside a row yields an empty string for that row.
	Rows(ctx context.Context, rowSel string, fields map[string]Field) ([]map[string]string, error)
	Close() error
}
