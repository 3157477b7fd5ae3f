package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Chrome drives a headless Chromium instance through chromedp. One Chrome
// value owns one browser context; the pipeline treats it as the session and
// closes it at the end of a run.
type Chrome struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	navTimeout  time.Duration
}

// NewChrome starts a headless browser context. navTimeout bounds every
// navigation performed through this driver.
func NewChrome(navTimeout time.Duration) *Chrome {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tab, cancelTab := chromedp.NewContext(allocCtx)

	return &Chrome{
		tab:         tab,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		navTimeout:  navTimeout,
	}
}

// Close releases the tab and the underlying browser process.
func (c *Chrome) Close() error {
	c.cancelTab()
	c.cancelAlloc()
	return nil
}

// boundedContext derives the action context from the tab: bounded by timeout
// and cancelled as soon as the caller's context is, so a cancelled run does
// not sit out the remainder of a long wait.
func boundedContext(caller, tab context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(tab, timeout)
	stop := context.AfterFunc(caller, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// run executes actions against the tab with a bounded deadline, bailing out
// early if the caller's context is already cancelled.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := boundedContext(ctx, c.tab, timeout)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, c.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

func (c *Chrome) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return c.run(ctx, timeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

func (c *Chrome) IsVisible(ctx context.Context, sel string, timeout time.Duration) bool {
	return c.run(ctx, timeout, chromedp.WaitVisible(sel, chromedp.ByQuery)) == nil
}

func (c *Chrome) SendKeys(ctx context.Context, sel, value string) error {
	return c.run(ctx, c.navTimeout,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

func (c *Chrome) Click(ctx context.Context, sel string) error {
	return c.run(ctx, c.navTimeout, chromedp.Click(sel, chromedp.ByQuery))
}

func (c *Chrome) Text(ctx context.Context, sel string, timeout time.Duration) (string, error) {
	var out string
	if err := c.run(ctx, timeout,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Text(sel, &out, chromedp.ByQuery),
	); err != nil {
		return "", err
	}
	return out, nil
}

// Rows runs a querySelectorAll snippet in the page and decodes the per-row
// field values from its JSON result. Reading through Evaluate keeps one
// round-trip per list instead of one per cell.
func (c *Chrome) Rows(ctx context.Context, rowSel string, fields map[string]Field) ([]map[string]string, error) {
	spec := make(map[string][2]string, len(fields))
	for name, f := range fields {
		spec[name] = [2]string{f.Selector, f.Attr}
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal field spec: %w", err)
	}

	js := fmt.Sprintf(`
	(() => {
		const rows = document.querySelectorAll(%q);
		const fields = %s;
		const out = [];
		rows.forEach(row => {
			const item = {};
			for (const [name, [sel, attr]] of Object.entries(fields)) {
				const el = row.querySelector(sel);
				if (!el) {
					item[name] = "";
				} else if (attr === "href" && el.href) {
					item[name] = el.href;
				} else if (attr) {
					item[name] = el.getAttribute(attr) || "";
				} else {
					item[name] = el.textContent.trim();
				}
			}
			out.push(item);
		});
		return JSON.stringify(out);
	})()
	`, rowSel, specJSON)

	var rowsJSON string
	if err := c.run(ctx, c.navTimeout, chromedp.Evaluate(js, &rowsJSON)); err != nil {
		return nil, err
	}

	var rows []map[string]string
	if err := json.Unmarshal([]byte(rowsJSON), &rows); err != nil {
		return nil, fmt.Errorf("parse row results: %w", err)
	}
	return rows, nil
}

var _ Driver = (*Chrome)(nil)
