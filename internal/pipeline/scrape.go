package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/oamon/internal/browser"
	"github.com/go-scripts/oamon/internal/config"
	"github.com/go-scripts/oamon/internal/notice"
)

// WebScraper implements enumeration and extraction against the live OA
// system through an authenticated session.
type WebScraper struct {
	cfg    config.Config
	logger *log.Logger
}

func NewWebScraper(cfg config.Config, logger *log.Logger) *WebScraper {
	return &WebScraper{cfg: cfg, logger: logger}
}

var (
	_ Enumerator = (*WebScraper)(nil)
	_ Extractor  = (*WebScraper)(nil)
)

// Enumerate scans the list rows into stubs in on-page order. One malformed
// row becomes one soft error and never aborts the scan; an empty list after
// readiness is a valid empty result.
func (s *WebScraper) Enumerate(ctx context.Context, sess *Session) ([]notice.Stub, []StageError, error) {
	oa := s.cfg.OA
	t := s.cfg.Timeouts

	if err := sess.drv.WaitVisible(ctx, oa.ReadySelector, t.Navigation); err != nil {
		return nil, nil, fatal(KindSelectorMissing, fmt.Errorf("OA list never became ready: %w", err))
	}

	// Rows can render after readiness; give them a bounded wait. Timing out
	// here just means the list is empty today.
	if err := sess.drv.WaitVisible(ctx, oa.ListRow, t.ListRows); err != nil {
		s.logger.Info("no notice rows found", "selector", oa.ListRow)
		return nil, nil, nil
	}

	rows, err := sess.drv.Rows(ctx, oa.ListRow, map[string]browser.Field{
		"title":      {Selector: oa.Title},
		"department": {Selector: oa.Department},
		"date":       {Selector: oa.Date},
		"link":       {Selector: oa.Link, Attr: "href"},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, fatal(KindNavigationTimeout, fmt.Errorf("scan list rows: %w", err))
		}
		return nil, nil, fatal(KindSelectorMissing, fmt.Errorf("scan list rows: %w", err))
	}

	var (
		stubs []notice.Stub
		softs []StageError
	)
	for i, row := range rows {
		stub, err := s.parseRow(row)
		if err != nil {
			ref := row["title"]
			if ref == "" {
				ref = fmt.Sprintf("row %d", i)
			}
			softs = append(softs, soft(KindRowParse, ref, err))
			continue
		}
		stubs = append(stubs, stub)
	}

	s.logger.Info("notice list scanned", "rows", len(rows), "stubs", len(stubs), "skipped", len(softs))
	return stubs, softs, nil
}

func (s *WebScraper) parseRow(row map[string]string) (notice.Stub, error) {
	for _, field := range []string{"title", "department", "date", "link"} {
		if row[field] == "" {
			return notice.Stub{}, fmt.Errorf("missing %s", field)
		}
	}

	published, err := time.Parse(s.cfg.DateFormat, row["date"])
	if err != nil {
		return notice.Stub{}, fmt.Errorf("unparseable date %q: %w", row["date"], err)
	}

	return notice.Stub{
		Title:       row["title"],
		Department:  row["department"],
		PublishedAt: published,
		DetailURL:   row["link"],
	}, nil
}

// Extract opens the stub's detail page and reads its body text. The wait is
// bounded per notice so one broken detail page cannot stall the batch.
func (s *WebScraper) Extract(ctx context.Context, sess *Session, stub notice.Stub) (notice.Record, error) {
	if err := sess.drv.Navigate(ctx, stub.DetailURL); err != nil {
		return notice.Record{}, fmt.Errorf("open detail page: %w", err)
	}

	text, err := sess.drv.Text(ctx, s.cfg.OA.DetailContent, s.cfg.Timeouts.Extraction)
	if err != nil {
		return notice.Record{}, fmt.Errorf("read detail content: %w", err)
	}

	return notice.Record{
		Stub:      stub,
		FullText:  text,
		FetchedAt: time.Now().UTC(),
	}, nil
}
