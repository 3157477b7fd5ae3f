package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-scripts/oamon/internal/notice"
)

// Mock collaborators substitute canned data for the whole browser side of
// the pipeline. They are chosen once at wiring time; stage logic never
// branches on a mode flag.

// MockAuthenticator hands out a session with no browser behind it.
type MockAuthenticator struct{}

func (MockAuthenticator) Authenticate(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fatal(KindCancelled, err)
	}
	return &Session{}, nil
}

// CannedScraper serves a fixed pair of demo notices dated relative to Now,
// so repeated demo runs keep producing "new" items.
type CannedScraper struct {
	Now func() time.Time
}

var (
	_ Enumerator = (*CannedScraper)(nil)
	_ Extractor  = (*CannedScraper)(nil)
)

func (c *CannedScraper) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CannedScraper) Enumerate(ctx context.Context, _ *Session) ([]notice.Stub, []StageError, error) {
	day := c.now().UTC().Truncate(24 * time.Hour)
	stubs := []notice.Stub{
		{
			Title:       "关于期末考试安排的通知",
			Department:  "教务处",
			PublishedAt: day.AddDate(0, 0, -7),
			DetailURL:   "mock://oa/notice/1",
		},
		{
			Title:       "校园讲座：AI 与教育",
			Department:  "学术处",
			PublishedAt: day.AddDate(0, 0, -3),
			DetailURL:   "mock://oa/notice/2",
		},
	}
	return stubs, nil, nil
}

func (c *CannedScraper) Extract(ctx context.Context, _ *Session, stub notice.Stub) (notice.Record, error) {
	var text string
	switch stub.DetailURL {
	case "mock://oa/notice/1":
		text = "请各学院于本月完成期末考试安排上报。"
	case "mock://oa/notice/2":
		text = "地点图书馆报告厅，欢迎师生参加。"
	default:
		return notice.Record{}, fmt.Errorf("unknown mock notice %s", stub.DetailURL)
	}
	return notice.Record{
		Stub:      stub,
		FullText:  text,
		FetchedAt: c.now().UTC(),
	}, nil
}

// CannedSummarizer is a deterministic stand-in for the AI capability.
type CannedSummarizer struct{}

func (CannedSummarizer) Summarize(_ context.Context, title, text string) (string, error) {
	return fmt.Sprintf("%s：%s", title, text), nil
}
