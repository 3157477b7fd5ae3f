package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/oamon/internal/notice"
)

func mustStub(t *testing.T, title, url string) notice.Stub {
	t.Helper()
	return notice.Stub{
		Title:       title,
		Department:  "教务处",
		PublishedAt: time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC),
		DetailURL:   url,
	}
}

type fakeStore struct {
	mu       sync.Mutex
	saved    map[string]notice.Record
	knownErr error
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: map[string]notice.Record{}}
}

func (f *fakeStore) IsKnown(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.knownErr != nil {
		return false, f.knownErr
	}
	_, ok := f.saved[key]
	return ok, nil
}

func (f *fakeStore) Save(_ context.Context, rec notice.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[rec.IdentityKey()] = rec
	return nil
}

type failingSummarizer struct {
	failTitle string
}

func (s failingSummarizer) Summarize(_ context.Context, title, text string) (string, error) {
	if title == s.failTitle {
		return "", fmt.Errorf("model unavailable")
	}
	return "摘要：" + text, nil
}

type flakyExtractor struct {
	inner   Extractor
	failURL string
}

func (e flakyExtractor) Extract(ctx context.Context, sess *Session, stub notice.Stub) (notice.Record, error) {
	if stub.DetailURL == e.failURL {
		return notice.Record{}, fmt.Errorf("detail page timed out")
	}
	return e.inner.Extract(ctx, sess, stub)
}

type failingAuthenticator struct{ kind Kind }

func (a failingAuthenticator) Authenticate(context.Context) (*Session, error) {
	return nil, fatal(a.kind, errors.New("rejected"))
}

type blockingAuthenticator struct{ release chan struct{} }

func (a blockingAuthenticator) Authenticate(ctx context.Context) (*Session, error) {
	select {
	case <-a.release:
		return &Session{}, nil
	case <-ctx.Done():
		return nil, fatal(KindNavigationTimeout, ctx.Err())
	}
}

func mockDeps(store Store) Deps {
	scraper := &CannedScraper{}
	return Deps{
		Auth:      MockAuthenticator{},
		Enum:      scraper,
		Extract:   scraper,
		Summarize: CannedSummarizer{},
		Store:     store,
		Logger:    log.New(io.Discard),
	}
}

func TestMockRunSucceeds(t *testing.T) {
	store := newFakeStore()
	orch := New(mockDeps(store), ModeMock, false)

	run, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, run.Outcome)
	assert.Equal(t, ModeMock, run.Mode)
	assert.NotEqual(t, run.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Empty(t, run.Errors)
	require.Len(t, run.Notices, 2)
	for _, rec := range run.Notices {
		assert.NotEmpty(t, rec.Summary)
		assert.True(t, rec.Processed)
	}
	assert.Len(t, store.saved, 2)
	assert.Equal(t, StateDone, orch.Status().State)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestSecondRunSkipsKnownNotices(t *testing.T) {
	store := newFakeStore()
	orch := New(mockDeps(store), ModeMock, false)

	first, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Notices, 2)

	second, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, second.Outcome)
	assert.Empty(t, second.Notices)
	assert.Len(t, store.saved, 2)
}

func TestFailedSummarizationStillStoresRecord(t *testing.T) {
	store := newFakeStore()
	deps := mockDeps(store)
	deps.Summarize = failingSummarizer{failTitle: "关于期末考试安排的通知"}
	orch := New(deps, ModeMock, false)

	run, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomePartialFailure, run.Outcome)
	require.Len(t, run.Errors, 1)
	assert.Equal(t, KindSummarizationError, run.Errors[0].Kind)

	// Both records are stored; the failed one has no summary and can be
	// retried later without re-scraping.
	require.Len(t, run.Notices, 2)
	assert.Len(t, store.saved, 2)
	var withSummary, withoutSummary int
	for _, rec := range store.saved {
		if rec.Summary == "" {
			withoutSummary++
			assert.False(t, rec.Processed)
			assert.NotEmpty(t, rec.FullText)
		} else {
			withSummary++
		}
	}
	assert.Equal(t, 1, withSummary)
	assert.Equal(t, 1, withoutSummary)
}

func TestFailedExtractionDoesNotAbortBatch(t *testing.T) {
	store := newFakeStore()
	deps := mockDeps(store)
	deps.Extract = flakyExtractor{inner: deps.Extract, failURL: "mock://oa/notice/1"}
	orch := New(deps, ModeMock, false)

	run, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomePartialFailure, run.Outcome)
	require.Len(t, run.Errors, 1)
	assert.Equal(t, KindExtractionTimeout, run.Errors[0].Kind)
	assert.Equal(t, "关于期末考试安排的通知", run.Errors[0].Ref)

	// The second notice still makes it all the way through.
	require.Len(t, run.Notices, 1)
	assert.Equal(t, "校园讲座：AI 与教育", run.Notices[0].Title)
	assert.NotEmpty(t, run.Notices[0].Summary)
	assert.Len(t, store.saved, 1)
}

func TestStoreFailureIsSoft(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	orch := New(mockDeps(store), ModeMock, false)

	run, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomePartialFailure, run.Outcome)
	assert.Empty(t, run.Notices)
	require.Len(t, run.Errors, 2)
	for _, e := range run.Errors {
		assert.Equal(t, KindStoreError, e.Kind)
	}
}

func TestDedupLookupFailureTreatedAsUnknown(t *testing.T) {
	store := newFakeStore()
	store.knownErr = errors.New("lookup failed")
	orch := New(mockDeps(store), ModeMock, false)

	run, err := orch.Run(context.Background())
	require.NoError(t, err)

	// Lookup failures only risk repeated work, never lost notices.
	assert.Equal(t, OutcomeSuccess, run.Outcome)
	assert.Len(t, run.Notices, 2)
}

func TestFatalAuthenticationReportedInRun(t *testing.T) {
	orch := New(Deps{
		Auth:   failingAuthenticator{kind: KindCredentialRejected},
		Logger: log.New(io.Discard),
	}, ModeLive, true)

	run, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeFatal, run.Outcome)
	assert.Equal(t, KindCredentialRejected, run.FatalKind)
	assert.Empty(t, run.Notices)
	assert.Equal(t, StateFailed, orch.Status().State)
}

func TestConcurrentRunRefused(t *testing.T) {
	release := make(chan struct{})
	store := newFakeStore()
	deps := mockDeps(store)
	deps.Auth = blockingAuthenticator{release: release}
	orch := New(deps, ModeMock, false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := orch.Run(context.Background())
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		return orch.Status().State == StateAuthenticating
	}, time.Second, time.Millisecond)

	_, err := orch.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	<-done

	// The guard lifts once the first run finishes.
	_, err = orch.Run(context.Background())
	assert.NoError(t, err)
}

func TestCancellationAbortsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := New(mockDeps(newFakeStore()), ModeMock, false)
	run, err := orch.Run(ctx)
	require.NoError(t, err)

	// Cancellation surfaces as its own kind, never as a timeout-class fatal.
	assert.Equal(t, OutcomeFatal, run.Outcome)
	assert.Equal(t, KindCancelled, run.FatalKind)
}

func TestLiveCycleEndToEnd(t *testing.T) {
	d := newFakeDriver()
	loginPage(d)
	d.visible["#otp-dialog"] = true
	d.visible["#otp-input"] = true
	d.visible["#otp-submit"] = true
	d.visible["#notice-list"] = true
	d.visible[".notice-row"] = true
	d.rows = []map[string]string{
		{"title": "考试通知", "department": "教务处", "date": "2026-06-20", "link": "https://oa.example.edu/n/1"},
		{"title": "缺日期通知", "department": "教务处", "date": "", "link": "https://oa.example.edu/n/2"},
	}
	d.texts["#content"] = "考试于六月底举行。"

	logger := log.New(io.Discard)
	store := newFakeStore()
	relay := NewRelay()

	var orch *Orchestrator
	auth := NewWebAuthenticator(d, testConfig(), relay, logger, func(s State, m string) {
		orch.SetStatus(s, m)
		if s == StateWaitingOTP {
			go func() {
				for relay.Submit("123456") != nil {
					time.Sleep(time.Millisecond)
				}
			}()
		}
	})
	scraper := NewWebScraper(testConfig(), logger)
	orch = New(Deps{
		Auth:      auth,
		Enum:      scraper,
		Extract:   scraper,
		Summarize: CannedSummarizer{},
		Store:     store,
		Logger:    logger,
	}, ModeLive, true)

	run, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomePartialFailure, run.Outcome)
	require.Len(t, run.Notices, 1)
	assert.Equal(t, "考试通知", run.Notices[0].Title)
	assert.NotEmpty(t, run.Notices[0].Summary)
	require.Len(t, run.Errors, 1)
	assert.Equal(t, KindRowParse, run.Errors[0].Kind)

	assert.Equal(t, "123456", d.typed["#otp-input"])
	assert.Len(t, store.saved, 1)
	// The run owns the session and must release the browser at the end.
	assert.True(t, d.closed)
}

func TestRenderDigestListsNoticesAndErrors(t *testing.T) {
	rec := notice.Record{
		Stub:    mustStub(t, "考试通知", "https://oa.example.edu/n/1"),
		Summary: "期末考试六月底举行。",
	}
	bare := notice.Record{
		Stub: mustStub(t, "讲座通知", "https://oa.example.edu/n/2"),
	}
	run := &Run{
		Outcome: OutcomePartialFailure,
		Notices: []notice.Record{rec, bare},
		Errors:  []StageError{{Kind: KindRowParse, Ref: "坏行", Msg: "missing date"}},
	}

	digest := RenderDigest(run)

	assert.True(t, strings.HasPrefix(digest, "# OA 通知摘要"))
	assert.Contains(t, digest, "**考试通知**")
	assert.Contains(t, digest, "期末考试六月底举行。")
	assert.Contains(t, digest, "（摘要暂缺）")
	assert.Contains(t, digest, "## 处理异常")
	assert.Contains(t, digest, "坏行")
}

func TestRenderDigestEmptyRun(t *testing.T) {
	digest := RenderDigest(&Run{Outcome: OutcomeSuccess})
	assert.Contains(t, digest, "没有新的通知。")
	assert.NotContains(t, digest, "## 处理异常")
}

func TestRenderDigestFatalRun(t *testing.T) {
	digest := RenderDigest(&Run{Outcome: OutcomeFatal, FatalKind: KindOtpTimeout})
	assert.Contains(t, digest, "otp_timeout")
	assert.NotContains(t, digest, "没有新的通知。")
}
