package harvest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govtools/archive-resistance/internal/cdx"
	"github.com/govtools/archive-resistance/internal/metrics"
	"github.com/govtools/archive-resistance/internal/report"
	"github.com/govtools/archive-resistance/internal/storage"
)

// seqFetcher serves a canned page sequence per domain, with optional
// injected failures and panics.
type seqFetcher struct {
	mu     sync.Mutex
	pages  map[string][]cdx.Page
	fail   map[string]error
	panics map[string]bool
	calls  map[string]int
}

func newSeqFetcher() *seqFetcher {
	return &seqFetcher{
		pages:  make(map[string][]cdx.Page),
		fail:   make(map[string]error),
		panics: make(map[string]bool),
		calls:  make(map[string]int),
	}
}

func (f *seqFetcher) FetchPageWithRetry(ctx context.Context, domain, resumeKey string) (cdx.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls[domain]
	f.calls[domain]++

	if f.panics[domain] {
		panic("boom")
	}

	seq := f.pages[domain]
	if idx < len(seq) {
		return seq[idx], nil
	}
	if err := f.fail[domain]; err != nil {
		return cdx.Page{}, err
	}
	return cdx.Page{}, nil
}

func (f *seqFetcher) callCount(domain string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[domain]
}

type testEnv struct {
	fetcher *seqFetcher
	store   *storage.Store
	tracker *metrics.Tracker
	coord   *Coordinator
	summary string
	monthly string
}

func newTestEnv(t *testing.T, dir string, fetcher *seqFetcher, workers int, retryPartial bool) *testEnv {
	t.Helper()

	store, err := storage.NewStore(filepath.Join(dir, "harvest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	summary := filepath.Join(dir, "summary.csv")
	monthly := filepath.Join(dir, "monthly.csv")
	writer := report.NewWriter(summary, monthly)
	tracker := metrics.NewTracker()

	h := NewHarvester(fetcher, Limits{MaxPages: 50, MaxDuration: 20 * time.Minute, StableThreshold: 10000})
	coord := NewCoordinator(h, store, writer, tracker, workers, retryPartial)

	return &testEnv{
		fetcher: fetcher,
		store:   store,
		tracker: tracker,
		coord:   coord,
		summary: summary,
		monthly: monthly,
	}
}

func TestCoordinatorEndToEnd(t *testing.T) {
	fetcher := newSeqFetcher()
	fetcher.pages["example.gov"] = []cdx.Page{
		{Records: append(records(10, "200"), records(30, "403")...), ResumeKey: "T1"},
		{Records: records(20, "404")},
	}
	fetcher.pages["other.gov"] = []cdx.Page{
		{Records: records(5, "200")},
	}

	env := newTestEnv(t, t.TempDir(), fetcher, 3, false)
	require.NoError(t, env.coord.Run(context.Background(), []string{"example.gov", "other.gov"}))

	assert.Equal(t, 2, fetcher.callCount("example.gov"), "one fetch per page")
	assert.Equal(t, 1, fetcher.callCount("other.gov"))

	rec, err := env.store.GetDomain("example.gov")
	require.NoError(t, err)
	require.NotNil(t, rec, "checkpoint gains the domain")
	assert.Equal(t, storage.StateCompleted, rec.State)
	assert.Equal(t, string(ReasonCompleted), rec.StopReason)
	assert.Equal(t, 60, rec.TotalCaptures)
	assert.Equal(t, 30, rec.Count403)

	data, err := os.ReadFile(env.summary)
	require.NoError(t, err)
	assert.Contains(t, string(data), "example.gov")
	assert.Contains(t, string(data), "other.gov")

	snap := env.tracker.GetSnapshot()
	assert.Equal(t, 2, snap.DomainsCompleted)
	assert.Equal(t, 3, snap.PagesFetched)
	assert.Equal(t, int64(65), snap.CapturesProcessed)
}

func TestCoordinatorSkipsCheckpointedDomains(t *testing.T) {
	dir := t.TempDir()

	first := newSeqFetcher()
	first.pages["done.gov"] = []cdx.Page{{Records: records(3, "200")}}
	env := newTestEnv(t, dir, first, 2, false)
	require.NoError(t, env.coord.Run(context.Background(), []string{"done.gov"}))
	require.Equal(t, 1, first.callCount("done.gov"))

	// Re-running with an unchanged checkpoint performs zero network calls
	// and produces zero new output rows
	second := newSeqFetcher()
	env2 := newTestEnv(t, dir, second, 2, false)
	require.NoError(t, env2.coord.Run(context.Background(), []string{"done.gov"}))

	assert.Equal(t, 0, second.callCount("done.gov"))
	assert.Equal(t, 1, env2.tracker.GetSnapshot().DomainsSkipped)

	data, err := os.ReadFile(env.summary)
	require.NoError(t, err)
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 2, lines, "header plus exactly one summary row")
}

func TestCoordinatorFetchFailedIsPartialAndRetryable(t *testing.T) {
	dir := t.TempDir()

	failing := newSeqFetcher()
	failing.fail["flaky.gov"] = errors.New("exhausted 5 retries")
	env := newTestEnv(t, dir, failing, 1, false)
	require.NoError(t, env.coord.Run(context.Background(), []string{"flaky.gov"}))

	rec, err := env.store.GetDomain("flaky.gov")
	require.NoError(t, err)
	require.NotNil(t, rec, "a failed attempt is still checkpointed, as partial")
	assert.Equal(t, storage.StatePartial, rec.State)
	assert.Equal(t, string(ReasonFetchFailed), rec.StopReason)

	// Default policy: partial domains stay skipped
	skipping := newSeqFetcher()
	env2 := newTestEnv(t, dir, skipping, 1, false)
	require.NoError(t, env2.coord.Run(context.Background(), []string{"flaky.gov"}))
	assert.Equal(t, 0, skipping.callCount("flaky.gov"))

	// retry_partial re-attempts them
	retrying := newSeqFetcher()
	retrying.pages["flaky.gov"] = []cdx.Page{{Records: records(2, "200")}}
	env3 := newTestEnv(t, dir, retrying, 1, true)
	require.NoError(t, env3.coord.Run(context.Background(), []string{"flaky.gov"}))
	assert.Equal(t, 1, retrying.callCount("flaky.gov"))

	rec, err = env3.store.GetDomain("flaky.gov")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, storage.StateCompleted, rec.State)
}

func TestCoordinatorWorkerPanicIsContained(t *testing.T) {
	fetcher := newSeqFetcher()
	fetcher.panics["bad.gov"] = true
	fetcher.pages["good.gov"] = []cdx.Page{{Records: records(1, "200")}}

	env := newTestEnv(t, t.TempDir(), fetcher, 2, false)
	require.NoError(t, env.coord.Run(context.Background(), []string{"bad.gov", "good.gov"}))

	snap := env.tracker.GetSnapshot()
	assert.Equal(t, 1, snap.DomainsFailed)
	assert.Equal(t, 1, snap.DomainsCompleted, "one domain's failure never aborts the run")
}

func TestCoordinatorCancelledBeforeRun(t *testing.T) {
	fetcher := newSeqFetcher()
	fetcher.pages["example.gov"] = []cdx.Page{{Records: records(1, "200")}}

	env := newTestEnv(t, t.TempDir(), fetcher, 1, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, env.coord.Run(ctx, []string{"example.gov"}))

	rec, err := env.store.GetDomain("example.gov")
	require.NoError(t, err)
	assert.Nil(t, rec, "interrupted domains are not checkpointed")
}
