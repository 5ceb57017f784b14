package harvest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govtools/archive-resistance/internal/cdx"
)

// fakeFetcher serves canned page sequences per domain and records the resume
// keys it was asked for.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string][]cdx.Page
	err   error
	calls int
	keys  []string
}

func (f *fakeFetcher) FetchPageWithRetry(ctx context.Context, domain, resumeKey string) (cdx.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keys = append(f.keys, resumeKey)

	seq := f.pages[domain]
	if f.calls >= len(seq) {
		if f.err != nil {
			f.calls++
			return cdx.Page{}, f.err
		}
		f.calls++
		return cdx.Page{}, nil
	}

	page := seq[f.calls]
	f.calls++
	return page, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func records(n int, status string) []cdx.CaptureRecord {
	recs := make([]cdx.CaptureRecord, n)
	for i := range recs {
		recs[i] = cdx.CaptureRecord{Timestamp: "20240115083000", StatusCode: status}
	}
	return recs
}

func relaxedLimits() Limits {
	return Limits{MaxPages: 50, MaxDuration: 20 * time.Minute, StableThreshold: 10000}
}

func TestHarvestTwoPagesCompletes(t *testing.T) {
	page1 := cdx.Page{Records: append(records(3, "200"), records(2, "403")...), ResumeKey: "T1"}
	page2 := cdx.Page{Records: records(4, "404")}

	f := &fakeFetcher{pages: map[string][]cdx.Page{"example.gov": {page1, page2}}}
	h := NewHarvester(f, relaxedLimits())

	res := h.Harvest(context.Background(), "example.gov")

	assert.Equal(t, ReasonCompleted, res.Reason)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, f.callCount(), "exactly one fetch per page")
	assert.Equal(t, []string{"", "T1"}, f.keys, "second fetch continues from the first page's token")
	assert.Equal(t, 9, res.Summary.Total)
	assert.Equal(t, 3, res.Summary.Count2xx)
	assert.Equal(t, 2, res.Summary.Count403)
	assert.Equal(t, 4, res.Summary.Count404)
	require.Len(t, res.Monthly, 1)
	assert.Equal(t, "2024-01", res.Monthly[0].Month)
	assert.Equal(t, 9, res.Monthly[0].Total)
}

func TestHarvestEmptyFirstPage(t *testing.T) {
	f := &fakeFetcher{pages: map[string][]cdx.Page{}}
	h := NewHarvester(f, relaxedLimits())

	res := h.Harvest(context.Background(), "quiet.gov")

	assert.Equal(t, ReasonCompleted, res.Reason)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 0, res.Summary.Total)
	assert.Empty(t, res.Monthly)
}

func TestHarvestRepeatedTokenStops(t *testing.T) {
	looping := cdx.Page{Records: records(1, "200"), ResumeKey: "T1"}

	f := &fakeFetcher{pages: map[string][]cdx.Page{"loop.gov": {looping, looping, looping}}}
	h := NewHarvester(f, relaxedLimits())

	res := h.Harvest(context.Background(), "loop.gov")

	assert.Equal(t, ReasonResumeLoop, res.Reason)
	assert.Equal(t, 2, f.callCount(), "terminates after one repeated observation")
	assert.Equal(t, 2, res.Summary.Total)
}

func TestHarvestFetchFailureKeepsPartialStats(t *testing.T) {
	page1 := cdx.Page{Records: records(5, "403"), ResumeKey: "T1"}

	f := &fakeFetcher{
		pages: map[string][]cdx.Page{"flaky.gov": {page1}},
		err:   errors.New("exhausted 5 retries"),
	}
	h := NewHarvester(f, relaxedLimits())

	res := h.Harvest(context.Background(), "flaky.gov")

	assert.Equal(t, ReasonFetchFailed, res.Reason)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 5, res.Summary.Total, "stats from pages before the failure survive")
}

func TestHarvestPageLimit(t *testing.T) {
	endless := []cdx.Page{
		{Records: records(1, "200"), ResumeKey: "T1"},
		{Records: records(1, "200"), ResumeKey: "T2"},
		{Records: records(1, "200"), ResumeKey: "T3"},
	}

	f := &fakeFetcher{pages: map[string][]cdx.Page{"big.gov": endless}}
	limits := relaxedLimits()
	limits.MaxPages = 2
	h := NewHarvester(f, limits)

	res := h.Harvest(context.Background(), "big.gov")

	assert.Equal(t, ReasonPageLimit, res.Reason)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, f.callCount())
}

func TestHarvestStableBlockEarlyStop(t *testing.T) {
	blocked := cdx.Page{Records: records(200, "403"), ResumeKey: "T1"}
	next := cdx.Page{Records: records(200, "403"), ResumeKey: "T2"}

	f := &fakeFetcher{pages: map[string][]cdx.Page{"blocked.gov": {blocked, next}}}
	limits := relaxedLimits()
	limits.StableThreshold = 100
	h := NewHarvester(f, limits)

	res := h.Harvest(context.Background(), "blocked.gov")

	assert.Equal(t, ReasonStableBlock, res.Reason)
	assert.Equal(t, 1, f.callCount(), "evaluator fires before the second page request")
	assert.Equal(t, 200, res.Summary.Count403)
}

func TestHarvestInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeFetcher{pages: map[string][]cdx.Page{}}
	h := NewHarvester(f, relaxedLimits())

	res := h.Harvest(ctx, "example.gov")

	assert.Equal(t, ReasonInterrupted, res.Reason)
	assert.Equal(t, 0, f.callCount(), "cancellation observed before any fetch")
}
