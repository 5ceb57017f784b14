package harvest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/govtools/archive-resistance/internal/cdx"
	"github.com/govtools/archive-resistance/internal/stats"
)

// Fetcher is the page source for a harvester. *cdx.Client satisfies it; tests
// substitute fakes.
type Fetcher interface {
	FetchPageWithRetry(ctx context.Context, domain, resumeKey string) (cdx.Page, error)
}

// Result is the outcome of harvesting one domain. Ownership of the summary
// and monthly rows transfers to the caller, which treats them as read-only.
type Result struct {
	Domain  string
	Reason  StopReason
	Summary stats.Summary
	Monthly []stats.MonthlyRow
	Pages   int
	Elapsed time.Duration
}

// Harvester drives the fetch, aggregate, decide loop for single domains.
// Each call to Harvest owns its own stats; only the current page's rows are
// held in memory at a time.
type Harvester struct {
	fetcher Fetcher
	limits  Limits
}

// NewHarvester creates a Harvester over the given page source
func NewHarvester(fetcher Fetcher, limits Limits) *Harvester {
	return &Harvester{
		fetcher: fetcher,
		limits:  limits,
	}
}

// Harvest paginates through the index for one domain until exhaustion, a
// resource limit, a repeated resume token, or cancellation, folding each
// page into the running stats as it arrives.
func (h *Harvester) Harvest(ctx context.Context, domain string) Result {
	ds := stats.NewDomainStats()
	start := time.Now()
	reason := ReasonCompleted
	pages := 0
	resumeKey := ""

loop:
	for {
		// Cancellation is observed between pages, never mid-aggregation
		select {
		case <-ctx.Done():
			reason = ReasonInterrupted
			break loop
		default:
		}

		if r, stop := h.limits.ShouldStop(ds.Counts, pages, time.Since(start)); stop {
			logrus.Infof("Stopping %s early: %s (%d captures over %d pages)", domain, r, ds.Total, pages)
			reason = r
			break loop
		}

		page, err := h.fetcher.FetchPageWithRetry(ctx, domain, resumeKey)
		if err != nil {
			if ctx.Err() != nil {
				reason = ReasonInterrupted
			} else {
				logrus.Warnf("Giving up on %s after page %d: %v", domain, pages+1, err)
				reason = ReasonFetchFailed
			}
			break loop
		}

		for _, rec := range page.Records {
			ds.Apply(rec.Timestamp, rec.StatusCode)
		}
		pages++

		if page.ResumeKey == "" {
			// Natural end: the index has no more pages for this query
			reason = ReasonCompleted
			break loop
		}
		if page.ResumeKey == resumeKey {
			logrus.Warnf("Resume token %q repeated for %s, treating domain as exhausted", page.ResumeKey, domain)
			reason = ReasonResumeLoop
			break loop
		}

		resumeKey = page.ResumeKey
		if pages%5 == 0 {
			logrus.Debugf("%s: processed %d pages (%d captures so far)", domain, pages, ds.Total)
		}
	}

	summary, monthly := ds.Finalize()
	return Result{
		Domain:  domain,
		Reason:  reason,
		Summary: summary,
		Monthly: monthly,
		Pages:   pages,
		Elapsed: time.Since(start),
	}
}
