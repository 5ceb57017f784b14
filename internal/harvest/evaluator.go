package harvest

import (
	"time"

	"github.com/govtools/archive-resistance/internal/stats"
)

// stableBlockShare is the 403 share above which a domain is considered
// confidently blocked once enough samples have been seen
const stableBlockShare = 0.995

// Limits caps the resources a single domain's harvest may consume
type Limits struct {
	MaxPages        int           // page ceiling per domain
	MaxDuration     time.Duration // wall-clock ceiling per domain
	StableThreshold int           // minimum samples before the stable-block heuristic applies
}

// ShouldStop decides, before the next page request, whether to stop
// paginating this domain early. The three conditions are independent and
// each maps to a distinct stop reason.
func (l Limits) ShouldStop(c stats.Counts, pagesProcessed int, elapsed time.Duration) (StopReason, bool) {
	if pagesProcessed >= l.MaxPages {
		return ReasonPageLimit, true
	}
	if elapsed >= l.MaxDuration {
		return ReasonDurationLimit, true
	}
	if c.Total > l.StableThreshold {
		if float64(c.Count403)/float64(c.Total) > stableBlockShare {
			return ReasonStableBlock, true
		}
	}
	return "", false
}
