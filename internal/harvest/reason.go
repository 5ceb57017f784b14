package harvest

import "github.com/govtools/archive-resistance/internal/storage"

// StopReason explains why a domain's harvest ended. Downstream consumers use
// it to tell a full scan from a partial one.
type StopReason string

const (
	// ReasonCompleted means the index returned its final page naturally
	ReasonCompleted StopReason = "completed"
	// ReasonPageLimit means the per-domain page ceiling was reached
	ReasonPageLimit StopReason = "page_limit"
	// ReasonDurationLimit means the per-domain wall-clock ceiling was reached
	ReasonDurationLimit StopReason = "duration_limit"
	// ReasonStableBlock means the stable-block heuristic fired: the domain is
	// confidently, overwhelmingly blocked and further pages are assumed to
	// continue the pattern
	ReasonStableBlock StopReason = "early_stop_stable_block"
	// ReasonFetchFailed means a page fetch exhausted its retry budget
	ReasonFetchFailed StopReason = "fetch_failed"
	// ReasonResumeLoop means the index repeated a resume token; the domain is
	// treated as exhausted, not as an error
	ReasonResumeLoop StopReason = "resume_loop_detected"
	// ReasonInterrupted means an external cancellation arrived between pages
	ReasonInterrupted StopReason = "interrupted"
)

// State maps the stop reason onto the checkpoint state. Natural exhaustion
// and the confident early-stop heuristic count as completed; resource-limit
// and fetch-failure stops are partial and may be retried on a later run.
func (r StopReason) State() string {
	switch r {
	case ReasonCompleted, ReasonStableBlock, ReasonResumeLoop:
		return storage.StateCompleted
	default:
		return storage.StatePartial
	}
}
