package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// RunMetrics tracks harvest statistics for export on exit
type RunMetrics struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	DomainsCompleted  int       `json:"domains_completed"`
	DomainsPartial    int       `json:"domains_partial"`
	DomainsFailed     int       `json:"domains_failed"`
	DomainsSkipped    int       `json:"domains_skipped"`
	PagesFetched      int       `json:"pages_fetched"`
	CapturesProcessed int64     `json:"captures_processed"`
	TerminationReason string    `json:"termination_reason"`
}

// Tracker holds and manages run metrics
type Tracker struct {
	mu   sync.Mutex
	data RunMetrics
}

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		data: RunMetrics{
			StartTime: time.Now(),
		},
	}
}

// AddSkipped records domains skipped via the checkpoint
func (t *Tracker) AddSkipped(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DomainsSkipped += n
}

// DomainCompleted records a fully harvested domain
func (t *Tracker) DomainCompleted(pages int, captures int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DomainsCompleted++
	t.data.PagesFetched += pages
	t.data.CapturesProcessed += int64(captures)
}

// DomainPartial records a domain stopped by a resource limit or fetch failure
func (t *Tracker) DomainPartial(pages int, captures int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DomainsPartial++
	t.data.PagesFetched += pages
	t.data.CapturesProcessed += int64(captures)
}

// DomainFailed records a domain whose result could not be persisted
func (t *Tracker) DomainFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DomainsFailed++
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() RunMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress prints current metrics to console (for periodic updates)
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Domains: %d completed, %d partial, %d failed, %d skipped | Pages: %d | Captures: %d",
		t.data.DomainsCompleted,
		t.data.DomainsPartial,
		t.data.DomainsFailed,
		t.data.DomainsSkipped,
		t.data.PagesFetched,
		t.data.CapturesProcessed,
	)
}
