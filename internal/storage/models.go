package storage

import "time"

// Domain harvest states. A "completed" domain is never re-fetched; a
// "partial" domain (stopped by a resource limit or retry exhaustion) is
// re-fetched only when retry_partial is enabled.
const (
	StateCompleted = "completed"
	StatePartial   = "partial"
)

// DomainRecord is the persisted outcome of one domain's harvest
type DomainRecord struct {
	Domain        string
	State         string
	StopReason    string
	TotalCaptures int
	Count2xx      int
	Count3xx      int
	Count4xx      int
	Count403      int
	Count404      int
	Count5xx      int
	Ratio4xxTo2xx float64
	Share4xx      float64
	Pages         int
	HarvestedAt   time.Time
}

// MonthlyRecord is one persisted (domain, month) aggregate
type MonthlyRecord struct {
	Domain     string
	Month      string
	TotalMonth int
	Count2xx   int
	Count3xx   int
	Count4xx   int
	Count403   int
	Count404   int
	Count5xx   int
	RatioMonth float64
	ShareMonth float64
}
