package stats

import (
	"sort"
	"strconv"
)

// Counts holds status-code bucket counters for a set of captures
type Counts struct {
	Total    int
	Count2xx int
	Count3xx int
	Count4xx int
	Count403 int
	Count404 int // includes 410
	Count5xx int
}

// DomainStats accumulates capture counts for a single domain, including the
// per-month breakdown. It is owned by exactly one harvester and is not safe
// for concurrent use.
type DomainStats struct {
	Counts
	Monthly map[string]*Counts // "YYYY-MM" -> counts for that month
}

// Summary is the finalized aggregate for one domain
type Summary struct {
	Counts
	Ratio4xxTo2xx float64
	Share4xx      float64
}

// MonthlyRow is the finalized aggregate for one (domain, month) pair
type MonthlyRow struct {
	Month string
	Counts
	Ratio float64
	Share float64
}

// NewDomainStats creates an empty accumulator
func NewDomainStats() *DomainStats {
	return &DomainStats{
		Monthly: make(map[string]*Counts),
	}
}

// Apply folds a single capture record into the totals and the matching
// monthly bucket. Records with a non-numeric status field or a timestamp
// shorter than 6 characters are skipped; a bad record never fails the batch.
// Returns true if the record was counted.
func (d *DomainStats) Apply(timestamp, status string) bool {
	if len(timestamp) < 6 {
		return false
	}

	code, err := strconv.Atoi(status)
	if err != nil {
		return false
	}

	monthKey := timestamp[:4] + "-" + timestamp[4:6]
	month, ok := d.Monthly[monthKey]
	if !ok {
		month = &Counts{}
		d.Monthly[monthKey] = month
	}

	d.Counts.apply(code)
	month.apply(code)
	return true
}

// apply increments the bucket matching the status code range
func (c *Counts) apply(code int) {
	c.Total++

	switch {
	case code >= 200 && code < 300:
		c.Count2xx++
	case code >= 300 && code < 400:
		c.Count3xx++
	case code >= 400 && code < 500:
		c.Count4xx++
		if code == 403 {
			c.Count403++
		} else if code == 404 || code == 410 {
			c.Count404++
		}
	case code >= 500 && code < 600:
		c.Count5xx++
	}
}

// Finalize computes the derived ratios and returns the write-once summary
// plus the monthly rows in ascending month order.
func (d *DomainStats) Finalize() (Summary, []MonthlyRow) {
	summary := Summary{
		Counts:        d.Counts,
		Ratio4xxTo2xx: ratio(d.Count4xx, d.Count2xx),
		Share4xx:      ratio(d.Count4xx, d.Count2xx+d.Count4xx),
	}

	months := make([]string, 0, len(d.Monthly))
	for m := range d.Monthly {
		months = append(months, m)
	}
	sort.Strings(months)

	rows := make([]MonthlyRow, 0, len(months))
	for _, m := range months {
		c := d.Monthly[m]
		rows = append(rows, MonthlyRow{
			Month:  m,
			Counts: *c,
			Ratio:  ratio(c.Count4xx, c.Count2xx),
			Share:  ratio(c.Count4xx, c.Count2xx+c.Count4xx),
		})
	}

	return summary, rows
}

// ratio divides num by den, returning 0 when the denominator is 0
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
