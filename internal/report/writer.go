package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/govtools/archive-resistance/internal/stats"
)

var summaryHeaders = []string{
	"domain", "total_captures", "count_2xx", "count_3xx", "count_4xx",
	"count_403", "count_404", "count_5xx",
	"ratio_4xx_to_2xx", "share_4xx", "timestamp",
}

var monthlyHeaders = []string{
	"domain", "month", "total_month", "count_2xx", "count_3xx", "count_4xx",
	"count_403", "count_404", "count_5xx",
	"ratio_month", "share_month",
}

// Writer appends finished per-domain results to the two CSV report files.
// All writes go through one mutex so rows from concurrent harvesters never
// interleave and each header is written exactly once.
type Writer struct {
	mu          sync.Mutex
	summaryPath string
	monthlyPath string
}

// NewWriter creates a Writer for the given report paths
func NewWriter(summaryPath, monthlyPath string) *Writer {
	return &Writer{
		summaryPath: summaryPath,
		monthlyPath: monthlyPath,
	}
}

// Write appends one summary row and the domain's monthly rows. The inputs
// are treated as read-only.
func (w *Writer) Write(domain string, summary stats.Summary, monthly []stats.MonthlyRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	summaryRow := []string{
		domain,
		itoa(summary.Total),
		itoa(summary.Count2xx),
		itoa(summary.Count3xx),
		itoa(summary.Count4xx),
		itoa(summary.Count403),
		itoa(summary.Count404),
		itoa(summary.Count5xx),
		ftoa(summary.Ratio4xxTo2xx),
		ftoa(summary.Share4xx),
		time.Now().Format(time.RFC3339),
	}
	if err := appendRows(w.summaryPath, summaryHeaders, [][]string{summaryRow}); err != nil {
		return fmt.Errorf("failed to write summary row for %s: %w", domain, err)
	}

	if len(monthly) == 0 {
		return nil
	}

	monthlyRows := make([][]string, 0, len(monthly))
	for _, m := range monthly {
		monthlyRows = append(monthlyRows, []string{
			domain,
			m.Month,
			itoa(m.Total),
			itoa(m.Count2xx),
			itoa(m.Count3xx),
			itoa(m.Count4xx),
			itoa(m.Count403),
			itoa(m.Count404),
			itoa(m.Count5xx),
			ftoa(m.Ratio),
			ftoa(m.Share),
		})
	}
	if err := appendRows(w.monthlyPath, monthlyHeaders, monthlyRows); err != nil {
		return fmt.Errorf("failed to write monthly rows for %s: %w", domain, err)
	}

	return nil
}

// appendRows opens the file for append, writing the header first when the
// file is new or empty
func appendRows(path string, headers []string, rows [][]string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(headers); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

// ftoa formats ratios the way the downstream analysis expects them
func ftoa(f float64) string {
	return fmt.Sprintf("%.4f", f)
}
