package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/govtools/archive-resistance/internal/stats"
)

// Store persists harvest outcomes and doubles as the checkpoint: a domain
// present in the domains table has had its summary and monthly rows durably
// written in the same transaction.
type Store struct {
	db *sql.DB
}

// NewStore opens/creates the harvest database and initializes the schema
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS domains (
		domain TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		stop_reason TEXT NOT NULL,
		total_captures INTEGER NOT NULL,
		count_2xx INTEGER NOT NULL,
		count_3xx INTEGER NOT NULL,
		count_4xx INTEGER NOT NULL,
		count_403 INTEGER NOT NULL,
		count_404 INTEGER NOT NULL,
		count_5xx INTEGER NOT NULL,
		ratio_4xx_to_2xx REAL NOT NULL,
		share_4xx REAL NOT NULL,
		pages INTEGER NOT NULL,
		harvested_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS monthly (
		domain TEXT NOT NULL,
		month TEXT NOT NULL,
		total_month INTEGER NOT NULL,
		count_2xx INTEGER NOT NULL,
		count_3xx INTEGER NOT NULL,
		count_4xx INTEGER NOT NULL,
		count_403 INTEGER NOT NULL,
		count_404 INTEGER NOT NULL,
		count_5xx INTEGER NOT NULL,
		ratio_month REAL NOT NULL,
		share_month REAL NOT NULL,
		PRIMARY KEY (domain, month)
	);

	CREATE INDEX IF NOT EXISTS idx_domains_state ON domains(state);
	CREATE INDEX IF NOT EXISTS idx_monthly_domain ON monthly(domain);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SkipSet returns the checkpoint: the set of domains that must not be
// re-harvested. Partial domains are included unless retryPartial is set.
func (s *Store) SkipSet(retryPartial bool) (map[string]bool, error) {
	query := "SELECT domain FROM domains"
	var args []any
	if retryPartial {
		query += " WHERE state = ?"
		args = append(args, StateCompleted)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	defer rows.Close()

	skip := make(map[string]bool)
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		skip[domain] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}

	return skip, nil
}

// RecordHarvest durably writes a domain's summary and monthly rows and marks
// the domain in the checkpoint, all in one transaction. Re-recording a
// domain (retry of a partial harvest) replaces its previous rows.
func (s *Store) RecordHarvest(domain, state, stopReason string, summary stats.Summary, monthly []stats.MonthlyRow, pages int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO domains (
			domain, state, stop_reason, total_captures,
			count_2xx, count_3xx, count_4xx, count_403, count_404, count_5xx,
			ratio_4xx_to_2xx, share_4xx, pages, harvested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, domain, state, stopReason, summary.Total,
		summary.Count2xx, summary.Count3xx, summary.Count4xx,
		summary.Count403, summary.Count404, summary.Count5xx,
		summary.Ratio4xxTo2xx, summary.Share4xx, pages, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write domain summary: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM monthly WHERE domain = ?", domain); err != nil {
		return fmt.Errorf("failed to clear monthly rows: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO monthly (
			domain, month, total_month,
			count_2xx, count_3xx, count_4xx, count_403, count_404, count_5xx,
			ratio_month, share_month
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare monthly insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range monthly {
		_, err := stmt.Exec(domain, row.Month, row.Total,
			row.Count2xx, row.Count3xx, row.Count4xx,
			row.Count403, row.Count404, row.Count5xx,
			row.Ratio, row.Share)
		if err != nil {
			return fmt.Errorf("failed to write monthly row %s/%s: %w", domain, row.Month, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit harvest record: %w", err)
	}
	return nil
}

// GetDomain retrieves a persisted domain record, returns nil if not found
func (s *Store) GetDomain(domain string) (*DomainRecord, error) {
	var rec DomainRecord
	err := s.db.QueryRow(`
		SELECT domain, state, stop_reason, total_captures,
			count_2xx, count_3xx, count_4xx, count_403, count_404, count_5xx,
			ratio_4xx_to_2xx, share_4xx, pages, harvested_at
		FROM domains
		WHERE domain = ?
	`, domain).Scan(&rec.Domain, &rec.State, &rec.StopReason, &rec.TotalCaptures,
		&rec.Count2xx, &rec.Count3xx, &rec.Count4xx, &rec.Count403, &rec.Count404, &rec.Count5xx,
		&rec.Ratio4xxTo2xx, &rec.Share4xx, &rec.Pages, &rec.HarvestedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain: %w", err)
	}

	return &rec, nil
}

// GetMonthly retrieves the persisted monthly rows for a domain in month order
func (s *Store) GetMonthly(domain string) ([]MonthlyRecord, error) {
	rows, err := s.db.Query(`
		SELECT domain, month, total_month,
			count_2xx, count_3xx, count_4xx, count_403, count_404, count_5xx,
			ratio_month, share_month
		FROM monthly
		WHERE domain = ?
		ORDER BY month ASC
	`, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to load monthly rows: %w", err)
	}
	defer rows.Close()

	var records []MonthlyRecord
	for rows.Next() {
		var rec MonthlyRecord
		err := rows.Scan(&rec.Domain, &rec.Month, &rec.TotalMonth,
			&rec.Count2xx, &rec.Count3xx, &rec.Count4xx, &rec.Count403, &rec.Count404, &rec.Count5xx,
			&rec.RatioMonth, &rec.ShareMonth)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly rows: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
