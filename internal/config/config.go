package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/govtools/archive-resistance/internal/domainlist"
)

// Config holds all runtime configuration parameters
type Config struct {
	InputFile            string  `json:"input_file"`
	Workers              int     `json:"workers"`
	MaxPages             int     `json:"max_pages"`
	MaxDurationSeconds   int     `json:"max_duration_seconds"`
	StableThresholdCount int     `json:"stable_threshold_count"`
	MaxRetries           int     `json:"max_retries"`
	BackoffBaseSeconds   float64 `json:"backoff_base_seconds"`
	PageLimit            int     `json:"page_limit"`
	StartDate            string  `json:"start_date"`
	RequestTimeoutMs     int     `json:"request_timeout_ms"`
	RequestsPerSecond    float64 `json:"requests_per_second"`
	RetryPartial         bool    `json:"retry_partial"`
	CDXBaseURL           string  `json:"cdx_base_url"`
	DBPath               string  `json:"db_path"`
	SummaryCSVPath       string  `json:"summary_csv_path"`
	MonthlyCSVPath       string  `json:"monthly_csv_path"`
	MetricsPath          string  `json:"metrics_path"`
	LogLevel             string  `json:"log_level"`
}

// LoadConfig reads and validates configuration from a JSON file. A missing
// file is not an error since every field has a workable default.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		logrus.Infof("Config file %s not found, using defaults", path)
	} else {
		defer file.Close()
		decoder := json.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.InputFile == "" {
		cfg.InputFile = domainlist.DefaultInputFile
	}
	if cfg.Workers == 0 {
		cfg.Workers = 5
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 50
	}
	if cfg.MaxDurationSeconds == 0 {
		cfg.MaxDurationSeconds = 1200
	}
	if cfg.StableThresholdCount == 0 {
		cfg.StableThresholdCount = 10000
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BackoffBaseSeconds == 0 {
		cfg.BackoffBaseSeconds = 2
	}
	if cfg.PageLimit == 0 {
		cfg.PageLimit = 150000
	}
	if cfg.StartDate == "" {
		cfg.StartDate = "20240101"
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 180000
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.CDXBaseURL == "" {
		cfg.CDXBaseURL = "https://web.archive.org/cdx/search/cdx"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "resistance.db"
	}
	if cfg.SummaryCSVPath == "" {
		cfg.SummaryCSVPath = "resistance_summary.csv"
	}
	if cfg.MonthlyCSVPath == "" {
		cfg.MonthlyCSVPath = "resistance_monthly.csv"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// validate checks that values are sensible
func validate(cfg *Config) error {
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if cfg.MaxPages < 1 {
		return fmt.Errorf("max_pages must be >= 1")
	}
	if cfg.MaxDurationSeconds < 1 {
		return fmt.Errorf("max_duration_seconds must be >= 1")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	if cfg.BackoffBaseSeconds < 1 {
		return fmt.Errorf("backoff_base_seconds must be >= 1")
	}
	if cfg.PageLimit < 1 {
		return fmt.Errorf("page_limit must be >= 1")
	}
	if len(cfg.StartDate) != 8 {
		return fmt.Errorf("start_date must be 8 digits (YYYYMMDD)")
	}
	for _, c := range cfg.StartDate {
		if c < '0' || c > '9' {
			return fmt.Errorf("start_date must be 8 digits (YYYYMMDD)")
		}
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("request_timeout_ms must be >= 1000")
	}
	if cfg.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be > 0")
	}
	return nil
}

// MaxDuration returns the per-domain wall-clock ceiling
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationSeconds) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
