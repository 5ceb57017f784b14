package domainlist

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultInputFile is the domain list consulted when no input is configured
const DefaultInputFile = "top_federal_domains_1000.txt"

// OfficialListURL points at the authoritative federal domain inventory.
// Package variable so tests can stand in a local server.
var OfficialListURL = "https://raw.githubusercontent.com/cisagov/dotgov-data/main/current-federal.csv"

// officialCSVFile is where the raw downloaded inventory is kept
const officialCSVFile = "current-federal.csv"

// Load returns the deduplicated, case-folded, sorted working set of domains
// from the input file. When the default input file is missing, the official
// inventory is downloaded and saved in its place.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && filepath.Base(path) == DefaultInputFile {
			logrus.Infof("Input file %s not found, downloading official inventory from %s", path, OfficialListURL)
			domains, err := downloadOfficial(path)
			if err != nil {
				return nil, err
			}
			return normalize(domains), nil
		}
		return nil, fmt.Errorf("failed to open domain list: %w", err)
	}
	defer f.Close()

	return Parse(f), nil
}

// Parse reads a newline-delimited domain list. Lines starting with # are
// comments; on comma-separated lines the first .gov-suffixed token wins,
// falling back to the first token. Hostnames are lowercased, deduplicated
// and sorted.
func Parse(r io.Reader) []string {
	var domains []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if d := parseLine(scanner.Text()); d != "" {
			domains = append(domains, d)
		}
	}

	return normalize(domains)
}

// parseLine extracts one hostname from a raw input line, or "" to skip it
func parseLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}

	if !strings.Contains(line, ",") {
		return strings.ToLower(line)
	}

	parts := strings.Split(line, ",")
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if strings.HasSuffix(p, ".gov") {
			return p
		}
	}
	return strings.ToLower(strings.TrimSpace(parts[0]))
}

// normalize dedupes, drops tokens without a dot, and sorts
func normalize(domains []string) []string {
	seen := make(map[string]bool)
	var out []string

	for _, d := range domains {
		if !strings.Contains(d, ".") {
			continue
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}

	sort.Strings(out)
	return out
}

// downloadOfficial fetches the official inventory CSV, keeps the raw file
// next to the input path, extracts the Domain Name column, and saves the
// derived list to savePath for future runs.
func downloadOfficial(savePath string) ([]string, error) {
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Get(OfficialListURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download official list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("official list download returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read official list: %w", err)
	}

	rawPath := filepath.Join(filepath.Dir(savePath), officialCSVFile)
	if err := os.WriteFile(rawPath, raw, 0644); err != nil {
		logrus.Warnf("Could not keep raw inventory CSV: %v", err)
	} else {
		logrus.Infof("Saved official inventory to %s", rawPath)
	}

	domains, err := parseOfficialCSV(raw)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(savePath, []byte(strings.Join(domains, "\n")+"\n"), 0644); err != nil {
		logrus.Warnf("Could not save downloaded list to %s: %v", savePath, err)
	} else {
		logrus.Infof("Saved %d domains to %s", len(domains), savePath)
	}

	return domains, nil
}

// parseOfficialCSV pulls the Domain Name column out of the inventory CSV
func parseOfficialCSV(raw []byte) ([]string, error) {
	// The inventory is served with a UTF-8 BOM
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory header: %w", err)
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "Domain Name" {
			col = i
			break
		}
	}
	if col == -1 {
		return nil, fmt.Errorf("inventory CSV has no Domain Name column")
	}

	var domains []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse inventory CSV: %w", err)
		}
		if col < len(record) {
			if d := strings.ToLower(strings.TrimSpace(record[col])); d != "" {
				domains = append(domains, d)
			}
		}
	}

	return domains, nil
}
