package cdx

// CaptureRecord is one historical fetch recorded by the index
type CaptureRecord struct {
	Timestamp  string // 14-digit YYYYMMDDHHMMSS
	StatusCode string // raw status field, may be non-numeric ("-")
}

// Page is one chunk of query results for a domain. An empty ResumeKey means
// the index has no further pages for this query.
type Page struct {
	Records   []CaptureRecord
	ResumeKey string
}

// Split separates the data rows of a raw response from the embedded
// continuation token. The index returns an ordered sequence of rows: the
// first row may be a column-header echo ("timestamp", "statuscode"), and
// when more pages exist the last row carries the resume key instead of data.
// A row is data when its first field is a 14-digit numeric timestamp;
// anything else in the last position is treated as the token.
func Split(rows [][]string) ([]CaptureRecord, string) {
	if len(rows) > 0 && len(rows[0]) > 0 && rows[0][0] == "timestamp" {
		rows = rows[1:]
	}

	resumeKey := ""
	if n := len(rows); n > 0 {
		last := rows[n-1]
		if len(last) == 0 || !isTimestamp(last[0]) {
			if len(last) > 0 {
				resumeKey = last[0]
			}
			rows = rows[:n-1]
		}
	}

	records := make([]CaptureRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		records = append(records, CaptureRecord{
			Timestamp:  row[0],
			StatusCode: row[1],
		})
	}

	return records, resumeKey
}

// isTimestamp reports whether s is a 14-digit capture timestamp
func isTimestamp(s string) bool {
	if len(s) != 14 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
