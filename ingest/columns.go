package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Header name variants, matched case-insensitively.
var (
	timeColumns      = []string{"datetime", "time", "timestamp", "date"}
	pctChangeColumns = []string{"pct_change", "change_pct", "percent_change", "pct", "change%"}
)

// header maps lower-cased column names to their position.
type header map[string]int

func newHeader(record []string) header {
	h := make(header, len(record))
	for i, name := range record {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := h[key]; !dup {
			h[key] = i
		}
	}
	return h
}

// find returns the position of the first candidate present.
func (h header) find(candidates ...string) (int, bool) {
	for _, c := range candidates {
		if i, ok := h[strings.ToLower(c)]; ok {
			return i, true
		}
	}
	return -1, false
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// newReader sniffs the delimiter from the first line: files exported with a
// European locale use ';' and a decimal comma.
func newReader(r io.Reader) (*csv.Reader, rune) {
	br := bufio.NewReader(r)
	comma := ','
	if line, err := br.Peek(4096); err == nil || len(line) > 0 {
		first := string(line)
		if i := strings.IndexByte(first, '\n'); i >= 0 {
			first = first[:i]
		}
		if strings.Count(first, ";") > strings.Count(first, ",") {
			comma = ';'
		}
	}
	reader := csv.NewReader(br)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader, comma
}

// isRowError reports whether err only affects the current record. Any other
// read error is sticky and ends the file.
func isRowError(err error) bool {
	var parseErr *csv.ParseError
	return errors.As(err, &parseErr)
}

// parseNumber returns NaN for empty or malformed input.
func parseNumber(s string, comma rune) float64 {
	if s == "" {
		return math.NaN()
	}
	if comma == ';' {
		s = strings.Replace(s, ",", ".", -1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

var (
	awareLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05-0700",
		"2006-01-02T15:04:05-0700",
		"2006-01-02 15:04:05 -0700 MST",
		time.RubyDate,
	}
	naiveLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
		"01/02/2006 15:04:05",
		"01/02/2006 15:04",
	}
)

// parseTimestamp parses s and reports whether it carried a zone offset.
// Naive results have their wall-clock fields in time.UTC. Plain integers are
// unix seconds, or milliseconds when too large for seconds.
func parseTimestamp(s string) (t time.Time, aware bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, fmt.Errorf("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 || n < -1e11 {
			return time.UnixMilli(n).UTC(), true, nil
		}
		return time.Unix(n, 0).UTC(), true, nil
	}
	for _, layout := range awareLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "t", "y":
		return true
	}
	return false
}
