package ingest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/guregu/null/v6"

	"github.com/viktsys/tweetimpact/impact"
	"github.com/viktsys/tweetimpact/models"
)

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("missing required column")

// FindCSVFiles walks dir recursively and returns every .csv file, sorted.
// A missing directory yields no files and no error.
func FindCSVFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find CSV files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadPriceDir parses every CSV under dir with up to fileWorkers files in
// flight. Malformed files are skipped and recorded in the report; a missing
// or empty directory yields no ticks. Ticks are returned in sorted-path
// order regardless of scheduling, so the grid's tie-breaking is stable.
func LoadPriceDir(dir string, loc impact.Localizer, fileWorkers int) ([]models.PriceTick, BuildReport) {
	report := BuildReport{Dir: dir}

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		report.Missing = true
		return nil, report
	}

	files, err := FindCSVFiles(dir)
	if err != nil {
		report.Files = append(report.Files, FileOutcome{Path: dir, Err: err})
		return nil, report
	}
	if fileWorkers < 1 {
		fileWorkers = 1
	}

	results := make([][]models.PriceTick, len(files))
	report.Files = make([]FileOutcome, len(files))

	semaphore := make(chan struct{}, fileWorkers)
	var wg sync.WaitGroup
	for i, file := range files {
		wg.Add(1)
		go func(i int, filename string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[i], report.Files[i] = ParsePriceFile(filename, loc)
		}(i, file)
	}
	wg.Wait()

	var ticks []models.PriceTick
	for _, r := range results {
		ticks = append(ticks, r...)
	}
	return ticks, report
}

// ParsePriceFile reads one price CSV.
func ParsePriceFile(path string, loc impact.Localizer) ([]models.PriceTick, FileOutcome) {
	f, err := os.Open(path)
	if err != nil {
		return nil, FileOutcome{Path: path, Err: fmt.Errorf("failed to open file: %w", err)}
	}
	defer f.Close()

	ticks, outcome := ParsePrices(f, filepath.Base(path), loc)
	outcome.Path = path
	return ticks, outcome
}

// ParsePrices reads price rows with a header naming a time column and the
// open/high/low/close columns in any case. An optional percent-change column
// is carried through. Naive timestamps are resolved with loc; rows whose time
// or open cannot be parsed, or whose local time is ambiguous, are dropped.
func ParsePrices(r io.Reader, source string, loc impact.Localizer) ([]models.PriceTick, FileOutcome) {
	outcome := FileOutcome{Path: source}
	reader, comma := newReader(r)

	first, err := reader.Read()
	if err != nil {
		outcome.Err = fmt.Errorf("failed to read header: %w", err)
		return nil, outcome
	}
	h := newHeader(first)

	timeCol, ok := h.find(timeColumns...)
	if !ok {
		outcome.Err = fmt.Errorf("%w: time (one of %s)", ErrMissingColumn, strings.Join(timeColumns, ", "))
		return nil, outcome
	}
	cols := make(map[string]int, 4)
	for _, name := range []string{"open", "high", "low", "close"} {
		i, ok := h.find(name)
		if !ok {
			outcome.Err = fmt.Errorf("%w: %s", ErrMissingColumn, name)
			return nil, outcome
		}
		cols[name] = i
	}
	pctCol, hasPct := h.find(pctChangeColumns...)

	var ticks []models.PriceTick
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !isRowError(err) {
				outcome.Err = fmt.Errorf("failed to read row: %w", err)
				return nil, outcome
			}
			outcome.Dropped++
			continue
		}

		ts, aware, err := parseTimestamp(field(record, timeCol))
		if err != nil {
			outcome.Dropped++
			continue
		}
		if !aware {
			if ts, ok = loc.ToUTC(ts); !ok {
				outcome.Dropped++
				continue
			}
		}

		open := parseNumber(field(record, cols["open"]), comma)
		if math.IsNaN(open) || math.IsInf(open, 0) {
			outcome.Dropped++
			continue
		}

		tick := models.PriceTick{
			Timestamp: ts,
			Open:      open,
			High:      orOpen(parseNumber(field(record, cols["high"]), comma), open),
			Low:       orOpen(parseNumber(field(record, cols["low"]), comma), open),
			Close:     orOpen(parseNumber(field(record, cols["close"]), comma), open),
			Source:    source,
		}
		if hasPct {
			if pct := parseNumber(field(record, pctCol), comma); !math.IsNaN(pct) {
				tick.PctChange = null.FloatFrom(pct)
			}
		}
		ticks = append(ticks, tick)
	}

	outcome.Rows = len(ticks)
	return ticks, outcome
}

// orOpen keeps bars serializable when a secondary price is blank; only open
// feeds the impact math.
func orOpen(v, open float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return open
	}
	return v
}
