package ingest

import (
	"fmt"
	"log"
)

// FileOutcome records what happened to one price file.
type FileOutcome struct {
	Path    string
	Rows    int   // ticks kept
	Dropped int   // rows without a usable timestamp or open
	Err     error // non-nil when the whole file was skipped
}

// Skipped reports whether the file contributed nothing because of an error.
func (o FileOutcome) Skipped() bool { return o.Err != nil }

// BuildReport aggregates per-file outcomes of a price directory load so
// callers can surface data-quality warnings.
type BuildReport struct {
	Dir     string
	Missing bool // the directory does not exist
	Files   []FileOutcome
}

// Parsed returns the number of files that contributed ticks.
func (r BuildReport) Parsed() int {
	n := 0
	for _, f := range r.Files {
		if !f.Skipped() {
			n++
		}
	}
	return n
}

// Skipped returns the outcomes of files that were skipped.
func (r BuildReport) Skipped() []FileOutcome {
	var out []FileOutcome
	for _, f := range r.Files {
		if f.Skipped() {
			out = append(out, f)
		}
	}
	return out
}

// Rows returns the total number of ticks kept.
func (r BuildReport) Rows() int {
	n := 0
	for _, f := range r.Files {
		n += f.Rows
	}
	return n
}

// Dropped returns the total number of rows dropped inside parsed files.
func (r BuildReport) Dropped() int {
	n := 0
	for _, f := range r.Files {
		n += f.Dropped
	}
	return n
}

func (r BuildReport) String() string {
	if r.Missing {
		return fmt.Sprintf("price directory %s does not exist", r.Dir)
	}
	return fmt.Sprintf("%d price files: %d parsed, %d skipped, %d ticks, %d rows dropped",
		len(r.Files), r.Parsed(), len(r.Skipped()), r.Rows(), r.Dropped())
}

// Log writes the summary and one warning per skipped file.
func (r BuildReport) Log() {
	for _, f := range r.Skipped() {
		log.Printf("Warning: skipping price file %s: %v", f.Path, f.Err)
	}
	log.Println(r.String())
}
