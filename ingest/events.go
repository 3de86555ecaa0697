package ingest

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/viktsys/tweetimpact/models"
)

// TradingHours is an intraday clock window [Open, Close) in a market
// timezone.
type TradingHours struct {
	Location *time.Location
	Open     time.Duration // since local midnight
	Close    time.Duration
}

// Contains reports whether t falls inside the window on its local day.
func (h TradingHours) Contains(t time.Time) bool {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	if h.Open <= h.Close {
		return offset >= h.Open && offset < h.Close
	}
	// window wraps midnight
	return offset >= h.Open || offset < h.Close
}

// EventFilter restricts which events are loaded. Zero bounds are open.
type EventFilter struct {
	Min   time.Time
	Max   time.Time
	Hours *TradingHours
}

// Keep reports whether an event created at t passes the filter.
func (f EventFilter) Keep(t time.Time) bool {
	if !f.Min.IsZero() && t.Before(f.Min) {
		return false
	}
	if !f.Max.IsZero() && t.After(f.Max) {
		return false
	}
	if f.Hours != nil && !f.Hours.Contains(t) {
		return false
	}
	return true
}

// LoadEvents reads the event CSV at path. A missing createdAt column is
// fatal; individual rows with unparseable timestamps are dropped.
func LoadEvents(path string, filter EventFilter) ([]models.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	events, dropped, err := ParseEvents(f, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if dropped > 0 {
		log.Printf("Dropped %d event rows without a usable createdAt from %s", dropped, path)
	}
	return events, nil
}

// ParseEvents reads events with columns id, fullText (or text), createdAt
// and the optional isReply/isRetweet/isQuote flags. Rows without an id get
// their 1-based row number. Timestamps without an offset are taken as UTC.
// The result is sorted newest first.
func ParseEvents(r io.Reader, filter EventFilter) ([]models.Event, int, error) {
	reader, _ := newReader(r)

	first, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	h := newHeader(first)

	createdCol, ok := h.find("createdAt", "created_at")
	if !ok {
		return nil, 0, fmt.Errorf("%w: createdAt", ErrMissingColumn)
	}
	idCol, hasID := h.find("id", "tweet_id")
	textCol, _ := h.find("fullText", "text")
	replyCol, _ := h.find("isReply")
	retweetCol, _ := h.find("isRetweet")
	quoteCol, _ := h.find("isQuote")

	var (
		events  []models.Event
		dropped int
		row     int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			if !isRowError(err) {
				return nil, dropped, fmt.Errorf("failed to read row %d: %w", row, err)
			}
			dropped++
			continue
		}

		created, _, err := parseTimestamp(field(record, createdCol))
		if err != nil {
			dropped++
			continue
		}
		created = created.UTC()
		if !filter.Keep(created) {
			continue
		}

		id := field(record, idCol)
		if !hasID || id == "" {
			id = strconv.Itoa(row)
		}

		events = append(events, models.Event{
			ID:        id,
			Text:      field(record, textCol),
			CreatedAt: created,
			IsReply:   parseBool(field(record, replyCol)),
			IsRetweet: parseBool(field(record, retweetCol)),
			IsQuote:   parseBool(field(record, quoteCol)),
		})
	}

	SortNewestFirst(events)
	return events, dropped, nil
}

// UniqueByID keeps the first event of every id, preserving order. Called on
// a newest-first slice it keeps the same event the API resolves an id to.
func UniqueByID(events []models.Event) []models.Event {
	seen := make(map[string]struct{}, len(events))
	out := events[:0:0]
	for _, e := range events {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}

// SortNewestFirst orders events by creation time descending, then by id.
func SortNewestFirst(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
}
