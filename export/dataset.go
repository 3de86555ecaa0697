// Package export writes the per-event impact dataset: one row per event
// with the open at the event minute and the percent change over every
// allowed horizon.
package export

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/viktsys/tweetimpact/app"
	"github.com/viktsys/tweetimpact/impact"
)

// Record is one dataset row. Change fields are percent rounded to two
// decimals, nil when there is no data. Horizons count bars, so a change may
// reach into the next session; GapCrossed marks rows where any change does.
type Record struct {
	TweetID          string   `json:"tweet_id" parquet:"tweet_id"`
	Datetime         string   `json:"datetime" parquet:"datetime"`
	Text             string   `json:"text" parquet:"text"`
	PriceAtTweetOpen float64  `json:"price_at_tweet_open" parquet:"price_at_tweet_open"`
	Change1m         *float64 `json:"change_1m" parquet:"change_1m"`
	Change2m         *float64 `json:"change_2m" parquet:"change_2m"`
	Change3m         *float64 `json:"change_3m" parquet:"change_3m"`
	Change4m         *float64 `json:"change_4m" parquet:"change_4m"`
	Change5m         *float64 `json:"change_5m" parquet:"change_5m"`
	Change6m         *float64 `json:"change_6m" parquet:"change_6m"`
	Change7m         *float64 `json:"change_7m" parquet:"change_7m"`
	Change8m         *float64 `json:"change_8m" parquet:"change_8m"`
	Change9m         *float64 `json:"change_9m" parquet:"change_9m"`
	Change10m        *float64 `json:"change_10m" parquet:"change_10m"`
	Change11m        *float64 `json:"change_11m" parquet:"change_11m"`
	Change12m        *float64 `json:"change_12m" parquet:"change_12m"`
	Change13m        *float64 `json:"change_13m" parquet:"change_13m"`
	Change14m        *float64 `json:"change_14m" parquet:"change_14m"`
	Change15m        *float64 `json:"change_15m" parquet:"change_15m"`
	Change16m        *float64 `json:"change_16m" parquet:"change_16m"`
	Change17m        *float64 `json:"change_17m" parquet:"change_17m"`
	Change18m        *float64 `json:"change_18m" parquet:"change_18m"`
	Change19m        *float64 `json:"change_19m" parquet:"change_19m"`
	Change20m        *float64 `json:"change_20m" parquet:"change_20m"`
	Change30m        *float64 `json:"change_30m" parquet:"change_30m"`
	Change60m        *float64 `json:"change_60m" parquet:"change_60m"`
	GapCrossed       bool     `json:"gap_crossed" parquet:"gap_crossed"`
}

// changes returns the change fields in impact.AllowedHorizons order.
func (r *Record) changes() []**float64 {
	return []**float64{
		&r.Change1m, &r.Change2m, &r.Change3m, &r.Change4m, &r.Change5m,
		&r.Change6m, &r.Change7m, &r.Change8m, &r.Change9m, &r.Change10m,
		&r.Change11m, &r.Change12m, &r.Change13m, &r.Change14m, &r.Change15m,
		&r.Change16m, &r.Change17m, &r.Change18m, &r.Change19m, &r.Change20m,
		&r.Change30m, &r.Change60m,
	}
}

// Change returns the change for horizon k.
func (r *Record) Change(k int) (float64, bool) {
	for i, h := range impact.AllowedHorizons() {
		if h == k {
			if p := *r.changes()[i]; p != nil {
				return *p, true
			}
			return 0, false
		}
	}
	return 0, false
}

// Header returns the column names in output order.
func Header() []string {
	cols := []string{"tweet_id", "datetime", "text", "price_at_tweet_open"}
	for _, k := range impact.AllowedHorizons() {
		cols = append(cols, fmt.Sprintf("change_%dm", k))
	}
	return append(cols, "gap_crossed")
}

// Values renders the record as CSV fields matching Header.
func (r *Record) Values() []string {
	out := []string{
		r.TweetID,
		r.Datetime,
		r.Text,
		strconv.FormatFloat(r.PriceAtTweetOpen, 'f', -1, 64),
	}
	for _, p := range r.changes() {
		if *p == nil {
			out = append(out, "")
			continue
		}
		out = append(out, strconv.FormatFloat(**p, 'f', -1, 64))
	}
	out = append(out, strconv.FormatBool(r.GapCrossed))
	return out
}

// BuildRecords computes the dataset oldest event first. Events whose minute
// lies outside the price range or has no bar are skipped. limit <= 0 means
// no limit.
func BuildRecords(c *app.Context, limit int) []Record {
	grid := c.Grid()
	first, last, ok := grid.Range()
	if !ok {
		return nil
	}
	horizons := impact.AllowedHorizons()
	events := c.Events()

	var records []Record
	for i := len(events) - 1; i >= 0; i-- {
		if limit > 0 && len(records) >= limit {
			break
		}
		e := events[i]
		minute := e.CreatedAt.Truncate(time.Minute)
		if minute.Before(first) || minute.After(last) {
			continue
		}
		bar, ok := grid.Bar(e.CreatedAt)
		if !ok {
			continue
		}

		changes, err := grid.ChangesAt(e.CreatedAt, horizons)
		if err != nil {
			continue
		}
		rec := Record{
			TweetID:          e.ID,
			Datetime:         c.FormatDisplay(e.CreatedAt),
			Text:             e.Text,
			PriceAtTweetOpen: bar.Open,
		}
		fields := rec.changes()
		for j, k := range horizons {
			if v := changes[k]; v.Valid {
				pct := roundPercent(v.ValueOrZero())
				*fields[j] = &pct
				if !grid.Contiguous(e.CreatedAt, k) {
					rec.GapCrossed = true
				}
			}
		}
		records = append(records, rec)
	}
	return records
}

// roundPercent converts a fractional change to percent with two decimals,
// rounding half away from zero on the decimal value.
func roundPercent(v float64) float64 {
	return decimal.NewFromFloat(v).Shift(2).Round(2).InexactFloat64()
}
