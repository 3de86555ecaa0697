// Package impact aligns minute price ticks into a canonical per-minute grid
// and measures compound price changes from any anchor minute in O(1).
package impact

import (
	"math"
	"sort"
	"time"

	"github.com/viktsys/tweetimpact/models"
)

// minGrowth is the floor applied to 1+r before taking its log. Returns of
// -100% or worse in dirty data are distorted to this value instead of
// failing the build.
const minGrowth = 1e-9

// Grid is the immutable per-minute price index. It is built once and only
// read afterwards, so it is safe for concurrent use without locking.
type Grid struct {
	bars   []models.PriceBar
	index  map[int64]int // minute (unix seconds) -> position in bars
	prefix []float64     // len(bars)+1 cumulative log(1+r)
}

// Build deduplicates ticks to one bar per UTC minute and computes the
// cumulative log-return prefix.
//
// Within a minute the tick with the latest original timestamp wins. Ticks
// with identical timestamps are resolved by input order, the last one wins,
// so the result depends on order only for exact duplicates.
//
// Returns come from the source's percent-change column when every surviving
// bar carries one, otherwise from consecutive opens.
func Build(ticks []models.PriceTick) *Grid {
	latest := make(map[int64]int, len(ticks))
	for i := range ticks {
		ts := ticks[i].Timestamp
		if ts.IsZero() {
			continue
		}
		m := minuteKey(ts)
		if j, ok := latest[m]; ok && ts.Before(ticks[j].Timestamp) {
			continue
		}
		latest[m] = i
	}

	keys := make([]int64, 0, len(latest))
	for m := range latest {
		keys = append(keys, m)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })

	g := &Grid{
		bars:   make([]models.PriceBar, len(keys)),
		index:  make(map[int64]int, len(keys)),
		prefix: make([]float64, len(keys)+1),
	}

	usePct := len(keys) > 0
	for pos, m := range keys {
		t := ticks[latest[m]]
		g.bars[pos] = models.PriceBar{
			Minute: time.Unix(m, 0).UTC(),
			Open:   t.Open,
			High:   t.High,
			Low:    t.Low,
			Close:  t.Close,
		}
		g.index[m] = pos
		if !t.PctChange.Valid {
			usePct = false
		}
	}

	n := len(keys)
	for i := 1; i < n; i++ {
		var r float64
		if usePct {
			r = ticks[latest[keys[i]]].PctChange.ValueOrZero() / 100
		} else {
			r = openReturn(g.bars[i-1].Open, g.bars[i].Open)
		}
		g.prefix[i] = g.prefix[i-1] + logGrowth(r)
	}
	if n > 0 {
		// No bar follows the last one; slot n carries the last known
		// cumulative return forward.
		g.prefix[n] = g.prefix[n-1]
	}
	return g
}

func minuteKey(t time.Time) int64 {
	return t.UTC().Truncate(time.Minute).Unix()
}

// openReturn treats a non-positive or non-finite previous open as no move.
func openReturn(prev, cur float64) float64 {
	if prev <= 0 || math.IsNaN(prev) || math.IsInf(prev, 0) || math.IsNaN(cur) || math.IsInf(cur, 0) {
		return 0
	}
	return cur/prev - 1
}

func logGrowth(r float64) float64 {
	if math.IsNaN(r) {
		return 0
	}
	growth := 1 + r
	if growth < minGrowth {
		growth = minGrowth
	}
	return math.Log(growth)
}

// Len returns the number of minutes in the grid.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.bars)
}

// Empty reports whether the grid has no minutes.
func (g *Grid) Empty() bool { return g.Len() == 0 }

// Minutes returns a copy of the ordered minute sequence.
func (g *Grid) Minutes() []time.Time {
	out := make([]time.Time, g.Len())
	for i := range out {
		out[i] = g.bars[i].Minute
	}
	return out
}

// Prefix returns a copy of the cumulative log-return array.
func (g *Grid) Prefix() []float64 {
	if g == nil {
		return []float64{0}
	}
	return append([]float64(nil), g.prefix...)
}

// Position returns the index of the minute containing t.
func (g *Grid) Position(t time.Time) (int, bool) {
	if g == nil {
		return 0, false
	}
	i, ok := g.index[minuteKey(t)]
	return i, ok
}

// Bar returns the surviving bar of the minute containing t.
func (g *Grid) Bar(t time.Time) (models.PriceBar, bool) {
	i, ok := g.Position(t)
	if !ok {
		return models.PriceBar{}, false
	}
	return g.bars[i], true
}

// Range returns the first and last minute. ok is false for an empty grid.
func (g *Grid) Range() (first, last time.Time, ok bool) {
	if g.Empty() {
		return time.Time{}, time.Time{}, false
	}
	return g.bars[0].Minute, g.bars[len(g.bars)-1].Minute, true
}

// Window returns the bars whose minute lies in [from, to].
func (g *Grid) Window(from, to time.Time) []models.PriceBar {
	if g.Empty() || to.Before(from) {
		return nil
	}
	lo := g.search(from)
	hi := sort.Search(len(g.bars), func(i int) bool { return g.bars[i].Minute.After(to) })
	if lo >= hi {
		return nil
	}
	return append([]models.PriceBar(nil), g.bars[lo:hi]...)
}

// NextMinute returns the first minute at or after t.
func (g *Grid) NextMinute(t time.Time) (time.Time, bool) {
	if g.Empty() {
		return time.Time{}, false
	}
	i := g.search(t)
	if i >= len(g.bars) {
		return time.Time{}, false
	}
	return g.bars[i].Minute, true
}

func (g *Grid) search(t time.Time) int {
	return sort.Search(len(g.bars), func(i int) bool { return !g.bars[i].Minute.Before(t) })
}
