package impact

import (
	"math"
	"time"

	"github.com/guregu/null/v6"
)

// ChangeAt returns the fractional price change from the anchor's minute to
// k positions later: exp(prefix[i+k] - prefix[i]) - 1. ok is false (no data)
// when the anchor minute has no bar or i+k falls outside [0, Len()].
//
// Positions count bars that exist, so a horizon that crosses a trading gap
// lands on the k-th following bar, and a target one past the last bar reuses
// the last cumulative return. Results around closed or illiquid periods are
// therefore extrapolated, not interpolated from real ticks.
func (g *Grid) ChangeAt(anchor time.Time, k int) (float64, bool) {
	i, ok := g.Position(anchor)
	if !ok {
		return 0, false
	}
	j := i + k
	if j < 0 || j > len(g.bars) {
		return 0, false
	}
	return math.Exp(g.prefix[j]-g.prefix[i]) - 1, true
}

// Contiguous reports whether ChangeAt(anchor, k) lands on a real bar exactly
// k minutes after the anchor's minute. It is false when the move crosses a
// gap or uses the extrapolated slot past the last bar.
func (g *Grid) Contiguous(anchor time.Time, k int) bool {
	i, ok := g.Position(anchor)
	if !ok {
		return false
	}
	j, ok := g.index[minuteKey(anchor)+int64(k)*60]
	return ok && j == i+k
}

// Changes maps a horizon in minutes to a fractional change. Invalid entries
// mean no data.
type Changes map[int]null.Float

// Percent returns the same changes in percent units.
func (c Changes) Percent() Changes {
	out := make(Changes, len(c))
	for k, v := range c {
		if v.Valid {
			out[k] = null.FloatFrom(v.ValueOrZero() * 100)
		} else {
			out[k] = null.Float{}
		}
	}
	return out
}

// ChangesAt evaluates ChangeAt for every horizon. Each horizon must be in
// the whitelist; otherwise ErrInvalidHorizon is returned and nothing is
// computed.
func (g *Grid) ChangesAt(anchor time.Time, horizons []int) (Changes, error) {
	for _, k := range horizons {
		if err := ValidateHorizon(k); err != nil {
			return nil, err
		}
	}
	out := make(Changes, len(horizons))
	for _, k := range horizons {
		v, ok := g.ChangeAt(anchor, k)
		out[k] = null.NewFloat(v, ok)
	}
	return out, nil
}
