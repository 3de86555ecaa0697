package impact

import (
	"fmt"
	"time"

	"github.com/guregu/null/v6"

	"github.com/viktsys/tweetimpact/models"
)

// Labeler classifies the change over a fixed horizon against a symmetric
// percentage threshold.
type Labeler struct {
	horizon      int
	thresholdPct float64
	threshold    float64 // fractional
}

// NewLabeler validates the horizon against the whitelist. thresholdPct is in
// percent units (1.0 means 1%).
func NewLabeler(horizon int, thresholdPct float64) (Labeler, error) {
	if err := ValidateHorizon(horizon); err != nil {
		return Labeler{}, err
	}
	if thresholdPct < 0 {
		return Labeler{}, fmt.Errorf("threshold must not be negative, got %v", thresholdPct)
	}
	return Labeler{
		horizon:      horizon,
		thresholdPct: thresholdPct,
		threshold:    thresholdPct / 100,
	}, nil
}

func (l Labeler) Horizon() int          { return l.horizon }
func (l Labeler) ThresholdPct() float64 { return l.thresholdPct }

// Classify labels a fractional change. Both bounds are inclusive; no data is
// neutral.
func (l Labeler) Classify(v float64, ok bool) models.Label {
	switch {
	case !ok:
		return models.LabelNeutral
	case v >= l.threshold:
		return models.LabelUp
	case v <= -l.threshold:
		return models.LabelDown
	default:
		return models.LabelNeutral
	}
}

// Assessment is a transient impact/label pair computed at request time.
type Assessment struct {
	ImpactPct null.Float   `json:"impact_pct"`
	Label     models.Label `json:"label"`
}

// Evaluate measures the change from at over the labeler's horizon.
func (l Labeler) Evaluate(g *Grid, at time.Time) Assessment {
	v, ok := g.ChangeAt(at, l.horizon)
	return Assessment{
		ImpactPct: null.NewFloat(v*100, ok),
		Label:     l.Classify(v, ok),
	}
}

// PrecomputeLabels returns a copy of events with ImpactPct and Label set
// from the grid. The input slice is left untouched.
func PrecomputeLabels(events []models.Event, g *Grid, l Labeler) []models.Event {
	out := make([]models.Event, len(events))
	for i, e := range events {
		a := l.Evaluate(g, e.CreatedAt)
		e.ImpactPct = a.ImpactPct
		e.Label = a.Label
		out[i] = e
	}
	return out
}
