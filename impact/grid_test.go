package impact

import (
	"math"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viktsys/tweetimpact/models"
)

var base = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

// linearTicks returns one tick per minute from base with opens 100, 101, ...
func linearTicks(n int) []models.PriceTick {
	ticks := make([]models.PriceTick, n)
	for i := range ticks {
		open := 100 + float64(i)
		ticks[i] = models.PriceTick{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      open,
			High:      open + 0.5,
			Low:       open - 0.5,
			Close:     open + 0.25,
		}
	}
	return ticks
}

func TestBuild_Empty(t *testing.T) {
	g := Build(nil)

	assert.Equal(t, 0, g.Len())
	assert.True(t, g.Empty())
	assert.Empty(t, g.Minutes())
	assert.Equal(t, []float64{0}, g.Prefix())

	_, _, ok := g.Range()
	assert.False(t, ok)
}

func TestBuild_SortsAndIndexes(t *testing.T) {
	ticks := linearTicks(5)
	// reverse input order
	for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
		ticks[i], ticks[j] = ticks[j], ticks[i]
	}

	g := Build(ticks)
	require.Equal(t, 5, g.Len())

	minutes := g.Minutes()
	for i := 1; i < len(minutes); i++ {
		assert.True(t, minutes[i].After(minutes[i-1]), "minutes must be strictly increasing")
	}
	for i, m := range minutes {
		pos, ok := g.Position(m)
		require.True(t, ok)
		assert.Equal(t, i, pos)
	}
	assert.Len(t, g.Prefix(), 6)
	assert.Equal(t, 0.0, g.Prefix()[0])
}

func TestBuild_FloorsToMinute(t *testing.T) {
	g := Build([]models.PriceTick{
		{Timestamp: base.Add(42*time.Second + 300*time.Millisecond), Open: 100},
	})

	pos, ok := g.Position(base)
	require.True(t, ok)
	assert.Equal(t, 0, pos)
	assert.Equal(t, base, g.Minutes()[0])

	bar, ok := g.Bar(base.Add(59 * time.Second))
	require.True(t, ok)
	assert.Equal(t, 100.0, bar.Open)
}

func TestBuild_LatestTickInMinuteWins(t *testing.T) {
	// Two source files covering the same minute with different opens.
	fileA := []models.PriceTick{
		{Timestamp: base.Add(50 * time.Second), Open: 101, Source: "a.csv"},
		{Timestamp: base.Add(time.Minute), Open: 102, Source: "a.csv"},
	}
	fileB := []models.PriceTick{
		{Timestamp: base.Add(10 * time.Second), Open: 99, Source: "b.csv"},
	}

	ab := Build(append(append([]models.PriceTick{}, fileA...), fileB...))
	ba := Build(append(append([]models.PriceTick{}, fileB...), fileA...))

	for _, g := range []*Grid{ab, ba} {
		bar, ok := g.Bar(base)
		require.True(t, ok)
		assert.Equal(t, 101.0, bar.Open, "later-timestamped tick must win")
	}
}

func TestBuild_OrderIndependent(t *testing.T) {
	ticks := linearTicks(30)
	// sub-minute duplicates with distinct timestamps
	for i := 0; i < 30; i += 3 {
		ticks = append(ticks, models.PriceTick{
			Timestamp: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Open:      200 + float64(i),
		})
	}

	shuffled := make([]models.PriceTick, len(ticks))
	for i := range ticks {
		shuffled[(i*17)%len(ticks)] = ticks[i]
	}

	g1 := Build(ticks)
	g2 := Build(shuffled)

	assert.Equal(t, g1.Minutes(), g2.Minutes())
	assert.Equal(t, g1.Prefix(), g2.Prefix())
	for _, m := range g1.Minutes() {
		p1, _ := g1.Position(m)
		p2, _ := g2.Position(m)
		assert.Equal(t, p1, p2)
	}
}

func TestBuild_IdenticalTimestampsLastWins(t *testing.T) {
	ts := base.Add(15 * time.Second)
	first := models.PriceTick{Timestamp: ts, Open: 10}
	second := models.PriceTick{Timestamp: ts, Open: 20}

	g := Build([]models.PriceTick{first, second})
	bar, _ := g.Bar(base)
	assert.Equal(t, 20.0, bar.Open)

	g = Build([]models.PriceTick{second, first})
	bar, _ = g.Bar(base)
	assert.Equal(t, 10.0, bar.Open, "exact ties are resolved by input order")
}

func TestBuild_PercentChangeColumn(t *testing.T) {
	ticks := []models.PriceTick{
		{Timestamp: base, Open: 100, PctChange: null.FloatFrom(0)},
		{Timestamp: base.Add(time.Minute), Open: 100, PctChange: null.FloatFrom(2)},
		{Timestamp: base.Add(2 * time.Minute), Open: 100, PctChange: null.FloatFrom(-1)},
	}
	g := Build(ticks)

	v, ok := g.ChangeAt(base, 1)
	require.True(t, ok)
	assert.InDelta(t, 0.02, v, 1e-12)

	v, ok = g.ChangeAt(base, 2)
	require.True(t, ok)
	assert.InDelta(t, 1.02*0.99-1, v, 1e-12)
}

func TestBuild_PartialPercentColumnFallsBackToOpens(t *testing.T) {
	ticks := []models.PriceTick{
		{Timestamp: base, Open: 100, PctChange: null.FloatFrom(0)},
		{Timestamp: base.Add(time.Minute), Open: 110},
	}
	g := Build(ticks)

	v, ok := g.ChangeAt(base, 1)
	require.True(t, ok)
	assert.InDelta(t, 0.10, v, 1e-12)
}

func TestBuild_ClampsCollapsedPrices(t *testing.T) {
	ticks := []models.PriceTick{
		{Timestamp: base, Open: 100},
		{Timestamp: base.Add(time.Minute), Open: 0},
		{Timestamp: base.Add(2 * time.Minute), Open: -5},
	}
	g := Build(ticks)

	for _, p := range g.Prefix() {
		assert.False(t, math.IsNaN(p) || math.IsInf(p, 0), "prefix must stay finite, got %v", p)
	}
	v, ok := g.ChangeAt(base, 1)
	require.True(t, ok)
	assert.InDelta(t, -1, v, 1e-6)
}

func TestGrid_WindowAndNextMinute(t *testing.T) {
	ticks := linearTicks(3)
	ticks = append(ticks, models.PriceTick{Timestamp: base.Add(10 * time.Minute), Open: 110})
	g := Build(ticks)

	w := g.Window(base.Add(time.Minute), base.Add(5*time.Minute))
	require.Len(t, w, 2)
	assert.Equal(t, 101.0, w[0].Open)
	assert.Equal(t, 102.0, w[1].Open)

	assert.Empty(t, g.Window(base.Add(4*time.Minute), base.Add(6*time.Minute)))

	next, ok := g.NextMinute(base.Add(3 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, base.Add(10*time.Minute), next)

	_, ok = g.NextMinute(base.Add(11 * time.Minute))
	assert.False(t, ok)
}
