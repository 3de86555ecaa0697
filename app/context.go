// Package app assembles the read-only state shared by the server and the
// exporter: the minute grid, the labeled events and the load report.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/viktsys/tweetimpact/config"
	"github.com/viktsys/tweetimpact/impact"
	"github.com/viktsys/tweetimpact/ingest"
	"github.com/viktsys/tweetimpact/models"
	"github.com/viktsys/tweetimpact/observability"
)

// DisplayLayout formats instants for humans in the display timezone.
const DisplayLayout = "2006-01-02 15:04:05 MST"

// Store is the database-backed source of ticks and events.
// *database.Store satisfies it.
type Store interface {
	LoadTicks(ctx context.Context) ([]models.PriceTick, error)
	LoadEvents(ctx context.Context) ([]models.Event, error)
}

// Context is built once at startup and never modified afterwards, so it can
// be shared by concurrent request handlers without locking.
type Context struct {
	cfg      *config.Config
	grid     *impact.Grid
	events   []models.Event
	byID     map[string]int
	years    []int
	labeler  impact.Labeler
	report   ingest.BuildReport
	display  *time.Location
	metrics  *observability.Metrics
	loadedAt time.Time
}

// Load reads prices and events from the configured source and builds the
// context. A price directory with bad files still loads; a missing required
// event column does not.
func Load(ctx context.Context, cfg *config.Config, store Store, metrics *observability.Metrics) (*Context, error) {
	loc, err := impact.NewLocalizer(cfg.Data.SourceTimezone)
	if err != nil {
		return nil, err
	}
	filter, err := eventFilter(cfg)
	if err != nil {
		return nil, err
	}

	var (
		ticks  []models.PriceTick
		events []models.Event
		report ingest.BuildReport
	)

	startTime := time.Now()
	switch cfg.Data.Source {
	case "database":
		if store == nil {
			return nil, errors.New("data source is database but no store was given")
		}
		if ticks, err = store.LoadTicks(ctx); err != nil {
			return nil, err
		}
		stored, err := store.LoadEvents(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range stored {
			if filter.Keep(e.CreatedAt) {
				events = append(events, e)
			}
		}
		report = ingest.BuildReport{
			Dir:   "database",
			Files: []ingest.FileOutcome{{Path: "price_ticks", Rows: len(ticks)}},
		}
	default:
		ticks, report = ingest.LoadPriceDir(cfg.Data.PricesDir, loc, cfg.Ingest.FileWorkers)
		if events, err = ingest.LoadEvents(cfg.Data.TweetsCSV, filter); err != nil {
			return nil, err
		}
	}
	report.Log()

	c, err := New(cfg, ticks, events, report, metrics)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded %d events and %d grid minutes in %v", len(c.events), c.grid.Len(), time.Since(startTime))
	return c, nil
}

// New builds a context from already-loaded ticks and events.
func New(cfg *config.Config, ticks []models.PriceTick, events []models.Event, report ingest.BuildReport, metrics *observability.Metrics) (*Context, error) {
	display, err := time.LoadLocation(cfg.Data.DisplayTimezone)
	if err != nil {
		return nil, fmt.Errorf("display timezone: %w", err)
	}
	labeler, err := impact.NewLabeler(cfg.Labels.Horizon, cfg.Labels.ThresholdPct)
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}

	grid := impact.Build(ticks)

	sorted := make([]models.Event, len(events))
	copy(sorted, events)
	ingest.SortNewestFirst(sorted)
	labeled := impact.PrecomputeLabels(sorted, grid, labeler)

	c := &Context{
		cfg:      cfg,
		grid:     grid,
		events:   labeled,
		byID:     make(map[string]int, len(labeled)),
		labeler:  labeler,
		report:   report,
		display:  display,
		metrics:  metrics,
		loadedAt: time.Now(),
	}

	seen := make(map[int]bool)
	counts := make(map[string]int, 3)
	for i, e := range labeled {
		if _, dup := c.byID[e.ID]; !dup {
			c.byID[e.ID] = i
		}
		if y := e.CreatedAt.In(display).Year(); !seen[y] {
			seen[y] = true
			c.years = append(c.years, y)
		}
		counts[string(e.Label)]++
	}
	sort.Sort(sort.Reverse(sort.IntSlice(c.years)))

	if metrics != nil {
		metrics.RecordLoad(grid.Len(), report.Parsed(), len(report.Skipped()), report.Dropped(),
			len(labeled), counts, float64(c.loadedAt.Unix()))
	}
	return c, nil
}

func eventFilter(cfg *config.Config) (ingest.EventFilter, error) {
	filter := ingest.EventFilter{Min: cfg.FilterMin(), Max: cfg.FilterMax()}
	th := cfg.Filter.TradingHours
	if !th.Enabled {
		return filter, nil
	}
	loc, err := time.LoadLocation(th.Timezone)
	if err != nil {
		return filter, fmt.Errorf("trading hours timezone: %w", err)
	}
	opens, closes, err := cfg.TradingWindow()
	if err != nil {
		return filter, err
	}
	filter.Hours = &ingest.TradingHours{Location: loc, Open: opens, Close: closes}
	return filter, nil
}

func (c *Context) Config() *config.Config          { return c.cfg }
func (c *Context) Grid() *impact.Grid              { return c.grid }
func (c *Context) Labeler() impact.Labeler         { return c.labeler }
func (c *Context) Report() ingest.BuildReport      { return c.report }
func (c *Context) Display() *time.Location         { return c.display }
func (c *Context) Metrics() *observability.Metrics { return c.metrics }
func (c *Context) LoadedAt() time.Time             { return c.loadedAt }

// Events returns the labeled events, newest first. Callers must not modify
// the slice.
func (c *Context) Events() []models.Event { return c.events }

// Event looks up one event by id.
func (c *Context) Event(id string) (models.Event, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.Event{}, false
	}
	return c.events[i], true
}

// Years returns the distinct event years in the display timezone, newest
// first.
func (c *Context) Years() []int {
	out := make([]int, len(c.years))
	copy(out, c.years)
	return out
}

// FormatDisplay renders t in the display timezone.
func (c *Context) FormatDisplay(t time.Time) string {
	return t.In(c.display).Format(DisplayLayout)
}
