package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guregu/null/v6"

	"github.com/viktsys/tweetimpact/app"
	"github.com/viktsys/tweetimpact/impact"
	"github.com/viktsys/tweetimpact/models"
	"github.com/viktsys/tweetimpact/observability"
)

const (
	defaultWindowMinutes = 15
	maxWindowMinutes     = 24 * 60

	// Window starts are limited to the years a timestamp can be formatted in.
	maxStartSeconds = 253402300799
)

// Price window outcomes.
const (
	ReasonOK           = "ok"
	ReasonFallbackNext = "fallback_next"
	ReasonNoData       = "no_data"
	ReasonNoStart      = "no_start"
	ReasonBadStart     = "bad_start"
)

type Handler struct {
	app *app.Context
}

func NewHandler(c *app.Context) *Handler {
	return &Handler{app: c}
}

type TweetQuery struct {
	Page      int      `form:"page" binding:"omitempty,min=1,max=1000000"`
	PerPage   int      `form:"per_page" binding:"omitempty,min=1"`
	Year      string   `form:"year"`
	Reply     string   `form:"reply" binding:"omitempty,oneof=0 1"`
	Retweet   string   `form:"retweet" binding:"omitempty,oneof=0 1"`
	Quote     string   `form:"quote" binding:"omitempty,oneof=0 1"`
	Q         string   `form:"q"`
	Label     string   `form:"label"`
	Horizon   *int     `form:"horizon"`
	Threshold *float64 `form:"threshold" binding:"omitempty,gte=0"`
}

// TweetItem is one event as listed by the API. The on-demand fields are set
// only when the request overrides the labeling horizon or threshold.
type TweetItem struct {
	models.Event
	CreatedDisplay    string       `json:"created_display"`
	ImpactPctOnDemand *null.Float  `json:"impact_pct_ondemand,omitempty"`
	LabelOnDemand     models.Label `json:"label_ondemand,omitempty"`
}

type TweetPage struct {
	Items   []TweetItem `json:"items"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
	Years   []int       `json:"years"`
}

// ListTweets pages through events newest first, applying the year, flag,
// text and label filters.
func (h *Handler) ListTweets(c *gin.Context) {
	var q TweetQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := h.app.Config().Server
	page := max(q.Page, 1)
	perPage := q.PerPage
	if perPage == 0 {
		perPage = cfg.PerPage
	}
	perPage = min(perPage, cfg.MaxPerPage)

	year := 0
	if q.Year != "" && q.Year != "all" {
		y, err := strconv.Atoi(q.Year)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid year. Use YYYY or all"})
			return
		}
		year = y
	}

	var label models.Label
	if q.Label != "" {
		l, ok := models.ParseLabel(q.Label)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid label. Use up, down or neutral"})
			return
		}
		label = l
	}

	var onDemand *impact.Labeler
	if q.Horizon != nil || q.Threshold != nil {
		base := h.app.Labeler()
		horizon, threshold := base.Horizon(), base.ThresholdPct()
		if q.Horizon != nil {
			horizon = *q.Horizon
		}
		if q.Threshold != nil {
			threshold = *q.Threshold
		}
		l, err := impact.NewLabeler(horizon, threshold)
		if err != nil {
			h.recordInvalid(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		onDemand = &l
	}

	needle := strings.ToLower(strings.TrimSpace(q.Q))
	display := h.app.Display()
	grid := h.app.Grid()

	var matched []TweetItem
	for _, e := range h.app.Events() {
		if year != 0 && e.CreatedAt.In(display).Year() != year {
			continue
		}
		if (q.Reply == "1" && !e.IsReply) || (q.Retweet == "1" && !e.IsRetweet) || (q.Quote == "1" && !e.IsQuote) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Text), needle) {
			continue
		}

		item := TweetItem{Event: e}
		effective := e.Label
		if onDemand != nil {
			a := onDemand.Evaluate(grid, e.CreatedAt)
			item.ImpactPctOnDemand = &a.ImpactPct
			item.LabelOnDemand = a.Label
			effective = a.Label
		}
		if label != "" && effective != label {
			continue
		}
		matched = append(matched, item)
	}

	start := len(matched)
	if page-1 < len(matched)/perPage+1 {
		start = min((page-1)*perPage, len(matched))
	}
	end := min(start+perPage, len(matched))
	items := matched[start:end]
	for i := range items {
		items[i].CreatedDisplay = h.app.FormatDisplay(items[i].CreatedAt)
	}
	if items == nil {
		items = []TweetItem{}
	}

	c.JSON(http.StatusOK, TweetPage{
		Items:   items,
		Total:   len(matched),
		Page:    page,
		PerPage: perPage,
		Years:   h.app.Years(),
	})
}

type TweetDetail struct {
	Tweet          TweetItem      `json:"tweet"`
	CreatedTS      int64          `json:"created_ts"`
	CreatedDisplay string         `json:"created_display"`
	PriceAtTweet   null.Float     `json:"price_at_tweet_open"`
	Changes        impact.Changes `json:"changes"` // percent
}

// GetTweet returns one event with its change over every allowed horizon.
func (h *Handler) GetTweet(c *gin.Context) {
	e, ok := h.app.Event(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "tweet not found"})
		return
	}

	grid := h.app.Grid()
	changes, err := grid.ChangesAt(e.CreatedAt, impact.AllowedHorizons())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.recordChanges(changes)

	var price null.Float
	if bar, ok := grid.Bar(e.CreatedAt); ok {
		price = null.FloatFrom(bar.Open)
	}

	display := h.app.FormatDisplay(e.CreatedAt)
	c.JSON(http.StatusOK, TweetDetail{
		Tweet:          TweetItem{Event: e, CreatedDisplay: display},
		CreatedTS:      e.CreatedAt.Unix(),
		CreatedDisplay: display,
		PriceAtTweet:   price,
		Changes:        changes.Percent(),
	})
}

type PricePoint struct {
	T     int64   `json:"t"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type PriceWindow struct {
	Points         []PricePoint `json:"points"`
	Reason         string       `json:"reason"`
	RequestedStart int64        `json:"requested_start,omitempty"`
	UsedStart      int64        `json:"used_start,omitempty"`
}

// GetPrice returns the bars in [start, start+minutes]. When that window is
// empty it slides to the next available minute.
func (h *Handler) GetPrice(c *gin.Context) {
	minutes, err := strconv.Atoi(c.DefaultQuery("minutes", strconv.Itoa(defaultWindowMinutes)))
	if err != nil || minutes < 0 {
		minutes = defaultWindowMinutes
	}
	minutes = min(minutes, maxWindowMinutes)

	raw := strings.TrimSpace(c.Query("start"))
	if raw == "" {
		h.renderWindow(c, PriceWindow{Points: []PricePoint{}, Reason: ReasonNoStart})
		return
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(secs) || math.Abs(secs) > maxStartSeconds {
		h.renderWindow(c, PriceWindow{Points: []PricePoint{}, Reason: ReasonBadStart})
		return
	}

	start := time.Unix(int64(secs), 0).UTC()
	h.renderWindow(c, h.window(start, minutes))
}

func (h *Handler) window(start time.Time, minutes int) PriceWindow {
	grid := h.app.Grid()
	span := time.Duration(minutes) * time.Minute
	from := start.Truncate(time.Minute)

	out := PriceWindow{Reason: ReasonOK, RequestedStart: start.Unix(), UsedStart: start.Unix()}
	bars := grid.Window(from, start.Add(span))
	if len(bars) == 0 {
		out.Reason = ReasonNoData
		if next, ok := grid.NextMinute(start); ok {
			bars = grid.Window(next, next.Add(span))
			out.Reason = ReasonFallbackNext
			out.UsedStart = next.Unix()
		}
	}

	out.Points = make([]PricePoint, len(bars))
	for i, b := range bars {
		out.Points[i] = PricePoint{T: b.Minute.Unix(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
	}
	return out
}

func (h *Handler) renderWindow(c *gin.Context, w PriceWindow) {
	if c.Query("format") != "text" {
		c.JSON(http.StatusOK, w)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "reason: %s\n", w.Reason)
	for _, p := range w.Points {
		fmt.Fprintf(&b, "%s  open=%.4f high=%.4f low=%.4f close=%.4f\n",
			h.app.FormatDisplay(time.Unix(p.T, 0)), p.Open, p.High, p.Low, p.Close)
	}
	c.String(http.StatusOK, b.String())
}

type ImpactResponse struct {
	Start   int64          `json:"start"`
	Changes impact.Changes `json:"changes"` // percent
}

// GetImpact evaluates the requested horizons at one anchor.
func (h *Handler) GetImpact(c *gin.Context) {
	secs, err := strconv.ParseInt(strings.TrimSpace(c.Query("start")), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be a unix timestamp in seconds"})
		return
	}

	horizons := []int{h.app.Labeler().Horizon()}
	if raw := c.Query("horizons"); raw != "" {
		horizons = horizons[:0]
		for _, part := range strings.Split(raw, ",") {
			k, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("bad horizon %q", part)})
				return
			}
			horizons = append(horizons, k)
		}
	}

	changes, err := h.app.Grid().ChangesAt(time.Unix(secs, 0).UTC(), horizons)
	if err != nil {
		h.recordInvalid(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.recordChanges(changes)

	c.JSON(http.StatusOK, ImpactResponse{Start: secs, Changes: changes.Percent()})
}

// Health reports what was loaded.
func (h *Handler) Health(c *gin.Context) {
	events := h.app.Events()
	resp := gin.H{
		"status":        "ok",
		"tweets_rows":   len(events),
		"grid_minutes":  h.app.Grid().Len(),
		"price_rows":    h.app.Report().Rows(),
		"skipped_files": len(h.app.Report().Skipped()),
		"loaded_at":     h.app.LoadedAt().UTC().Format(time.RFC3339),
	}
	if n := len(events); n > 0 {
		resp["tweets_min"] = events[n-1].CreatedAt.Format(time.RFC3339)
		resp["tweets_max"] = events[0].CreatedAt.Format(time.RFC3339)
	}
	if first, last, ok := h.app.Grid().Range(); ok {
		resp["prices_min"] = first.Format(time.RFC3339)
		resp["prices_max"] = last.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) recordChanges(changes impact.Changes) {
	m := h.app.Metrics()
	if m == nil {
		return
	}
	for _, v := range changes {
		if v.Valid {
			m.RecordLookup(observability.OutcomeOK)
		} else {
			m.RecordLookup(observability.OutcomeNoData)
		}
	}
}

func (h *Handler) recordInvalid(err error) {
	if m := h.app.Metrics(); m != nil && errors.Is(err, impact.ErrInvalidHorizon) {
		m.RecordLookup(observability.OutcomeInvalidHorizon)
	}
}
