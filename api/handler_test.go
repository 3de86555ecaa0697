package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viktsys/tweetimpact/app"
	"github.com/viktsys/tweetimpact/config"
	"github.com/viktsys/tweetimpact/ingest"
	"github.com/viktsys/tweetimpact/models"
	"github.com/viktsys/tweetimpact/observability"
)

var base = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

// Opens give +2%, -1.5% and +0.03% over consecutive minutes.
func testTicks() []models.PriceTick {
	opens := []float64{100, 102, 100.47, 100.5}
	ticks := make([]models.PriceTick, len(opens))
	for i, o := range opens {
		ticks[i] = models.PriceTick{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      o, High: o + 1, Low: o - 1, Close: o,
		}
	}
	return ticks
}

func testEvents() []models.Event {
	return []models.Event{
		{ID: "1", Text: "Tesla is great", CreatedAt: base},
		{ID: "2", Text: "Going to Mars", CreatedAt: base.Add(time.Minute), IsReply: true},
		{ID: "3", Text: "tesla again", CreatedAt: base.Add(2 * time.Minute), IsRetweet: true},
		{ID: "4", Text: "old news", CreatedAt: time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC), IsQuote: true},
	}
}

func setupRouter(t *testing.T) (*gin.Engine, *observability.Metrics) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Data.DisplayTimezone = "UTC"
	cfg.Labels.Horizon = 1
	cfg.Labels.ThresholdPct = 1
	cfg.Server.PerPage = 20
	cfg.Server.MaxPerPage = 100

	metrics := observability.NewMetrics("")
	state, err := app.New(cfg, testTicks(), testEvents(), ingest.BuildReport{}, metrics)
	require.NoError(t, err)
	return SetupRoutes(state), metrics
}

func get(t *testing.T, r *gin.Engine, url string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)
	return w
}

func listIDs(t *testing.T, r *gin.Engine, url string) ([]string, TweetPage) {
	t.Helper()
	w := get(t, r, url)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page TweetPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	ids := make([]string, len(page.Items))
	for i, item := range page.Items {
		ids[i] = item.ID
	}
	return ids, page
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := setupRouter(t)
	w := get(t, r, "/health")

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 4.0, body["tweets_rows"])
	assert.Equal(t, 4.0, body["grid_minutes"])
	assert.Equal(t, "2024-01-15T14:30:00Z", body["prices_min"])
	assert.Equal(t, "2023-06-01T12:00:00Z", body["tweets_min"])
}

func TestListTweets(t *testing.T) {
	r, _ := setupRouter(t)

	ids, page := listIDs(t, r, "/api/tweets")
	assert.Equal(t, []string{"3", "2", "1", "4"}, ids)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PerPage)
	assert.Equal(t, []int{2024, 2023}, page.Years)
	assert.Equal(t, "2024-01-15 14:32:00 UTC", page.Items[0].CreatedDisplay)
	assert.Equal(t, models.LabelNeutral, page.Items[0].Label)
	assert.Nil(t, page.Items[0].ImpactPctOnDemand)

	ids, page = listIDs(t, r, "/api/tweets?page=2&per_page=3")
	assert.Equal(t, []string{"4"}, ids)
	assert.Equal(t, 4, page.Total)

	ids, _ = listIDs(t, r, "/api/tweets?page=9")
	assert.Empty(t, ids)

	ids, page = listIDs(t, r, "/api/tweets?page=1000000&per_page=100")
	assert.Empty(t, ids)
	assert.Equal(t, 1000000, page.Page)

	_, page = listIDs(t, r, "/api/tweets?per_page=1000")
	assert.Equal(t, 100, page.PerPage)
}

func TestListTweets_Filters(t *testing.T) {
	r, _ := setupRouter(t)

	cases := []struct {
		query string
		want  []string
	}{
		{"year=2023", []string{"4"}},
		{"year=all", []string{"3", "2", "1", "4"}},
		{"reply=1", []string{"2"}},
		{"reply=0", []string{"3", "2", "1", "4"}},
		{"retweet=1", []string{"3"}},
		{"quote=1", []string{"4"}},
		{"q=TESLA", []string{"3", "1"}},
		{"label=up", []string{"1"}},
		{"label=Down", []string{"2"}},
		{"label=neutral&year=2024", []string{"3"}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			ids, page := listIDs(t, r, "/api/tweets?"+tc.query)
			assert.Equal(t, tc.want, ids)
			assert.Equal(t, len(tc.want), page.Total)
		})
	}
}

func TestListTweets_OnDemandLabels(t *testing.T) {
	r, _ := setupRouter(t)

	// Over two minutes the first event moves +0.47%, below the 1% threshold.
	ids, page := listIDs(t, r, "/api/tweets?horizon=2&label=neutral")
	assert.Equal(t, []string{"3", "1", "4"}, ids)

	first := page.Items[1]
	assert.Equal(t, models.LabelUp, first.Label, "precomputed label is unchanged")
	assert.Equal(t, models.LabelNeutral, first.LabelOnDemand)
	require.NotNil(t, first.ImpactPctOnDemand)
	assert.InDelta(t, 0.47, first.ImpactPctOnDemand.ValueOrZero(), 1e-9)

	old := page.Items[2]
	require.NotNil(t, old.ImpactPctOnDemand)
	assert.False(t, old.ImpactPctOnDemand.Valid)

	ids, _ = listIDs(t, r, "/api/tweets?horizon=2&threshold=0.4&label=up")
	assert.Equal(t, []string{"1"}, ids)

	ids, _ = listIDs(t, r, "/api/tweets?threshold=0&label=up")
	assert.Equal(t, []string{"3", "1"}, ids)
}

func TestListTweets_BadRequests(t *testing.T) {
	r, _ := setupRouter(t)

	for _, query := range []string{
		"page=-1",
		"page=9223372036854775807",
		"year=twenty",
		"reply=2",
		"label=sideways",
		"horizon=25",
		"horizon=abc",
		"threshold=-1",
	} {
		t.Run(query, func(t *testing.T) {
			w := get(t, r, "/api/tweets?"+query)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), "error")
		})
	}

	w := get(t, r, "/api/tweets?horizon=25")
	assert.Contains(t, w.Body.String(), "invalid horizon")
	assert.Contains(t, scrape(t, r), `tweetimpact_impact_lookups_total{outcome="invalid_horizon"}`)
}

func TestGetTweet(t *testing.T) {
	r, _ := setupRouter(t)

	w := get(t, r, "/api/tweet/1")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tweet          TweetItem           `json:"tweet"`
		CreatedTS      int64               `json:"created_ts"`
		CreatedDisplay string              `json:"created_display"`
		Price          *float64            `json:"price_at_tweet_open"`
		Changes        map[string]*float64 `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, "Tesla is great", body.Tweet.Text)
	assert.Equal(t, base.Unix(), body.CreatedTS)
	assert.Equal(t, "2024-01-15 14:30:00 UTC", body.CreatedDisplay)
	require.NotNil(t, body.Price)
	assert.Equal(t, 100.0, *body.Price)

	assert.Len(t, body.Changes, 22)
	require.NotNil(t, body.Changes["1"])
	assert.InDelta(t, 2.0, *body.Changes["1"], 1e-9)
	require.NotNil(t, body.Changes["4"], "one past the last bar is extrapolated")
	assert.InDelta(t, 0.5, *body.Changes["4"], 1e-9)
	assert.Nil(t, body.Changes["5"])
	assert.Nil(t, body.Changes["60"])

	w = get(t, r, "/api/tweet/4")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"price_at_tweet_open":null`)

	w = get(t, r, "/api/tweet/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPrice(t *testing.T) {
	r, _ := setupRouter(t)

	decode := func(w *httptest.ResponseRecorder) PriceWindow {
		t.Helper()
		require.Equal(t, http.StatusOK, w.Code)
		var out PriceWindow
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}

	out := decode(get(t, r, "/api/price"))
	assert.Equal(t, ReasonNoStart, out.Reason)
	assert.Empty(t, out.Points)

	out = decode(get(t, r, "/api/price?start=yesterday"))
	assert.Equal(t, ReasonBadStart, out.Reason)

	out = decode(get(t, r, fmt.Sprintf("/api/price?start=%d&minutes=2", base.Unix())))
	assert.Equal(t, ReasonOK, out.Reason)
	require.Len(t, out.Points, 3)
	assert.Equal(t, base.Unix(), out.Points[0].T)
	assert.Equal(t, 101.0, out.Points[0].High)

	out = decode(get(t, r, fmt.Sprintf("/api/price?start=%d.7&minutes=1", base.Unix()+30)))
	assert.Equal(t, ReasonOK, out.Reason)
	assert.Len(t, out.Points, 2, "the anchor minute is included")

	out = decode(get(t, r, fmt.Sprintf("/api/price?start=%d&minutes=5", base.Add(-time.Hour).Unix())))
	assert.Equal(t, ReasonFallbackNext, out.Reason)
	assert.Equal(t, base.Unix(), out.UsedStart)
	assert.Len(t, out.Points, 4)

	out = decode(get(t, r, fmt.Sprintf("/api/price?start=%d", base.Add(time.Hour).Unix())))
	assert.Equal(t, ReasonNoData, out.Reason)
	assert.Empty(t, out.Points)

	out = decode(get(t, r, fmt.Sprintf("/api/price?start=%d&minutes=x", base.Unix())))
	assert.Len(t, out.Points, 4, "bad minutes fall back to 15")

	out = decode(get(t, r, fmt.Sprintf("/api/price?start=%d&minutes=999999999999", base.Unix())))
	assert.Equal(t, ReasonOK, out.Reason)
	assert.Len(t, out.Points, 4, "minutes are capped at one day")

	for _, start := range []string{"1e300", "-1e300", "Inf", "NaN"} {
		out = decode(get(t, r, "/api/price?start="+start))
		assert.Equal(t, ReasonBadStart, out.Reason, start)
		assert.Empty(t, out.Points, start)
	}
}

func TestGetPrice_Text(t *testing.T) {
	r, _ := setupRouter(t)

	w := get(t, r, fmt.Sprintf("/api/price?start=%d&minutes=1&format=text", base.Unix()))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "reason: ok", lines[0])
	assert.Contains(t, lines[1], "2024-01-15 14:30:00 UTC")
	assert.Contains(t, lines[2], "open=102.0000")
}

func TestGetImpact(t *testing.T) {
	r, _ := setupRouter(t)

	w := get(t, r, fmt.Sprintf("/api/impact?start=%d&horizons=1,2,60", base.Unix()))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Start   int64               `json:"start"`
		Changes map[string]*float64 `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Changes, 3)
	assert.InDelta(t, 2.0, *body.Changes["1"], 1e-9)
	assert.InDelta(t, 0.47, *body.Changes["2"], 1e-9)
	assert.Nil(t, body.Changes["60"])

	w = get(t, r, fmt.Sprintf("/api/impact?start=%d", base.Unix()))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"1":`, "defaults to the labeling horizon")

	for _, url := range []string{
		fmt.Sprintf("/api/impact?start=%d&horizons=1,25", base.Unix()),
		fmt.Sprintf("/api/impact?start=%d&horizons=0", base.Unix()),
		fmt.Sprintf("/api/impact?start=%d&horizons=one", base.Unix()),
		"/api/impact",
	} {
		assert.Equal(t, http.StatusBadRequest, get(t, r, url).Code, url)
	}
}

func scrape(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := get(t, r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := setupRouter(t)

	get(t, r, "/api/tweet/1")
	body := scrape(t, r)

	assert.Contains(t, body, `tweetimpact_grid_minutes 4`)
	assert.Contains(t, body, `tweetimpact_impact_lookups_total{outcome="ok"}`)
	assert.Contains(t, body, `tweetimpact_http_request_duration_seconds_count{route="/api/tweet/:id",status="200"} 1`)
}
