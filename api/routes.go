package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/viktsys/tweetimpact/app"
	"github.com/viktsys/tweetimpact/observability"
)

func SetupRoutes(state *app.Context) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	if m := state.Metrics(); m != nil {
		r.Use(requestMetrics(m))
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	h := NewHandler(state)

	// Health check endpoint
	r.GET("/health", h.Health)

	r.GET("/api/tweets", h.ListTweets)
	r.GET("/api/tweet/:id", h.GetTweet)
	r.GET("/api/price", h.GetPrice)
	r.GET("/api/impact", h.GetImpact)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}

// requestMetrics observes latency per matched route.
func requestMetrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordRequest(route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}
