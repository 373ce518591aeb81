package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"laundromat-backend/internal/mw"
	"laundromat-backend/internal/ws"
)

// RouterConfig holds the HTTP-level settings of the router.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	RequestIPHeader string
	CacheTTL        time.Duration
	StaticDir       string
	Log             *zap.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Second
	}

	r := gin.New()
	r.Use(gin.Recovery(), mw.AccessLog(log, cfg.RequestIPHeader))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	snapshots := mw.NewReadCache(cfg.CacheTTL)
	caching := snapshots.Serve()

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter, snapshots.FlushOnWrite())
	{
		api.GET("/machines", caching, h.ListMachines)
		api.GET("/machines/:id", h.GetMachine)
		api.POST("/start", h.Start)
		api.POST("/stop", h.Stop)
		api.POST("/setAvailable", h.SetAvailable)

		api.POST("/topup", h.TopUp)
		api.GET("/balance", h.GetBalance)
		api.GET("/history", caching, h.GetHistory)
		api.GET("/quote", h.GetQuote)

		api.GET("/recipients", h.ListRecipients)
		api.POST("/notify/push-all", h.PushAll)

		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}
	// LINE delivers events in bursts from a few addresses and does not retry
	// a 429, so the webhook is authenticated by signature instead of limited.
	r.POST("/api/webhook", h.LineWebhook)
	if h.hub != nil {
		// Long-lived connection, outside the rate limiter.
		r.GET("/api/ws", func(c *gin.Context) { ws.ServeWs(h.hub, c.Writer, c.Request) })
	}

	if cfg.StaticDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.StaticDir))))
	}

	return r
}
