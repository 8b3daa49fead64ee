package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"laundry-session-backend/config"
	"laundry-session-backend/internal/metrics"
	"laundry-session-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/layout", caching, h.GetLayout)
		api.GET("/machines", h.ListMachines)
		api.GET("/machines/:machine_id", h.ScanMachine)
		api.POST("/machines/:machine_id/sessions", h.StartSession)
		api.POST("/machines/:machine_id/verify", h.VerifyPickup)
		api.POST("/machines/:machine_id/condition", h.UpdateCondition)

		api.GET("/sessions/:session_id", h.GetSession)
		api.POST("/sessions/:session_id/finish-notification", h.NotifyFinish)
		api.POST("/sessions/:session_id/pickup/preview", h.PreviewPickup)
		api.POST("/sessions/:session_id/pickup/confirm", h.ConfirmPickup)

		api.GET("/supervisor/summary", h.GetSummary)
		api.GET("/supervisor/summary.xlsx", h.GetSummaryXLSX)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
