package core

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter constructs the Gin engine with routes wired. Page routes go
// through gate.Authorize; login submission and logout are handled by the
// gate itself.
func NewRouter(cfg Config, gate *Gate, views ViewRenderer, principals int, logger *zap.Logger) *gin.Engine {
	startedAt := time.Now()
	r := gin.New()

	// Global middleware: recovery -> request id -> access log -> headers
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(logger))
	r.Use(SecurityHeaders())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	index := func(c *gin.Context) {
		views.Render(c, http.StatusOK, ViewIndex, gate.viewData(CurrentAuth(c), "Home", nil))
	}

	pages := r.Group("/", gate.Authorize())
	{
		pages.GET("/", index)
		pages.GET("/index", index)
		pages.GET("/user", index)
		pages.GET(cfg.LoginPath, gate.LoginPage)

		pages.GET("/admin", func(c *gin.Context) {
			status := CollectSystemStatus(c.Request.Context(), cfg.SessionBackend, gate.sessions, principals, startedAt)
			views.Render(c, http.StatusOK, ViewAdmin, gate.viewData(CurrentAuth(c), "Administration", gin.H{"Status": status}))
		})
	}

	limiter := NewLoginLimiter(cfg.LoginRateLimit, cfg.LoginBurst)
	originCheck := OriginCheck(cfg.AllowedOrigins)

	r.POST(cfg.LoginPath, originCheck, limiter.Middleware(views, logger), gate.LoginSubmit)
	r.GET(cfg.LogoutPath, gate.Logout)
	r.POST(cfg.LogoutPath, originCheck, gate.Logout)

	// Unknown paths are still decided first so that the fallback applies.
	r.NoRoute(gate.Authorize(), func(c *gin.Context) {
		views.Render(c, http.StatusNotFound, ViewError, gate.viewData(CurrentAuth(c), "Not found", gin.H{"Message": "Page not found"}))
	})

	return r
}
