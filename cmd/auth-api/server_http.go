package main

import (
	"net/http"
	"slices"
	"time"

	config "github.com/NordCoder/Crabiner/internal/config/auth-api"
	"github.com/NordCoder/Crabiner/internal/obs"
	"github.com/NordCoder/Crabiner/internal/services/auth-api/auth"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *config.Config, a *app, checks map[string]obs.HealthCheck, l *zap.Logger) *http.Server {
	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(obs.GinRecovery(l), obs.GinLogger(l), obs.GinMetrics(), cors(cfg.Server.CORSOrigins))

	a.server.Register(r)
	ops := gin.WrapH(obs.MetricsMux(checks, l))
	r.GET("/metrics", ops)
	r.GET("/healthz", ops)

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           otelhttp.NewHandler(r, "auth-api"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func serveHTTP(srv *http.Server, l *zap.Logger) error {
	l.Info("http listening", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}

var corsAllowHeaders = "Authorization, Content-Type, " + auth.RefreshHeader

// cors allows credentialed requests from the configured web origins so the
// refresh cookie can travel with them.
func cors(origins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && slices.Contains(origins, origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Add("Vary", "Origin")
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
		}
		c.Next()
	}
}
