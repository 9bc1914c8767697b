// Package http wires the gin router for the local API surface.
package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goodhang/authcore/internal/config"
	"github.com/goodhang/authcore/internal/interfaces/http/handlers"
	"github.com/goodhang/authcore/pkg/constants"
)

// NewRouter builds the router for the local API surface.
func NewRouter(
	cfg config.ServerConfig,
	sessionHandler *handlers.SessionHandler,
	activationHandler *handlers.ActivationHandler,
	oauthHandler *handlers.OAuthHandler,
	registry *prometheus.Registry,
) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))

	if cfg.Debug {
		pprof.Register(router)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	session := router.Group("/session")
	{
		session.GET("", sessionHandler.GetSession)
		session.POST("/check", sessionHandler.CheckSession)
		session.POST("/signin", sessionHandler.SignIn)
		session.POST("/resume", sessionHandler.Resume)
		session.POST("/signout", sessionHandler.SignOut)
		session.GET("/status", sessionHandler.UserStatus)
	}

	activationGroup := router.Group("/activation")
	{
		activationGroup.POST("/validate", activationHandler.Validate)
		activationGroup.POST("/claim", activationHandler.Claim)
		activationGroup.POST("/deeplink", activationHandler.DeepLink)
	}

	integrations := router.Group("/integrations/:provider/:integration")
	{
		integrations.GET("/connect", oauthHandler.Connect)
		integrations.GET("/token", oauthHandler.AccessToken)
	}
	router.GET("/oauth/callback/:provider/:integration", oauthHandler.Callback)

	return router
}

// requestID attaches a correlation id to every request context.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, id)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
