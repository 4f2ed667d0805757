package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const syncRequestsPerMinute = 10

func NewRouter(h *Handler, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORS(allowedOrigins))
	r.Use(Metrics())

	r.GET("/", h.Root)
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/login", h.Login)
	r.GET("/oauth2callback", h.OAuthCallback)
	r.GET("/auth/status", h.AuthStatus)
	r.GET("/logout", h.Logout)
	r.GET("/captcha/config", h.CaptchaConfig)

	r.GET("/dashboard", h.Dashboard)
	r.POST("/sync-emails", RateLimitPerIP(syncRequestsPerMinute), h.SyncEmails)

	keywords := r.Group("/keywords")
	{
		keywords.GET("", h.ListKeywords)
		keywords.POST("", h.AddKeyword)
		keywords.DELETE("/:keyword", h.RemoveKeyword)
	}

	return r
}
