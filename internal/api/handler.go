// Package api exposes the dashboard, sync, keyword and OAuth endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vipul43/mailpilot/internal/auth"
	"github.com/vipul43/mailpilot/internal/recaptcha"
	"github.com/vipul43/mailpilot/internal/repository"
	"github.com/vipul43/mailpilot/internal/service"
	"github.com/vipul43/mailpilot/internal/throttle"
)

// Authenticator runs the OAuth flow and supplies access tokens
type Authenticator interface {
	AuthCodeURL(userID string) (string, error)
	Exchange(ctx context.Context, code, state string) (string, error)
	AccessToken(ctx context.Context, userID string) (string, error)
	Status(userID string) auth.Status
	Logout(userID string)
}

type DashboardBuilder interface {
	Build(ctx context.Context, userID string) (*service.DashboardData, error)
}

type KeywordManager interface {
	ListKeywords(ctx context.Context, userID string) []string
	AddKeyword(ctx context.Context, userID, keyword string) (string, error)
	RemoveKeyword(ctx context.Context, userID, keyword string) (string, error)
}

type CaptchaVerifier interface {
	Enabled() bool
	SiteKey() string
	Verify(ctx context.Context, response, remoteIP string) (bool, error)
}

type Handler struct {
	userID      string
	frontendURL string
	auth        Authenticator
	syncer      service.Syncer
	dashboard   DashboardBuilder
	keywords    KeywordManager
	captcha     CaptchaVerifier
	limiter     throttle.Limiter
	log         *zap.Logger
}

type Deps struct {
	UserID      string
	FrontendURL string
	Auth        Authenticator
	Syncer      service.Syncer
	Dashboard   DashboardBuilder
	Keywords    KeywordManager
	Captcha     CaptchaVerifier
	Limiter     throttle.Limiter
	Log         *zap.Logger
}

func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		userID:      d.UserID,
		frontendURL: strings.TrimSuffix(d.FrontendURL, "/"),
		auth:        d.Auth,
		syncer:      d.Syncer,
		dashboard:   d.Dashboard,
		keywords:    d.Keywords,
		captcha:     d.Captcha,
		limiter:     d.Limiter,
		log:         log.Named("api"),
	}
}

type syncRequest struct {
	CaptchaResponse string `json:"captcha_response"`
}

type keywordRequest struct {
	Keyword string `json:"keyword"`
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// requireAuth rejects the request unless the session user holds a token
func (h *Handler) requireAuth(c *gin.Context) bool {
	if !h.auth.Status(h.userID).Authenticated {
		errorJSON(c, http.StatusUnauthorized, "User not authenticated")
		return false
	}
	return true
}

// tokenError maps credential failures to the 401 responses the frontend expects
func (h *Handler) tokenError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		errorJSON(c, http.StatusUnauthorized, "User not authenticated")
	case errors.Is(err, auth.ErrRefreshFailed):
		errorJSON(c, http.StatusUnauthorized, "Token refresh failed. Please log in again.")
	default:
		h.log.Error("access token lookup failed", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}
}

// GET /
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "service": "MailPilot"})
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /login
func (h *Handler) Login(c *gin.Context) {
	url, err := h.auth.AuthCodeURL(h.userID)
	if err != nil {
		h.log.Error("failed to build auth url", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Failed to start login")
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": url})
}

// GET /oauth2callback
// A sync runs right after login; its failure does not fail the login.
func (h *Handler) OAuthCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		errorJSON(c, http.StatusBadRequest, "Authorization code not provided")
		return
	}

	userID, err := h.auth.Exchange(c.Request.Context(), code, c.Query("state"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidState) {
			errorJSON(c, http.StatusBadRequest, "Invalid OAuth state")
			return
		}
		h.log.Warn("oauth exchange failed", zap.Error(err))
		errorJSON(c, http.StatusBadRequest, "Failed to exchange authorization code for tokens")
		return
	}

	if token, err := h.auth.AccessToken(c.Request.Context(), userID); err == nil {
		if result, err := h.syncer.Sync(c.Request.Context(), token, userID); err != nil {
			h.log.Warn("auto-sync after login failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			h.log.Info("auto-sync after login",
				zap.String("user_id", userID),
				zap.Int("retrieved", result.Retrieved),
				zap.Int("inserted", result.Inserted))
		}
	}

	c.Redirect(http.StatusFound, h.frontendURL+"/dashboard?auth_success=true")
}

// GET /dashboard
func (h *Handler) Dashboard(c *gin.Context) {
	if !h.requireAuth(c) {
		return
	}

	data, err := h.dashboard.Build(c.Request.Context(), h.userID)
	if err != nil {
		h.tokenError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// POST /sync-emails
// CAPTCHA is checked before the attempt is counted so a rejected request
// does not use up the hourly allowance.
func (h *Handler) SyncEmails(c *gin.Context) {
	if !h.requireAuth(c) {
		return
	}

	var req syncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if !h.verifyCaptcha(c, req.CaptchaResponse) {
		return
	}

	allowed, err := h.limiter.Allow(c.Request.Context(), h.userID)
	if err != nil {
		h.log.Warn("sync throttle unavailable, allowing request", zap.Error(err))
		allowed = true
	}
	if !allowed {
		errorJSON(c, http.StatusTooManyRequests, "Too many sync attempts. Please wait before trying again.")
		return
	}

	token, err := h.auth.AccessToken(c.Request.Context(), h.userID)
	if err != nil {
		h.tokenError(c, err)
		return
	}

	result, err := h.syncer.Sync(c.Request.Context(), token, h.userID)
	if err != nil && !errors.Is(err, service.ErrNoMessages) {
		h.log.Error("sync failed", zap.String("user_id", h.userID), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("Sync failed: %v", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"emails_synced":   result.Retrieved,
		"emails_inserted": result.Inserted,
		"gmail_ids_seen":  result.Seen,
	})
}

func (h *Handler) verifyCaptcha(c *gin.Context, response string) bool {
	if response == "" {
		if h.captcha.Enabled() {
			errorJSON(c, http.StatusBadRequest, "Captcha verification required")
			return false
		}
		return true
	}

	if response == recaptcha.SkippedResponse {
		h.log.Debug("captcha verification skipped")
		return true
	}

	ok, err := h.captcha.Verify(c.Request.Context(), response, c.ClientIP())
	if err != nil {
		h.log.Warn("captcha verification error", zap.Error(err))
	}
	if !ok {
		errorJSON(c, http.StatusBadRequest, "Invalid captcha verification")
		return false
	}
	return true
}

// GET /keywords
func (h *Handler) ListKeywords(c *gin.Context) {
	if !h.requireAuth(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"keywords": h.keywords.ListKeywords(c.Request.Context(), h.userID)})
}

// POST /keywords
func (h *Handler) AddKeyword(c *gin.Context) {
	if !h.requireAuth(c) {
		return
	}

	var req keywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	keyword := strings.TrimSpace(req.Keyword)
	if _, err := h.keywords.AddKeyword(c.Request.Context(), h.userID, keyword); err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyKeyword):
			errorJSON(c, http.StatusBadRequest, "Keyword cannot be empty")
		case errors.Is(err, repository.ErrKeywordExists):
			errorJSON(c, http.StatusConflict, "Keyword already exists")
		default:
			h.log.Error("add keyword failed", zap.Error(err))
			errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Failed to add keyword: %v", err))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Keyword '%s' added successfully", keyword),
	})
}

// DELETE /keywords/:keyword
func (h *Handler) RemoveKeyword(c *gin.Context) {
	if !h.requireAuth(c) {
		return
	}

	keyword := c.Param("keyword")
	if _, err := h.keywords.RemoveKeyword(c.Request.Context(), h.userID, keyword); err != nil {
		if errors.Is(err, service.ErrEmptyKeyword) {
			errorJSON(c, http.StatusBadRequest, "Keyword cannot be empty")
			return
		}
		h.log.Error("remove keyword failed", zap.Error(err))
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Failed to remove keyword: %v", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Keyword '%s' removed successfully", keyword),
	})
}

// GET /auth/status
func (h *Handler) AuthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.auth.Status(h.userID))
}

// GET /logout
func (h *Handler) Logout(c *gin.Context) {
	h.auth.Logout(h.userID)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// GET /captcha/config
func (h *Handler) CaptchaConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"site_key": h.captcha.SiteKey(),
		"enabled":  h.captcha.Enabled(),
	})
}
