// Package auth runs the Google OAuth consent flow and hands out fresh
// access tokens for the mailbox.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

var (
	ErrNotAuthenticated = errors.New("user not authenticated")
	ErrRefreshFailed    = errors.New("token refresh failed")
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	StateSecret  string
}

// Status describes what credentials are held for a user
type Status struct {
	Authenticated   bool   `json:"authenticated"`
	UserID          string `json:"user_id"`
	HasAccessToken  bool   `json:"has_access_token"`
	HasRefreshToken bool   `json:"has_refresh_token"`
}

type Provider struct {
	oauth       *oauth2.Config
	stateSecret string
	store       *TokenStore
	now         func() time.Time
	log         *zap.Logger
}

func NewProvider(cfg Config, store *TokenStore, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		stateSecret: cfg.StateSecret,
		store:       store,
		now:         time.Now,
		log:         log.Named("auth"),
	}
}

// AuthCodeURL builds the consent URL. Offline access with forced consent
// makes Google return a refresh token every time.
func (p *Provider) AuthCodeURL(userID string) (string, error) {
	state, err := signState(userID, p.stateSecret, p.now())
	if err != nil {
		return "", err
	}
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// Exchange validates state, trades the code for a token and stores it.
// It returns the user id carried by state.
func (p *Provider) Exchange(ctx context.Context, code, state string) (string, error) {
	userID, err := parseState(state, p.stateSecret)
	if err != nil {
		return "", err
	}

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	p.store.Put(userID, tok)
	p.log.Info("user authenticated",
		zap.String("user_id", userID),
		zap.Bool("has_refresh_token", tok.RefreshToken != ""))

	return userID, nil
}

// AccessToken returns a valid access token, refreshing it when expired
func (p *Provider) AccessToken(ctx context.Context, userID string) (string, error) {
	tok, ok := p.store.Get(userID)
	if !ok {
		return "", ErrNotAuthenticated
	}

	if tok.Valid() {
		return tok.AccessToken, nil
	}

	if tok.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
	}

	fresh, err := p.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		p.log.Warn("token refresh failed", zap.String("user_id", userID), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	// Google does not always rotate the refresh token
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	p.store.Put(userID, fresh)

	p.log.Info("token refreshed", zap.String("user_id", userID), zap.Time("expires_at", fresh.Expiry))
	return fresh.AccessToken, nil
}

func (p *Provider) Status(userID string) Status {
	tok, ok := p.store.Get(userID)
	if !ok {
		return Status{UserID: userID}
	}
	return Status{
		Authenticated:   tok.AccessToken != "",
		UserID:          userID,
		HasAccessToken:  tok.AccessToken != "",
		HasRefreshToken: tok.RefreshToken != "",
	}
}

func (p *Provider) Logout(userID string) {
	p.store.Delete(userID)
	p.log.Info("user logged out", zap.String("user_id", userID))
}
