// Package summarizer routes summary requests to the configured providers,
// each behind its own circuit breaker, falling through to the next on failure.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vipul43/mailpilot/internal/huggingface"
	"github.com/vipul43/mailpilot/internal/openrouter"
)

var ErrUnavailable = errors.New("no summarizer available")

type ProviderType string

const (
	ProviderHuggingFace ProviderType = "huggingface"
	ProviderOpenRouter  ProviderType = "openrouter"
)

// Provider is a single summarization backend
type Provider interface {
	Name() string
	Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error)
}

type Config struct {
	Provider            ProviderType
	HuggingFaceModelURL string
	HuggingFaceAPIToken string
	OpenRouterAPIKey    string
	OpenRouterModel     string
}

// New builds the provider chain. The preferred provider goes first; the
// other one follows as a fallback when it is configured.
func New(cfg Config, log *zap.Logger) (*Chain, error) {
	hf := huggingface.NewClient(cfg.HuggingFaceModelURL, cfg.HuggingFaceAPIToken)

	var or Provider
	if cfg.OpenRouterAPIKey != "" {
		client := openrouter.NewClient(cfg.OpenRouterAPIKey)
		if cfg.OpenRouterModel != "" {
			client.SetModel(cfg.OpenRouterModel)
		}
		or = client
	}

	var providers []Provider
	switch cfg.Provider {
	case ProviderHuggingFace, "":
		providers = append(providers, hf)
		if or != nil {
			providers = append(providers, or)
		}
	case ProviderOpenRouter:
		if or == nil {
			return nil, fmt.Errorf("OPENROUTER_API_KEY is required for the openrouter summarizer")
		}
		providers = append(providers, or, hf)
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", cfg.Provider)
	}

	chain := NewChain(log, providers...)
	if or != nil && cfg.OpenRouterModel != "" {
		chain.log.Info("openrouter model pinned", zap.String("model", cfg.OpenRouterModel))
	}
	return chain, nil
}

// Chain tries providers in order until one succeeds
type Chain struct {
	links []link
	log   *zap.Logger
}

type link struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

func NewChain(log *zap.Logger, providers ...Provider) *Chain {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("summarizer")

	c := &Chain{log: log}
	for _, p := range providers {
		c.links = append(c.links, link{provider: p, breaker: newBreaker(p.Name(), log)})
	}
	return c
}

func newBreaker(name string, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Providers lists the provider names in the order they are tried
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.links))
	for _, l := range c.links {
		names = append(names, l.provider.Name())
	}
	return names
}

// Summarize returns the first successful summary. An open breaker skips its
// provider without a call. ErrUnavailable wraps the last failure.
func (c *Chain) Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error) {
	lastErr := errors.New("no providers configured")

	for _, l := range c.links {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}

		result, err := l.breaker.Execute(func() (interface{}, error) {
			return l.provider.Summarize(ctx, text, maxLength, minLength)
		})
		if err == nil {
			return result.(string), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.log.Debug("provider skipped, breaker open", zap.String("provider", l.provider.Name()))
		} else {
			c.log.Warn("provider failed", zap.String("provider", l.provider.Name()), zap.Error(err))
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
