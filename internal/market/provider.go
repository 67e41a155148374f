// Package market reads live token metrics and the native/USD reference price.
package market

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"graduationScope/internal/graduation"
	"graduationScope/internal/model"
)

// Registry is the token registry read surface.
type Registry interface {
	IsRegisteredToken(ctx context.Context, token common.Address) (bool, error)
	GetTokenInfo(ctx context.Context, token common.Address) (model.Token, error)
}

// Engine is the trading engine read surface.
type Engine interface {
	GetTokenStats(ctx context.Context, token common.Address) (model.TokenStats, error)
}

// Provider composes registry and engine state into metrics. It never writes.
type Provider struct {
	registry Registry
	engine   Engine
}

// NewProvider returns a Provider.
func NewProvider(registry Registry, engine Engine) *Provider {
	return &Provider{registry: registry, engine: engine}
}

// GetMetrics returns market cap, 24h volume, holder count and current price.
func (p *Provider) GetMetrics(ctx context.Context, token common.Address) (model.Metrics, error) {
	_, metrics, err := p.Snapshot(ctx, token)
	return metrics, err
}

// Snapshot returns the registry record together with its metrics.
func (p *Provider) Snapshot(ctx context.Context, token common.Address) (model.Token, model.Metrics, error) {
	ok, err := p.registry.IsRegisteredToken(ctx, token)
	if err != nil {
		return model.Token{}, model.Metrics{}, fmt.Errorf("check registration: %w", err)
	}
	if !ok {
		return model.Token{}, model.Metrics{}, graduation.TokenNotFound(token.Hex())
	}

	tok, err := p.registry.GetTokenInfo(ctx, token)
	if err != nil {
		return model.Token{}, model.Metrics{}, fmt.Errorf("get token info: %w", err)
	}
	stats, err := p.engine.GetTokenStats(ctx, token)
	if err != nil {
		return model.Token{}, model.Metrics{}, fmt.Errorf("get token stats: %w", err)
	}
	return tok, model.ComposeMetrics(tok, stats), nil
}
