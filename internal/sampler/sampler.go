// Package sampler snapshots token metrics on an interval for trend estimation.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"graduationScope/internal/graduation"
	"graduationScope/internal/model"
)

// DefaultStateName keys the sampler checkpoint.
const DefaultStateName = "metric-sampler"

// TokenLister enumerates registered tokens.
type TokenLister interface {
	GetAllTokens(ctx context.Context) ([]common.Address, error)
}

// SampleSink stores metric samples.
type SampleSink interface {
	PutSamples(ctx context.Context, samples []model.MetricSample) error
}

// RunConfig holds runtime settings for the sampler.
type RunConfig struct {
	Interval     time.Duration
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	StateName    string
}

// Summary describes one sampling pass.
type Summary struct {
	Tokens  int
	Sampled int
	Skipped int
	Batches int
	At      time.Time
}

// Sampler reads metrics for every active, non-graduated token and stores them.
type Sampler struct {
	cfg    RunConfig
	tokens TokenLister
	market graduation.MarketData
	sink   SampleSink
	state  StateStore
	logger *zap.Logger
	now    func() time.Time
}

// New builds a Sampler. state may be nil to disable checkpoints.
func New(cfg RunConfig, tokens TokenLister, market graduation.MarketData, sink SampleSink, state StateStore, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StateName == "" {
		cfg.StateName = DefaultStateName
	}
	return &Sampler{
		cfg:    cfg,
		tokens: tokens,
		market: market,
		sink:   sink,
		state:  state,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (s *Sampler) SetClock(now func() time.Time) {
	s.now = now
}

// RunOnce performs a single pass over all tokens.
func (s *Sampler) RunOnce(ctx context.Context) (Summary, error) {
	if s.tokens == nil || s.market == nil {
		return Summary{}, fmt.Errorf("sampler sources are nil")
	}
	if s.sink == nil {
		return Summary{}, fmt.Errorf("sample sink is nil")
	}

	var tokens []common.Address
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		tokens, err = s.tokens.GetAllTokens(ctx)
		if err != nil {
			s.logger.Warn("list tokens failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return Summary{}, fmt.Errorf("list tokens: %w", err)
	}

	batches, err := SplitBatches(tokens, s.cfg.BatchSize)
	if err != nil {
		return Summary{}, err
	}

	at := s.now().UTC()
	summary := Summary{Tokens: len(tokens), Batches: len(batches), At: at}
	for _, batch := range batches {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		samples, skipped, err := s.sampleBatch(ctx, batch, at)
		if err != nil {
			return summary, err
		}
		err = withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			err := s.sink.PutSamples(ctx, samples)
			if err != nil {
				s.logger.Warn("store samples failed", zap.Error(err), zap.Int("samples", len(samples)))
			}
			return err
		})
		if err != nil {
			return summary, fmt.Errorf("store samples: %w", err)
		}
		summary.Sampled += len(samples)
		summary.Skipped += skipped
	}

	if s.state != nil {
		if err := s.state.SaveState(ctx, s.cfg.StateName, uint64(at.Unix())); err != nil {
			return summary, fmt.Errorf("save sampler state: %w", err)
		}
	}

	s.logger.Info("sampling pass complete",
		zap.Int("tokens", summary.Tokens),
		zap.Int("sampled", summary.Sampled),
		zap.Int("skipped", summary.Skipped),
		zap.Int("batches", summary.Batches),
	)
	return summary, nil
}

func (s *Sampler) sampleBatch(ctx context.Context, batch []common.Address, at time.Time) ([]model.MetricSample, int, error) {
	samples := make([]model.MetricSample, 0, len(batch))
	skipped := 0
	for _, token := range batch {
		var (
			tok     model.Token
			metrics model.Metrics
		)
		err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			tok, metrics, err = s.market.Snapshot(ctx, token)
			if errors.Is(err, graduation.ErrTokenNotFound) {
				return backoff.Permanent(err)
			}
			if err != nil {
				s.logger.Warn("snapshot failed", zap.Error(err), zap.String("token", token.Hex()))
			}
			return err
		})
		if errors.Is(err, graduation.ErrTokenNotFound) {
			skipped++
			continue
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("snapshot %s: %w", token.Hex(), err)
		}
		if !tok.Active || tok.IsGraduated() {
			skipped++
			continue
		}
		samples = append(samples, model.MetricSample{
			Token:       token,
			Timestamp:   at,
			MarketCap:   metrics.MarketCap,
			Volume24h:   metrics.Volume24h,
			HolderCount: metrics.HolderCount,
		})
	}
	return samples, skipped, nil
}

// Run samples on every interval until ctx is done. A recent checkpoint delays the first pass.
func (s *Sampler) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("sample interval must be greater than zero")
	}

	wait := time.Duration(0)
	if s.state != nil {
		last, ok, err := s.state.LoadState(ctx, s.cfg.StateName)
		if err != nil {
			return fmt.Errorf("load sampler state: %w", err)
		}
		if ok {
			since := s.now().Sub(time.Unix(int64(last), 0))
			if since < s.cfg.Interval {
				wait = s.cfg.Interval - since
				s.logger.Info("resume from checkpoint", zap.Uint64("last_run", last), zap.Duration("wait", wait))
			}
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("sampling pass failed", zap.Error(err))
		}
		timer.Reset(s.cfg.Interval)
	}
}
