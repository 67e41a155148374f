package graduation

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"graduationScope/internal/model"
)

// MarketData supplies the token record and a metrics snapshot. Reads are side-effect free.
type MarketData interface {
	Snapshot(ctx context.Context, token common.Address) (model.Token, model.Metrics, error)
}

// Thresholds resolves the thresholds that apply to a token at a reference price.
type Thresholds interface {
	GetThresholds(ctx context.Context, token common.Address, refPrice float64) (model.ThresholdSet, error)
}

// PriceFeed returns the native coin price in USD.
type PriceFeed interface {
	NativeUSD(ctx context.Context) (float64, error)
}

// TrendEstimator predicts the time until every unmet threshold is reached.
// A nil duration means the estimate is unavailable.
type TrendEstimator interface {
	Estimate(ctx context.Context, token common.Address, metrics model.Metrics, thresholds model.ThresholdSet) (*time.Duration, error)
}

// Evaluator answers eligibility and progress queries. It never mutates state.
type Evaluator struct {
	market     MarketData
	thresholds Thresholds
	prices     PriceFeed
	trend      TrendEstimator
	logger     *zap.Logger
	now        func() time.Time
}

// NewEvaluator wires an Evaluator. trend may be nil, in which case no ETA is reported.
func NewEvaluator(market MarketData, thresholds Thresholds, prices PriceFeed, trend TrendEstimator, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		market:     market,
		thresholds: thresholds,
		prices:     prices,
		trend:      trend,
		logger:     logger,
		now:        time.Now,
	}
}

// CanGraduate reports whether token meets every threshold right now.
func (e *Evaluator) CanGraduate(ctx context.Context, token common.Address) (model.CheckResult, error) {
	price, err := e.referencePrice(ctx)
	if err != nil {
		return model.CheckResult{}, err
	}
	return e.checkAt(ctx, token, price)
}

// GetProgress reports per-metric progress, recommended actions and an optional ETA.
func (e *Evaluator) GetProgress(ctx context.Context, token common.Address) (model.Progress, error) {
	price, err := e.referencePrice(ctx)
	if err != nil {
		return model.Progress{}, err
	}
	return e.progressAt(ctx, token, price)
}

func (e *Evaluator) referencePrice(ctx context.Context) (float64, error) {
	price, err := e.prices.NativeUSD(ctx)
	if err != nil {
		return 0, fmt.Errorf("read reference price: %w", err)
	}
	return price, nil
}

func (e *Evaluator) snapshot(ctx context.Context, token common.Address, price float64) (model.Token, model.Metrics, model.ThresholdSet, error) {
	tok, metrics, err := e.market.Snapshot(ctx, token)
	if err != nil {
		return model.Token{}, model.Metrics{}, model.ThresholdSet{}, err
	}
	thresholds, err := e.thresholds.GetThresholds(ctx, token, price)
	if err != nil {
		return model.Token{}, model.Metrics{}, model.ThresholdSet{}, err
	}
	return tok, metrics, thresholds, nil
}

func (e *Evaluator) checkAt(ctx context.Context, token common.Address, price float64) (model.CheckResult, error) {
	tok, metrics, thresholds, err := e.snapshot(ctx, token, price)
	if err != nil {
		return model.CheckResult{}, err
	}
	return EvaluateToken(tok, metrics, thresholds, e.now().UTC()), nil
}

func (e *Evaluator) progressAt(ctx context.Context, token common.Address, price float64) (model.Progress, error) {
	tok, metrics, thresholds, err := e.snapshot(ctx, token, price)
	if err != nil {
		return model.Progress{}, err
	}
	progress := ComputeProgress(token, tok.Status, metrics, thresholds)
	if progress.Graduated || e.trend == nil {
		return progress, nil
	}

	eta, err := e.trend.Estimate(ctx, token, metrics, thresholds)
	if err != nil {
		// ETA is advisory; the rest of the progress report stands.
		e.logger.Warn("trend estimate failed", zap.String("token", token.Hex()), zap.Error(err))
		return progress, nil
	}
	progress.TimeToGraduation = eta
	return progress, nil
}
