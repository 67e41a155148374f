package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	ErrStalePrice   = errors.New("reference price is stale")
	ErrInvalidPrice = errors.New("reference price is not positive")
)

// StaticFeed serves a fixed native/USD price from configuration.
type StaticFeed float64

// NativeUSD returns the configured price.
func (f StaticFeed) NativeUSD(ctx context.Context) (float64, error) {
	if math.IsNaN(float64(f)) || f <= 0 {
		return 0, ErrInvalidPrice
	}
	return float64(f), nil
}

// Round is one aggregator answer.
type Round struct {
	RoundID   *big.Int
	Answer    *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Price scales the answer by its decimals.
func (r Round) Price() float64 {
	if r.Answer == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(r.Decimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(r.Answer), scale).Float64()
	return f
}

// RoundReader returns the latest aggregator round.
type RoundReader interface {
	LatestRound(ctx context.Context) (Round, error)
}

// AggregatorFeed reads a price aggregator behind a circuit breaker.
type AggregatorFeed struct {
	reader  RoundReader
	maxAge  time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	now     func() time.Time
}

// NewAggregatorFeed returns a feed rejecting rounds older than maxAge. maxAge <= 0 disables the check.
func NewAggregatorFeed(reader RoundReader, maxAge time.Duration, logger *zap.Logger) *AggregatorFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "price-feed",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &AggregatorFeed{
		reader:  reader,
		maxAge:  maxAge,
		breaker: breaker,
		logger:  logger,
		now:     time.Now,
	}
}

// NativeUSD returns the latest fresh, positive aggregator price.
func (f *AggregatorFeed) NativeUSD(ctx context.Context) (float64, error) {
	out, err := f.breaker.Execute(func() (interface{}, error) {
		round, err := f.reader.LatestRound(ctx)
		if err != nil {
			return nil, err
		}
		if round.Answer == nil || round.Answer.Sign() <= 0 {
			return nil, ErrInvalidPrice
		}
		if f.maxAge > 0 && f.now().Sub(round.UpdatedAt) > f.maxAge {
			return nil, fmt.Errorf("%w: updated %s ago", ErrStalePrice, f.now().Sub(round.UpdatedAt).Truncate(time.Second))
		}
		return round.Price(), nil
	})
	if err != nil {
		return 0, fmt.Errorf("read price feed: %w", err)
	}
	return out.(float64), nil
}

// State reports the breaker state.
func (f *AggregatorFeed) State() gobreaker.State {
	return f.breaker.State()
}
