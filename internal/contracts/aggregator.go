package contracts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"graduationScope/internal/market"
)

// Aggregator reads a native/USD price aggregator.
type Aggregator struct {
	caller  Caller
	address common.Address

	mu       sync.Mutex
	decimals *uint8
}

// NewAggregator binds an aggregator deployment.
func NewAggregator(caller Caller, address common.Address) *Aggregator {
	return &Aggregator{caller: caller, address: address}
}

// LatestRound returns the latest round scaled by the aggregator decimals.
func (a *Aggregator) LatestRound(ctx context.Context) (market.Round, error) {
	parsed, err := AggregatorABI()
	if err != nil {
		return market.Round{}, fmt.Errorf("parse aggregator abi: %w", err)
	}

	decimals, err := a.loadDecimals(ctx)
	if err != nil {
		return market.Round{}, err
	}

	values, err := callMethod(ctx, a.caller, a.address, parsed, "latestRoundData")
	if err != nil {
		return market.Round{}, err
	}
	roundID, err := asBigInt(values[0])
	if err != nil {
		return market.Round{}, fmt.Errorf("round id: %w", err)
	}
	answer, err := asBigInt(values[1])
	if err != nil {
		return market.Round{}, fmt.Errorf("answer: %w", err)
	}
	updatedAt, err := asUint64(values[3])
	if err != nil {
		return market.Round{}, fmt.Errorf("updated at: %w", err)
	}

	return market.Round{
		RoundID:   roundID,
		Answer:    answer,
		Decimals:  decimals,
		UpdatedAt: time.Unix(int64(updatedAt), 0).UTC(),
	}, nil
}

func (a *Aggregator) loadDecimals(ctx context.Context) (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.decimals != nil {
		return *a.decimals, nil
	}
	parsed, err := AggregatorABI()
	if err != nil {
		return 0, fmt.Errorf("parse aggregator abi: %w", err)
	}
	values, err := callMethod(ctx, a.caller, a.address, parsed, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	a.decimals = &decimals
	return decimals, nil
}
