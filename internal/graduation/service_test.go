package graduation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduationScope/internal/graduation"
	"graduationScope/internal/market"
	"graduationScope/internal/model"
)

func TestListNearingGraduation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	low := f.launch(t, "LOW", 10_000, 5_000, 100)        // 10%
	mid := f.launch(t, "MID", 100_000, 25_000, 500)      // 66%
	high := f.launch(t, "HIGH", 150_000, 40_000, 1200)   // 93%
	ready := f.launch(t, "READY", 200_000, 60_000, 1500) // 100%
	inactive := f.launch(t, "OFF", 200_000, 60_000, 1500)
	require.NoError(t, f.ledger.Deactivate(ctx, inactive))
	done := f.launch(t, "DONE", 200_000, 60_000, 1500)
	_, err := f.executor.Graduate(ctx, done, graduation.Options{})
	require.NoError(t, err)

	list, err := f.service.ListNearingGraduation(ctx, 50)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ready, list[0].Token.Address)
	assert.Equal(t, 100, list[0].Progress.Percent)
	assert.True(t, list[0].Eligible)
	assert.Equal(t, high, list[1].Token.Address)
	assert.False(t, list[1].Eligible)
	assert.Equal(t, mid, list[2].Token.Address)
	assert.Equal(t, 66, list[2].Progress.Percent)

	all, err := f.service.ListNearingGraduation(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, low, all[3].Token.Address)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Progress.Percent, all[i].Progress.Percent)
	}
}

func TestListNearingGraduationRejectsBadPercent(t *testing.T) {
	f := newFixture(t, nil)

	for _, pct := range []int{-1, 101} {
		_, err := f.service.ListNearingGraduation(context.Background(), pct)
		assert.ErrorIs(t, err, graduation.ErrInvalidRange)
	}
}

func TestHasTokensReadyToGraduate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ready, err := f.service.HasTokensReadyToGraduate(ctx)
	require.NoError(t, err)
	assert.False(t, ready)

	for i := 0; i < 20; i++ {
		f.launch(t, "LOW", 10_000, 5_000, 100)
	}
	ready, err = f.service.HasTokensReadyToGraduate(ctx)
	require.NoError(t, err)
	assert.False(t, ready)

	f.launch(t, "READY", 200_000, 60_000, 1500)
	ready, err = f.service.HasTokensReadyToGraduate(ctx)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestGraduationInfoUnknownToken(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.GraduationInfo(context.Background(), common.HexToAddress("0xdead"))
	assert.ErrorIs(t, err, graduation.ErrTokenNotFound)
}

type stubSamples struct {
	samples []model.MetricSample
	err     error
}

func (s stubSamples) RecentSamples(ctx context.Context, token common.Address, since time.Time, limit int) ([]model.MetricSample, error) {
	return s.samples, s.err
}

func TestLinearTrendEstimate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	thresholds := thresholdSet(ether(50), ether(25), 1000)
	metrics := model.Metrics{MarketCap: ether(40), Volume24h: ether(25), HolderCount: 1000}

	samples := []model.MetricSample{
		{Timestamp: now.Add(-2 * time.Hour), MarketCap: ether(30), Volume24h: ether(20), HolderCount: 900},
		{Timestamp: now.Add(-time.Hour), MarketCap: ether(40), Volume24h: ether(25), HolderCount: 1000},
	}
	trend := graduation.NewLinearTrend(stubSamples{samples: samples}, 24*time.Hour)
	trend.Now = func() time.Time { return now }

	eta, err := trend.Estimate(context.Background(), testToken, metrics, thresholds)
	require.NoError(t, err)
	require.NotNil(t, eta)
	// 10 ether of market cap left at 10 ether per hour.
	assert.InDelta(t, time.Hour.Seconds(), eta.Seconds(), 0.001)
}

func TestLinearTrendUnavailable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	thresholds := thresholdSet(ether(50), ether(25), 1000)
	metrics := model.Metrics{MarketCap: ether(40), Volume24h: ether(10), HolderCount: 1000}

	single := []model.MetricSample{{Timestamp: now, MarketCap: ether(40), Volume24h: ether(10), HolderCount: 1000}}
	trend := graduation.NewLinearTrend(stubSamples{samples: single}, time.Hour)
	eta, err := trend.Estimate(context.Background(), testToken, metrics, thresholds)
	require.NoError(t, err)
	assert.Nil(t, eta)

	falling := []model.MetricSample{
		{Timestamp: now.Add(-time.Hour), MarketCap: ether(30), Volume24h: ether(12), HolderCount: 1000},
		{Timestamp: now, MarketCap: ether(40), Volume24h: ether(10), HolderCount: 1000},
	}
	trend = graduation.NewLinearTrend(stubSamples{samples: falling}, time.Hour)
	eta, err = trend.Estimate(context.Background(), testToken, metrics, thresholds)
	require.NoError(t, err)
	assert.Nil(t, eta)

	trend = graduation.NewLinearTrend(stubSamples{err: errors.New("db down")}, time.Hour)
	_, err = trend.Estimate(context.Background(), testToken, metrics, thresholds)
	assert.Error(t, err)

	met := model.Metrics{MarketCap: ether(60), Volume24h: ether(30), HolderCount: 2000}
	eta, err = trend.Estimate(context.Background(), testToken, met, thresholds)
	require.NoError(t, err)
	require.NotNil(t, eta)
	assert.Zero(t, *eta)
}

func TestProgressCarriesTrendEstimate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	token := f.launch(t, "ETA", 80_000, 50_000, 1000)

	now := time.Now()
	samples := []model.MetricSample{
		{Timestamp: now.Add(-2 * time.Hour), MarketCap: usd(60_000), Volume24h: usd(50_000), HolderCount: 1000},
		{Timestamp: now.Add(-time.Hour), MarketCap: usd(70_000), Volume24h: usd(50_000), HolderCount: 1000},
	}
	evaluator := graduation.NewEvaluator(
		market.NewProvider(f.ledger, f.ledger), f.store, market.StaticFeed(ethPrice),
		graduation.NewLinearTrend(stubSamples{samples: samples}, 24*time.Hour), nil,
	)

	progress, err := evaluator.GetProgress(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, progress.TimeToGraduation)
	assert.InDelta(t, (2 * time.Hour).Seconds(), progress.TimeToGraduation.Seconds(), 1)
}
