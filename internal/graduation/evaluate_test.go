package graduation_test

import (
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduationScope/internal/graduation"
	"graduationScope/internal/model"
)

var testToken = common.HexToAddress("0x1111111111111111111111111111111111111111")

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), model.WeiPerEther())
}

func thresholdSet(mcap, volume *big.Int, holders uint64) model.ThresholdSet {
	return model.ThresholdSet{MarketCap: mcap, Volume: volume, Holders: holders, ReferencePrice: 2000}
}

func TestEvaluatePredicateCombinations(t *testing.T) {
	thresholds := thresholdSet(ether(50), ether(25), 1000)

	for mask := 0; mask < 8; mask++ {
		mcapOK, volOK, holdersOK := mask&1 != 0, mask&2 != 0, mask&4 != 0
		t.Run(fmt.Sprintf("mcap=%t/vol=%t/holders=%t", mcapOK, volOK, holdersOK), func(t *testing.T) {
			metrics := model.Metrics{MarketCap: ether(10), Volume24h: ether(5), HolderCount: 100}
			if mcapOK {
				metrics.MarketCap = ether(60)
			}
			if volOK {
				metrics.Volume24h = ether(30)
			}
			if holdersOK {
				metrics.HolderCount = 1500
			}

			result := graduation.Evaluate(testToken, model.NotGraduated, metrics, thresholds, time.Now())

			assert.Equal(t, mcapOK && volOK && holdersOK, result.Eligible)
			assert.Equal(t, result.Eligible, len(result.Reasons) == 0)

			var want []model.Metric
			if !mcapOK {
				want = append(want, model.MetricMarketCap)
			}
			if !volOK {
				want = append(want, model.MetricVolume)
			}
			if !holdersOK {
				want = append(want, model.MetricHolders)
			}
			got := make([]model.Metric, 0, len(result.Reasons))
			for _, r := range result.Reasons {
				got = append(got, r.Metric)
				assert.True(t, strings.HasPrefix(r.Message, string(r.Metric)+" below threshold"), r.Message)
			}
			assert.Equal(t, len(want), len(got))
			for i := range want {
				assert.Equal(t, want[i], got[i])
			}
		})
	}
}

func TestEvaluateAlreadyGraduated(t *testing.T) {
	metrics := model.Metrics{MarketCap: ether(100), Volume24h: ether(100), HolderCount: 5000}

	result := graduation.Evaluate(testToken, model.Graduated, metrics, thresholdSet(ether(50), ether(25), 1000), time.Now())

	assert.False(t, result.Eligible)
	assert.True(t, result.Graduated)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, graduation.ReasonAlreadyGraduated, result.Reasons[0].Message)
}

func TestEvaluateBoundaryIsInclusive(t *testing.T) {
	metrics := model.Metrics{MarketCap: ether(50), Volume24h: ether(25), HolderCount: 1000}

	result := graduation.Evaluate(testToken, model.NotGraduated, metrics, thresholdSet(ether(50), ether(25), 1000), time.Now())
	assert.True(t, result.Eligible)
	assert.Empty(t, result.Reasons)

	metrics.HolderCount = 999
	result = graduation.Evaluate(testToken, model.NotGraduated, metrics, thresholdSet(ether(50), ether(25), 1000), time.Now())
	assert.False(t, result.Eligible)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, "holders below threshold (current 999, required 1000)", result.Reasons[0].Message)
}

func TestEvaluateTokenInactive(t *testing.T) {
	metrics := model.Metrics{MarketCap: ether(100), Volume24h: ether(100), HolderCount: 5000}
	tok := model.Token{Address: testToken, Status: model.NotGraduated, Active: false}

	result := graduation.EvaluateToken(tok, metrics, thresholdSet(ether(50), ether(25), 1000), time.Now())
	assert.False(t, result.Eligible)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, graduation.ReasonInactive, result.Reasons[0].Message)

	tok.Active = true
	result = graduation.EvaluateToken(tok, metrics, thresholdSet(ether(50), ether(25), 1000), time.Now())
	assert.True(t, result.Eligible)
	assert.Empty(t, result.Reasons)
}

func TestComputeProgressScenario(t *testing.T) {
	// $150k / $100k, $40k / $50k, 1200 / 1000 at 2000 USD per native coin.
	metrics := model.Metrics{MarketCap: ether(75), Volume24h: ether(20), HolderCount: 1200}

	progress := graduation.ComputeProgress(testToken, model.NotGraduated, metrics, thresholdSet(ether(50), ether(25), 1000))

	assert.Equal(t, 93, progress.Percent)
	require.Len(t, progress.Ratios, 3)
	assert.Equal(t, 1.0, progress.Ratios[0].Ratio)
	assert.InDelta(t, 0.8, progress.Ratios[1].Ratio, 1e-12)
	assert.Equal(t, 1.0, progress.Ratios[2].Ratio)
	assert.Equal(t, []string{"Increase 24h trading volume by 5 to reach 25"}, progress.RecommendedActions)
}

func TestComputeProgressExcludesZeroThresholds(t *testing.T) {
	metrics := model.Metrics{MarketCap: ether(10), Volume24h: big.NewInt(0), HolderCount: 0}

	progress := graduation.ComputeProgress(testToken, model.NotGraduated, metrics, thresholdSet(ether(40), big.NewInt(0), 0))
	assert.Equal(t, 25, progress.Percent)
	assert.True(t, progress.Ratios[1].Excluded)
	assert.True(t, progress.Ratios[2].Excluded)

	progress = graduation.ComputeProgress(testToken, model.NotGraduated, metrics, thresholdSet(big.NewInt(0), nil, 0))
	assert.Equal(t, 100, progress.Percent)
	assert.Empty(t, progress.RecommendedActions)
}

func TestComputeProgressRanksActionsByRatio(t *testing.T) {
	metrics := model.Metrics{MarketCap: ether(40), Volume24h: ether(5), HolderCount: 500}

	progress := graduation.ComputeProgress(testToken, model.NotGraduated, metrics, thresholdSet(ether(50), ether(25), 1000))

	require.Len(t, progress.RecommendedActions, 3)
	assert.True(t, strings.HasPrefix(progress.RecommendedActions[0], "Increase 24h trading volume"))
	assert.True(t, strings.HasPrefix(progress.RecommendedActions[1], "Attract 500 more holders"))
	assert.True(t, strings.HasPrefix(progress.RecommendedActions[2], "Grow market cap"))
	// (0.8 + 0.2 + 0.5) / 3 = 0.5
	assert.Equal(t, 50, progress.Percent)
}

func TestComputeProgressGraduated(t *testing.T) {
	progress := graduation.ComputeProgress(testToken, model.Graduated, model.Metrics{}, thresholdSet(ether(50), ether(25), 1000))

	assert.True(t, progress.Graduated)
	assert.Equal(t, 100, progress.Percent)
	assert.Empty(t, progress.RecommendedActions)
}

func TestComputeProgressMonotonic(t *testing.T) {
	thresholds := thresholdSet(ether(50), ether(25), 1000)
	previous := -1
	for step := int64(0); step <= 30; step++ {
		metrics := model.Metrics{
			MarketCap:   ether(step * 2),
			Volume24h:   ether(step),
			HolderCount: uint64(step * 40),
		}
		progress := graduation.ComputeProgress(testToken, model.NotGraduated, metrics, thresholds)
		assert.GreaterOrEqual(t, progress.Percent, previous, "step %d", step)
		assert.LessOrEqual(t, progress.Percent, 100)
		previous = progress.Percent
	}
	assert.Equal(t, 100, previous)
}

func TestErrorsClassify(t *testing.T) {
	reasons := []model.Reason{{Metric: model.MetricVolume, Message: "volume24h below threshold (current 1, required 2)"}}
	err := fmt.Errorf("graduate: %w", graduation.NotEligible(reasons))

	assert.ErrorIs(t, err, graduation.ErrNotEligible)
	assert.NotErrorIs(t, err, graduation.ErrAlreadyGraduated)
	assert.Equal(t, graduation.KindNotEligible, graduation.KindOf(err))
	assert.Equal(t, reasons, graduation.ReasonsOf(err))
	assert.Contains(t, err.Error(), "volume24h below threshold")

	assert.True(t, graduation.IsAuthorization(graduation.Unauthorized("0xabc")))
	assert.False(t, graduation.IsAuthorization(graduation.InvalidRange("holders", 5, 10, 10_000)))
	assert.True(t, graduation.ExecutionFailed("pair creation", fmt.Errorf("boom")).Retryable())
}
