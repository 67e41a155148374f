package graduation

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"graduationScope/internal/model"
)

// ReasonAlreadyGraduated is the single reason reported for graduated tokens.
const ReasonAlreadyGraduated = "already graduated"

// ReasonInactive leads the reasons of a deactivated token.
const ReasonInactive = "token is inactive"

// EvaluateToken is Evaluate for a registry record. A deactivated token is never eligible.
func EvaluateToken(tok model.Token, metrics model.Metrics, thresholds model.ThresholdSet, now time.Time) model.CheckResult {
	result := Evaluate(tok.Address, tok.Status, metrics, thresholds, now)
	if !tok.Active && !result.Graduated {
		result.Eligible = false
		result.Reasons = append([]model.Reason{{Message: ReasonInactive}}, result.Reasons...)
	}
	return result
}

// Evaluate decides eligibility from a metrics snapshot and the applicable thresholds.
// All three predicates use >= and must hold together.
func Evaluate(token common.Address, status model.GraduationStatus, metrics model.Metrics, thresholds model.ThresholdSet, now time.Time) model.CheckResult {
	result := model.CheckResult{
		Token:      token,
		Metrics:    metrics,
		Thresholds: thresholds,
		CheckedAt:  now,
		Reasons:    []model.Reason{},
	}

	if status == model.Graduated {
		result.Graduated = true
		result.Reasons = append(result.Reasons, model.Reason{Message: ReasonAlreadyGraduated})
		return result
	}

	if !meets(metrics.MarketCap, thresholds.MarketCap) {
		result.Reasons = append(result.Reasons, belowThreshold(model.MetricMarketCap,
			model.FormatEther(metrics.MarketCap), model.FormatEther(thresholds.MarketCap)))
	}
	if !meets(metrics.Volume24h, thresholds.Volume) {
		result.Reasons = append(result.Reasons, belowThreshold(model.MetricVolume,
			model.FormatEther(metrics.Volume24h), model.FormatEther(thresholds.Volume)))
	}
	if metrics.HolderCount < thresholds.Holders {
		result.Reasons = append(result.Reasons, belowThreshold(model.MetricHolders,
			model.FormatUint(metrics.HolderCount), model.FormatUint(thresholds.Holders)))
	}

	result.Eligible = len(result.Reasons) == 0
	return result
}

func meets(current, required *big.Int) bool {
	if required == nil || required.Sign() <= 0 {
		return true
	}
	if current == nil {
		return false
	}
	return current.Cmp(required) >= 0
}

func belowThreshold(metric model.Metric, current, required string) model.Reason {
	return model.Reason{
		Metric:   metric,
		Current:  current,
		Required: required,
		Message:  fmt.Sprintf("%s below threshold (current %s, required %s)", metric, current, required),
	}
}

// ComputeProgress measures how close a token is to its thresholds.
// Metrics without a threshold are excluded from the mean. The ETA is attached by the caller.
func ComputeProgress(token common.Address, status model.GraduationStatus, metrics model.Metrics, thresholds model.ThresholdSet) model.Progress {
	progress := model.Progress{
		Token:              token,
		Metrics:            metrics,
		Thresholds:         thresholds,
		Graduated:          status == model.Graduated,
		RecommendedActions: []string{},
	}

	type entry struct {
		ratio  *big.Rat
		metric model.Metric
		action func() string
	}

	entries := []entry{
		{
			ratio:  clampedRatio(metrics.MarketCap, thresholds.MarketCap),
			metric: model.MetricMarketCap,
			action: func() string {
				gap := new(big.Int).Sub(thresholds.MarketCap, metrics.MarketCap)
				return fmt.Sprintf("Grow market cap by %s to reach %s", model.FormatEther(gap), model.FormatEther(thresholds.MarketCap))
			},
		},
		{
			ratio:  clampedRatio(metrics.Volume24h, thresholds.Volume),
			metric: model.MetricVolume,
			action: func() string {
				gap := new(big.Int).Sub(thresholds.Volume, metrics.Volume24h)
				return fmt.Sprintf("Increase 24h trading volume by %s to reach %s", model.FormatEther(gap), model.FormatEther(thresholds.Volume))
			},
		},
		{
			ratio:  clampedRatio(new(big.Int).SetUint64(metrics.HolderCount), new(big.Int).SetUint64(thresholds.Holders)),
			metric: model.MetricHolders,
			action: func() string {
				return fmt.Sprintf("Attract %d more holders to reach %d", thresholds.Holders-metrics.HolderCount, thresholds.Holders)
			},
		},
	}

	sum := new(big.Rat)
	included := 0
	below := make([]entry, 0, len(entries))
	for _, e := range entries {
		if e.ratio == nil {
			progress.Ratios = append(progress.Ratios, model.MetricRatio{Metric: e.metric, Ratio: 1, Excluded: true})
			continue
		}
		f, _ := e.ratio.Float64()
		progress.Ratios = append(progress.Ratios, model.MetricRatio{Metric: e.metric, Ratio: f})
		sum.Add(sum, e.ratio)
		included++
		if e.ratio.Cmp(one) < 0 {
			below = append(below, e)
		}
	}

	if included == 0 || progress.Graduated {
		progress.Percent = 100
	} else {
		pct := new(big.Rat).Mul(sum, big.NewRat(100, int64(included)))
		progress.Percent = int(new(big.Int).Quo(pct.Num(), pct.Denom()).Int64())
	}

	if progress.Graduated {
		return progress
	}

	sort.SliceStable(below, func(i, j int) bool {
		return below[i].ratio.Cmp(below[j].ratio) < 0
	})
	for _, e := range below {
		progress.RecommendedActions = append(progress.RecommendedActions, e.action())
	}

	return progress
}

var one = big.NewRat(1, 1)

// clampedRatio returns min(current/required, 1), or nil when required is zero.
func clampedRatio(current, required *big.Int) *big.Rat {
	if required == nil || required.Sign() <= 0 {
		return nil
	}
	if current == nil || current.Sign() <= 0 {
		return new(big.Rat)
	}
	ratio := new(big.Rat).SetFrac(current, required)
	if ratio.Cmp(one) > 0 {
		return new(big.Rat).Set(one)
	}
	return ratio
}
