package graduation

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"graduationScope/internal/model"
)

// SampleSource returns stored metric samples for a token, oldest first.
type SampleSource interface {
	RecentSamples(ctx context.Context, token common.Address, since time.Time, limit int) ([]model.MetricSample, error)
}

// LinearTrend extrapolates each unmet metric from the first and last sample in the window.
type LinearTrend struct {
	Samples    SampleSource
	Window     time.Duration
	MinSamples int
	Limit      int
	Now        func() time.Time
}

// NewLinearTrend returns an estimator over the last window of samples.
func NewLinearTrend(samples SampleSource, window time.Duration) *LinearTrend {
	return &LinearTrend{
		Samples:    samples,
		Window:     window,
		MinSamples: 2,
		Limit:      500,
		Now:        time.Now,
	}
}

// Estimate returns 0 when every threshold is met, nil when the trend is flat, falling,
// or too short to extrapolate, and otherwise the slowest metric's projected time.
func (l *LinearTrend) Estimate(ctx context.Context, token common.Address, metrics model.Metrics, thresholds model.ThresholdSet) (*time.Duration, error) {
	gaps := unmetGaps(metrics, thresholds)
	if len(gaps) == 0 {
		zero := time.Duration(0)
		return &zero, nil
	}

	now := l.Now()
	samples, err := l.Samples.RecentSamples(ctx, token, now.Add(-l.Window), l.Limit)
	if err != nil {
		return nil, fmt.Errorf("load metric samples: %w", err)
	}
	minSamples := l.MinSamples
	if minSamples < 2 {
		minSamples = 2
	}
	if len(samples) < minSamples {
		return nil, nil
	}

	first, last := samples[0], samples[len(samples)-1]
	elapsed := last.Timestamp.Sub(first.Timestamp)
	if elapsed <= 0 {
		return nil, nil
	}

	var longest float64
	for _, gap := range gaps {
		delta := sampleValue(last, gap.metric) - sampleValue(first, gap.metric)
		if delta <= 0 {
			return nil, nil
		}
		rate := delta / elapsed.Seconds()
		seconds := gap.remaining / rate
		if seconds > longest {
			longest = seconds
		}
	}
	if math.IsInf(longest, 0) || longest > float64(math.MaxInt64)/float64(time.Second) {
		return nil, nil
	}
	eta := time.Duration(longest * float64(time.Second))
	return &eta, nil
}

type metricGap struct {
	metric    model.Metric
	remaining float64
}

func unmetGaps(metrics model.Metrics, thresholds model.ThresholdSet) []metricGap {
	var gaps []metricGap
	if !meets(metrics.MarketCap, thresholds.MarketCap) {
		gaps = append(gaps, metricGap{model.MetricMarketCap, bigGap(thresholds.MarketCap, metrics.MarketCap)})
	}
	if !meets(metrics.Volume24h, thresholds.Volume) {
		gaps = append(gaps, metricGap{model.MetricVolume, bigGap(thresholds.Volume, metrics.Volume24h)})
	}
	if metrics.HolderCount < thresholds.Holders {
		gaps = append(gaps, metricGap{model.MetricHolders, float64(thresholds.Holders - metrics.HolderCount)})
	}
	return gaps
}

func bigGap(required, current *big.Int) float64 {
	gap := new(big.Int).Set(required)
	if current != nil {
		gap.Sub(gap, current)
	}
	f, _ := new(big.Float).SetInt(gap).Float64()
	return f
}

func sampleValue(s model.MetricSample, metric model.Metric) float64 {
	switch metric {
	case model.MetricMarketCap:
		return bigFloat(s.MarketCap)
	case model.MetricVolume:
		return bigFloat(s.Volume24h)
	default:
		return float64(s.HolderCount)
	}
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
