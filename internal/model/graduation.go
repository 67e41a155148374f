package model

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Metric names a graduation criterion.
type Metric string

const (
	MetricMarketCap Metric = "marketCap"
	MetricVolume    Metric = "volume24h"
	MetricHolders   Metric = "holders"
)

// Reason is a failed graduation predicate.
type Reason struct {
	Metric   Metric `json:"metric,omitempty"`
	Current  string `json:"current,omitempty"`
	Required string `json:"required,omitempty"`
	Message  string `json:"message"`
}

func (r Reason) String() string {
	return r.Message
}

// CheckResult is the outcome of an eligibility check. Reasons is empty iff Eligible.
type CheckResult struct {
	Token      common.Address
	Eligible   bool
	Graduated  bool
	Reasons    []Reason
	Metrics    Metrics
	Thresholds ThresholdSet
	CheckedAt  time.Time
}

// ReasonMessages returns the human-readable reasons in order.
func (r CheckResult) ReasonMessages() []string {
	out := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		out = append(out, reason.Message)
	}
	return out
}

// MetricRatio is current/threshold clamped to [0,1].
// Excluded ratios had no threshold and count as satisfied.
type MetricRatio struct {
	Metric   Metric  `json:"metric"`
	Ratio    float64 `json:"ratio"`
	Excluded bool    `json:"excluded,omitempty"`
}

// Progress tracks how close a token is to graduation.
type Progress struct {
	Token              common.Address
	Ratios             []MetricRatio
	Percent            int
	TimeToGraduation   *time.Duration
	RecommendedActions []string
	Metrics            Metrics
	Thresholds         ThresholdSet
	Graduated          bool
}

// LiquidityPair is the external pool created once per token at graduation.
type LiquidityPair struct {
	Address   common.Address
	Token0    common.Address
	Token1    common.Address
	Reserves  Reserves
	CreatedAt time.Time
}

// GraduationOutcome is the result of a successful graduation.
type GraduationOutcome struct {
	Token            common.Address
	TxHash           common.Hash
	Pair             LiquidityPair
	ThresholdVersion uint64
	GraduatedAt      time.Time
	// RecordErr is set when the graduation committed but its record could not be written.
	RecordErr error
}

// MetricSample is a point-in-time snapshot used for trend estimation.
type MetricSample struct {
	Token       common.Address
	Timestamp   time.Time
	MarketCap   *big.Int
	Volume24h   *big.Int
	HolderCount uint64
}

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// WeiPerEther is 10^18.
func WeiPerEther() *big.Int {
	return new(big.Int).Set(weiPerEther)
}

// FormatEther renders a wei amount as a trimmed decimal ether string.
func FormatEther(value *big.Int) string {
	if value == nil {
		return "0"
	}
	sign := ""
	if value.Sign() < 0 {
		sign = "-"
	}
	abs := new(big.Int).Abs(value)
	rat := new(big.Rat).SetFrac(abs, weiPerEther)
	text := rat.FloatString(18)
	text = trimZeros(text)
	return sign + text
}

// FormatUint renders an integer metric value.
func FormatUint(value uint64) string {
	return fmt.Sprintf("%d", value)
}

func trimZeros(text string) string {
	end := len(text)
	for end > 0 && text[end-1] == '0' {
		end--
	}
	if end > 0 && text[end-1] == '.' {
		end--
	}
	return text[:end]
}
