package model

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// GraduationStatus is the one-way migration state of a token.
type GraduationStatus uint8

const (
	NotGraduated GraduationStatus = iota
	Graduated
)

func (s GraduationStatus) String() string {
	switch s {
	case NotGraduated:
		return "not_graduated"
	case Graduated:
		return "graduated"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MarshalText encodes the status by name.
func (s GraduationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *GraduationStatus) UnmarshalText(data []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case "not_graduated", "":
		*s = NotGraduated
	case "graduated":
		*s = Graduated
	default:
		return fmt.Errorf("unknown graduation status: %s", data)
	}
	return nil
}

// Token is the registry record of a launched creator token.
// TotalSupply uses 18 decimals and never changes after creation.
type Token struct {
	Address       common.Address
	Creator       common.Address
	Name          string
	Symbol        string
	TotalSupply   *big.Int
	CreatedAt     time.Time
	Active        bool
	TotalVolume   *big.Int
	Status        GraduationStatus
	LiquidityPair *common.Address
}

// IsGraduated reports whether the token has migrated to a liquidity pair.
func (t Token) IsGraduated() bool {
	return t.Status == Graduated
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (t Token) Clone() Token {
	out := t
	out.TotalSupply = cloneInt(t.TotalSupply)
	out.TotalVolume = cloneInt(t.TotalVolume)
	if t.LiquidityPair != nil {
		pair := *t.LiquidityPair
		out.LiquidityPair = &pair
	}
	return out
}

// TokenStats is the trading engine view of a token.
// Prices and values are native-currency wei; CurrentPrice is per whole token.
type TokenStats struct {
	CurrentPrice *big.Int
	MarketCap    *big.Int
	Volume24h    *big.Int
	HolderCount  uint64
	Reserves     Reserves
}

// Clone returns a deep copy.
func (s TokenStats) Clone() TokenStats {
	return TokenStats{
		CurrentPrice: cloneInt(s.CurrentPrice),
		MarketCap:    cloneInt(s.MarketCap),
		Volume24h:    cloneInt(s.Volume24h),
		HolderCount:  s.HolderCount,
		Reserves:     s.Reserves.Clone(),
	}
}

// Reserves are the bonding-curve (or pair) balances of a token market.
type Reserves struct {
	Native *big.Int `json:"native"`
	Token  *big.Int `json:"token"`
}

// Clone returns a deep copy.
func (r Reserves) Clone() Reserves {
	return Reserves{Native: cloneInt(r.Native), Token: cloneInt(r.Token)}
}

// IsEmpty reports whether both sides are zero.
func (r Reserves) IsEmpty() bool {
	return (r.Native == nil || r.Native.Sign() == 0) && (r.Token == nil || r.Token.Sign() == 0)
}

// Metrics is the market snapshot the evaluator consumes.
type Metrics struct {
	MarketCap    *big.Int
	Volume24h    *big.Int
	HolderCount  uint64
	CurrentPrice *big.Int
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ComposeMetrics derives the evaluator snapshot from registry and engine state.
// Market cap falls back to price * supply when the engine reports none.
func ComposeMetrics(token Token, stats TokenStats) Metrics {
	marketCap := cloneInt(stats.MarketCap)
	if (marketCap == nil || marketCap.Sign() == 0) && stats.CurrentPrice != nil && token.TotalSupply != nil {
		marketCap = new(big.Int).Mul(stats.CurrentPrice, token.TotalSupply)
		marketCap.Quo(marketCap, weiPerEther)
	}
	if marketCap == nil {
		marketCap = big.NewInt(0)
	}
	volume := cloneInt(stats.Volume24h)
	if volume == nil {
		volume = big.NewInt(0)
	}
	price := cloneInt(stats.CurrentPrice)
	if price == nil {
		price = big.NewInt(0)
	}
	return Metrics{
		MarketCap:    marketCap,
		Volume24h:    volume,
		HolderCount:  stats.HolderCount,
		CurrentPrice: price,
	}
}
