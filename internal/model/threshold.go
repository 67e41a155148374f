package model

import (
	"math/big"
	"time"
)

// ThresholdSource says where an applied threshold set came from.
type ThresholdSource string

const (
	ThresholdSourceDefault  ThresholdSource = "default"
	ThresholdSourceOverride ThresholdSource = "override"
)

// ThresholdConfig is the USD-denominated threshold record kept by the store.
type ThresholdConfig struct {
	MarketCapUSD uint64    `json:"market_cap_usd"`
	VolumeUSD    uint64    `json:"volume_usd"`
	Holders      uint64    `json:"holders"`
	Version      uint64    `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
	UpdatedBy    string    `json:"updated_by,omitempty"`
}

// ThresholdSet is a ThresholdConfig converted into native-currency wei.
type ThresholdSet struct {
	MarketCap      *big.Int
	Volume         *big.Int
	Holders        uint64
	ReferencePrice float64
	Source         ThresholdSource
	Config         ThresholdConfig
}
