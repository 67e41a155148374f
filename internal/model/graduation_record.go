package model

import (
	"encoding/json"
	"time"
)

// GraduationRecord is the durable representation of a completed graduation.
// Amounts are decimal wei strings.
type GraduationRecord struct {
	ChainID          uint64 `json:"chain_id"`
	Token            string `json:"token"`
	Pair             string `json:"pair"`
	Token0           string `json:"token0"`
	Token1           string `json:"token1"`
	ReserveNative    string `json:"reserve_native"`
	ReserveToken     string `json:"reserve_token"`
	TxHash           string `json:"tx_hash"`
	ThresholdVersion uint64 `json:"threshold_version"`
	GraduatedAt      string `json:"graduated_at"`
}

// NewGraduationRecord converts an outcome into its storage form.
func NewGraduationRecord(chainID uint64, outcome GraduationOutcome) GraduationRecord {
	return GraduationRecord{
		ChainID:          chainID,
		Token:            outcome.Token.Hex(),
		Pair:             outcome.Pair.Address.Hex(),
		Token0:           outcome.Pair.Token0.Hex(),
		Token1:           outcome.Pair.Token1.Hex(),
		ReserveNative:    intString(outcome.Pair.Reserves.Native),
		ReserveToken:     intString(outcome.Pair.Reserves.Token),
		TxHash:           outcome.TxHash.Hex(),
		ThresholdVersion: outcome.ThresholdVersion,
		GraduatedAt:      outcome.GraduatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// MarshalJSON ensures GraduationRecord is encoded with stable field names.
func (gr GraduationRecord) MarshalJSON() ([]byte, error) {
	type Alias GraduationRecord
	return json.Marshal(Alias(gr))
}

// UnmarshalJSON decodes a GraduationRecord from JSON.
func (gr *GraduationRecord) UnmarshalJSON(data []byte) error {
	type Alias GraduationRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*gr = GraduationRecord(a)
	return nil
}
