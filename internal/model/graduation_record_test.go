package model

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraduationRecordStringAmounts(t *testing.T) {
	outcome := GraduationOutcome{
		Token:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		TxHash: common.HexToHash("0xabc"),
		Pair: LiquidityPair{
			Address: common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Token0:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Token1:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
			Reserves: Reserves{
				Native: new(big.Int).Mul(big.NewInt(12), WeiPerEther()),
				Token:  big.NewInt(5000),
			},
		},
		ThresholdVersion: 3,
		GraduatedAt:      time.Unix(1700000000, 0),
	}

	record := NewGraduationRecord(56, outcome)
	data, err := json.Marshal(record)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "12000000000000000000", decoded["reserve_native"])
	assert.Equal(t, "5000", decoded["reserve_token"])
	assert.Equal(t, "2023-11-14T22:13:20Z", decoded["graduated_at"])
	assert.EqualValues(t, 3, decoded["threshold_version"])

	var back GraduationRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, record, back)
}

func TestFormatEther(t *testing.T) {
	cases := map[string]*big.Int{
		"0":      nil,
		"1":      WeiPerEther(),
		"1.5":    new(big.Int).Div(new(big.Int).Mul(big.NewInt(3), WeiPerEther()), big.NewInt(2)),
		"-0.25":  new(big.Int).Div(WeiPerEther(), big.NewInt(-4)),
		"0.0001": new(big.Int).Div(WeiPerEther(), big.NewInt(10000)),
	}
	for want, value := range cases {
		assert.Equal(t, want, FormatEther(value))
	}
}

func TestGraduationStatusText(t *testing.T) {
	data, err := json.Marshal(Graduated)
	require.NoError(t, err)
	assert.Equal(t, `"graduated"`, string(data))

	var status GraduationStatus
	require.NoError(t, json.Unmarshal([]byte(`"not_graduated"`), &status))
	assert.Equal(t, NotGraduated, status)
	assert.Error(t, json.Unmarshal([]byte(`"pending"`), &status))
}
