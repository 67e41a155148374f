package storage

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduationScope/internal/model"
)

func sampleOutcome(token string) model.GraduationOutcome {
	return model.GraduationOutcome{
		Token:  common.HexToAddress(token),
		TxHash: common.HexToHash("0xabc"),
		Pair: model.LiquidityPair{
			Address: common.HexToAddress("0x3333333333333333333333333333333333333333"),
			Token0:  common.HexToAddress(token),
			Token1:  common.HexToAddress("0x4444444444444444444444444444444444444444"),
			Reserves: model.Reserves{
				Native: big.NewInt(12),
				Token:  big.NewInt(200),
			},
		},
		ThresholdVersion: 3,
		GraduatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "records.jsonl")
	sink := NewJsonlStorage(path)
	ctx := context.Background()

	records, err := sink.ReadRecords()
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, sink.PutRecords(ctx, []model.GraduationRecord{model.NewGraduationRecord(1, sampleOutcome("0x1111111111111111111111111111111111111111"))}))
	require.NoError(t, sink.PutRecords(ctx, []model.GraduationRecord{model.NewGraduationRecord(1, sampleOutcome("0x2222222222222222222222222222222222222222"))}))
	require.NoError(t, sink.PutRecords(ctx, nil))

	records, err = sink.ReadRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", records[0].Token)
	assert.Equal(t, "12", records[0].ReserveNative)
	assert.Equal(t, uint64(3), records[1].ThresholdVersion)
	assert.Equal(t, "2026-03-01T12:00:00Z", records[1].GraduatedAt)
}

type failingSink struct{ calls int }

func (f *failingSink) PutRecords(context.Context, []model.GraduationRecord) error {
	f.calls++
	return errors.New("disk full")
}

func TestRecorderWritesEverySink(t *testing.T) {
	jsonl := NewJsonlStorage(filepath.Join(t.TempDir(), "records.jsonl"))
	failing := &failingSink{}
	recorder := NewRecorder(31337, failing, nil, jsonl)

	err := recorder.RecordOutcome(context.Background(), sampleOutcome("0x1111111111111111111111111111111111111111"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, failing.calls)

	records, err := jsonl.ReadRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(31337), records[0].ChainID)
}
