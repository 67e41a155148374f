package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduationScope/internal/graduation"
	"graduationScope/internal/model"
)

var (
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), model.WeiPerEther())
}

func newToken(t *testing.T, l *Ledger) model.Token {
	t.Helper()
	tok, err := l.CreateToken(context.Background(), NewToken{
		Creator:     alice,
		Name:        "Test",
		Symbol:      "TST",
		TotalSupply: ether(1_000_000),
	})
	require.NoError(t, err)
	return tok
}

func TestCreateTokenRegisters(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	tok := newToken(t, l)

	ok, err := l.IsRegisteredToken(ctx, tok.Address)
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := l.GetAllTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{tok.Address}, all)

	info, err := l.GetTokenInfo(ctx, tok.Address)
	require.NoError(t, err)
	assert.True(t, info.Active)
	assert.Equal(t, model.NotGraduated, info.Status)

	_, err = l.CreateToken(ctx, NewToken{Address: tok.Address, TotalSupply: ether(1)})
	assert.Error(t, err)

	_, err = l.GetTokenInfo(ctx, common.HexToAddress("0xdead"))
	assert.ErrorIs(t, err, graduation.ErrTokenNotFound)
}

func TestRecordTradeUpdatesStats(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })
	tok := newToken(t, l)

	require.NoError(t, l.RecordTrade(ctx, Trade{Token: tok.Address, Trader: alice, Side: Buy, NativeAmount: ether(10), TokenAmount: ether(100_000)}))
	require.NoError(t, l.RecordTrade(ctx, Trade{Token: tok.Address, Trader: bob, Side: Buy, NativeAmount: ether(5), TokenAmount: ether(50_000)}))

	stats, err := l.GetTokenStats(ctx, tok.Address)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.HolderCount)
	assert.Equal(t, ether(15), stats.Volume24h)
	assert.Equal(t, ether(15), stats.Reserves.Native)
	assert.Equal(t, ether(850_000), stats.Reserves.Token)
	// 15 native / 850k tokens per whole token.
	wantPrice := new(big.Int).Quo(new(big.Int).Mul(ether(15), model.WeiPerEther()), ether(850_000))
	assert.Equal(t, wantPrice, stats.CurrentPrice)

	require.NoError(t, l.RecordTrade(ctx, Trade{Token: tok.Address, Trader: bob, Side: Sell, NativeAmount: ether(5), TokenAmount: ether(50_000)}))
	stats, err = l.GetTokenStats(ctx, tok.Address)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.HolderCount)
	assert.Equal(t, ether(20), stats.Volume24h)

	err = l.RecordTrade(ctx, Trade{Token: tok.Address, Trader: bob, Side: Sell, NativeAmount: ether(1), TokenAmount: ether(1)})
	assert.Error(t, err)

	now = now.Add(25 * time.Hour)
	stats, err = l.GetTokenStats(ctx, tok.Address)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Volume24h.Sign())

	info, err := l.GetTokenInfo(ctx, tok.Address)
	require.NoError(t, err)
	assert.Equal(t, ether(20), info.TotalVolume)
}

func TestAtomicCommitsOnlyOnSuccess(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	tok := newToken(t, l)
	pair := model.LiquidityPair{Address: common.HexToAddress("0x9a19")}

	boom := errors.New("boom")
	err := l.Atomic(ctx, tok.Address, func(tx graduation.Tx) error {
		tx.MarkGraduated(pair)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	info, err := l.GetTokenInfo(ctx, tok.Address)
	require.NoError(t, err)
	assert.Equal(t, model.NotGraduated, info.Status)

	var hash common.Hash
	err = l.Atomic(ctx, tok.Address, func(tx graduation.Tx) error {
		hash = tx.MarkGraduated(pair)
		return nil
	})
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	info, err = l.GetTokenInfo(ctx, tok.Address)
	require.NoError(t, err)
	assert.Equal(t, model.Graduated, info.Status)
	require.NotNil(t, info.LiquidityPair)
	assert.Equal(t, pair.Address, *info.LiquidityPair)

	stats, err := l.GetTokenStats(ctx, tok.Address)
	require.NoError(t, err)
	assert.True(t, stats.Reserves.IsEmpty())

	err = l.RecordTrade(ctx, Trade{Token: tok.Address, Trader: alice, Side: Buy, NativeAmount: ether(1), TokenAmount: ether(1)})
	assert.ErrorIs(t, err, graduation.ErrAlreadyGraduated)
}

func TestAtomicUnknownToken(t *testing.T) {
	l := New(nil)
	err := l.Atomic(context.Background(), common.HexToAddress("0xdead"), func(tx graduation.Tx) error {
		t.Fatal("unit must not run")
		return nil
	})
	assert.ErrorIs(t, err, graduation.ErrTokenNotFound)
}

func TestDeactivateBlocksTrades(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	tok := newToken(t, l)

	require.NoError(t, l.Deactivate(ctx, tok.Address))
	info, err := l.GetTokenInfo(ctx, tok.Address)
	require.NoError(t, err)
	assert.False(t, info.Active)

	err = l.RecordTrade(ctx, Trade{Token: tok.Address, Trader: alice, Side: Buy, NativeAmount: ether(1), TokenAmount: ether(1)})
	assert.Error(t, err)
}

func TestPairFactoryOnePairPerToken(t *testing.T) {
	f := NewPairFactory(common.HexToAddress("0xfac7"), common.HexToAddress("0x4200"))
	ctx := context.Background()
	token := common.HexToAddress("0x1234")

	pair, err := f.CreatePair(ctx, token, model.Reserves{Native: ether(1), Token: ether(2)})
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, pair.Address)
	assert.Equal(t, common.HexToAddress("0x1234"), pair.Token0)

	_, err = f.CreatePair(ctx, token, model.Reserves{})
	assert.Error(t, err)
	assert.Equal(t, 1, f.Count())

	got, ok := f.Pair(token)
	require.True(t, ok)
	assert.Equal(t, pair.Address, got.Address)
}
