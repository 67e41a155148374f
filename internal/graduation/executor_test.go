package graduation_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduationScope/internal/graduation"
	"graduationScope/internal/ledger"
	"graduationScope/internal/market"
	"graduationScope/internal/model"
	"graduationScope/internal/threshold"
)

const ethPrice = 2000

var (
	creator   = common.HexToAddress("0xc0ffee0000000000000000000000000000000001")
	quoteAddr = common.HexToAddress("0x4200000000000000000000000000000000000006")
	factory   = common.HexToAddress("0xfac7000000000000000000000000000000000001")
)

type fixture struct {
	ledger   *ledger.Ledger
	pairs    *ledger.PairFactory
	store    *threshold.Store
	recorder *memoryRecorder
	service  *graduation.Service
	executor *graduation.Executor
}

type memoryRecorder struct {
	mu       sync.Mutex
	outcomes []model.GraduationOutcome
}

func (r *memoryRecorder) RecordOutcome(ctx context.Context, outcome model.GraduationOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func (r *memoryRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

type failingPairs struct{}

func (failingPairs) CreatePair(ctx context.Context, token common.Address, reserves model.Reserves) (model.LiquidityPair, error) {
	return model.LiquidityPair{}, errors.New("dex factory reverted")
}

func newFixture(t *testing.T, pairs graduation.PairFactory) *fixture {
	t.Helper()
	l := ledger.New(nil)
	memPairs := ledger.NewPairFactory(factory, quoteAddr)
	if pairs == nil {
		pairs = memPairs
	}
	admins, err := threshold.NewAdminSet([]string{creator.Hex()})
	require.NoError(t, err)
	store := threshold.NewStore(threshold.NewMemoryBackend(), admins, model.ThresholdConfig{}, nil)
	feed := market.StaticFeed(ethPrice)
	recorder := &memoryRecorder{}

	evaluator := graduation.NewEvaluator(market.NewProvider(l, l), store, feed, nil, nil)
	executor := graduation.NewExecutor(l, pairs, store, feed, recorder, nil)
	return &fixture{
		ledger:   l,
		pairs:    memPairs,
		store:    store,
		recorder: recorder,
		service:  graduation.NewService(l, evaluator, executor, 4, nil),
		executor: executor,
	}
}

// launch creates a token with the given USD market cap, USD volume and holders at ethPrice.
func (f *fixture) launch(t *testing.T, symbol string, mcapUSD, volumeUSD int64, holders uint64) common.Address {
	t.Helper()
	ctx := context.Background()
	tok, err := f.ledger.CreateToken(ctx, ledger.NewToken{
		Creator:     creator,
		Name:        symbol,
		Symbol:      symbol,
		TotalSupply: ether(1_000_000_000),
	})
	require.NoError(t, err)
	f.setUSD(t, tok.Address, mcapUSD, volumeUSD, holders)
	return tok.Address
}

func (f *fixture) setUSD(t *testing.T, token common.Address, mcapUSD, volumeUSD int64, holders uint64) {
	t.Helper()
	require.NoError(t, f.ledger.SetStats(context.Background(), token, model.TokenStats{
		MarketCap:   usd(mcapUSD),
		Volume24h:   usd(volumeUSD),
		HolderCount: holders,
		Reserves:    model.Reserves{Native: ether(12), Token: ether(200_000_000)},
	}))
}

func usd(amount int64) *big.Int {
	wei := new(big.Int).Mul(big.NewInt(amount), model.WeiPerEther())
	return wei.Quo(wei, big.NewInt(ethPrice))
}

func TestScenarioCheckProgressGraduate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	token := f.launch(t, "SCN", 150_000, 40_000, 1200)

	info, err := f.service.GraduationInfo(ctx, token)
	require.NoError(t, err)
	assert.False(t, info.Check.Eligible)
	require.Len(t, info.Check.Reasons, 1)
	assert.Equal(t, model.MetricVolume, info.Check.Reasons[0].Metric)
	assert.Equal(t, 93, info.Progress.Percent)
	assert.Equal(t, "SCN", info.Token.Symbol)

	f.setUSD(t, token, 150_000, 60_000, 1200)

	info, err = f.service.GraduationInfo(ctx, token)
	require.NoError(t, err)
	assert.True(t, info.Check.Eligible)
	assert.Empty(t, info.Check.Reasons)
	assert.Equal(t, 100, info.Progress.Percent)

	outcome, err := f.service.Graduate(ctx, token, graduation.Options{Caller: "test"})
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, outcome.Pair.Address)
	assert.NotEqual(t, common.Hash{}, outcome.TxHash)
	assert.EqualValues(t, 0, outcome.ThresholdVersion)

	_, err = f.service.Graduate(ctx, token, graduation.Options{Caller: "test"})
	assert.ErrorIs(t, err, graduation.ErrAlreadyGraduated)

	tok, err := f.ledger.GetTokenInfo(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.Graduated, tok.Status)
	require.NotNil(t, tok.LiquidityPair)
	assert.Equal(t, outcome.Pair.Address, *tok.LiquidityPair)

	check, err := f.service.Evaluator().CanGraduate(ctx, token)
	require.NoError(t, err)
	assert.False(t, check.Eligible)
	assert.Equal(t, graduation.ReasonAlreadyGraduated, check.Reasons[0].Message)

	assert.Equal(t, 1, f.pairs.Count())
	assert.Equal(t, 1, f.recorder.len())
}

func TestGraduateIneligibleNeverMutates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	token := f.launch(t, "LOW", 10_000, 1_000, 20)

	before, err := f.ledger.GetTokenStats(ctx, token)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.executor.Graduate(ctx, token, graduation.Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, graduation.ErrNotEligible)
		assert.Len(t, graduation.ReasonsOf(err), 3)
	}

	after, err := f.ledger.GetTokenStats(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	tok, err := f.ledger.GetTokenInfo(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.NotGraduated, tok.Status)
	assert.Nil(t, tok.LiquidityPair)
	assert.Equal(t, 0, f.pairs.Count())
	assert.Equal(t, 0, f.recorder.len())
}

func TestGraduateRollsBackWhenPairCreationFails(t *testing.T) {
	f := newFixture(t, failingPairs{})
	ctx := context.Background()
	token := f.launch(t, "RBK", 200_000, 80_000, 2000)

	_, err := f.executor.Graduate(ctx, token, graduation.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, graduation.ErrExecutionFailed)
	assert.Contains(t, err.Error(), "dex factory reverted")

	tok, err := f.ledger.GetTokenInfo(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.NotGraduated, tok.Status)
	assert.Nil(t, tok.LiquidityPair)

	stats, err := f.ledger.GetTokenStats(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, ether(12), stats.Reserves.Native)
	assert.Equal(t, 0, f.recorder.len())

	// A caller retry re-runs the whole check-then-act sequence.
	retry := graduation.NewExecutor(f.ledger, f.pairs, f.store, market.StaticFeed(ethPrice), f.recorder, nil)
	outcome, err := retry.Graduate(ctx, token, graduation.Options{})
	require.NoError(t, err)
	assert.Equal(t, ether(12), outcome.Pair.Reserves.Native)

	stats, err = f.ledger.GetTokenStats(ctx, token)
	require.NoError(t, err)
	assert.True(t, stats.Reserves.IsEmpty())
}

func TestGraduateConcurrentCallersYieldOnePair(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	token := f.launch(t, "RACE", 500_000, 100_000, 5000)

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.executor.Graduate(ctx, token, graduation.Options{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			others = append(others, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, others, callers-1)
	for _, err := range others {
		assert.True(t, errors.Is(err, graduation.ErrAlreadyGraduated) || errors.Is(err, graduation.ErrNotEligible), err.Error())
	}
	assert.Equal(t, 1, f.pairs.Count())
	assert.Equal(t, 1, f.recorder.len())
}

func TestGraduateUnknownToken(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.executor.Graduate(context.Background(), common.HexToAddress("0xdead"), graduation.Options{})
	assert.ErrorIs(t, err, graduation.ErrTokenNotFound)
}

func TestGraduateUsesOverrideThresholds(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	token := f.launch(t, "OVR", 20_000, 5_000, 50)

	_, err := f.executor.Graduate(ctx, token, graduation.Options{})
	require.ErrorIs(t, err, graduation.ErrNotEligible)

	_, err = f.store.SetOverride(ctx, token, threshold.UpdateRequest{
		MarketCapUSD: 10_000, VolumeUSD: 5_000, Holders: 50, ReferencePrice: ethPrice, Caller: creator.Hex(),
	})
	require.NoError(t, err)

	outcome, err := f.executor.Graduate(ctx, token, graduation.Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, outcome.ThresholdVersion)
}

func TestGraduateRefusesDeactivatedToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	token := f.launch(t, "OFF", 200_000, 80_000, 2000)
	require.NoError(t, f.ledger.Deactivate(ctx, token))

	info, err := f.service.GraduationInfo(ctx, token)
	require.NoError(t, err)
	assert.False(t, info.Check.Eligible)
	require.NotEmpty(t, info.Check.Reasons)
	assert.Equal(t, graduation.ReasonInactive, info.Check.Reasons[0].Message)

	_, err = f.executor.Graduate(ctx, token, graduation.Options{})
	require.ErrorIs(t, err, graduation.ErrNotEligible)
	assert.Equal(t, graduation.ReasonInactive, graduation.ReasonsOf(err)[0].Message)
	assert.Equal(t, 0, f.pairs.Count())
}

type brokenRecorder struct{}

func (brokenRecorder) RecordOutcome(context.Context, model.GraduationOutcome) error {
	return errors.New("records volume unavailable")
}

func TestGraduateSurfacesRecordFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	token := f.launch(t, "REC", 200_000, 80_000, 2000)

	exec := graduation.NewExecutor(f.ledger, f.pairs, f.store, market.StaticFeed(ethPrice), brokenRecorder{}, nil)
	outcome, err := exec.Graduate(ctx, token, graduation.Options{})
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, outcome.Pair.Address)
	require.Error(t, outcome.RecordErr)
	assert.Contains(t, outcome.RecordErr.Error(), "records volume unavailable")

	tok, err := f.ledger.GetTokenInfo(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.Graduated, tok.Status)
}
