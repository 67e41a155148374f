package graduation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"graduationScope/internal/model"
)

// Tx is the view of one token inside a serialized, failure-atomic ledger unit.
type Tx interface {
	Token() model.Token
	Stats() model.TokenStats
	// MarkGraduated stages the status flip, the reserve withdrawal and the pair reference.
	// Nothing is visible outside the unit until it commits.
	MarkGraduated(pair model.LiquidityPair) common.Hash
}

// Substrate runs fn as one indivisible unit relative to every other mutation of token.
// State staged through tx commits only when fn returns nil.
type Substrate interface {
	Atomic(ctx context.Context, token common.Address, fn func(tx Tx) error) error
}

// PairFactory creates the external liquidity pair seeded with reserves.
type PairFactory interface {
	CreatePair(ctx context.Context, token common.Address, reserves model.Reserves) (model.LiquidityPair, error)
}

// OutcomeRecorder persists successful graduations.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome model.GraduationOutcome) error
}

// Graduator performs the graduation write path.
type Graduator interface {
	Graduate(ctx context.Context, token common.Address, opts Options) (model.GraduationOutcome, error)
}

// Options tunes a single graduation call.
type Options struct {
	Caller string
	// ReceiptTimeout bounds the caller-side wait for confirmation on submitting backends.
	ReceiptTimeout time.Duration
}

// Executor graduates tokens on an atomic substrate.
type Executor struct {
	substrate  Substrate
	pairs      PairFactory
	thresholds Thresholds
	prices     PriceFeed
	recorder   OutcomeRecorder
	logger     *zap.Logger
	now        func() time.Time
}

// NewExecutor wires an Executor. recorder may be nil.
func NewExecutor(substrate Substrate, pairs PairFactory, thresholds Thresholds, prices PriceFeed, recorder OutcomeRecorder, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		substrate:  substrate,
		pairs:      pairs,
		thresholds: thresholds,
		prices:     prices,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Graduate re-checks eligibility and migrates the token in one atomic unit.
// It never retries. Any failure leaves the token exactly as it was.
func (e *Executor) Graduate(ctx context.Context, token common.Address, opts Options) (model.GraduationOutcome, error) {
	price, err := e.prices.NativeUSD(ctx)
	if err != nil {
		return model.GraduationOutcome{}, ExecutionFailed("price read", err)
	}

	var outcome model.GraduationOutcome
	err = e.substrate.Atomic(ctx, token, func(tx Tx) error {
		tok := tx.Token()
		if tok.IsGraduated() {
			return AlreadyGraduated(token.Hex())
		}

		thresholds, err := e.thresholds.GetThresholds(ctx, token, price)
		if err != nil {
			return err
		}
		stats := tx.Stats()
		check := EvaluateToken(tok, model.ComposeMetrics(tok, stats), thresholds, e.now().UTC())
		if !check.Eligible {
			return NotEligible(check.Reasons)
		}
		if stats.Reserves.IsEmpty() {
			return ExecutionFailed("reserve withdrawal", errors.New("bonding curve reserves are empty"))
		}

		pair, err := e.pairs.CreatePair(ctx, token, stats.Reserves.Clone())
		if err != nil {
			return ExecutionFailed("pair creation", err)
		}

		outcome = model.GraduationOutcome{
			Token:            token,
			TxHash:           tx.MarkGraduated(pair),
			Pair:             pair,
			ThresholdVersion: thresholds.Config.Version,
			GraduatedAt:      e.now().UTC(),
		}
		return nil
	})
	if err != nil {
		e.logger.Info("graduation rejected",
			zap.String("token", token.Hex()),
			zap.String("caller", opts.Caller),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		return model.GraduationOutcome{}, err
	}

	e.logger.Info("token graduated",
		zap.String("token", token.Hex()),
		zap.String("pair", outcome.Pair.Address.Hex()),
		zap.String("tx", outcome.TxHash.Hex()),
		zap.String("caller", opts.Caller),
	)
	outcome.RecordErr = e.record(ctx, outcome)
	return outcome, nil
}

func (e *Executor) record(ctx context.Context, outcome model.GraduationOutcome) error {
	if e.recorder == nil {
		return nil
	}
	if err := e.recorder.RecordOutcome(ctx, outcome); err != nil {
		err = fmt.Errorf("record outcome: %w", err)
		e.logger.Error("record graduation", zap.String("token", outcome.Token.Hex()), zap.Error(err))
		return err
	}
	return nil
}
