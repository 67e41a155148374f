package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"graduationScope/internal/chain"
	"graduationScope/internal/graduation"
	"graduationScope/internal/model"
)

// Submitter simulates and sends transactions from one account.
type Submitter interface {
	From() common.Address
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error)
}

// ContractExecutor graduates tokens through the graduation contract. The contract re-checks
// eligibility and creates the pair inside one transaction, so a reverted call changes nothing.
type ContractExecutor struct {
	registry   *Registry
	submitter  Submitter
	receipts   chain.ReceiptReader
	contract   common.Address
	thresholds graduation.Thresholds
	prices     graduation.PriceFeed
	recorder   graduation.OutcomeRecorder
	logger     *zap.Logger
	now        func() time.Time
}

// ExecutorConfig wires a ContractExecutor.
type ExecutorConfig struct {
	Registry   *Registry
	Submitter  Submitter
	Receipts   chain.ReceiptReader
	Contract   common.Address
	Thresholds graduation.Thresholds
	Prices     graduation.PriceFeed
	Recorder   graduation.OutcomeRecorder
	Logger     *zap.Logger
}

// NewContractExecutor returns an executor bound to the graduation contract.
func NewContractExecutor(cfg ExecutorConfig) *ContractExecutor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContractExecutor{
		registry:   cfg.Registry,
		submitter:  cfg.Submitter,
		receipts:   cfg.Receipts,
		contract:   cfg.Contract,
		thresholds: cfg.Thresholds,
		prices:     cfg.Prices,
		recorder:   cfg.Recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Graduate preflights graduateToken, submits it once and waits for the receipt.
func (e *ContractExecutor) Graduate(ctx context.Context, token common.Address, opts graduation.Options) (model.GraduationOutcome, error) {
	tok, err := e.registry.GetTokenInfo(ctx, token)
	if err != nil {
		return model.GraduationOutcome{}, err
	}
	if tok.IsGraduated() {
		return model.GraduationOutcome{}, graduation.AlreadyGraduated(token.Hex())
	}
	if !tok.Active {
		return model.GraduationOutcome{}, graduation.NotEligible([]model.Reason{{Message: graduation.ReasonInactive}})
	}

	price, err := e.prices.NativeUSD(ctx)
	if err != nil {
		return model.GraduationOutcome{}, graduation.ExecutionFailed("price read", err)
	}
	thresholds, err := e.thresholds.GetThresholds(ctx, token, price)
	if err != nil {
		return model.GraduationOutcome{}, err
	}

	parsed, err := TokenGraduationABI()
	if err != nil {
		return model.GraduationOutcome{}, graduation.ExecutionFailed("encoding", err)
	}
	data, err := parsed.Pack("graduateToken", token, thresholds.MarketCap, thresholds.Volume, new(big.Int).SetUint64(thresholds.Holders))
	if err != nil {
		return model.GraduationOutcome{}, graduation.ExecutionFailed("encoding", fmt.Errorf("pack graduateToken: %w", err))
	}

	if _, err := e.submitter.Call(ctx, e.contract, data); err != nil {
		return model.GraduationOutcome{}, e.classifyRevert(ctx, tok, thresholds, "preflight", err)
	}

	tx, err := e.submitter.Send(ctx, e.contract, data)
	if err != nil {
		return model.GraduationOutcome{}, e.settleLoss(ctx, token, thresholds, "submission", err)
	}
	e.logger.Info("graduation submitted",
		zap.String("token", token.Hex()),
		zap.String("tx", tx.Hash().Hex()),
		zap.String("from", e.submitter.From().Hex()),
		zap.String("caller", opts.Caller),
	)

	receipt, err := chain.WaitReceipt(ctx, e.receipts, tx.Hash(), opts.ReceiptTimeout)
	if err != nil {
		return model.GraduationOutcome{}, graduation.ExecutionFailed("confirmation", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return model.GraduationOutcome{}, e.settleLoss(ctx, token, thresholds, "transaction",
			fmt.Errorf("tx %s reverted in block %s", tx.Hash().Hex(), receipt.BlockNumber))
	}

	pair, err := ParseTokenGraduated(receipt.Logs, e.contract, token)
	if err != nil {
		return model.GraduationOutcome{}, graduation.ExecutionFailed("receipt decoding", err)
	}

	outcome := model.GraduationOutcome{
		Token:            token,
		TxHash:           tx.Hash(),
		Pair:             pair,
		ThresholdVersion: thresholds.Config.Version,
		GraduatedAt:      pair.CreatedAt,
	}
	if outcome.GraduatedAt.IsZero() {
		outcome.GraduatedAt = e.now().UTC()
	}
	e.logger.Info("token graduated",
		zap.String("token", token.Hex()),
		zap.String("pair", pair.Address.Hex()),
		zap.String("block", receipt.BlockNumber.String()),
	)

	if e.recorder != nil {
		if err := e.recorder.RecordOutcome(ctx, outcome); err != nil {
			e.logger.Error("record graduation", zap.String("token", token.Hex()), zap.Error(err))
			outcome.RecordErr = fmt.Errorf("record outcome: %w", err)
		}
	}
	return outcome, nil
}

// settleLoss classifies a submission that failed after a passing preflight. A rival
// graduation or a metric drop in between is reported as such, not as an execution failure.
func (e *ContractExecutor) settleLoss(ctx context.Context, token common.Address, thresholds model.ThresholdSet, stage string, cause error) error {
	tok, err := e.registry.GetTokenInfo(ctx, token)
	if err != nil {
		e.logger.Warn("re-read token after failed graduation", zap.String("token", token.Hex()), zap.Error(err))
		return graduation.ExecutionFailed(stage, cause)
	}
	if tok.IsGraduated() {
		return graduation.AlreadyGraduated(token.Hex())
	}

	classified := e.classifyRevert(ctx, tok, thresholds, stage, cause)
	if graduation.KindOf(classified) != graduation.KindExecutionFailed {
		return classified
	}
	stats, err := e.registry.GetTokenStats(ctx, token)
	if err != nil {
		return classified
	}
	check := graduation.EvaluateToken(tok, model.ComposeMetrics(tok, stats), thresholds, e.now().UTC())
	if !check.Eligible && len(check.Reasons) > 0 {
		return graduation.NotEligible(check.Reasons)
	}
	return classified
}

// classifyRevert maps a revert to a typed error. Eligibility reverts are
// itemized from a fresh read of the engine stats.
func (e *ContractExecutor) classifyRevert(ctx context.Context, tok model.Token, thresholds model.ThresholdSet, stage string, err error) error {
	reason := strings.ToLower(RevertReason(err))
	switch {
	case strings.Contains(reason, "already graduated"):
		return graduation.AlreadyGraduated(tok.Address.Hex())
	case strings.Contains(reason, "not registered"):
		return graduation.TokenNotFound(tok.Address.Hex())
	case strings.Contains(reason, "not eligible"), strings.Contains(reason, "below threshold"):
		stats, statsErr := e.registry.GetTokenStats(ctx, tok.Address)
		if statsErr == nil {
			check := graduation.EvaluateToken(tok, model.ComposeMetrics(tok, stats), thresholds, e.now().UTC())
			if len(check.Reasons) > 0 {
				return graduation.NotEligible(check.Reasons)
			}
		}
		return graduation.NotEligible([]model.Reason{{Message: RevertReason(err)}})
	default:
		return graduation.ExecutionFailed(stage, err)
	}
}

// RevertReason extracts the Error(string) payload of a reverted call, falling back to the message.
func RevertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if raw, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason
				}
			}
		}
	}
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted: "); idx >= 0 {
		return msg[idx+len("execution reverted: "):]
	}
	return msg
}

// ParseTokenGraduated finds the TokenGraduated event for token emitted by contract.
func ParseTokenGraduated(logs []*types.Log, contract, token common.Address) (model.LiquidityPair, error) {
	parsed, err := TokenGraduationABI()
	if err != nil {
		return model.LiquidityPair{}, fmt.Errorf("parse graduation abi: %w", err)
	}
	event := parsed.Events["TokenGraduated"]

	for _, lg := range logs {
		if lg == nil || lg.Address != contract || len(lg.Topics) < 3 || lg.Topics[0] != event.ID {
			continue
		}
		if common.BytesToAddress(lg.Topics[1].Bytes()) != token {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil {
			return model.LiquidityPair{}, fmt.Errorf("unpack TokenGraduated: %w", err)
		}
		if len(values) != 3 {
			return model.LiquidityPair{}, fmt.Errorf("unpack TokenGraduated: got %d values", len(values))
		}
		nativeReserve, err := asBigInt(values[0])
		if err != nil {
			return model.LiquidityPair{}, fmt.Errorf("native reserve: %w", err)
		}
		tokenReserve, err := asBigInt(values[1])
		if err != nil {
			return model.LiquidityPair{}, fmt.Errorf("token reserve: %w", err)
		}
		ts, err := asUint64(values[2])
		if err != nil {
			return model.LiquidityPair{}, fmt.Errorf("timestamp: %w", err)
		}

		return model.LiquidityPair{
			Address:   common.BytesToAddress(lg.Topics[2].Bytes()),
			Token0:    token,
			Reserves:  model.Reserves{Native: nativeReserve, Token: tokenReserve},
			CreatedAt: time.Unix(int64(ts), 0).UTC(),
		}, nil
	}
	return model.LiquidityPair{}, errors.New("TokenGraduated event not found in receipt")
}
