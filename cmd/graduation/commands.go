package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"graduationScope/internal/api"
	"graduationScope/internal/config"
	"graduationScope/internal/graduation"
	"graduationScope/internal/storage"
	"graduationScope/internal/threshold"
)

// session is one command invocation: its config, logger and wired engine.
type session struct {
	ctx    context.Context
	cfg    config.SampleConfig
	logger *zap.Logger
	app    *app
	out    io.Writer
	close  func()
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSample(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a, err := newApp(ctx, cfg.Config, appOptions{window: cfg.Window, checkpoint: cfg.Checkpoint}, logger)
	if err != nil {
		stop()
		_ = logger.Sync()
		return nil, err
	}
	return &session{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger,
		app:    a,
		out:    cmd.OutOrStdout(),
		close: func() {
			a.Close()
			stop()
			_ = logger.Sync()
		},
	}, nil
}

func (s *session) print(v interface{}) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseToken(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, graduation.InvalidValue("invalid token address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	token, err := parseToken(args[0])
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	info, err := s.app.service.GraduationInfo(s.ctx, token)
	if err != nil {
		return err
	}
	return s.print(api.NewInfoResponse(info))
}

func runProgress(cmd *cobra.Command, args []string) error {
	token, err := parseToken(args[0])
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	progress, err := s.app.service.Evaluator().GetProgress(s.ctx, token)
	if err != nil {
		return err
	}
	return s.print(api.NewProgressView(progress))
}

func runGraduate(cmd *cobra.Command, args []string) error {
	token, err := parseToken(args[0])
	if err != nil {
		return err
	}
	caller, _ := cmd.Flags().GetString("caller")
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	outcome, err := s.app.service.Graduate(s.ctx, token, graduation.Options{
		Caller:         caller,
		ReceiptTimeout: s.cfg.ReceiptTimeout,
	})
	if err != nil {
		return err
	}
	s.logger.Info("token graduated",
		zap.String("token", token.Hex()),
		zap.String("pair", outcome.Pair.Address.Hex()),
		zap.String("tx", outcome.TxHash.Hex()),
	)
	if outcome.RecordErr != nil {
		s.logger.Warn("graduation not recorded", zap.String("token", token.Hex()), zap.Error(outcome.RecordErr))
	}
	return s.print(api.NewGraduateResponse(outcome))
}

func runReady(cmd *cobra.Command, _ []string) error {
	minProgress, _ := cmd.Flags().GetInt("min-progress")
	exists, _ := cmd.Flags().GetBool("exists")
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if exists {
		ready, err := s.app.service.HasTokensReadyToGraduate(s.ctx)
		if err != nil {
			return err
		}
		return s.print(map[string]bool{"hasReadyTokens": ready})
	}
	nearing, err := s.app.service.ListNearingGraduation(s.ctx, minProgress)
	if err != nil {
		return err
	}
	return s.print(api.NewReadyResponse(nearing, minProgress))
}

// thresholdTarget reads --token; ok is false for the defaults.
func thresholdTarget(cmd *cobra.Command) (common.Address, bool, error) {
	raw, _ := cmd.Flags().GetString("token")
	if raw == "" {
		return common.Address{}, false, nil
	}
	token, err := parseToken(raw)
	return token, err == nil, err
}

func (s *session) refPrice(cmd *cobra.Command) (float64, error) {
	price, _ := cmd.Flags().GetFloat64("ref-price")
	if price != 0 {
		return price, threshold.ValidatePrice(price)
	}
	price, err := s.app.prices.NativeUSD(s.ctx)
	if err != nil {
		return 0, fmt.Errorf("read native price: %w", err)
	}
	return price, nil
}

func runThresholdsGet(cmd *cobra.Command, _ []string) error {
	token, isToken, err := thresholdTarget(cmd)
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	price, err := s.refPrice(cmd)
	if err != nil {
		return err
	}
	if isToken {
		set, err := s.app.thresholds.GetThresholds(s.ctx, token, price)
		if err != nil {
			return err
		}
		return s.print(api.NewThresholdsView(set))
	}
	set, err := s.app.thresholds.DefaultThresholdsUSD(s.ctx, price)
	if err != nil {
		return err
	}
	return s.print(api.NewThresholdsView(set))
}

func runThresholdsSet(cmd *cobra.Command, _ []string) error {
	token, isToken, err := thresholdTarget(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	caller, _ := flags.GetString("caller")
	marketCap, _ := flags.GetUint64("market-cap-usd")
	volume, _ := flags.GetUint64("volume-usd")
	holders, _ := flags.GetUint64("holders")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	price, err := s.refPrice(cmd)
	if err != nil {
		return err
	}
	req := threshold.UpdateRequest{
		MarketCapUSD:   marketCap,
		VolumeUSD:      volume,
		Holders:        holders,
		ReferencePrice: price,
		Caller:         caller,
	}
	var receipt threshold.Receipt
	if isToken {
		receipt, err = s.app.thresholds.SetOverride(s.ctx, token, req)
	} else {
		receipt, err = s.app.thresholds.UpdateDefaultThresholds(s.ctx, req)
	}
	if err != nil {
		return err
	}
	return s.print(map[string]interface{}{"success": true, "receipt": receipt})
}

func runThresholdsReset(cmd *cobra.Command, _ []string) error {
	token, isToken, err := thresholdTarget(cmd)
	if err != nil {
		return err
	}
	caller, _ := cmd.Flags().GetString("caller")
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	var receipt threshold.Receipt
	if isToken {
		receipt, err = s.app.thresholds.ResetOverride(s.ctx, token, caller)
	} else {
		receipt, err = s.app.thresholds.ResetDefaults(s.ctx, caller)
	}
	if err != nil {
		return err
	}
	return s.print(map[string]interface{}{"success": true, "receipt": receipt})
}

func runSample(cmd *cobra.Command, _ []string) error {
	prune, _ := cmd.Flags().GetBool("prune")
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	summary, err := s.app.newSampler(s.cfg).RunOnce(s.ctx)
	if err != nil {
		return err
	}
	out := map[string]interface{}{
		"tokens":  summary.Tokens,
		"sampled": summary.Sampled,
		"skipped": summary.Skipped,
		"batches": summary.Batches,
		"at":      summary.At.UTC().Format(time.RFC3339),
	}
	if prune {
		if s.app.pg == nil {
			return errors.New("prune requires pg-dsn")
		}
		deleted, err := s.app.pg.PruneSamples(s.ctx, summary.At.Add(-s.cfg.Window))
		if err != nil {
			return err
		}
		out["pruned"] = deleted
	}
	return s.print(out)
}

func runRecord(cmd *cobra.Command, args []string) error {
	token, err := parseToken(args[0])
	if err != nil {
		return err
	}
	chainID, _ := cmd.Flags().GetUint64("chain-id")
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if s.app.pg == nil {
		return errors.New("record requires pg-dsn")
	}
	if chainID == 0 {
		chainID = s.app.chainID
	}
	record, err := s.app.pg.GetRecord(s.ctx, chainID, token)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no graduation record for %s on chain %d", token.Hex(), chainID)
	}
	if err != nil {
		return err
	}
	return s.print(record)
}
