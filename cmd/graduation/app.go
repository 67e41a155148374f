package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"graduationScope/internal/chain"
	"graduationScope/internal/config"
	"graduationScope/internal/contracts"
	"graduationScope/internal/graduation"
	"graduationScope/internal/ledger"
	"graduationScope/internal/market"
	"graduationScope/internal/model"
	"graduationScope/internal/sampler"
	"graduationScope/internal/storage"
	"graduationScope/internal/storage/postgres"
	"graduationScope/internal/threshold"
)

// sampleStore is the write and read side of metric samples.
type sampleStore interface {
	sampler.SampleSink
	graduation.SampleSource
}

// registry is what the sampler and service need from the token registry.
type registry interface {
	graduation.Registry
	sampler.TokenLister
}

// app holds the wired engine shared by every command.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	chainID    uint64
	client     *chain.Client
	pg         *postgres.Store
	ledger     *ledger.Ledger
	registry   registry
	market     *market.Provider
	prices     graduation.PriceFeed
	thresholds *threshold.Store
	samples    sampleStore
	state      sampler.StateStore
	service    *graduation.Service
}

type appOptions struct {
	window     time.Duration
	checkpoint string
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions, logger *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.RPCURL != "" {
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		a.client = client
		id, err := client.GetChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("get chain id: %w", err)
		}
		a.chainID = id.Uint64()
	}

	var backend threshold.Backend = threshold.NewMemoryBackend()
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		a.pg = pg
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		backend = pg
		a.samples = pg
		a.state = pg
	} else {
		a.samples = sampler.NewMemoryStore(0)
		if opts.checkpoint != "" {
			a.state = sampler.NewCheckpointStore(opts.checkpoint)
		}
	}

	admins, err := threshold.NewAdminSet(cfg.Admins)
	if err != nil {
		return nil, err
	}
	a.thresholds = threshold.NewStore(backend, admins, builtinDefaults(cfg), logger)

	if cfg.PriceFeed != "" {
		aggregator := contracts.NewAggregator(a.client, common.HexToAddress(cfg.PriceFeed))
		a.prices = market.NewAggregatorFeed(aggregator, cfg.PriceMaxAge, logger)
	} else {
		a.prices = market.StaticFeed(cfg.EthPrice)
	}

	recorder := a.newRecorder()

	var graduator graduation.Graduator
	switch cfg.Backend {
	case config.BackendChain:
		reg := contracts.NewRegistry(a.client, common.HexToAddress(cfg.Factory), common.HexToAddress(cfg.Engine))
		a.registry = reg
		a.market = market.NewProvider(reg, reg)
		if cfg.SignerKey != "" {
			signer, err := chain.NewSigner(cfg.SignerKey)
			if err != nil {
				return nil, err
			}
			graduator = contracts.NewContractExecutor(contracts.ExecutorConfig{
				Registry:   reg,
				Submitter:  chain.NewTransactor(a.client, signer),
				Receipts:   a.client,
				Contract:   common.HexToAddress(cfg.Graduation),
				Thresholds: a.thresholds,
				Prices:     a.prices,
				Recorder:   recorder,
				Logger:     logger,
			})
		} else {
			logger.Warn("no signer key configured, graduation is disabled")
		}
	default:
		l := ledger.New(logger)
		if cfg.Seed != "" {
			n, err := loadSeed(ctx, l, cfg.Seed)
			if err != nil {
				return nil, err
			}
			logger.Info("seed loaded", zap.String("path", cfg.Seed), zap.Int("tokens", n))
		}
		a.ledger = l
		a.registry = l
		a.market = market.NewProvider(l, l)
		pairs := ledger.NewPairFactory(common.HexToAddress(cfg.Factory), common.Address{})
		graduator = graduation.NewExecutor(l, pairs, a.thresholds, a.prices, recorder, logger)
	}

	evaluator := graduation.NewEvaluator(a.market, a.thresholds, a.prices, graduation.NewLinearTrend(a.samples, opts.window), logger)
	a.service = graduation.NewService(a.registry, evaluator, graduator, cfg.ScanConcurrency, logger)

	ok = true
	return a, nil
}

// newRecorder returns nil when no record sink is configured.
func (a *app) newRecorder() graduation.OutcomeRecorder {
	var sinks []storage.RecordSink
	if a.cfg.RecordsOut != "" {
		sinks = append(sinks, storage.NewJsonlStorage(a.cfg.RecordsOut))
	}
	if a.pg != nil {
		sinks = append(sinks, a.pg)
	}
	if len(sinks) == 0 {
		return nil
	}
	return storage.NewRecorder(a.chainID, sinks...)
}

func (a *app) newSampler(cfg config.SampleConfig) *sampler.Sampler {
	return sampler.New(sampler.RunConfig{
		Interval:     cfg.Interval,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		StateName:    sampler.DefaultStateName,
	}, a.registry, a.market, a.samples, a.state, a.logger)
}

func (a *app) Close() {
	if a.pg != nil {
		a.pg.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
}

func builtinDefaults(cfg config.Config) model.ThresholdConfig {
	builtin := threshold.BuiltinDefaults
	if cfg.DefaultMarketCapUSD > 0 {
		builtin.MarketCapUSD = cfg.DefaultMarketCapUSD
	}
	if cfg.DefaultVolumeUSD > 0 {
		builtin.VolumeUSD = cfg.DefaultVolumeUSD
	}
	if cfg.DefaultHolders > 0 {
		builtin.Holders = cfg.DefaultHolders
	}
	return builtin
}
