package threshold

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"graduationScope/internal/graduation"
	"graduationScope/internal/model"
)

const (
	MinMarketCapUSD uint64 = 1
	MaxMarketCapUSD uint64 = 1_000_000
	MinHolders      uint64 = 10
	MaxHolders      uint64 = 10_000
)

// BuiltinDefaults is used until an admin writes a default record.
var BuiltinDefaults = model.ThresholdConfig{
	MarketCapUSD: 100_000,
	VolumeUSD:    50_000,
	Holders:      1_000,
}

// UpdateRequest is an admin threshold write.
type UpdateRequest struct {
	MarketCapUSD   uint64
	VolumeUSD      uint64
	Holders        uint64
	ReferencePrice float64
	Caller         string
}

// Receipt references an accepted threshold write.
type Receipt struct {
	ID         string                `json:"id"`
	Version    uint64                `json:"version"`
	AppliedAt  time.Time             `json:"applied_at"`
	Thresholds model.ThresholdConfig `json:"thresholds"`
}

// Store is the threshold configuration store. Reads always go to the backend.
type Store struct {
	backend Backend
	auth    Authorizer
	builtin model.ThresholdConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore builds a Store. builtin replaces BuiltinDefaults when non-zero.
func NewStore(backend Backend, auth Authorizer, builtin model.ThresholdConfig, logger *zap.Logger) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if builtin.MarketCapUSD == 0 && builtin.VolumeUSD == 0 && builtin.Holders == 0 {
		builtin = BuiltinDefaults
	}
	return &Store{
		backend: backend,
		auth:    auth,
		builtin: builtin,
		logger:  logger,
		now:     time.Now,
	}
}

// Defaults returns the current USD default record.
func (s *Store) Defaults(ctx context.Context) (model.ThresholdConfig, error) {
	cfg, ok, err := s.backend.LoadDefaults(ctx)
	if err != nil {
		return model.ThresholdConfig{}, fmt.Errorf("load default thresholds: %w", err)
	}
	if !ok {
		return s.builtin, nil
	}
	return cfg, nil
}

// DefaultThresholdsUSD converts the default record into native units at refPrice (USD per native coin).
func (s *Store) DefaultThresholdsUSD(ctx context.Context, refPrice float64) (model.ThresholdSet, error) {
	cfg, err := s.Defaults(ctx)
	if err != nil {
		return model.ThresholdSet{}, err
	}
	return Convert(cfg, model.ThresholdSourceDefault, refPrice)
}

// GetThresholds returns the token override if present, else the converted defaults.
func (s *Store) GetThresholds(ctx context.Context, token common.Address, refPrice float64) (model.ThresholdSet, error) {
	cfg, ok, err := s.backend.LoadOverride(ctx, token)
	if err != nil {
		return model.ThresholdSet{}, fmt.Errorf("load threshold override: %w", err)
	}
	if ok {
		return Convert(cfg, model.ThresholdSourceOverride, refPrice)
	}
	return s.DefaultThresholdsUSD(ctx, refPrice)
}

// UpdateDefaultThresholds atomically replaces the default record.
func (s *Store) UpdateDefaultThresholds(ctx context.Context, req UpdateRequest) (Receipt, error) {
	if err := s.authorize(ctx, req.Caller); err != nil {
		return Receipt{}, err
	}
	if err := Validate(req); err != nil {
		return Receipt{}, err
	}

	next, err := s.backend.SaveDefaults(ctx, s.stamp(model.ThresholdConfig{
		MarketCapUSD: req.MarketCapUSD,
		VolumeUSD:    req.VolumeUSD,
		Holders:      req.Holders,
	}, req.Caller))
	if err != nil {
		return Receipt{}, fmt.Errorf("save default thresholds: %w", err)
	}

	s.logger.Info("default thresholds updated",
		zap.Uint64("market_cap_usd", next.MarketCapUSD),
		zap.Uint64("volume_usd", next.VolumeUSD),
		zap.Uint64("holders", next.Holders),
		zap.Uint64("version", next.Version),
		zap.String("caller", req.Caller),
	)
	return newReceipt(next), nil
}

// ResetDefaults restores the built-in defaults as a new version.
func (s *Store) ResetDefaults(ctx context.Context, caller string) (Receipt, error) {
	if err := s.authorize(ctx, caller); err != nil {
		return Receipt{}, err
	}

	next, err := s.backend.SaveDefaults(ctx, s.stamp(s.builtin, caller))
	if err != nil {
		return Receipt{}, fmt.Errorf("save default thresholds: %w", err)
	}

	s.logger.Info("default thresholds reset", zap.Uint64("version", next.Version), zap.String("caller", caller))
	return newReceipt(next), nil
}

// Override returns the raw override record for a token.
func (s *Store) Override(ctx context.Context, token common.Address) (model.ThresholdConfig, bool, error) {
	cfg, ok, err := s.backend.LoadOverride(ctx, token)
	if err != nil {
		return model.ThresholdConfig{}, false, fmt.Errorf("load threshold override: %w", err)
	}
	return cfg, ok, nil
}

// SetOverride installs a per-token threshold record.
func (s *Store) SetOverride(ctx context.Context, token common.Address, req UpdateRequest) (Receipt, error) {
	if err := s.authorize(ctx, req.Caller); err != nil {
		return Receipt{}, err
	}
	if err := Validate(req); err != nil {
		return Receipt{}, err
	}

	next, err := s.backend.SaveOverride(ctx, token, s.stamp(model.ThresholdConfig{
		MarketCapUSD: req.MarketCapUSD,
		VolumeUSD:    req.VolumeUSD,
		Holders:      req.Holders,
	}, req.Caller))
	if err != nil {
		return Receipt{}, fmt.Errorf("save threshold override: %w", err)
	}

	s.logger.Info("threshold override set",
		zap.String("token", token.Hex()),
		zap.Uint64("version", next.Version),
		zap.String("caller", req.Caller),
	)
	return newReceipt(next), nil
}

// ResetOverride removes a token override so the defaults apply again.
func (s *Store) ResetOverride(ctx context.Context, token common.Address, caller string) (Receipt, error) {
	if err := s.authorize(ctx, caller); err != nil {
		return Receipt{}, err
	}

	if err := s.backend.DeleteOverride(ctx, token); err != nil {
		return Receipt{}, fmt.Errorf("delete threshold override: %w", err)
	}
	defaults, err := s.Defaults(ctx)
	if err != nil {
		return Receipt{}, err
	}

	s.logger.Info("threshold override reset", zap.String("token", token.Hex()), zap.String("caller", caller))
	return newReceipt(defaults), nil
}

func (s *Store) authorize(ctx context.Context, caller string) error {
	if s.auth == nil {
		return graduation.Unauthorized(caller)
	}
	return s.auth.Authorize(ctx, caller)
}

// stamp sets the audit fields. The backend assigns the version.
func (s *Store) stamp(cfg model.ThresholdConfig, caller string) model.ThresholdConfig {
	cfg.UpdatedAt = s.now().UTC()
	cfg.UpdatedBy = caller
	return cfg
}

func newReceipt(cfg model.ThresholdConfig) Receipt {
	return Receipt{
		ID:         uuid.NewString(),
		Version:    cfg.Version,
		AppliedAt:  cfg.UpdatedAt,
		Thresholds: cfg,
	}
}

// Validate checks the accepted bounds of a threshold write.
func Validate(req UpdateRequest) error {
	if req.MarketCapUSD < MinMarketCapUSD || req.MarketCapUSD > MaxMarketCapUSD {
		return graduation.InvalidRange("marketCapUSD", req.MarketCapUSD, MinMarketCapUSD, MaxMarketCapUSD)
	}
	if req.Holders < MinHolders || req.Holders > MaxHolders {
		return graduation.InvalidRange("holders", req.Holders, MinHolders, MaxHolders)
	}
	if err := ValidatePrice(req.ReferencePrice); err != nil {
		return err
	}
	return nil
}

// ValidatePrice rejects non-positive or non-finite reference prices.
func ValidatePrice(refPrice float64) error {
	if math.IsNaN(refPrice) || math.IsInf(refPrice, 0) || refPrice <= 0 {
		return graduation.InvalidValue("reference price must be a positive number, got %v", refPrice)
	}
	return nil
}

// Convert turns a USD record into native wei at refPrice USD per native coin.
func Convert(cfg model.ThresholdConfig, source model.ThresholdSource, refPrice float64) (model.ThresholdSet, error) {
	if err := ValidatePrice(refPrice); err != nil {
		return model.ThresholdSet{}, err
	}
	price := new(big.Rat).SetFloat64(refPrice)

	return model.ThresholdSet{
		MarketCap:      usdToWei(cfg.MarketCapUSD, price),
		Volume:         usdToWei(cfg.VolumeUSD, price),
		Holders:        cfg.Holders,
		ReferencePrice: refPrice,
		Source:         source,
		Config:         cfg,
	}, nil
}

func usdToWei(usd uint64, price *big.Rat) *big.Int {
	if usd == 0 {
		return big.NewInt(0)
	}
	value := new(big.Rat).SetInt(new(big.Int).Mul(new(big.Int).SetUint64(usd), model.WeiPerEther()))
	value.Quo(value, price)
	return new(big.Int).Quo(value.Num(), value.Denom())
}
