package graduation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"graduationScope/internal/model"
)

// Registry lists and describes launched tokens.
type Registry interface {
	GetAllTokens(ctx context.Context) ([]common.Address, error)
	GetTokenInfo(ctx context.Context, token common.Address) (model.Token, error)
}

// Info merges an eligibility check, a progress report and the registry record.
type Info struct {
	Check    model.CheckResult
	Progress model.Progress
	Token    model.Token
}

// NearingToken is one entry of ListNearingGraduation.
type NearingToken struct {
	Token    model.Token
	Progress model.Progress
	Eligible bool
}

// DefaultScanConcurrency bounds the per-token fan-out of registry scans.
const DefaultScanConcurrency = 8

var errStopScan = errors.New("stop scan")

// Service is the query and command surface used by the API and CLI. It holds no state.
type Service struct {
	registry    Registry
	evaluator   *Evaluator
	graduator   Graduator
	concurrency int
	logger      *zap.Logger
}

// NewService wires a Service.
func NewService(registry Registry, evaluator *Evaluator, graduator Graduator, concurrency int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = DefaultScanConcurrency
	}
	return &Service{
		registry:    registry,
		evaluator:   evaluator,
		graduator:   graduator,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Evaluator exposes the underlying evaluator.
func (s *Service) Evaluator() *Evaluator {
	return s.evaluator
}

// GraduationInfo runs the check, the progress report and the registry read concurrently.
func (s *Service) GraduationInfo(ctx context.Context, token common.Address) (Info, error) {
	price, err := s.referencePrice(ctx)
	if err != nil {
		return Info{}, err
	}

	var info Info
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		check, err := s.evaluator.checkAt(gctx, token, price)
		if err != nil {
			return err
		}
		info.Check = check
		return nil
	})
	g.Go(func() error {
		progress, err := s.evaluator.progressAt(gctx, token, price)
		if err != nil {
			return err
		}
		info.Progress = progress
		return nil
	})
	g.Go(func() error {
		tok, err := s.registry.GetTokenInfo(gctx, token)
		if err != nil {
			return err
		}
		info.Token = tok
		return nil
	})
	if err := g.Wait(); err != nil {
		return Info{}, err
	}
	return info, nil
}

// ListNearingGraduation returns active, non-graduated tokens whose progress is at least
// minProgress, sorted by progress descending.
func (s *Service) ListNearingGraduation(ctx context.Context, minProgress int) ([]NearingToken, error) {
	if minProgress < 0 || minProgress > 100 {
		return nil, InvalidValue("minProgress must be within [0, 100], got %d", minProgress)
	}
	price, err := s.referencePrice(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := s.registry.GetAllTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	results := make([]*NearingToken, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, addr := range tokens {
		g.Go(func() error {
			tok, ok, err := s.candidate(gctx, addr)
			if err != nil || !ok {
				return err
			}
			progress, err := s.evaluator.progressAt(gctx, addr, price)
			if err != nil {
				return s.skipMissing(addr, err)
			}
			if progress.Percent < minProgress {
				return nil
			}
			results[i] = &NearingToken{
				Token:    tok,
				Progress: progress,
				// A floored mean of clamped ratios reaches 100 only when every ratio is 1.
				Eligible: progress.Percent == 100,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]NearingToken, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Progress.Percent > out[j].Progress.Percent
	})
	return out, nil
}

// HasTokensReadyToGraduate stops scanning at the first eligible token.
func (s *Service) HasTokensReadyToGraduate(ctx context.Context) (bool, error) {
	price, err := s.referencePrice(ctx)
	if err != nil {
		return false, err
	}
	tokens, err := s.registry.GetAllTokens(ctx)
	if err != nil {
		return false, fmt.Errorf("list tokens: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, addr := range tokens {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			_, ok, err := s.candidate(gctx, addr)
			if err != nil || !ok {
				return err
			}
			check, err := s.evaluator.checkAt(gctx, addr, price)
			if err != nil {
				return s.skipMissing(addr, err)
			}
			if check.Eligible {
				return errStopScan
			}
			return nil
		})
	}
	err = g.Wait()
	switch {
	case errors.Is(err, errStopScan):
		return true, nil
	case err != nil:
		return false, err
	default:
		return false, nil
	}
}

// Graduate delegates to the configured write path.
func (s *Service) Graduate(ctx context.Context, token common.Address, opts Options) (model.GraduationOutcome, error) {
	if s.graduator == nil {
		return model.GraduationOutcome{}, ExecutionFailed("submission", errors.New("no graduation backend configured"))
	}
	return s.graduator.Graduate(ctx, token, opts)
}

func (s *Service) referencePrice(ctx context.Context) (float64, error) {
	return s.evaluator.referencePrice(ctx)
}

// candidate loads a token and reports whether it belongs in a readiness scan.
func (s *Service) candidate(ctx context.Context, addr common.Address) (model.Token, bool, error) {
	tok, err := s.registry.GetTokenInfo(ctx, addr)
	if err != nil {
		return model.Token{}, false, s.skipMissing(addr, err)
	}
	if !tok.Active || tok.IsGraduated() {
		return tok, false, nil
	}
	return tok, true, nil
}

// skipMissing drops tokens that vanished from the registry mid-scan.
func (s *Service) skipMissing(addr common.Address, err error) error {
	if errors.Is(err, ErrTokenNotFound) {
		s.logger.Debug("skip unregistered token", zap.String("token", addr.Hex()))
		return nil
	}
	return err
}
