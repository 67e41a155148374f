// Package api exposes the graduation engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"graduationScope/internal/graduation"
	"graduationScope/internal/threshold"
)

// DefaultMinProgress is used by the ready listing when minProgress is omitted.
const DefaultMinProgress = 80

// Config wires a Server.
type Config struct {
	Service        *graduation.Service
	Thresholds     *threshold.Store
	Prices         graduation.PriceFeed
	Auth           *Authenticator
	Limiter        *RateLimiter
	Metrics        *Metrics
	ReceiptTimeout time.Duration
	Logger         *zap.Logger
}

// Server serves the graduation routes.
type Server struct {
	service        *graduation.Service
	thresholds     *threshold.Store
	prices         graduation.PriceFeed
	auth           *Authenticator
	limiter        *RateLimiter
	metrics        *Metrics
	receiptTimeout time.Duration
	logger         *zap.Logger
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = NewAuthenticator("", "")
	}
	return &Server{
		service:        cfg.Service,
		thresholds:     cfg.Thresholds,
		prices:         cfg.Prices,
		auth:           auth,
		limiter:        cfg.Limiter,
		metrics:        metrics,
		receiptTimeout: cfg.ReceiptTimeout,
		logger:         logger,
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/graduation", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/tokens/{token}", s.handleInfo)
		r.Get("/tokens/{token}/progress", s.handleProgress)
		r.Get("/tokens/{token}/thresholds", s.handleTokenThresholds)
		r.Get("/thresholds", s.handleDefaultThresholds)
		r.Get("/ready", s.handleReady)
		r.Get("/ready/exists", s.handleHasReady)

		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}
			r.Post("/tokens/{token}/graduate", s.handleGraduate)
			r.Put("/tokens/{token}/thresholds", s.handleSetOverride)
			r.Delete("/tokens/{token}/thresholds", s.handleResetOverride)
			r.Put("/thresholds", s.handleUpdateThresholds)
			r.Post("/thresholds/reset", s.handleResetThresholds)
		})
	})
	return r
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := s.tokenParam(w, r)
	if !ok {
		return
	}
	info, err := s.service.GraduationInfo(r.Context(), token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewInfoResponse(info))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	token, ok := s.tokenParam(w, r)
	if !ok {
		return
	}
	progress, err := s.service.Evaluator().GetProgress(r.Context(), token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewProgressView(progress))
}

func (s *Server) handleGraduate(w http.ResponseWriter, r *http.Request) {
	token, ok := s.tokenParam(w, r)
	if !ok {
		return
	}
	outcome, err := s.service.Graduate(r.Context(), token, graduation.Options{
		Caller:         CallerFrom(r.Context()),
		ReceiptTimeout: s.receiptTimeout,
	})
	if err != nil {
		result := string(graduation.KindOf(err))
		if result == "" {
			result = "error"
		}
		s.metrics.ObserveGraduation(result)
		s.writeError(w, r, err)
		return
	}
	s.metrics.ObserveGraduation("success")
	if outcome.RecordErr != nil {
		s.metrics.ObserveRecordFailure()
		s.logger.Warn("graduation not recorded",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("token", token.Hex()),
			zap.Error(outcome.RecordErr),
		)
	}
	writeJSON(w, http.StatusOK, NewGraduateResponse(outcome))
}

func (s *Server) handleDefaultThresholds(w http.ResponseWriter, r *http.Request) {
	price, err := s.priceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	set, err := s.thresholds.DefaultThresholdsUSD(r.Context(), price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewThresholdsView(set))
}

func (s *Server) handleTokenThresholds(w http.ResponseWriter, r *http.Request) {
	token, ok := s.tokenParam(w, r)
	if !ok {
		return
	}
	price, err := s.priceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	set, err := s.thresholds.GetThresholds(r.Context(), token, price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewThresholdsView(set))
}

type updateRequest struct {
	MarketCapUSD uint64  `json:"marketCapUSD"`
	VolumeUSD    uint64  `json:"volumeUSD"`
	Holders      uint64  `json:"holders"`
	EthPrice     float64 `json:"ethPrice"`
}

func (s *Server) decodeUpdate(w http.ResponseWriter, r *http.Request) (threshold.UpdateRequest, error) {
	var body updateRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		return threshold.UpdateRequest{}, graduation.InvalidValue("invalid request body: %v", err)
	}
	price := body.EthPrice
	if price == 0 {
		var err error
		price, err = s.currentPrice(r.Context())
		if err != nil {
			return threshold.UpdateRequest{}, err
		}
	}
	return threshold.UpdateRequest{
		MarketCapUSD:   body.MarketCapUSD,
		VolumeUSD:      body.VolumeUSD,
		Holders:        body.Holders,
		ReferencePrice: price,
		Caller:         CallerFrom(r.Context()),
	}, nil
}

func (s *Server) handleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())
	if caller == "" {
		s.writeError(w, r, graduation.Unauthorized(""))
		return
	}
	req, err := s.decodeUpdate(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.thresholds.UpdateDefaultThresholds(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{Success: true, Receipt: receipt})
}

func (s *Server) handleResetThresholds(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.thresholds.ResetDefaults(r.Context(), CallerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{Success: true, Receipt: receipt})
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	token, ok := s.tokenParam(w, r)
	if !ok {
		return
	}
	if CallerFrom(r.Context()) == "" {
		s.writeError(w, r, graduation.Unauthorized(""))
		return
	}
	req, err := s.decodeUpdate(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.thresholds.SetOverride(r.Context(), token, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{Success: true, Receipt: receipt})
}

func (s *Server) handleResetOverride(w http.ResponseWriter, r *http.Request) {
	token, ok := s.tokenParam(w, r)
	if !ok {
		return
	}
	receipt, err := s.thresholds.ResetOverride(r.Context(), token, CallerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{Success: true, Receipt: receipt})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	minProgress := DefaultMinProgress
	if raw := r.URL.Query().Get("minProgress"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, graduation.InvalidValue("minProgress must be an integer, got %q", raw))
			return
		}
		minProgress = parsed
	}
	nearing, err := s.service.ListNearingGraduation(r.Context(), minProgress)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewReadyResponse(nearing, minProgress))
}

func (s *Server) handleHasReady(w http.ResponseWriter, r *http.Request) {
	ready, err := s.service.HasTokensReadyToGraduate(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasReadyTokens": ready})
}

func (s *Server) tokenParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "token")
	if !common.IsHexAddress(raw) {
		s.writeError(w, r, graduation.InvalidValue("invalid token address %q", raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// priceParam reads ?ethPrice= and falls back to the live feed.
func (s *Server) priceParam(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("ethPrice")
	if raw == "" {
		return s.currentPrice(r.Context())
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, graduation.InvalidValue("ethPrice must be a number, got %q", raw)
	}
	if err := threshold.ValidatePrice(price); err != nil {
		return 0, err
	}
	return price, nil
}

func (s *Server) currentPrice(ctx context.Context) (float64, error) {
	if s.prices == nil {
		return 0, graduation.InvalidValue("ethPrice is required")
	}
	price, err := s.prices.NativeUSD(ctx)
	if err != nil {
		return 0, graduation.ExecutionFailed("price read", err)
	}
	return price, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	caller := CallerFrom(r.Context())
	status := statusFor(err, caller)
	body := errorBody{
		Error:                err.Error(),
		Kind:                 string(graduation.KindOf(err)),
		Reasons:              graduation.ReasonsOf(err),
		IsAuthorizationError: graduation.IsAuthorization(err),
		RequestID:            RequestIDFrom(r.Context()),
	}
	if r.Method != http.MethodGet {
		failed := false
		body.Success = &failed
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", body.RequestID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		var gerr *graduation.Error
		if !errors.As(err, &gerr) {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
