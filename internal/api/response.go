package api

import (
	"encoding/json"
	"net/http"
	"time"

	"graduationScope/internal/graduation"
	"graduationScope/internal/model"
	"graduationScope/internal/threshold"
)

type errorBody struct {
	Success              *bool          `json:"success,omitempty"`
	Error                string         `json:"error"`
	Kind                 string         `json:"kind,omitempty"`
	Reasons              []model.Reason `json:"reasons,omitempty"`
	IsAuthorizationError bool           `json:"isAuthorizationError"`
	RequestID            string         `json:"requestId,omitempty"`
}

type tokenView struct {
	Address       string  `json:"address"`
	Creator       string  `json:"creator"`
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	TotalSupply   string  `json:"totalSupply"`
	CreatedAt     string  `json:"createdAt"`
	Active        bool    `json:"isActive"`
	TotalVolume   string  `json:"totalVolume"`
	Status        string  `json:"status"`
	LiquidityPair *string `json:"liquidityPair"`
}

type metricsView struct {
	MarketCap    string `json:"marketCap"`
	Volume24h    string `json:"volume24h"`
	HolderCount  uint64 `json:"holderCount"`
	CurrentPrice string `json:"currentPrice"`
}

type ThresholdsView struct {
	MarketCapUSD uint64  `json:"marketCapUSD"`
	VolumeUSD    uint64  `json:"volumeUSD"`
	Holders      uint64  `json:"holders"`
	EthPrice     float64 `json:"ethPrice"`
	MarketCap    string  `json:"marketCap"`
	Volume       string  `json:"volume"`
	Source       string  `json:"source"`
	Version      uint64  `json:"version"`
	UpdatedAt    *string `json:"updatedAt,omitempty"`
	UpdatedBy    string  `json:"updatedBy,omitempty"`
}

type ProgressView struct {
	Token              string              `json:"token"`
	Progress           int                 `json:"progress"`
	Ratios             []model.MetricRatio `json:"ratios"`
	TimeToGraduation   *int64              `json:"timeToGraduation"`
	RecommendedActions []string            `json:"recommendedActions"`
	Graduated          bool                `json:"graduated"`
	Metrics            metricsView         `json:"metrics"`
	Thresholds         ThresholdsView      `json:"thresholds"`
}

type InfoResponse struct {
	Eligible           bool           `json:"eligible"`
	Reasons            []string       `json:"reasons"`
	ReasonDetails      []model.Reason `json:"reasonDetails"`
	Progress           int            `json:"progress"`
	Info               tokenView      `json:"info"`
	TimeToGraduation   *int64         `json:"timeToGraduation"`
	RecommendedActions []string       `json:"recommendedActions"`
	Metrics            metricsView    `json:"metrics"`
	Thresholds         ThresholdsView `json:"thresholds"`
}

type GraduateResponse struct {
	Success          bool         `json:"success"`
	TxHash           string       `json:"txHash"`
	LiquidityPair    string       `json:"liquidityPair"`
	Reserves         reservesView `json:"reserves"`
	ThresholdVersion uint64       `json:"thresholdVersion"`
	GraduatedAt      string       `json:"graduatedAt"`
	RecordError      string       `json:"recordError,omitempty"`
}

type reservesView struct {
	Native string `json:"native"`
	Token  string `json:"token"`
}

type ReadyToken struct {
	tokenView
	Progress int  `json:"progress"`
	Eligible bool `json:"eligible"`
}

type ReadyResponse struct {
	Count       int          `json:"count"`
	Tokens      []ReadyToken `json:"tokens"`
	MinProgress int          `json:"minProgress"`
}

type updateResponse struct {
	Success bool              `json:"success"`
	Receipt threshold.Receipt `json:"receipt"`
}

func newTokenView(t model.Token) tokenView {
	view := tokenView{
		Address:     t.Address.Hex(),
		Creator:     t.Creator.Hex(),
		Name:        t.Name,
		Symbol:      t.Symbol,
		TotalSupply: model.FormatEther(t.TotalSupply),
		Active:      t.Active,
		TotalVolume: model.FormatEther(t.TotalVolume),
		Status:      t.Status.String(),
	}
	if !t.CreatedAt.IsZero() {
		view.CreatedAt = t.CreatedAt.UTC().Format(time.RFC3339)
	}
	if t.LiquidityPair != nil {
		pair := t.LiquidityPair.Hex()
		view.LiquidityPair = &pair
	}
	return view
}

func newMetricsView(m model.Metrics) metricsView {
	return metricsView{
		MarketCap:    model.FormatEther(m.MarketCap),
		Volume24h:    model.FormatEther(m.Volume24h),
		HolderCount:  m.HolderCount,
		CurrentPrice: model.FormatEther(m.CurrentPrice),
	}
}

func NewThresholdsView(set model.ThresholdSet) ThresholdsView {
	view := ThresholdsView{
		MarketCapUSD: set.Config.MarketCapUSD,
		VolumeUSD:    set.Config.VolumeUSD,
		Holders:      set.Config.Holders,
		EthPrice:     set.ReferencePrice,
		MarketCap:    model.FormatEther(set.MarketCap),
		Volume:       model.FormatEther(set.Volume),
		Source:       string(set.Source),
		Version:      set.Config.Version,
		UpdatedBy:    set.Config.UpdatedBy,
	}
	if !set.Config.UpdatedAt.IsZero() {
		updated := set.Config.UpdatedAt.UTC().Format(time.RFC3339)
		view.UpdatedAt = &updated
	}
	return view
}

func etaSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	secs := int64(d.Round(time.Second) / time.Second)
	return &secs
}

func actions(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func NewProgressView(p model.Progress) ProgressView {
	return ProgressView{
		Token:              p.Token.Hex(),
		Progress:           p.Percent,
		Ratios:             p.Ratios,
		TimeToGraduation:   etaSeconds(p.TimeToGraduation),
		RecommendedActions: actions(p.RecommendedActions),
		Graduated:          p.Graduated,
		Metrics:            newMetricsView(p.Metrics),
		Thresholds:         NewThresholdsView(p.Thresholds),
	}
}

func NewInfoResponse(info graduation.Info) InfoResponse {
	reasons := info.Check.Reasons
	if reasons == nil {
		reasons = []model.Reason{}
	}
	return InfoResponse{
		Eligible:           info.Check.Eligible,
		Reasons:            info.Check.ReasonMessages(),
		ReasonDetails:      reasons,
		Progress:           info.Progress.Percent,
		Info:               newTokenView(info.Token),
		TimeToGraduation:   etaSeconds(info.Progress.TimeToGraduation),
		RecommendedActions: actions(info.Progress.RecommendedActions),
		Metrics:            newMetricsView(info.Check.Metrics),
		Thresholds:         NewThresholdsView(info.Check.Thresholds),
	}
}

func NewGraduateResponse(outcome model.GraduationOutcome) GraduateResponse {
	resp := GraduateResponse{
		Success:       true,
		TxHash:        outcome.TxHash.Hex(),
		LiquidityPair: outcome.Pair.Address.Hex(),
		Reserves: reservesView{
			Native: model.FormatEther(outcome.Pair.Reserves.Native),
			Token:  model.FormatEther(outcome.Pair.Reserves.Token),
		},
		ThresholdVersion: outcome.ThresholdVersion,
		GraduatedAt:      outcome.GraduatedAt.UTC().Format(time.RFC3339),
	}
	if outcome.RecordErr != nil {
		resp.RecordError = outcome.RecordErr.Error()
	}
	return resp
}

func NewReadyResponse(nearing []graduation.NearingToken, minProgress int) ReadyResponse {
	tokens := make([]ReadyToken, 0, len(nearing))
	for _, n := range nearing {
		tokens = append(tokens, ReadyToken{
			tokenView: newTokenView(n.Token),
			Progress:  n.Progress.Percent,
			Eligible:  n.Eligible,
		})
	}
	return ReadyResponse{Count: len(tokens), Tokens: tokens, MinProgress: minProgress}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps an error kind to its HTTP status. An unauthorized anonymous caller gets 401.
func statusFor(err error, caller string) int {
	switch graduation.KindOf(err) {
	case graduation.KindTokenNotFound:
		return http.StatusNotFound
	case graduation.KindInvalidRange:
		return http.StatusBadRequest
	case graduation.KindUnauthorized:
		if caller == "" {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case graduation.KindNotEligible:
		return http.StatusUnprocessableEntity
	case graduation.KindAlreadyGraduated:
		return http.StatusConflict
	case graduation.KindExecutionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
