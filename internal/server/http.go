// Package server exposes the read-side HTTP/JSON API: position summaries,
// ledger event listings, and APR period series.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/apr"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/observability"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/persistence"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/query"
)

type Server struct {
	httpServer    *http.Server
	queries       *query.Service
	healthChecker *observability.HealthChecker
	log           zerolog.Logger
}

func NewServer(addr string, queries *query.Service, healthChecker *observability.HealthChecker, log zerolog.Logger) *Server {
	s := &Server{
		queries:       queries,
		healthChecker: healthChecker,
		log:           log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/positions/{id}", s.handleGetPosition)
	mux.HandleFunc("GET /v1/positions/{id}/ledger", s.handleListLedger)
	mux.HandleFunc("GET /v1/positions/{id}/apr", s.handleListAprPeriods)
	if healthChecker != nil {
		mux.HandleFunc("/healthz", healthChecker.LivenessHandler)
		mux.HandleFunc("/readyz", healthChecker.ReadinessHandler)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- Handlers ---

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := s.positionID(w, r)
	if !ok {
		return
	}

	view, err := s.queries.GetPosition(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, positionJSON(view))
}

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := s.positionID(w, r)
	if !ok {
		return
	}

	events, err := s.queries.ListLedger(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, evt := range events {
		out = append(out, eventJSON(evt))
	}
	s.writeJSON(w, map[string]any{"events": out})
}

func (s *Server) handleListAprPeriods(w http.ResponseWriter, r *http.Request) {
	id, ok := s.positionID(w, r)
	if !ok {
		return
	}

	periods, err := s.queries.ListAprPeriods(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		out = append(out, periodJSON(p))
	}
	s.writeJSON(w, map[string]any{"periods": out})
}

func (s *Server) positionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, fmt.Sprintf("invalid position id: %v", err))
		return uuid.Nil, false
	}
	return id, true
}

// --- Responses ---

// Big integers are serialized as decimal strings; they exceed the safe
// integer range of JSON numbers.
type positionResponse struct {
	ID                 string `json:"id"`
	ChainID            uint64 `json:"chainId"`
	Protocol           string `json:"protocol"`
	ProtocolPositionID string `json:"protocolPositionId"`
	Pool               string `json:"pool"`
	Token0             string `json:"token0"`
	Token1             string `json:"token1"`
	Decimals0          uint8  `json:"decimals0"`
	Decimals1          uint8  `json:"decimals1"`
	QuoteIsToken0      bool   `json:"quoteIsToken0"`
	RangeLower         int32  `json:"rangeLower"`
	RangeUpper         int32  `json:"rangeUpper"`

	IsActive         bool   `json:"isActive"`
	CurrentValue     string `json:"currentValue"`
	CurrentCostBasis string `json:"currentCostBasis"`
	RealizedPnl      string `json:"realizedPnl"`
	UnrealizedPnl    string `json:"unrealizedPnl"`
	CollectedFees    string `json:"collectedFees"`
	UnclaimedFees    string `json:"unclaimedFees"`

	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
	LastSyncBy string     `json:"lastSyncBy,omitempty"`
}

type rewardResponse struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Value  string `json:"value"`
}

type eventResponse struct {
	ID              string    `json:"id"`
	PreviousID      *string   `json:"previousId,omitempty"`
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	BlockNumber     uint64    `json:"blockNumber"`
	TxIndex         uint32    `json:"txIndex"`
	LogIndex        uint32    `json:"logIndex"`
	TransactionHash string    `json:"transactionHash"`

	PoolPrice      string           `json:"poolPrice"`
	Token0Amount   string           `json:"token0Amount"`
	Token1Amount   string           `json:"token1Amount"`
	TokenValue     string           `json:"tokenValue"`
	Rewards        []rewardResponse `json:"rewards,omitempty"`
	DeltaCostBasis string           `json:"deltaCostBasis"`
	CostBasisAfter string           `json:"costBasisAfter"`
	DeltaPnl       string           `json:"deltaPnl"`
	PnlAfter       string           `json:"pnlAfter"`
}

type periodResponse struct {
	StartEventID      string    `json:"startEventId"`
	EndEventID        *string   `json:"endEventId,omitempty"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime"`
	DurationSeconds   int64     `json:"durationSeconds"`
	CostBasis         string    `json:"costBasis"`
	CollectedFeeValue string    `json:"collectedFeeValue"`
	AprBps            int64     `json:"aprBps"`
}

func positionJSON(view *query.PositionView) positionResponse {
	return positionResponse{
		ID:                 view.ID.String(),
		ChainID:            view.ChainID,
		Protocol:           view.Protocol,
		ProtocolPositionID: view.ProtocolPositionID,
		Pool:               view.Pool,
		Token0:             view.Token0,
		Token1:             view.Token1,
		Decimals0:          view.Decimals0,
		Decimals1:          view.Decimals1,
		QuoteIsToken0:      view.QuoteIsToken0,
		RangeLower:         view.RangeLower,
		RangeUpper:         view.RangeUpper,
		IsActive:           view.IsActive,
		CurrentValue:       bigString(view.CurrentValue),
		CurrentCostBasis:   bigString(view.CurrentCostBasis),
		RealizedPnl:        bigString(view.RealizedPnl),
		UnrealizedPnl:      bigString(view.UnrealizedPnl),
		CollectedFees:      bigString(view.CollectedFees),
		UnclaimedFees:      bigString(view.UnclaimedFees),
		LastSyncAt:         view.LastSyncAt,
		LastSyncBy:         view.LastSyncBy,
	}
}

func eventJSON(evt *ledger.Event) eventResponse {
	resp := eventResponse{
		ID:              evt.ID.String(),
		Type:            evt.EventType.String(),
		Timestamp:       evt.Timestamp,
		BlockNumber:     evt.Coordinate.BlockNumber,
		TxIndex:         evt.Coordinate.TransactionIndex,
		LogIndex:        evt.Coordinate.LogIndex,
		TransactionHash: evt.TransactionHash,
		PoolPrice:       bigString(evt.PoolPrice),
		Token0Amount:    bigString(evt.Token0Amount),
		Token1Amount:    bigString(evt.Token1Amount),
		TokenValue:      bigString(evt.TokenValue),
		DeltaCostBasis:  bigString(evt.DeltaCostBasis),
		CostBasisAfter:  bigString(evt.CostBasisAfter),
		DeltaPnl:        bigString(evt.DeltaPnl),
		PnlAfter:        bigString(evt.PnlAfter),
	}
	if evt.PreviousID != nil {
		prev := evt.PreviousID.String()
		resp.PreviousID = &prev
	}
	for _, reward := range evt.Rewards {
		resp.Rewards = append(resp.Rewards, rewardResponse{
			Token:  reward.Token,
			Amount: bigString(reward.Amount),
			Value:  bigString(reward.Value),
		})
	}
	return resp
}

func periodJSON(p apr.Period) periodResponse {
	resp := periodResponse{
		StartEventID:      p.StartEventID.String(),
		StartTime:         p.StartTime,
		EndTime:           p.EndTime,
		DurationSeconds:   p.DurationSeconds,
		CostBasis:         bigString(p.CostBasis),
		CollectedFeeValue: bigString(p.CollectedFeeValue),
		AprBps:            p.AprBps,
	}
	if p.EndEventID != nil {
		end := p.EndEventID.String()
		resp.EndEventID = &end
	}
	return resp
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// --- Response plumbing ---

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, persistence.ErrNotFound) {
		s.writeStatus(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error().Err(err).Msg("request failed")
	s.writeStatus(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeStatus(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
