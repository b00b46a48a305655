package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"krx-collector/internal/domain"
	"krx-collector/internal/master"
	"krx-collector/internal/storage"
	"krx-collector/internal/sync"
)

// apiServer exposes the manual trigger surface over HTTP. Triggers are
// synchronous: the response carries the run summary.
type apiServer struct {
	instruments storage.InstrumentStore
	bars        storage.PriceBarStore
	features    storage.FeatureStore
	fetcher     *master.Fetcher
	orch        *sync.Orchestrator
	logger      *zap.Logger
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /stock/master/sync", s.handleMasterSync)
	mux.HandleFunc("GET /stock/master/count", s.handleMasterCount)
	mux.HandleFunc("POST /stock/price/collect", s.handleCollect)
	mux.HandleFunc("POST /stock/price/collect-full", s.handleCollectFull)
	mux.HandleFunc("POST /stock/features/recompute", s.handleRecompute)
	mux.HandleFunc("POST /stock/search", s.handleSearch)
	return mux
}

// errorResponse is the uniform failure payload.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", zap.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// masterSyncResponse reports per-market sync outcomes.
type masterSyncResponse struct {
	Message string           `json:"message"`
	Counts  map[string]int   `json:"counts"`
	Errors  map[string]string `json:"errors,omitempty"`
	Total   int              `json:"total"`
}

func (s *apiServer) handleMasterSync(w http.ResponseWriter, r *http.Request) {
	result := s.fetcher.SyncAll(r.Context())

	resp := masterSyncResponse{
		Message: "master sync completed",
		Counts:  make(map[string]int),
		Total:   result.Total,
	}
	for market, count := range result.Counts {
		resp.Counts[string(market)] = count
	}
	if len(result.Errors) > 0 {
		resp.Errors = make(map[string]string)
		for market, err := range result.Errors {
			resp.Errors[string(market)] = err.Error()
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// masterCountResponse reports stored master-row counts.
type masterCountResponse struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

func (s *apiServer) handleMasterCount(w http.ResponseWriter, r *http.Request) {
	counts, err := s.instruments.CountByMarket(r.Context())
	if err != nil {
		s.logger.Error("master count failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "count failed")
		return
	}

	resp := masterCountResponse{Counts: make(map[string]int64)}
	for market, count := range counts {
		resp.Counts[string(market)] = count
		resp.Total += count
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleCollect(w http.ResponseWriter, r *http.Request) {
	summary, err := s.orch.RunIncrementalAll(r.Context())
	if err != nil {
		if errors.Is(err, sync.ErrRunInProgress) {
			s.writeError(w, http.StatusConflict, "a collection run is already in progress")
			return
		}
		s.logger.Error("incremental collection failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// collectFullRequest is the forced backfill payload.
type collectFullRequest struct {
	Days int `json:"days"`
}

func (s *apiServer) handleCollectFull(w http.ResponseWriter, r *http.Request) {
	var req collectFullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Days < 1 || req.Days > sync.MaxBackfillDays {
		s.writeError(w, http.StatusBadRequest, "days must be between 1 and 2000")
		return
	}

	summary, err := s.orch.RunFullBackfillAll(r.Context(), req.Days)
	if err != nil {
		if errors.Is(err, sync.ErrRunInProgress) {
			s.writeError(w, http.StatusConflict, "a collection run is already in progress")
			return
		}
		s.logger.Error("full backfill failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// recomputeResponse reports how many feature rows were rebuilt.
type recomputeResponse struct {
	Message string `json:"message"`
	Rows    int64  `json:"rows"`
}

func (s *apiServer) handleRecompute(w http.ResponseWriter, r *http.Request) {
	rows, err := s.features.RecomputeAllHistory(r.Context())
	if err != nil {
		s.logger.Error("feature recompute failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, recomputeResponse{
		Message: "feature recompute completed",
		Rows:    rows,
	})
}

// searchRequest looks up one instrument by exact name.
type searchRequest struct {
	Name string `json:"name"`
}

// searchResponse carries the instrument and its stored bars, newest first.
type searchResponse struct {
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	MarketType string     `json:"marketType"`
	Bars       []priceBar `json:"bars"`
}

// priceBar is the wire form of one stored bar.
type priceBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	in, err := s.instruments.GetByName(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "instrument not found")
			return
		}
		s.logger.Error("instrument lookup failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	bars, err := s.bars.GetByCode(r.Context(), in.Code)
	if err != nil {
		s.logger.Error("bar lookup failed", zap.String("code", in.Code), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	resp := searchResponse{
		Code:       in.Code,
		Name:       in.Name,
		MarketType: string(in.MarketType),
		Bars:       make([]priceBar, 0, len(bars)),
	}
	// Newest first for display.
	for i := len(bars) - 1; i >= 0; i-- {
		b := bars[i]
		resp.Bars = append(resp.Bars, priceBar{
			Date:   domain.FormatCompact(b.Date),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}
