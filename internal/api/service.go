// Package api provides the HTTP handlers for storing strategies, analyzing
// rolls against them and serving the prices the analyses can draw on.
//
// All monetary values use shopspring/decimal; never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/contract"
	"github.com/atmx/roll-engine/internal/export"
	"github.com/atmx/roll-engine/internal/metrics"
	"github.com/atmx/roll-engine/internal/model"
	"github.com/atmx/roll-engine/internal/quote"
	"github.com/atmx/roll-engine/internal/roll"
	"github.com/atmx/roll-engine/internal/store"
)

// PriceSource serves last known underlying prices.
type PriceSource interface {
	LastKnownPrice(symbol string) (decimal.Decimal, bool)
	Quote(symbol string) (quote.Update, error)
}

// Service handles strategy and roll operations. Analyses are pure, so no
// lock is held around them.
type Service struct {
	store  store.Store
	prices PriceSource // optional; nil disables use_last_price and /prices
	wsHub  *WSHub      // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new API service.
// Pass nil for prices or hub when those features are not needed.
func NewService(st store.Store, prices PriceSource, hub *WSHub) *Service {
	return &Service{store: st, prices: prices, wsHub: hub}
}

// Routes mounts every handler under r. The caller adds /health and
// /metrics.
func (s *Service) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/roll/analyze", s.Analyze)

		r.Post("/strategies", s.CreateStrategy)
		r.Get("/strategies", s.ListStrategies)
		r.Get("/strategies/{strategyID}", s.GetStrategy)
		r.Put("/strategies/{strategyID}", s.UpdateStrategy)
		r.Delete("/strategies/{strategyID}", s.DeleteStrategy)
		r.Post("/strategies/{strategyID}/roll", s.AnalyzeRoll)
		r.Post("/strategies/{strategyID}/roll/curve.csv", s.CurveCSV)
		r.Get("/strategies/{strategyID}/rolls", s.ListRolls)

		r.Get("/prices/{symbol}", s.GetPrice)

		if s.wsHub != nil {
			r.Get("/ws", s.wsHub.HandleWS)
		}
	})
}

// --- Request/Response types ---

// StrategyRequest is the JSON body for strategy creation and update. When
// OptionSymbol is set, the symbol and strike are taken from it.
type StrategyRequest struct {
	model.StrategyRecord
	OptionSymbol string `json:"option_symbol,omitempty"` // OCC, e.g. AAPL240621C00180000
}

// RollRequest is the JSON body for analyzing a roll of a stored strategy.
type RollRequest struct {
	Assumption  roll.OldLegAssumption `json:"assumption"`
	NewPosition roll.NewPositionInput `json:"new_position"`

	// UseLastPrice fills a missing expected settlement price with the last
	// known price of the underlying.
	UseLastPrice bool `json:"use_last_price"`
	Strict       bool `json:"strict"`
}

// RollResponse is the JSON body returned from a roll analysis.
type RollResponse struct {
	RollID     string         `json:"roll_id,omitempty"`
	StrategyID string         `json:"strategy_id,omitempty"`
	Analysis   *roll.Analysis `json:"analysis"`
	Error      string         `json:"error,omitempty"`
}

// --- Strategy handlers ---

// CreateStrategy handles POST /api/v1/strategies
func (s *Service) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeStrategy(w, r)
	if !ok {
		return
	}

	now := time.Now().UTC()
	rec.ID = uuid.New().String()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.store.CreateStrategy(r.Context(), rec); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	metrics.ActiveStrategies.Inc()

	slog.Info("strategy created",
		"id", rec.ID,
		"symbol", rec.Symbol,
		"variant", rec.Variant,
		"strike", rec.Strike.String(),
		"contracts", rec.Contracts,
	)
	s.broadcast(WSMessage{Type: MsgStrategyCreated, StrategyID: rec.ID, Symbol: rec.Symbol})

	writeJSON(w, http.StatusCreated, rec)
}

// GetStrategy handles GET /api/v1/strategies/{strategyID}
func (s *Service) GetStrategy(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadStrategy(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListStrategies handles GET /api/v1/strategies
// Returns all strategies, optionally filtered by ?symbol=<ticker>.
func (s *Service) ListStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := s.store.ListStrategies(r.Context())
	if err != nil {
		writeError(w, "failed to list strategies", http.StatusInternalServerError)
		return
	}

	if sym := r.URL.Query().Get("symbol"); sym != "" {
		want, err := contract.ParseSymbol(sym)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		var filtered []model.StrategyRecord
		for _, st := range strategies {
			if st.Symbol == want {
				filtered = append(filtered, st)
			}
		}
		strategies = filtered
	}
	if strategies == nil {
		strategies = []model.StrategyRecord{}
	}

	writeJSON(w, http.StatusOK, strategies)
}

// UpdateStrategy handles PUT /api/v1/strategies/{strategyID}
func (s *Service) UpdateStrategy(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.loadStrategy(w, r)
	if !ok {
		return
	}
	rec, ok := decodeStrategy(w, r)
	if !ok {
		return
	}

	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateStrategy(r.Context(), rec); err != nil {
		writeStoreError(w, err, "failed to update strategy")
		return
	}

	slog.Info("strategy updated", "id", rec.ID, "variant", rec.Variant)
	s.broadcast(WSMessage{Type: MsgStrategyUpdated, StrategyID: rec.ID, Symbol: rec.Symbol})

	writeJSON(w, http.StatusOK, rec)
}

// DeleteStrategy handles DELETE /api/v1/strategies/{strategyID}
// Roll history is removed with the strategy.
func (s *Service) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "strategyID")

	if err := s.store.DeleteStrategy(r.Context(), id); err != nil {
		writeStoreError(w, err, "failed to delete strategy")
		return
	}
	metrics.ActiveStrategies.Dec()

	slog.Info("strategy deleted", "id", id)
	s.broadcast(WSMessage{Type: MsgStrategyDeleted, StrategyID: id})

	w.WriteHeader(http.StatusNoContent)
}

// --- Roll handlers ---

// Analyze handles POST /api/v1/roll/analyze
// Analyzes a roll of an inline strategy without storing anything.
func (s *Service) Analyze(w http.ResponseWriter, r *http.Request) {
	var req roll.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := contract.ValidateStrategy(&req.Strategy); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := contract.ValidateRoll(req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	a, err := analyze(req)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, RollResponse{Analysis: a, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, RollResponse{Analysis: a})
}

// AnalyzeRoll handles POST /api/v1/strategies/{strategyID}/roll
// Runs the analysis against the stored strategy and appends the result to
// the strategy's roll history.
func (s *Service) AnalyzeRoll(w http.ResponseWriter, r *http.Request) {
	rec, req, ok := s.rollRequest(w, r)
	if !ok {
		return
	}

	a, err := analyze(req)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, RollResponse{StrategyID: rec.ID, Analysis: a, Error: err.Error()})
		return
	}

	entry := req.Record(a, time.Now().UTC())
	entry.ID = uuid.New().String()
	// The analysis is still returned when the history write fails.
	if err := s.store.InsertRoll(r.Context(), &entry); err != nil {
		slog.Error("failed to record roll", "strategy", rec.ID, "err", err)
		entry.ID = ""
	}

	slog.Info("roll analyzed",
		"roll_id", entry.ID,
		"strategy", rec.ID,
		"end_mode", entry.EndMode,
		"new_variant", entry.NewVariant,
		"new_strike", entry.NewStrike.String(),
		"complete", a.Complete(),
	)
	s.broadcast(WSMessage{Type: MsgRollAnalyzed, StrategyID: rec.ID, Symbol: rec.Symbol})

	writeJSON(w, http.StatusOK, RollResponse{RollID: entry.ID, StrategyID: rec.ID, Analysis: a})
}

// CurveCSV handles POST /api/v1/strategies/{strategyID}/roll/curve.csv
// Same body as AnalyzeRoll; responds with the payoff curve as CSV. Nothing
// is recorded.
func (s *Service) CurveCSV(w http.ResponseWriter, r *http.Request) {
	_, req, ok := s.rollRequest(w, r)
	if !ok {
		return
	}

	a, err := analyze(req)
	if err != nil {
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	if err := export.WriteCurveCSV(w, a.Curve); err != nil {
		slog.Error("failed to write curve csv", "err", err)
	}
}

// ListRolls handles GET /api/v1/strategies/{strategyID}/rolls
// Returns the strategy's roll history, oldest first.
func (s *Service) ListRolls(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadStrategy(w, r)
	if !ok {
		return
	}

	rolls, err := s.store.ListRolls(r.Context(), rec.ID)
	if err != nil {
		writeError(w, "failed to get roll history", http.StatusInternalServerError)
		return
	}
	if rolls == nil {
		rolls = []model.RollRecord{}
	}

	writeJSON(w, http.StatusOK, rolls)
}

// --- Prices ---

// GetPrice handles GET /api/v1/prices/{symbol}
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		writeError(w, "price feed not configured", http.StatusServiceUnavailable)
		return
	}
	sym, err := contract.ParseSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	u, err := s.prices.Quote(sym)
	if errors.Is(err, quote.ErrNoPrice) {
		writeError(w, "no price for "+sym, http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to get price", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// --- helpers ---

// decodeStrategy reads and validates a StrategyRequest body, writing a 400
// on failure.
func decodeStrategy(w http.ResponseWriter, r *http.Request) (*model.StrategyRecord, bool) {
	var req StrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	rec := req.StrategyRecord

	if req.OptionSymbol != "" {
		opt, err := contract.ParseOptionSymbol(req.OptionSymbol)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		if !opt.Matches(rec.Variant) {
			writeError(w, "option symbol "+opt.Symbol+" does not match variant "+string(rec.Variant), http.StatusBadRequest)
			return nil, false
		}
		rec.Symbol = opt.Underlying
		rec.Strike = opt.Strike
	}

	if err := contract.ValidateStrategy(&rec); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return &rec, true
}

// loadStrategy fetches the strategy named in the URL, writing a 404 when
// it does not exist.
func (s *Service) loadStrategy(w http.ResponseWriter, r *http.Request) (*model.StrategyRecord, bool) {
	id := chi.URLParam(r, "strategyID")
	rec, err := s.store.GetStrategy(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "failed to load strategy")
		return nil, false
	}
	return rec, true
}

// rollRequest loads the strategy and builds a validated roll.Request from
// the body.
func (s *Service) rollRequest(w http.ResponseWriter, r *http.Request) (*model.StrategyRecord, roll.Request, bool) {
	rec, ok := s.loadStrategy(w, r)
	if !ok {
		return nil, roll.Request{}, false
	}

	var body RollRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return nil, roll.Request{}, false
	}

	next := body.NewPosition
	if body.UseLastPrice && !next.ExpectedSettlementPrice.Valid && s.prices != nil {
		if p, ok := s.prices.LastKnownPrice(rec.Symbol); ok {
			next.ExpectedSettlementPrice = decimal.NullDecimal{Decimal: p, Valid: true}
		}
	}

	req := roll.Request{
		Strategy:   *rec,
		Assumption: body.Assumption,
		Next:       next,
		Strict:     body.Strict,
	}
	if err := contract.ValidateRoll(req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return nil, roll.Request{}, false
	}
	return rec, req, true
}

// analyze runs roll.Analyze and records its metrics.
func analyze(req roll.Request) (*roll.Analysis, error) {
	start := time.Now()
	a, err := roll.Analyze(req)
	metrics.RollLatency.Observe(time.Since(start).Seconds())

	metrics.RollAnalyses.WithLabelValues(string(req.Strategy.Variant), string(req.Next.VariantFor(req.Strategy))).Inc()
	if a.Resolved.Fallback != roll.FallbackNone {
		metrics.OldLegFallbacks.WithLabelValues(string(a.Resolved.Fallback)).Inc()
	}
	for _, sc := range []roll.ScenarioResult{a.Exercised, a.NotExercised} {
		if !sc.IsCalculated {
			metrics.UncalculatedScenarios.WithLabelValues(string(sc.Scenario)).Inc()
		}
	}
	return a, err
}

func (s *Service) broadcast(msg WSMessage) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
}

// writeStoreError maps store sentinels to status codes.
func writeStoreError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "strategy not found", http.StatusNotFound)
		return
	}
	slog.Error(fallback, "err", err)
	writeError(w, fallback, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
