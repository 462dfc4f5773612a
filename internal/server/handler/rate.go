package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

// RateService stores and reads currency USD rates.
type RateService interface {
	SetRate(ctx context.Context, currency domain.AssetType, usd decimal.Decimal) error
	Rates(ctx context.Context, keys []string) (map[string]decimal.Decimal, error)
}

// RateHandler serves the currency rate endpoints.
type RateHandler struct {
	rates  RateService
	logger *slog.Logger
}

// NewRateHandler creates a RateHandler.
func NewRateHandler(rates RateService, logger *slog.Logger) *RateHandler {
	return &RateHandler{rates: rates, logger: logHandler(logger, "rates")}
}

type setRateRequest struct {
	Currency domain.AssetType `json:"currency"`
	USD      decimal.Decimal  `json:"usd"`
}

// SetRate records the USD rate of a currency.
// POST /api/rates
func (h *RateHandler) SetRate(w http.ResponseWriter, r *http.Request) {
	var req setRateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.USD.IsPositive() {
		writeError(w, http.StatusBadRequest, "usd must be positive")
		return
	}
	if err := h.rates.SetRate(r.Context(), req.Currency, req.USD); err != nil {
		writeServiceError(r.Context(), w, h.logger, "set rate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"currency": req.Currency.HashKey(),
		"usd":      req.USD.String(),
	})
}

// GetRates returns the rates for the requested currency keys.
// GET /api/rates?key=native&key=fungible:0x...
func (h *RateHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	keys := r.URL.Query()["key"]
	if len(keys) == 0 {
		writeError(w, http.StatusBadRequest, "at least one key query parameter required")
		return
	}
	rates, err := h.rates.Rates(r.Context(), keys)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "get rates", err)
		return
	}
	out := make(map[string]string, len(rates))
	for k, v := range rates {
		out[k] = v.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"rates": out})
}
