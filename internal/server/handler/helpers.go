package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	// maxBodyBytes caps request bodies; lazy mints with many creators stay
	// well below it.
	maxBodyBytes = 1 << 20
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// Headers set on every single-order response.
const (
	HeaderOrderHash    = "X-Order-Hash"
	HeaderOrderVersion = "X-Order-Version"
	HeaderOrderStatus  = "X-Order-Status"
)

// writeOrder sends one order with its identity headers.
func writeOrder(w http.ResponseWriter, o *domain.Order) {
	h := w.Header()
	h.Set(HeaderOrderHash, o.Hash.Hex())
	h.Set(HeaderOrderVersion, strconv.FormatInt(o.Version, 10))
	h.Set(HeaderOrderStatus, string(o.Status))
	writeJSON(w, http.StatusOK, o)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusOf maps a service error onto an HTTP status code.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnsupportedOperation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrInvalidNonce),
		errors.Is(err, domain.ErrHashMismatch),
		errors.Is(err, domain.ErrHashNotComputable),
		errors.Is(err, domain.ErrMalformedSignature),
		errors.Is(err, domain.ErrUnsupportedCallData),
		errors.Is(err, domain.ErrCallDataMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError answers with the status matching err. Server-side
// failures are logged and their details withheld from the client.
func writeServiceError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(ctx, "handler: "+action+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, status, action+" failed")
		return
	}
	writeError(w, status, err.Error())
}

// decodeBody reads a size-limited JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseLimit reads the limit query parameter. Defaults: 50, max 500.
func parseLimit(r *http.Request) int {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// parseStatuses reads repeated status query parameters. INACTIVE is left
// for the store to expand.
func parseStatuses(r *http.Request) ([]domain.OrderStatus, error) {
	var out []domain.OrderStatus
	for _, v := range r.URL.Query()["status"] {
		s := domain.OrderStatus(v)
		switch s {
		case domain.OrderStatusActive, domain.OrderStatusFilled, domain.OrderStatusCancelled,
			domain.OrderStatusNotStarted, domain.OrderStatusEnded, domain.OrderStatusInactive:
			out = append(out, s)
		default:
			return nil, fmt.Errorf("unknown status %q", v)
		}
	}
	return out, nil
}

// hashParam extracts and validates the {hash} path parameter.
func hashParam(r *http.Request) (common.Hash, error) {
	raw := r.PathValue("hash")
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid order hash %q", raw)
	}
	return common.BytesToHash(b), nil
}

// addressParam parses a required address query parameter.
func addressParam(r *http.Request, name string) (common.Address, error) {
	raw := r.URL.Query().Get(name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s must be a hex address", name)
	}
	return common.HexToAddress(raw), nil
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
