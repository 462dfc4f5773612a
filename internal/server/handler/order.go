package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/service"
)

// OrderUpdater is the write side of the order aggregate.
type OrderUpdater interface {
	Save(ctx context.Context, intent *domain.Order) (*domain.Order, error)
	Update(ctx context.Context, hash common.Hash) (*domain.Order, error)
	Refresh(ctx context.Context, hash common.Hash) (*domain.Order, error)
	Cancel(ctx context.Context, hash common.Hash) (*domain.Order, error)
}

// OrderFinder is the read side of the order aggregate.
type OrderFinder interface {
	Get(ctx context.Context, hash common.Hash) (*domain.Order, error)
	domain.OrderQuery
}

// Preparer builds fill and cancel transactions.
type Preparer interface {
	PrepareFill(ctx context.Context, hash common.Hash, req service.FillRequest) (*service.Prepared, error)
	PrepareCancel(ctx context.Context, hash common.Hash) (*service.PreparedTx, error)
}

// SnapshotReader loads archived order snapshots.
type SnapshotReader interface {
	Snapshot(ctx context.Context, hash common.Hash, status domain.OrderStatus) (*domain.Order, error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	updater  OrderUpdater
	finder   OrderFinder
	preparer Preparer
	archive  SnapshotReader
	logger   *slog.Logger
}

// NewOrderHandler creates an OrderHandler. archive may be nil when object
// storage is disabled.
func NewOrderHandler(
	updater OrderUpdater,
	finder OrderFinder,
	preparer Preparer,
	archive SnapshotReader,
	logger *slog.Logger,
) *OrderHandler {
	return &OrderHandler{
		updater:  updater,
		finder:   finder,
		preparer: preparer,
		archive:  archive,
		logger:   logHandler(logger, "orders"),
	}
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []*domain.Order `json:"orders"`
}

// ListByMaker returns a maker's orders, newest update first.
// GET /api/orders?maker=0x...&status=ACTIVE&limit=50
func (h *OrderHandler) ListByMaker(w http.ResponseWriter, r *http.Request) {
	maker, err := addressParam(r, "maker")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	statuses, err := parseStatuses(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orders, err := h.finder.ListByMaker(r.Context(), maker, statuses, parseLimit(r))
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "list orders", err)
		return
	}
	writeOrders(w, orders)
}

// ListBids returns bids on an item. Without tokenId the collection-wide
// bids of contract are listed.
// GET /api/orders/bids?contract=0x...&tokenId=1&status=ACTIVE
func (h *OrderHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	contract, err := addressParam(r, "contract")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item := domain.Collection(contract)
	if raw := r.URL.Query().Get("tokenId"); raw != "" {
		id, ok := new(big.Int).SetString(raw, 10)
		if !ok || id.Sign() < 0 {
			writeError(w, http.StatusBadRequest, "tokenId must be a decimal integer")
			return
		}
		item = domain.ERC721(contract, id)
	}
	statuses, err := parseStatuses(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orders, err := h.finder.ListBids(r.Context(), item, statuses, parseLimit(r))
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "list bids", err)
		return
	}
	writeOrders(w, orders)
}

func writeOrders(w http.ResponseWriter, orders []*domain.Order) {
	if orders == nil {
		orders = []*domain.Order{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// GetOrder returns one order.
// GET /api/orders/{hash}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	hash, err := hashParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.finder.Get(r.Context(), hash)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "get order", err)
		return
	}
	writeOrder(w, o)
}

// SaveOrder ingests a signed order intent.
// POST /api/orders
func (h *OrderHandler) SaveOrder(w http.ResponseWriter, r *http.Request) {
	var intent domain.Order
	if err := decodeBody(w, r, &intent); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := h.updater.Save(r.Context(), &intent)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "save order", err)
		return
	}
	writeOrder(w, saved)
}

// Reduce re-folds the order's history. With refresh=true the maker balance
// is re-read even when the history is unchanged.
// POST /api/orders/{hash}/reduce?refresh=true
func (h *OrderHandler) Reduce(w http.ResponseWriter, r *http.Request) {
	hash, err := hashParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	var o *domain.Order
	if refresh {
		o, err = h.updater.Refresh(r.Context(), hash)
	} else {
		o, err = h.updater.Update(r.Context(), hash)
	}
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "reduce order", err)
		return
	}
	writeOrder(w, o)
}

// CancelOrder records an off-chain cancellation.
// POST /api/orders/{hash}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	hash, err := hashParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.updater.Cancel(r.Context(), hash)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "cancel order", err)
		return
	}
	h.logger.InfoContext(r.Context(), "order cancelled", slog.String("hash", hash.Hex()))
	writeOrder(w, o)
}

// PrepareFill builds the taker's transaction.
// POST /api/orders/{hash}/prepare
func (h *OrderHandler) PrepareFill(w http.ResponseWriter, r *http.Request) {
	hash, err := hashParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req service.FillRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Taker == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "taker is required")
		return
	}
	p, err := h.preparer.PrepareFill(r.Context(), hash, req)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "prepare fill", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PrepareCancel builds the maker's on-chain cancel.
// POST /api/orders/{hash}/prepare-cancel
func (h *OrderHandler) PrepareCancel(w http.ResponseWriter, r *http.Request) {
	hash, err := hashParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := h.preparer.PrepareCancel(r.Context(), hash)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "prepare cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// GetSnapshot returns the archived copy of an order in a final status.
// GET /api/orders/{hash}/archive/{status}
func (h *OrderHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	hash, err := hashParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := domain.OrderStatus(r.PathValue("status"))
	if status != domain.OrderStatusFilled && status != domain.OrderStatusCancelled {
		writeError(w, http.StatusBadRequest, "only FILLED and CANCELLED orders are archived")
		return
	}
	o, err := h.archive.Snapshot(r.Context(), hash, status)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "load snapshot", err)
		return
	}
	writeOrder(w, o)
}
