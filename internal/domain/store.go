package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderStore persists the Order aggregate under optimistic concurrency.
type OrderStore interface {
	// Get returns ErrNotFound when no order has the hash.
	Get(ctx context.Context, hash common.Hash) (*Order, error)
	// CompareAndSave writes order if the stored version still equals
	// expectedVersion (0 means "must not exist yet") and returns the order
	// with its new version. A lost race yields ErrConflict.
	CompareAndSave(ctx context.Context, order *Order, expectedVersion int64) (*Order, error)
	// FindByMakerBelowCounter lists hashes of not-cancelled orders of maker on
	// protocol whose embedded nonce or counter is below threshold.
	FindByMakerBelowCounter(ctx context.Context, maker common.Address, protocol OrderType, threshold *big.Int) ([]common.Hash, error)
}

// OrderQuery serves the read side of the API. Statuses filter the derived
// status; an empty list matches every status. Results are newest first.
type OrderQuery interface {
	ListByMaker(ctx context.Context, maker common.Address, statuses []OrderStatus, limit int) ([]*Order, error)
	// ListBids returns orders asking for item, including collection-wide
	// bids covering it.
	ListBids(ctx context.Context, item AssetType, statuses []OrderStatus, limit int) ([]*Order, error)
}

// HistoryStore is the append-only exchange event log.
type HistoryStore interface {
	// Append stores events keyed by id. A later delivery of the same log
	// replaces the stored status, except that PENDING never replaces a
	// settled status.
	Append(ctx context.Context, events ...HistoryEvent) error
	// ListByHash returns every event of the order hash, oldest first.
	ListByHash(ctx context.Context, hash common.Hash) ([]HistoryEvent, error)
}

// NonceStore tracks the latest nonce or counter seen per maker and protocol.
type NonceStore interface {
	// Get returns ErrNotFound when no nonce change was observed.
	Get(ctx context.Context, maker common.Address, protocol OrderType) (*big.Int, error)
	// Raise stores nonce unless a higher value is already stored.
	Raise(ctx context.Context, maker common.Address, protocol OrderType, nonce *big.Int, at time.Time) error
}
