package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderChanged is published whenever a persisted order is created or its
// externally visible state changes.
type OrderChanged struct {
	ID    string      `json:"id"`
	Hash  common.Hash `json:"hash"`
	Order *Order      `json:"order"`
	At    time.Time   `json:"at"`
}

// OrderListener receives change notifications. Implementations must not
// block for long; delivery is best effort from the engine's point of view.
type OrderListener interface {
	OnOrderChanged(ctx context.Context, ev OrderChanged) error
}
