package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventStatus is the chain status of a log event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "PENDING"
	EventStatusConfirmed EventStatus = "CONFIRMED"
	EventStatusReverted  EventStatus = "REVERTED"
	EventStatusDropped   EventStatus = "DROPPED"
	EventStatusInactive  EventStatus = "INACTIVE"
)

// EventKind tags the HistoryEvent variant.
type EventKind string

const (
	EventKindMatch        EventKind = "MATCH"
	EventKindCancel       EventKind = "CANCEL"
	EventKindNonceChanged EventKind = "NONCE_CHANGED"
)

// MatchEvent is a (partial) fill of Hash against CounterHash.
type MatchEvent struct {
	Hash        common.Hash     `json:"hash"`
	CounterHash *common.Hash    `json:"counterHash,omitempty"`
	FillDelta   *big.Int        `json:"fillDelta"`
	Maker       common.Address  `json:"maker"`
	Taker       *common.Address `json:"taker,omitempty"`
	Make        *Asset          `json:"make,omitempty"`
	Take        *Asset          `json:"take,omitempty"`
}

// CancelEvent cancels Hash.
type CancelEvent struct {
	Hash  common.Hash    `json:"hash"`
	Maker common.Address `json:"maker"`
}

// NonceChangedEvent raises the maker's nonce or counter on a protocol.
type NonceChangedEvent struct {
	Maker    common.Address `json:"maker"`
	Protocol OrderType      `json:"protocol"`
	NewNonce *big.Int       `json:"newNonce"`
}

// HistoryEvent is one exchange log event. Exactly one of Match, Cancel and
// NonceChanged is set, as selected by Kind. ID identifies the logical event
// across its PENDING and CONFIRMED deliveries.
type HistoryEvent struct {
	ID            string             `json:"id"`
	Kind          EventKind          `json:"kind"`
	Status        EventStatus        `json:"status"`
	Date          time.Time          `json:"date"`
	BlockNumber   uint64             `json:"blockNumber"`
	LogIndex      uint               `json:"logIndex"`
	MinorLogIndex uint               `json:"minorLogIndex"`
	TxHash        common.Hash        `json:"txHash"`
	Source        string             `json:"source,omitempty"`
	Match         *MatchEvent        `json:"match,omitempty"`
	Cancel        *CancelEvent       `json:"cancel,omitempty"`
	NonceChanged  *NonceChangedEvent `json:"nonceChanged,omitempty"`
}

// OrderHash returns the order hash the event belongs to, or false for
// events that are not scoped to a single order.
func (e HistoryEvent) OrderHash() (common.Hash, bool) {
	switch e.Kind {
	case EventKindMatch:
		if e.Match != nil {
			return e.Match.Hash, true
		}
	case EventKindCancel:
		if e.Cancel != nil {
			return e.Cancel.Hash, true
		}
	}
	return common.Hash{}, false
}

// Validate checks that the variant payload matches Kind.
func (e HistoryEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: history event without id", ErrInvalidOrder)
	}
	switch e.Kind {
	case EventKindMatch:
		if e.Match == nil || e.Match.FillDelta == nil || e.Match.FillDelta.Sign() < 0 {
			return fmt.Errorf("%w: match event %s without fill", ErrInvalidOrder, e.ID)
		}
	case EventKindCancel:
		if e.Cancel == nil {
			return fmt.Errorf("%w: cancel event %s without payload", ErrInvalidOrder, e.ID)
		}
	case EventKindNonceChanged:
		if e.NonceChanged == nil || e.NonceChanged.NewNonce == nil {
			return fmt.Errorf("%w: nonce event %s without nonce", ErrInvalidOrder, e.ID)
		}
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrInvalidOrder, e.Kind)
	}
	return nil
}

// Before orders events by block position, the order they were appended to a
// hash's history.
func (e HistoryEvent) Before(o HistoryEvent) bool {
	if e.BlockNumber != o.BlockNumber {
		return e.BlockNumber < o.BlockNumber
	}
	if e.LogIndex != o.LogIndex {
		return e.LogIndex < o.LogIndex
	}
	return e.MinorLogIndex < o.MinorLogIndex
}

// OrderState is the reducer accumulator for one order hash.
type OrderState struct {
	Fill       *big.Int
	Cancelled  bool
	Pending    []HistoryEvent
	ChangeDate time.Time
}

// ZeroOrderState is the starting point of every reduction pass.
func ZeroOrderState() OrderState {
	return OrderState{Fill: new(big.Int)}
}
