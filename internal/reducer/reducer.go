// Package reducer folds the exchange history of one order hash into its
// fill and cancellation state.
package reducer

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

// Reduce folds events, oldest first, starting from the zero state. It is
// pure: the same input always gives the same state and nothing in events
// is modified.
//
// PENDING events are collected in arrival order. A CONFIRMED Match adds its
// fill delta, a CONFIRMED Cancel marks the order cancelled; both advance
// ChangeDate to the latest event date. A CONFIRMED or REVERTED event also
// drops pending entries with the same event id. Other statuses are ignored.
//
// The last non-PENDING status of an event id wins: a CONFIRMED event whose
// log is later REVERTED by a reorg contributes nothing, and an id counts at
// most once.
func Reduce(events []domain.HistoryEvent) domain.OrderState {
	final := settled(events)
	applied := make(map[string]bool)
	state := domain.ZeroOrderState()
	for _, ev := range events {
		if ev.Status == domain.EventStatusConfirmed {
			if final[ev.ID] != domain.EventStatusConfirmed || applied[ev.ID] {
				state.Pending = dropPending(state.Pending, ev.ID)
				continue
			}
			applied[ev.ID] = true
		}
		state = Apply(state, ev)
	}
	return state
}

// Apply folds a single event into state and returns the new state.
func Apply(state domain.OrderState, ev domain.HistoryEvent) domain.OrderState {
	switch ev.Status {
	case domain.EventStatusPending:
		state.Pending = append(append([]domain.HistoryEvent(nil), state.Pending...), ev)
	case domain.EventStatusConfirmed:
		state.Pending = dropPending(state.Pending, ev.ID)
		switch ev.Kind {
		case domain.EventKindMatch:
			if ev.Match != nil && ev.Match.FillDelta != nil {
				state.Fill = new(big.Int).Add(state.Fill, ev.Match.FillDelta)
			}
			state.ChangeDate = later(state.ChangeDate, ev)
		case domain.EventKindCancel:
			state.Cancelled = true
			state.ChangeDate = later(state.ChangeDate, ev)
		}
	case domain.EventStatusReverted:
		state.Pending = dropPending(state.Pending, ev.ID)
	}
	return state
}

// Supersedes reports whether a delivery with status next replaces a stored
// delivery of the same log with status prev. A late PENDING never replaces
// a settled status.
func Supersedes(prev, next domain.EventStatus) bool {
	return next != domain.EventStatusPending || prev == domain.EventStatusPending
}

// settled returns the last non-PENDING status seen per event id.
func settled(events []domain.HistoryEvent) map[string]domain.EventStatus {
	final := make(map[string]domain.EventStatus, len(events))
	for _, ev := range events {
		prev, ok := final[ev.ID]
		if !ok || Supersedes(prev, ev.Status) {
			final[ev.ID] = ev.Status
		}
	}
	return final
}

// Sort orders events by block position. Events with equal positions keep
// their relative order.
func Sort(events []domain.HistoryEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(events[j]) })
}

// Changed reports whether the reduced state differs from what o carries.
func Changed(o *domain.Order, state domain.OrderState) bool {
	fill := o.Fill
	if fill == nil {
		fill = new(big.Int)
	}
	if fill.Cmp(state.Fill) != 0 || o.Cancelled != state.Cancelled || len(o.Pending) != len(state.Pending) {
		return true
	}
	for i := range o.Pending {
		if o.Pending[i].ID != state.Pending[i].ID || o.Pending[i].Status != state.Pending[i].Status {
			return true
		}
	}
	return false
}

func dropPending(pending []domain.HistoryEvent, id string) []domain.HistoryEvent {
	var out []domain.HistoryEvent
	for _, p := range pending {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func later(current time.Time, ev domain.HistoryEvent) time.Time {
	if ev.Date.After(current) {
		return ev.Date
	}
	return current
}

// Group batches events by the order hash they belong to, keeping the
// relative order within each hash. Events without an order hash, such as
// nonce changes, are returned separately.
func Group(events []domain.HistoryEvent) (map[common.Hash][]domain.HistoryEvent, []domain.HistoryEvent) {
	groups := make(map[common.Hash][]domain.HistoryEvent)
	var rest []domain.HistoryEvent
	for _, ev := range events {
		h, ok := ev.OrderHash()
		if !ok {
			rest = append(rest, ev)
			continue
		}
		groups[h] = append(groups[h], ev)
	}
	return groups, rest
}
