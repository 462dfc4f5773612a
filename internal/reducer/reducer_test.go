package reducer

import (
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

var (
	hashA = common.HexToHash("0xa")
	hashB = common.HexToHash("0xb")
	t0    = time.Unix(1_700_000_000, 0).UTC()
)

func match(id string, h common.Hash, status domain.EventStatus, delta int64, at time.Time) domain.HistoryEvent {
	return domain.HistoryEvent{
		ID: id, Kind: domain.EventKindMatch, Status: status, Date: at,
		Match: &domain.MatchEvent{Hash: h, FillDelta: big.NewInt(delta)},
	}
}

func cancel(id string, h common.Hash, status domain.EventStatus, at time.Time) domain.HistoryEvent {
	return domain.HistoryEvent{
		ID: id, Kind: domain.EventKindCancel, Status: status, Date: at,
		Cancel: &domain.CancelEvent{Hash: h},
	}
}

func TestReduceScenarios(t *testing.T) {
	tests := []struct {
		name          string
		events        []domain.HistoryEvent
		wantFill      int64
		wantCancelled bool
		wantPending   []string
		wantChange    time.Time
	}{
		{"empty", nil, 0, false, nil, time.Time{}},
		{
			"confirmed matches accumulate",
			[]domain.HistoryEvent{
				match("m1", hashA, domain.EventStatusConfirmed, 4, t0),
				match("m2", hashA, domain.EventStatusConfirmed, 6, t0.Add(time.Minute)),
			},
			10, false, nil, t0.Add(time.Minute),
		},
		{
			"pending kept in arrival order",
			[]domain.HistoryEvent{
				match("p2", hashA, domain.EventStatusPending, 1, t0.Add(time.Minute)),
				match("p1", hashA, domain.EventStatusPending, 1, t0),
			},
			0, false, []string{"p2", "p1"}, time.Time{},
		},
		{
			"confirmation purges its pending entry",
			[]domain.HistoryEvent{
				match("m1", hashA, domain.EventStatusPending, 3, t0),
				match("m2", hashA, domain.EventStatusPending, 2, t0),
				match("m1", hashA, domain.EventStatusConfirmed, 3, t0),
			},
			3, false, []string{"m2"}, t0,
		},
		{
			"revert purges without fill",
			[]domain.HistoryEvent{
				match("m1", hashA, domain.EventStatusPending, 3, t0),
				match("m1", hashA, domain.EventStatusReverted, 3, t0),
			},
			0, false, nil, time.Time{},
		},
		{
			"reorg reverts a confirmed match",
			[]domain.HistoryEvent{
				match("m1", hashA, domain.EventStatusConfirmed, 4, t0),
				match("m2", hashA, domain.EventStatusConfirmed, 1, t0),
				match("m1", hashA, domain.EventStatusReverted, 4, t0),
			},
			1, false, nil, t0,
		},
		{
			"reorg reverts a confirmed cancel",
			[]domain.HistoryEvent{
				cancel("c1", hashA, domain.EventStatusConfirmed, t0),
				cancel("c1", hashA, domain.EventStatusReverted, t0),
			},
			0, false, nil, time.Time{},
		},
		{
			"reincluded after revert counts once",
			[]domain.HistoryEvent{
				match("m1", hashA, domain.EventStatusConfirmed, 4, t0),
				match("m1", hashA, domain.EventStatusReverted, 4, t0),
				match("m1", hashA, domain.EventStatusConfirmed, 4, t0),
			},
			4, false, nil, t0,
		},
		{
			"dropped and inactive ignored",
			[]domain.HistoryEvent{
				match("m1", hashA, domain.EventStatusDropped, 3, t0),
				match("m2", hashA, domain.EventStatusInactive, 3, t0),
			},
			0, false, nil, time.Time{},
		},
		{
			"fills after cancel still count",
			[]domain.HistoryEvent{
				cancel("c1", hashA, domain.EventStatusConfirmed, t0),
				match("m1", hashA, domain.EventStatusConfirmed, 2, t0.Add(-time.Minute)),
			},
			2, true, nil, t0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(tt.events)
			if got.Fill.Int64() != tt.wantFill {
				t.Errorf("got fill %s, want %d", got.Fill, tt.wantFill)
			}
			if got.Cancelled != tt.wantCancelled {
				t.Errorf("got cancelled %v, want %v", got.Cancelled, tt.wantCancelled)
			}
			var ids []string
			for _, p := range got.Pending {
				ids = append(ids, p.ID)
			}
			if !reflect.DeepEqual(ids, tt.wantPending) {
				t.Errorf("got pending %v, want %v", ids, tt.wantPending)
			}
			if !got.ChangeDate.Equal(tt.wantChange) {
				t.Errorf("got change date %s, want %s", got.ChangeDate, tt.wantChange)
			}
		})
	}
}

func TestReduceIdempotent(t *testing.T) {
	events := []domain.HistoryEvent{
		match("m1", hashA, domain.EventStatusConfirmed, 4, t0),
		match("p1", hashA, domain.EventStatusPending, 1, t0),
		cancel("c1", hashA, domain.EventStatusConfirmed, t0.Add(time.Hour)),
	}
	first := Reduce(events)
	second := Reduce(events)
	if first.Fill.Cmp(second.Fill) != 0 || first.Cancelled != second.Cancelled ||
		len(first.Pending) != len(second.Pending) || !first.ChangeDate.Equal(second.ChangeDate) {
		t.Errorf("got %+v then %+v", first, second)
	}
	if events[0].Match.FillDelta.Int64() != 4 {
		t.Error("input mutated")
	}
}

func TestReduceConfirmedOrderIndependent(t *testing.T) {
	a := match("m1", hashA, domain.EventStatusConfirmed, 4, t0.Add(time.Hour))
	b := match("m2", hashA, domain.EventStatusConfirmed, 6, t0)
	forward := Reduce([]domain.HistoryEvent{a, b})
	backward := Reduce([]domain.HistoryEvent{b, a})
	if forward.Fill.Cmp(backward.Fill) != 0 {
		t.Errorf("fill depends on order: %s vs %s", forward.Fill, backward.Fill)
	}
	if !forward.ChangeDate.Equal(backward.ChangeDate) {
		t.Errorf("change date depends on order: %s vs %s", forward.ChangeDate, backward.ChangeDate)
	}
}

func TestGroupIsolatesHashes(t *testing.T) {
	nonce := domain.HistoryEvent{ID: "n1", Kind: domain.EventKindNonceChanged, Status: domain.EventStatusConfirmed,
		NonceChanged: &domain.NonceChangedEvent{NewNonce: big.NewInt(5)}}
	interleaved := []domain.HistoryEvent{
		match("a1", hashA, domain.EventStatusConfirmed, 1, t0),
		match("b1", hashB, domain.EventStatusConfirmed, 5, t0),
		nonce,
		match("a2", hashA, domain.EventStatusConfirmed, 2, t0),
		cancel("b2", hashB, domain.EventStatusConfirmed, t0),
	}
	shuffled := []domain.HistoryEvent{interleaved[1], interleaved[4], interleaved[0], interleaved[3], interleaved[2]}

	for name, events := range map[string][]domain.HistoryEvent{"interleaved": interleaved, "shuffled": shuffled} {
		groups, rest := Group(events)
		if len(rest) != 1 || rest[0].ID != "n1" {
			t.Errorf("%s: got rest %v", name, rest)
		}
		if got := Reduce(groups[hashA]); got.Fill.Int64() != 3 || got.Cancelled {
			t.Errorf("%s: hash A got %+v", name, got)
		}
		if got := Reduce(groups[hashB]); got.Fill.Int64() != 5 || !got.Cancelled {
			t.Errorf("%s: hash B got %+v", name, got)
		}
	}
}

func TestSortByLogPosition(t *testing.T) {
	events := []domain.HistoryEvent{
		{ID: "c", BlockNumber: 2, LogIndex: 0},
		{ID: "b", BlockNumber: 1, LogIndex: 3, MinorLogIndex: 1},
		{ID: "a", BlockNumber: 1, LogIndex: 3},
	}
	Sort(events)
	var got []string
	for _, e := range events {
		got = append(got, e.ID)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestChanged(t *testing.T) {
	o := &domain.Order{Fill: big.NewInt(4)}
	state := domain.ZeroOrderState()
	state.Fill = big.NewInt(4)
	if Changed(o, state) {
		t.Error("equal state reported as changed")
	}
	state.Cancelled = true
	if !Changed(o, state) {
		t.Error("cancellation not detected")
	}
	state.Cancelled = false
	state.Pending = []domain.HistoryEvent{{ID: "p"}}
	if !Changed(o, state) {
		t.Error("pending change not detected")
	}
}
