package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

var _ domain.HistoryStore = (*HistoryStore)(nil)

// HistoryStore implements domain.HistoryStore on the exchange_history table.
// A row is keyed by event id and carries the latest status of that log:
// CONFIRMED replaces PENDING, REVERTED replaces CONFIRMED after a reorg, and
// a late PENDING redelivery never overwrites a settled status.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a new HistoryStore backed by the given connection pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Append upserts events in one batch.
func (s *HistoryStore) Append(ctx context.Context, events ...domain.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	const query = `
		INSERT INTO exchange_history (
			id, status, kind, hash, block_number, log_index,
			minor_log_index, tx_hash, source, event
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status          = EXCLUDED.status,
			kind            = EXCLUDED.kind,
			hash            = EXCLUDED.hash,
			block_number    = EXCLUDED.block_number,
			log_index       = EXCLUDED.log_index,
			minor_log_index = EXCLUDED.minor_log_index,
			tx_hash         = EXCLUDED.tx_hash,
			source          = EXCLUDED.source,
			event           = EXCLUDED.event,
			updated_at      = NOW()
		WHERE exchange_history.status = 'PENDING' OR EXCLUDED.status <> 'PENDING'`

	batch := &pgx.Batch{}
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("postgres: marshal history event %s: %w", ev.ID, err)
		}
		var hash *string
		if h, ok := ev.OrderHash(); ok {
			v := h.Hex()
			hash = &v
		}
		batch.Queue(query,
			ev.ID, string(ev.Status), string(ev.Kind), hash,
			int64(ev.BlockNumber), int64(ev.LogIndex), int64(ev.MinorLogIndex),
			ev.TxHash.Hex(), ev.Source, payload,
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: append %d history events: %w", len(events), err)
	}
	return nil
}

// ListByHash returns the events of hash in block order.
func (s *HistoryStore) ListByHash(ctx context.Context, hash common.Hash) ([]domain.HistoryEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event FROM exchange_history
		WHERE hash = $1
		ORDER BY block_number, log_index, minor_log_index, created_at`,
		hash.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list history of %s: %w", hash.Hex(), err)
	}
	defer rows.Close()

	var events []domain.HistoryEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan history event: %w", err)
		}
		var ev domain.HistoryEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("postgres: decode history event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
