package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

var (
	_ domain.OrderStore = (*OrderStore)(nil)
	_ domain.OrderQuery = (*OrderStore)(nil)
)

// defaultListLimit caps list queries that do not set a limit.
const defaultListLimit = 50

// OrderStore implements domain.OrderStore using PostgreSQL. The aggregate is
// kept as JSON next to the columns the queries filter on.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// orderRow holds the column projection of an order.
type orderRow struct {
	hash, maker, orderType, status string
	cancelled                      bool
	counter                        *string
	makeKey, takeKey, makeStock    string
	data                           []byte
}

func toRow(o *domain.Order) (orderRow, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return orderRow{}, fmt.Errorf("marshal: %w", err)
	}
	r := orderRow{
		hash:      o.Hash.Hex(),
		maker:     addressKey(o.Maker),
		orderType: string(o.Type),
		status:    string(o.Status),
		cancelled: o.Cancelled,
		makeKey:   o.Make.Type.HashKey(),
		takeKey:   o.Take.Type.HashKey(),
		makeStock: "0",
		data:      data,
	}
	if c, ok := domain.Counter(o.Data); ok {
		v := c.String()
		r.counter = &v
	}
	if o.MakeStock != nil {
		r.makeStock = o.MakeStock.String()
	}
	return r, nil
}

// Get retrieves the order stored under hash.
func (s *OrderStore) Get(ctx context.Context, hash common.Hash) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT data, version FROM orders WHERE hash = $1`, hash.Hex())

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get order %s: %w", hash.Hex(), err)
	}
	return o, nil
}

// CompareAndSave inserts the order when expectedVersion is 0 and otherwise
// updates it only while the stored version still matches.
func (s *OrderStore) CompareAndSave(ctx context.Context, o *domain.Order, expectedVersion int64) (*domain.Order, error) {
	r, err := toRow(o)
	if err != nil {
		return nil, fmt.Errorf("postgres: save order %s: %w", o.Hash.Hex(), err)
	}

	var version int64
	if expectedVersion == 0 {
		const query = `
			INSERT INTO orders (
				hash, maker, order_type, status, cancelled, counter,
				make_key, take_key, make_stock, data, version,
				created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6::text::numeric,
				$7, $8, $9::text::numeric, $10, 1,
				$11, $12
			)
			RETURNING version`
		err = s.pool.QueryRow(ctx, query,
			r.hash, r.maker, r.orderType, r.status, r.cancelled, r.counter,
			r.makeKey, r.takeKey, r.makeStock, r.data,
			o.CreatedAt, o.LastUpdateAt,
		).Scan(&version)
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("postgres: insert order %s: %w", r.hash, domain.ErrConflict)
		}
	} else {
		const query = `
			UPDATE orders SET
				status = $2, cancelled = $3, counter = $4::text::numeric,
				make_stock = $5::text::numeric, data = $6,
				version = version + 1, updated_at = $7
			WHERE hash = $1 AND version = $8
			RETURNING version`
		err = s.pool.QueryRow(ctx, query,
			r.hash, r.status, r.cancelled, r.counter,
			r.makeStock, r.data, o.LastUpdateAt, expectedVersion,
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: update order %s at version %d: %w", r.hash, expectedVersion, domain.ErrConflict)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: save order %s: %w", r.hash, err)
	}

	saved := o.Clone()
	saved.Version = version
	return saved, nil
}

// FindByMakerBelowCounter lists not-cancelled orders whose nonce or counter
// is below threshold.
func (s *OrderStore) FindByMakerBelowCounter(ctx context.Context, maker common.Address, protocol domain.OrderType, threshold *big.Int) ([]common.Hash, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT hash FROM orders
		WHERE maker = $1 AND order_type = $2 AND NOT cancelled
		  AND counter < $3::text::numeric
		ORDER BY hash`,
		addressKey(maker), string(protocol), threshold.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: find orders below counter: %w", err)
	}
	defer rows.Close()

	var hashes []common.Hash
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("postgres: scan order hash: %w", err)
		}
		hashes = append(hashes, common.HexToHash(h))
	}
	return hashes, rows.Err()
}

// ListByMaker returns the maker's orders, newest first.
func (s *OrderStore) ListByMaker(ctx context.Context, maker common.Address, statuses []domain.OrderStatus, limit int) ([]*domain.Order, error) {
	return s.list(ctx, "maker = $1", addressKey(maker), statuses, limit)
}

// ListBids returns orders whose take side is item or a collection covering it.
func (s *OrderStore) ListBids(ctx context.Context, item domain.AssetType, statuses []domain.OrderStatus, limit int) ([]*domain.Order, error) {
	return s.list(ctx, "take_key = ANY($1)", item.LookupKeys(), statuses, limit)
}

func (s *OrderStore) list(ctx context.Context, where string, key any, statuses []domain.OrderStatus, limit int) ([]*domain.Order, error) {
	query := `SELECT data, version FROM orders WHERE ` + where
	args := []any{key}
	argIdx := 2

	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, st := range statuses {
			for _, e := range domain.ExpandStatus(st) {
				names = append(names, string(e))
			}
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, names)
		argIdx++
	}

	query += " ORDER BY updated_at DESC, hash"

	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(scanner interface{ Scan(dest ...any) error }) (*domain.Order, error) {
	var data []byte
	var version int64
	if err := scanner.Scan(&data, &version); err != nil {
		return nil, err
	}
	var o domain.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	o.Version = version
	return &o, nil
}

func addressKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}
