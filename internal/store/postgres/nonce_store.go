package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

var _ domain.NonceStore = (*NonceStore)(nil)

// NonceStore implements domain.NonceStore using PostgreSQL.
type NonceStore struct {
	pool *pgxpool.Pool
}

// NewNonceStore creates a new NonceStore backed by the given connection pool.
func NewNonceStore(pool *pgxpool.Pool) *NonceStore {
	return &NonceStore{pool: pool}
}

// Get returns the highest nonce seen for maker on protocol.
func (s *NonceStore) Get(ctx context.Context, maker common.Address, protocol domain.OrderType) (*big.Int, error) {
	var v string
	err := s.pool.QueryRow(ctx,
		`SELECT nonce::text FROM maker_nonces WHERE maker = $1 AND protocol = $2`,
		addressKey(maker), string(protocol),
	).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get nonce of %s: %w", maker.Hex(), err)
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: nonce of %s is not an integer: %q", maker.Hex(), v)
	}
	return n, nil
}

// Raise stores nonce, keeping the stored value when it is higher.
func (s *NonceStore) Raise(ctx context.Context, maker common.Address, protocol domain.OrderType, nonce *big.Int, at time.Time) error {
	const query = `
		INSERT INTO maker_nonces (maker, protocol, nonce, updated_at)
		VALUES ($1, $2, $3::text::numeric, $4)
		ON CONFLICT (maker, protocol) DO UPDATE SET
			nonce = GREATEST(maker_nonces.nonce, EXCLUDED.nonce),
			updated_at = CASE WHEN EXCLUDED.nonce > maker_nonces.nonce
				THEN EXCLUDED.updated_at ELSE maker_nonces.updated_at END`

	if _, err := s.pool.Exec(ctx, query, addressKey(maker), string(protocol), nonce.String(), at); err != nil {
		return fmt.Errorf("postgres: raise nonce of %s: %w", maker.Hex(), err)
	}
	return nil
}
