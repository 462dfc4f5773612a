package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

var _ domain.OrderListener = (*OrderArchiver)(nil)

// OrderArchiver keeps a JSON snapshot of every order that reaches FILLED or
// CANCELLED. Each order and terminal status is written once.
type OrderArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	logger *slog.Logger
}

// NewOrderArchiver creates an OrderArchiver.
func NewOrderArchiver(writer domain.BlobWriter, reader domain.BlobReader, logger *slog.Logger) *OrderArchiver {
	return &OrderArchiver{
		writer: writer,
		reader: reader,
		logger: logger.With(slog.String("component", "order_archiver")),
	}
}

// SnapshotPath is the object key of hash's snapshot in status.
//
//	orders/0xab12.../filled.json
func SnapshotPath(hash common.Hash, status domain.OrderStatus) string {
	return fmt.Sprintf("orders/%s/%s.json", strings.ToLower(hash.Hex()), strings.ToLower(string(status)))
}

// OnOrderChanged stores a snapshot when ev carries a terminal order.
func (a *OrderArchiver) OnOrderChanged(ctx context.Context, ev domain.OrderChanged) error {
	if ev.Order == nil {
		return nil
	}
	status := ev.Order.Status
	if status != domain.OrderStatusFilled && status != domain.OrderStatusCancelled {
		return nil
	}

	path := SnapshotPath(ev.Hash, status)
	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", ev.Hash.Hex(), err)
	}
	if exists {
		return nil
	}

	buf, err := json.Marshal(ev.Order)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: marshal: %w", ev.Hash.Hex(), err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", ev.Hash.Hex(), err)
	}

	a.logger.InfoContext(ctx, "order archived",
		slog.String("hash", ev.Hash.Hex()),
		slog.String("status", string(status)),
		slog.String("path", path),
	)
	return nil
}

// Snapshot loads the archived order of hash in status.
func (a *OrderArchiver) Snapshot(ctx context.Context, hash common.Hash, status domain.OrderStatus) (*domain.Order, error) {
	body, err := a.reader.Get(ctx, SnapshotPath(hash, status))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var o domain.Order
	if err := json.NewDecoder(body).Decode(&o); err != nil {
		return nil, fmt.Errorf("s3blob: decode snapshot of %s: %w", hash.Hex(), err)
	}
	return &o, nil
}
