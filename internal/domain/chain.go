package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceOracle reports how much of an asset an owner can currently spend.
// A nil balance is treated as zero.
type BalanceOracle interface {
	AvailableBalance(ctx context.Context, owner common.Address, asset AssetType) (*big.Int, error)
}

// ApprovalOracle reports whether owner lets operator move asset on its
// behalf.
type ApprovalOracle interface {
	IsApproved(ctx context.Context, owner, operator common.Address, asset AssetType) (bool, error)
}
