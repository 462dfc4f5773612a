// Package chain reads maker balances from an Ethereum JSON-RPC node.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/ethabi"
)

// Backend is the subset of ethclient.Client the oracle needs.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ Backend = (*ethclient.Client)(nil)
var _ domain.BalanceOracle = (*BalanceOracle)(nil)
var _ domain.ApprovalOracle = (*BalanceOracle)(nil)

var (
	erc20BalanceOf     = ethabi.NewMethod("balanceOf(address)", ethabi.Address)
	erc721OwnerOf      = ethabi.NewMethod("ownerOf(uint256)", ethabi.Uint256)
	erc1155BalanceOf   = ethabi.NewMethod("balanceOf(address,uint256)", ethabi.Address, ethabi.Uint256)
	punkIndexToAddress = ethabi.NewMethod("punkIndexToAddress(uint256)", ethabi.Uint256)
	erc20Allowance     = ethabi.NewMethod("allowance(address,address)", ethabi.Address, ethabi.Address)
	isApprovedForAll   = ethabi.NewMethod("isApprovedForAll(address,address)", ethabi.Address, ethabi.Address)

	uintResult    = ethabi.Args(ethabi.Uint256)
	addressResult = ethabi.Args(ethabi.Address)
	boolResult    = ethabi.Args(ethabi.Bool)
)

// Dial connects to the node at url.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	return c, nil
}

// BalanceOracle implements domain.BalanceOracle with latest-block reads.
type BalanceOracle struct {
	backend Backend
	logger  *slog.Logger
}

// NewBalanceOracle creates a BalanceOracle over backend.
func NewBalanceOracle(backend Backend, logger *slog.Logger) *BalanceOracle {
	return &BalanceOracle{
		backend: backend,
		logger:  logger.With(slog.String("component", "balance_oracle")),
	}
}

// AvailableBalance returns how much of asset owner holds. Single-token NFTs
// report 1 or 0. Lazy NFTs are not minted yet, so their mint supply is
// available to the creator.
func (b *BalanceOracle) AvailableBalance(ctx context.Context, owner common.Address, asset domain.AssetType) (*big.Int, error) {
	switch asset.Class {
	case domain.AssetClassETH:
		v, err := b.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("chain: eth balance of %s: %w", owner.Hex(), err)
		}
		return v, nil
	case domain.AssetClassERC20:
		return b.callUint(ctx, asset.Contract, erc20BalanceOf, owner)
	case domain.AssetClassERC1155:
		return b.callUint(ctx, asset.Contract, erc1155BalanceOf, owner, asset.TokenID)
	case domain.AssetClassERC721:
		return b.ownedOne(ctx, asset.Contract, erc721OwnerOf, owner, asset.TokenID)
	case domain.AssetClassCryptoPunks:
		return b.ownedOne(ctx, asset.Contract, punkIndexToAddress, owner, asset.TokenID)
	case domain.AssetClassERC721Lazy:
		return big.NewInt(1), nil
	case domain.AssetClassERC1155Lazy:
		if asset.Lazy != nil && asset.Lazy.Supply != nil {
			return new(big.Int).Set(asset.Lazy.Supply), nil
		}
		return new(big.Int), nil
	}
	return nil, fmt.Errorf("chain: %w: balance of %s", domain.ErrUnsupportedOperation, asset.Class)
}

// IsApproved reports whether operator may transfer owner's asset. ERC20
// needs a non-zero allowance and ERC721/ERC1155 an operator approval. ETH is
// sent with the transaction, lazy assets are minted by the proxy and punks
// are offered directly, so those are always approved.
func (b *BalanceOracle) IsApproved(ctx context.Context, owner, operator common.Address, asset domain.AssetType) (bool, error) {
	switch asset.Class {
	case domain.AssetClassETH, domain.AssetClassERC721Lazy, domain.AssetClassERC1155Lazy, domain.AssetClassCryptoPunks:
		return true, nil
	case domain.AssetClassERC20:
		v, err := b.callUint(ctx, asset.Contract, erc20Allowance, owner, operator)
		if err != nil {
			return false, err
		}
		return v.Sign() > 0, nil
	case domain.AssetClassERC721, domain.AssetClassERC1155:
		out, err := b.call(ctx, asset.Contract, isApprovedForAll, owner, operator)
		if err != nil {
			return false, err
		}
		v, err := boolResult.Unpack(out)
		if err != nil || len(v) != 1 {
			return false, fmt.Errorf("chain: decode %s result: %v", isApprovedForAll.Signature, err)
		}
		return v[0].(bool), nil
	}
	return false, fmt.Errorf("chain: %w: approval of %s", domain.ErrUnsupportedOperation, asset.Class)
}

func (b *BalanceOracle) call(ctx context.Context, to common.Address, m ethabi.Method, args ...any) ([]byte, error) {
	data, err := m.Encode(args...)
	if err != nil {
		return nil, err
	}
	out, err := b.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s on %s: %w", m.Signature, to.Hex(), err)
	}
	return out, nil
}

func (b *BalanceOracle) callUint(ctx context.Context, to common.Address, m ethabi.Method, args ...any) (*big.Int, error) {
	out, err := b.call(ctx, to, m, args...)
	if err != nil {
		return nil, err
	}
	v, err := uintResult.Unpack(out)
	if err != nil || len(v) != 1 {
		return nil, fmt.Errorf("chain: decode %s result: %v", m.Signature, err)
	}
	return v[0].(*big.Int), nil
}

// ownedOne calls an owner lookup and reports 1 when it returns owner. A
// reverting lookup (burned or unknown token) counts as not owned.
func (b *BalanceOracle) ownedOne(ctx context.Context, to common.Address, m ethabi.Method, owner common.Address, id *big.Int) (*big.Int, error) {
	out, err := b.call(ctx, to, m, id)
	if err != nil {
		if !isRevert(err) {
			return nil, err
		}
		b.logger.DebugContext(ctx, "owner lookup reverted",
			slog.String("contract", to.Hex()),
			slog.String("error", err.Error()),
		)
		return new(big.Int), nil
	}
	v, err := addressResult.Unpack(out)
	if err != nil || len(v) != 1 {
		return nil, fmt.Errorf("chain: decode %s result: %v", m.Signature, err)
	}
	if v[0].(common.Address) == owner {
		return big.NewInt(1), nil
	}
	return new(big.Int), nil
}

func isRevert(err error) bool {
	var de rpc.DataError
	return errors.As(err, &de) || strings.Contains(err.Error(), "execution reverted")
}
