package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/exchange"
	"github.com/alanyoungcy/orderindexer/internal/inverter"
)

// Contracts holds the exchange addresses targeted by prepared transactions.
type Contracts struct {
	RaribleV2 common.Address
}

// TransferProxies are the approval targets per asset family.
type TransferProxies struct {
	NFT        common.Address
	ERC20      common.Address
	LazyNFT    common.Address
	CryptoPunk common.Address
}

// FillRequest is the taker's side of a fulfillment.
type FillRequest struct {
	Taker            common.Address `json:"taker"`
	Amount           *big.Int       `json:"amount"`
	Payouts          []domain.Part  `json:"payouts"`
	OriginFees       []domain.Part  `json:"originFees"`
	MaxFeesBasePoint uint16         `json:"maxFeesBasePoint"`
}

// PreparedTx is a transaction the client signs and submits.
type PreparedTx struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *big.Int       `json:"value"`
}

// Prepared is the result of a fill preparation: the asset the taker hands
// over, the contract it must be approved to and the transaction itself.
type Prepared struct {
	TransferProxy *common.Address `json:"transferProxyAddress,omitempty"`
	Asset         domain.Asset    `json:"asset"`
	Tx            PreparedTx      `json:"transaction"`
}

// PrepareService builds fill and cancel transactions for indexed orders.
type PrepareService struct {
	orders     domain.OrderStore
	contracts  Contracts
	proxies    TransferProxies
	commission int
	now        func() time.Time
	logger     *slog.Logger
}

// NewPrepareService creates a PrepareService.
func NewPrepareService(
	orders domain.OrderStore,
	contracts Contracts,
	proxies TransferProxies,
	protocolCommission int,
	logger *slog.Logger,
) *PrepareService {
	return &PrepareService{
		orders:     orders,
		contracts:  contracts,
		proxies:    proxies,
		commission: protocolCommission,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "prepare_service")),
	}
}

// PrepareFill loads hash and builds the taker's transaction.
func (s *PrepareService) PrepareFill(ctx context.Context, hash common.Hash, req FillRequest) (*Prepared, error) {
	o, err := s.orders.Get(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("prepare: load %s: %w", hash.Hex(), err)
	}
	if o.Status != domain.OrderStatusActive {
		return nil, fmt.Errorf("prepare: %w: order %s is %s", domain.ErrInvalidOrder, hash.Hex(), o.Status)
	}
	if req.Amount == nil {
		req.Amount = big.NewInt(1)
	}

	var p *Prepared
	switch o.Type {
	case domain.OrderTypeRaribleV2:
		p, err = s.fillRaribleV2(o, req)
	case domain.OrderTypeOpenSeaV1:
		p, err = s.fillOpenSea(o, req)
	case domain.OrderTypeCryptoPunks:
		p, err = s.fillPunk(o)
	default:
		err = fmt.Errorf("prepare: %w: fill %s order", domain.ErrUnsupportedOperation, o.Type)
	}
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "prepared fill",
		slog.String("hash", hash.Hex()),
		slog.String("type", string(o.Type)),
		slog.String("taker", req.Taker.Hex()),
		slog.String("amount", req.Amount.String()),
	)
	return p, nil
}

// PrepareCancel loads hash and builds the maker's on-chain cancel.
func (s *PrepareService) PrepareCancel(ctx context.Context, hash common.Hash) (*PreparedTx, error) {
	o, err := s.orders.Get(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("prepare: load %s: %w", hash.Hex(), err)
	}
	switch o.Type {
	case domain.OrderTypeRaribleV2:
		data, err := exchange.CancelOrder(o)
		if err != nil {
			return nil, fmt.Errorf("prepare: encode cancel of %s: %w", hash.Hex(), err)
		}
		return &PreparedTx{To: s.contracts.RaribleV2, Data: data, Value: new(big.Int)}, nil
	case domain.OrderTypeCryptoPunks:
		var (
			data []byte
			to   common.Address
		)
		if o.IsSell() {
			to = o.Make.Type.Contract
			data, err = exchange.PunkNoLongerForSale(o.Make.Type.TokenID)
		} else {
			to = o.Take.Type.Contract
			data, err = exchange.WithdrawBidForPunk(o.Take.Type.TokenID)
		}
		if err != nil {
			return nil, fmt.Errorf("prepare: encode punk cancel of %s: %w", hash.Hex(), err)
		}
		return &PreparedTx{To: to, Data: data, Value: new(big.Int)}, nil
	}
	return nil, fmt.Errorf("prepare: %w: cancel %s order", domain.ErrUnsupportedOperation, o.Type)
}

func (s *PrepareService) fillRaribleV2(o *domain.Order, req FillRequest) (*Prepared, error) {
	counter, err := inverter.Invert(o, s.invertRequest(req))
	if err != nil {
		return nil, fmt.Errorf("prepare: invert %s: %w", o.Hash.Hex(), err)
	}
	data, err := exchange.MatchOrders(o, counter)
	if err != nil {
		return nil, fmt.Errorf("prepare: encode match of %s: %w", o.Hash.Hex(), err)
	}

	asset := counter.Make
	if asset.Type.IsCurrency() {
		fee := s.commission + domain.TotalBasisPoints(req.OriginFees)
		asset.Value = GrossUp(asset.Value, fee)
	}
	return &Prepared{
		TransferProxy: s.proxies.For(asset.Type),
		Asset:         asset,
		Tx:            PreparedTx{To: s.contracts.RaribleV2, Data: data, Value: ethValue(asset)},
	}, nil
}

func (s *PrepareService) fillOpenSea(o *domain.Order, req FillRequest) (*Prepared, error) {
	counter, err := inverter.Invert(o, s.invertRequest(req))
	if err != nil {
		return nil, fmt.Errorf("prepare: invert %s: %w", o.Hash.Hex(), err)
	}
	buy, sell := counter, o
	if o.IsBid() {
		buy, sell = o, counter
	}
	data, err := exchange.AtomicMatch(buy, sell)
	if err != nil {
		return nil, fmt.Errorf("prepare: encode atomic match of %s: %w", o.Hash.Hex(), err)
	}
	d := o.Data.(domain.OpenSeaV1Data)
	return &Prepared{
		Asset: counter.Make,
		Tx:    PreparedTx{To: d.Exchange, Data: data, Value: ethValue(counter.Make)},
	}, nil
}

func (s *PrepareService) fillPunk(o *domain.Order) (*Prepared, error) {
	if o.IsSell() {
		data, err := exchange.BuyPunk(o.Make.Type.TokenID)
		if err != nil {
			return nil, fmt.Errorf("prepare: encode buyPunk: %w", err)
		}
		return &Prepared{
			Asset: o.Take,
			Tx:    PreparedTx{To: o.Make.Type.Contract, Data: data, Value: ethValue(o.Take)},
		}, nil
	}
	data, err := exchange.AcceptBidForPunk(o.Take.Type.TokenID, o.Make.Value)
	if err != nil {
		return nil, fmt.Errorf("prepare: encode acceptBidForPunk: %w", err)
	}
	return &Prepared{
		Asset: o.Take,
		Tx:    PreparedTx{To: o.Take.Type.Contract, Data: data, Value: new(big.Int)},
	}, nil
}

func (s *PrepareService) invertRequest(req FillRequest) inverter.Request {
	return inverter.Request{
		NewMaker: req.Taker,
		Amount:   req.Amount,
		NewSalt:  new(big.Int),
		Fees: inverter.FeeConfig{
			Payouts:          req.Payouts,
			OriginFees:       req.OriginFees,
			MaxFeesBasePoint: req.MaxFeesBasePoint,
		},
		Now: s.now(),
	}
}

// For returns the proxy that moves assets of type t, or nil for ETH.
func (p TransferProxies) For(t domain.AssetType) *common.Address {
	var a common.Address
	switch {
	case t.Class == domain.AssetClassETH:
		return nil
	case t.Class == domain.AssetClassERC20:
		a = p.ERC20
	case t.IsLazy():
		a = p.LazyNFT
	case t.Class == domain.AssetClassCryptoPunks:
		a = p.CryptoPunk
	default:
		a = p.NFT
	}
	return &a
}

// GrossUp adds fee basis points on top of value, rounding down.
func GrossUp(value *big.Int, feeBps int) *big.Int {
	out := new(big.Int).Mul(value, big.NewInt(int64(domain.MaxBasisPoints+feeBps)))
	return out.Quo(out, big.NewInt(domain.MaxBasisPoints))
}

func ethValue(a domain.Asset) *big.Int {
	if a.Type.Class == domain.AssetClassETH && a.Value != nil {
		return new(big.Int).Set(a.Value)
	}
	return new(big.Int)
}
