// Package market is the fixed-price marketplace. Listed tokens are held in
// custody until they are bought or the listing is canceled.
package market

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/acl"
	"github.com/everFinance/domainsplit/chain"
	dcommon "github.com/everFinance/domainsplit/common"
	"github.com/everFinance/domainsplit/registry"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/state"
)

var log = dcommon.NewLog("market")

const Kind = "market"

const (
	keyConfig  = "config"
	keyCount   = "count"
	keyListing = "listing"
	keyFees    = "fees"
)

// NFT is what the market needs from a token contract.
type NFT interface {
	OwnerOf(st *state.StateDB, tokenId uint64) (common.Address, error)
	TransferFrom(ctx *chain.Context, from, to common.Address, tokenId uint64) error
	SafeTransferFrom(ctx *chain.Context, from, to common.Address, tokenId uint64, data []byte) error
	RoyaltyInfo(st *state.StateDB, tokenId uint64, price *big.Int) (common.Address, *big.Int, error)
	RecordSale(ctx *chain.Context, tokenId uint64, price *big.Int, buyer common.Address) error
}

type listingEvent struct {
	ListingId uint64         `json:"listingId"`
	Seller    common.Address `json:"seller"`
	Nft       common.Address `json:"nft"`
	TokenId   uint64         `json:"tokenId"`
	Price     string         `json:"price,omitempty"`
}

type feesEvent struct {
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
}

type Market struct {
	addr common.Address
	acl  acl.Policy
}

func At(addr common.Address) *Market {
	return &Market{addr: addr, acl: acl.New(addr)}
}

func Install(c *chain.Chain) {
	c.Install(Kind, func(addr common.Address) interface{} { return At(addr) })
}

// Deploy creates a market; the deployer gets the admin and the
// marketplace admin roles.
func Deploy(c *chain.Chain, from common.Address, cfg schema.MarketConfig) (*Market, error) {
	if err := checkFee(cfg.MarketplaceFeeBps); err != nil {
		return nil, err
	}
	if cfg.FeeTreasury == (common.Address{}) {
		return nil, schema.ErrZeroAddress
	}
	addr, _, err := c.Create(from, Kind, func(ctx *chain.Context) error {
		m := At(ctx.Self)
		if err := m.saveConfig(ctx.State, cfg); err != nil {
			return err
		}
		if err := m.acl.Setup(ctx, acl.DefaultAdminRole, ctx.Caller); err != nil {
			return err
		}
		return m.acl.Setup(ctx, acl.MarketplaceAdminRole, ctx.Caller)
	})
	if err != nil {
		return nil, err
	}
	return At(addr), nil
}

func (m *Market) Address() common.Address {
	return m.addr
}

func (m *Market) ACL() acl.Policy {
	return m.acl
}

func (m *Market) key(parts ...string) string {
	return state.Key(append([]string{m.addr.Hex()}, parts...)...)
}

func (m *Market) Config(st *state.StateDB) (schema.MarketConfig, error) {
	cfg := schema.MarketConfig{}
	ok, err := st.GetJSON(schema.MarketBucket, m.key(keyConfig), &cfg)
	if err == nil && !ok {
		err = fmt.Errorf("%w: market %s", schema.ErrNoCode, m.addr.Hex())
	}
	return cfg, err
}

func (m *Market) saveConfig(st *state.StateDB, cfg schema.MarketConfig) error {
	return st.SetJSON(schema.MarketBucket, m.key(keyConfig), cfg)
}

func (m *Market) Listing(st *state.StateDB, listingId uint64) (*schema.Listing, error) {
	l := &schema.Listing{}
	ok, err := st.GetJSON(schema.MarketBucket, m.key(keyListing, strconv.FormatUint(listingId, 10)), l)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", schema.ErrUnknownListing, listingId)
	}
	return l, nil
}

func (m *Market) saveListing(st *state.StateDB, l *schema.Listing) error {
	return st.SetJSON(schema.MarketBucket, m.key(keyListing, strconv.FormatUint(l.ListingId, 10)), l)
}

func (m *Market) ListingCount(st *state.StateDB) uint64 {
	return st.GetUint64(schema.MarketBucket, m.key(keyCount))
}

// FeeBalance is the accrued fee not yet withdrawn to the fee treasury.
func (m *Market) FeeBalance(st *state.StateDB) *big.Int {
	return st.GetBig(schema.MarketBucket, m.key(keyFees))
}

// ListToken takes tokenId into custody and opens a listing for it. The
// caller must own the token and have approved the market.
func (m *Market) ListToken(ctx *chain.Context, nftAddr common.Address, tokenId uint64, price *big.Int) (uint64, error) {
	if price == nil || price.Sign() <= 0 {
		return 0, schema.ErrInvalidPrice
	}
	var listingId uint64
	err := ctx.NonReentrant(func() error {
		nft, err := loadNFT(ctx, nftAddr)
		if err != nil {
			return err
		}
		owner, err := nft.OwnerOf(ctx.State, tokenId)
		if err != nil {
			return err
		}
		seller := ctx.Caller
		if owner != seller {
			return fmt.Errorf("%w: %s does not own token %d", schema.ErrUnauthorized, seller.Hex(), tokenId)
		}

		listingId = m.ListingCount(ctx.State) + 1
		ctx.State.SetUint64(schema.MarketBucket, m.key(keyCount), listingId)
		l := &schema.Listing{
			ListingId:   listingId,
			Seller:      seller,
			NftContract: nftAddr,
			TokenId:     tokenId,
			Price:       new(big.Int).Set(price),
			Active:      true,
		}
		if err := m.saveListing(ctx.State, l); err != nil {
			return err
		}

		self := ctx.Self
		if err := ctx.Call(nftAddr, nil, func(sub *chain.Context) error {
			return nft.SafeTransferFrom(sub, seller, self, tokenId, nil)
		}); err != nil {
			return err
		}
		return ctx.Emit(schema.EventListed, listingEvent{ListingId: listingId, Seller: seller, Nft: nftAddr, TokenId: tokenId, Price: price.String()})
	})
	return listingId, err
}

func (m *Market) UpdateListing(ctx *chain.Context, listingId uint64, price *big.Int) error {
	l, err := m.activeListing(ctx.State, listingId)
	if err != nil {
		return err
	}
	if l.Seller != ctx.Caller {
		return schema.ErrNotSeller
	}
	if price == nil || price.Sign() <= 0 {
		return schema.ErrInvalidPrice
	}
	l.Price = new(big.Int).Set(price)
	if err := m.saveListing(ctx.State, l); err != nil {
		return err
	}
	return ctx.Emit(schema.EventListingUpdated, listingEvent{ListingId: listingId, Seller: l.Seller, Nft: l.NftContract, TokenId: l.TokenId, Price: price.String()})
}

// CancelListing closes the listing before handing the token back. The token
// returns to the address it came from with a plain transfer, so a contract
// seller without OnERC721Received can still take it back.
func (m *Market) CancelListing(ctx *chain.Context, listingId uint64) error {
	return ctx.NonReentrant(func() error {
		l, err := m.activeListing(ctx.State, listingId)
		if err != nil {
			return err
		}
		if l.Seller != ctx.Caller {
			return schema.ErrNotSeller
		}
		l.Active = false
		if err := m.saveListing(ctx.State, l); err != nil {
			return err
		}

		nft, err := loadNFT(ctx, l.NftContract)
		if err != nil {
			return err
		}
		self := ctx.Self
		if err := ctx.Call(l.NftContract, nil, func(sub *chain.Context) error {
			return nft.TransferFrom(sub, self, l.Seller, l.TokenId)
		}); err != nil {
			return err
		}
		return ctx.Emit(schema.EventListingCanceled, listingEvent{ListingId: listingId, Seller: l.Seller, Nft: l.NftContract, TokenId: l.TokenId})
	})
}

func (m *Market) activeListing(st *state.StateDB, listingId uint64) (*schema.Listing, error) {
	l, err := m.Listing(st, listingId)
	if err != nil {
		return nil, err
	}
	if !l.Active {
		return nil, fmt.Errorf("%w: %d", schema.ErrListingInactive, listingId)
	}
	return l, nil
}

// OnERC721Received accepts every token sent to the market.
func (m *Market) OnERC721Received(ctx *chain.Context, operator, from common.Address, tokenId uint64, data []byte) ([4]byte, error) {
	return registry.ERC721Received, nil
}

func (m *Market) WithdrawFees(ctx *chain.Context) error {
	if err := m.acl.Require(ctx, acl.MarketplaceAdminRole); err != nil {
		return err
	}
	return ctx.NonReentrant(func() error {
		cfg, err := m.Config(ctx.State)
		if err != nil {
			return err
		}
		amount := m.FeeBalance(ctx.State)
		if amount.Sign() == 0 {
			return nil
		}
		ctx.State.SetBig(schema.MarketBucket, m.key(keyFees), nil)
		if err := ctx.Transfer(cfg.FeeTreasury, amount); err != nil {
			return err
		}
		return ctx.Emit(schema.EventFeesWithdrawn, feesEvent{To: cfg.FeeTreasury, Amount: amount.String()})
	})
}

func (m *Market) SetFee(ctx *chain.Context, bps uint16) error {
	if err := m.acl.Require(ctx, acl.MarketplaceAdminRole); err != nil {
		return err
	}
	if err := checkFee(bps); err != nil {
		return err
	}
	cfg, err := m.Config(ctx.State)
	if err != nil {
		return err
	}
	cfg.MarketplaceFeeBps = bps
	if err := m.saveConfig(ctx.State, cfg); err != nil {
		return err
	}
	return ctx.Emit(schema.EventFeeUpdated, cfg)
}

func (m *Market) SetFeeTreasury(ctx *chain.Context, treasury common.Address) error {
	if err := m.acl.Require(ctx, acl.MarketplaceAdminRole); err != nil {
		return err
	}
	if treasury == (common.Address{}) {
		return schema.ErrZeroAddress
	}
	cfg, err := m.Config(ctx.State)
	if err != nil {
		return err
	}
	cfg.FeeTreasury = treasury
	if err := m.saveConfig(ctx.State, cfg); err != nil {
		return err
	}
	return ctx.Emit(schema.EventFeeUpdated, cfg)
}

func loadNFT(ctx *chain.Context, addr common.Address) (NFT, error) {
	c, err := ctx.At(addr)
	if err != nil {
		return nil, err
	}
	nft, ok := c.(NFT)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a domain registry", schema.ErrNotImplement, addr.Hex())
	}
	return nft, nil
}

func checkFee(bps uint16) error {
	if bps > schema.MaxMarketplaceFeeBps {
		return fmt.Errorf("%w: %d > %d", schema.ErrInvalidFee, bps, schema.MaxMarketplaceFeeBps)
	}
	return nil
}

func bpsOf(amount *big.Int, bps uint16) *big.Int {
	v := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return v.Quo(v, big.NewInt(schema.BpsDenominator))
}
