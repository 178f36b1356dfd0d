// Package registry is the domain token authority. It keeps the domain/token
// bijection, per-token metadata and sale history, and resolves royalties to
// the splitter created for each token at mint.
package registry

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/acl"
	"github.com/everFinance/domainsplit/chain"
	dcommon "github.com/everFinance/domainsplit/common"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/splitter"
	"github.com/everFinance/domainsplit/state"
)

var log = dcommon.NewLog("registry")

const Kind = "registry"

const (
	keyConfig   = "config"
	keyMinted   = "minted"
	keyToken    = "token"
	keyDomain   = "domain"
	keyOwner    = "owner"
	keyBalance  = "balance"
	keyApproved = "approved"
	keyOperator = "operator"
)

type saleEvent struct {
	TokenId uint64         `json:"tokenId"`
	Price   string         `json:"price"`
	Buyer   common.Address `json:"buyer"`
	At      int64          `json:"at"`
}

type royaltyEvent struct {
	Bps uint16 `json:"bps"`
}

type Registry struct {
	addr common.Address
	acl  acl.Policy
}

func At(addr common.Address) *Registry {
	return &Registry{addr: addr, acl: acl.New(addr)}
}

func Install(c *chain.Chain) {
	c.Install(Kind, func(addr common.Address) interface{} { return At(addr) })
}

// Deploy creates a registry; the deployer becomes its admin.
func Deploy(c *chain.Chain, from common.Address, cfg schema.RegistryConfig) (*Registry, error) {
	if cfg.DefaultRoyaltyBps > schema.BpsDenominator {
		return nil, schema.ErrInvalidRoyalty
	}
	if cfg.Treasury == (common.Address{}) || cfg.SplitterFactory == (common.Address{}) {
		return nil, schema.ErrZeroAddress
	}
	addr, _, err := c.Create(from, Kind, func(ctx *chain.Context) error {
		r := At(ctx.Self)
		if err := ctx.State.SetJSON(schema.RegistryBucket, r.key(keyConfig), cfg); err != nil {
			return err
		}
		return r.acl.Setup(ctx, acl.DefaultAdminRole, ctx.Caller)
	})
	if err != nil {
		return nil, err
	}
	return At(addr), nil
}

func (r *Registry) Address() common.Address {
	return r.addr
}

func (r *Registry) ACL() acl.Policy {
	return r.acl
}

func (r *Registry) key(parts ...string) string {
	return state.Key(append([]string{r.addr.Hex()}, parts...)...)
}

func idKey(tokenId uint64) string {
	return strconv.FormatUint(tokenId, 10)
}

func (r *Registry) Config(st *state.StateDB) (schema.RegistryConfig, error) {
	cfg := schema.RegistryConfig{}
	ok, err := st.GetJSON(schema.RegistryBucket, r.key(keyConfig), &cfg)
	if err == nil && !ok {
		err = fmt.Errorf("%w: registry %s", schema.ErrNoCode, r.addr.Hex())
	}
	return cfg, err
}

// Mint registers domainName for to and creates its royalty splitter.
// Token ids start at 1 and are never reused.
func (r *Registry) Mint(ctx *chain.Context, to common.Address, uri, domainName string) (uint64, error) {
	if err := r.acl.Require(ctx, acl.MinterRole); err != nil {
		return 0, err
	}
	if to == (common.Address{}) {
		return 0, schema.ErrZeroAddress
	}
	if strings.TrimSpace(domainName) == "" {
		return 0, schema.ErrInvalidDomain
	}
	if ctx.State.Has(schema.RegistryBucket, r.key(keyDomain, domainName)) {
		return 0, fmt.Errorf("%w: %s", schema.ErrDuplicateDomain, domainName)
	}
	cfg, err := r.Config(ctx.State)
	if err != nil {
		return 0, err
	}

	tokenId := r.TotalMinted(ctx.State) + 1
	ctx.State.SetUint64(schema.RegistryBucket, r.key(keyMinted), tokenId)

	var split common.Address
	factory := splitter.FactoryAt(cfg.SplitterFactory)
	if err := ctx.Call(cfg.SplitterFactory, nil, func(sub *chain.Context) (err error) {
		split, err = factory.CreateSplitter(sub, to, cfg.Treasury, schema.CreatorShareBps, schema.TreasuryShareBps)
		return
	}); err != nil {
		return 0, err
	}

	tok := schema.Token{
		TokenId:    tokenId,
		DomainName: domainName,
		URI:        uri,
		Creator:    to,
		MintedAt:   ctx.Now().Unix(),
		Splitter:   split,
	}
	// both directions are written in the same frame
	if err := ctx.State.SetJSON(schema.RegistryBucket, r.key(keyToken, idKey(tokenId)), tok); err != nil {
		return 0, err
	}
	ctx.State.SetUint64(schema.RegistryBucket, r.key(keyDomain, domainName), tokenId)
	r.setOwner(ctx.State, tokenId, to)
	r.addBalance(ctx.State, to, 1)

	if err := ctx.Emit(schema.EventTransfer, schema.TokenEvent{TokenId: tokenId, To: to}); err != nil {
		return 0, err
	}
	err = ctx.Emit(schema.EventDomainMinted, schema.TokenEvent{TokenId: tokenId, DomainName: domainName, To: to, Splitter: split})
	return tokenId, err
}

// RecordSale overwrites the last sale of tokenId. Calling it twice records
// the sale twice.
func (r *Registry) RecordSale(ctx *chain.Context, tokenId uint64, price *big.Int, buyer common.Address) error {
	if err := r.acl.Require(ctx, acl.SalesRecorderRole); err != nil {
		return err
	}
	tok, err := r.token(ctx.State, tokenId)
	if err != nil {
		return err
	}
	tok.LastSalePrice = new(big.Int).Set(price)
	tok.LastSaleAt = ctx.Now().Unix()
	tok.LastBuyer = buyer
	if err := ctx.State.SetJSON(schema.RegistryBucket, r.key(keyToken, idKey(tokenId)), tok); err != nil {
		return err
	}
	return ctx.Emit(schema.EventSaleRecorded, saleEvent{TokenId: tokenId, Price: price.String(), Buyer: buyer, At: tok.LastSaleAt})
}

// Burn removes the token and both mapping directions. Its splitter keeps
// whatever it holds.
func (r *Registry) Burn(ctx *chain.Context, tokenId uint64) error {
	tok, err := r.token(ctx.State, tokenId)
	if err != nil {
		return err
	}
	owner, err := r.OwnerOf(ctx.State, tokenId)
	if err != nil {
		return err
	}
	if !r.isApprovedOrOwner(ctx.State, ctx.Caller, owner, tokenId) {
		return fmt.Errorf("%w: %s cannot burn token %d", schema.ErrUnauthorized, ctx.Caller.Hex(), tokenId)
	}

	ctx.State.Delete(schema.RegistryBucket, r.key(keyToken, idKey(tokenId)))
	ctx.State.Delete(schema.RegistryBucket, r.key(keyDomain, tok.DomainName))
	ctx.State.Delete(schema.RegistryBucket, r.key(keyOwner, idKey(tokenId)))
	ctx.State.Delete(schema.RegistryBucket, r.key(keyApproved, idKey(tokenId)))
	r.addBalance(ctx.State, owner, -1)

	if err := ctx.Emit(schema.EventTransfer, schema.TokenEvent{TokenId: tokenId, From: owner}); err != nil {
		return err
	}
	return ctx.Emit(schema.EventDomainBurned, schema.TokenEvent{TokenId: tokenId, DomainName: tok.DomainName, From: owner, Splitter: tok.Splitter})
}

// RoyaltyInfo returns the splitter of tokenId and the royalty owed on price.
func (r *Registry) RoyaltyInfo(st *state.StateDB, tokenId uint64, price *big.Int) (common.Address, *big.Int, error) {
	tok, err := r.token(st, tokenId)
	if err != nil {
		return common.Address{}, nil, err
	}
	cfg, err := r.Config(st)
	if err != nil {
		return common.Address{}, nil, err
	}
	amount := new(big.Int).Mul(price, big.NewInt(int64(cfg.DefaultRoyaltyBps)))
	amount.Quo(amount, big.NewInt(schema.BpsDenominator))
	return tok.Splitter, amount, nil
}

func (r *Registry) SetDefaultRoyalty(ctx *chain.Context, bps uint16) error {
	if err := r.acl.Require(ctx, acl.DefaultAdminRole); err != nil {
		return err
	}
	if bps > schema.BpsDenominator {
		return fmt.Errorf("%w: %d", schema.ErrInvalidRoyalty, bps)
	}
	cfg, err := r.Config(ctx.State)
	if err != nil {
		return err
	}
	cfg.DefaultRoyaltyBps = bps
	if err := ctx.State.SetJSON(schema.RegistryBucket, r.key(keyConfig), cfg); err != nil {
		return err
	}
	log.Info("default royalty updated", "registry", r.addr, "bps", bps)
	return ctx.Emit(schema.EventRoyaltyUpdated, royaltyEvent{Bps: bps})
}

// TokenOf returns the full record of tokenId, owner included.
func (r *Registry) TokenOf(st *state.StateDB, tokenId uint64) (*schema.Token, error) {
	tok, err := r.token(st, tokenId)
	if err != nil {
		return nil, err
	}
	tok.Owner, err = r.OwnerOf(st, tokenId)
	return tok, err
}

func (r *Registry) TokenByDomain(st *state.StateDB, domainName string) (*schema.Token, error) {
	if !st.Has(schema.RegistryBucket, r.key(keyDomain, domainName)) {
		return nil, fmt.Errorf("%w: domain %s", schema.ErrUnknownToken, domainName)
	}
	return r.TokenOf(st, st.GetUint64(schema.RegistryBucket, r.key(keyDomain, domainName)))
}

func (r *Registry) TotalMinted(st *state.StateDB) uint64 {
	return st.GetUint64(schema.RegistryBucket, r.key(keyMinted))
}

// CheckMapping verifies that tokenId and its domain point at each other.
func (r *Registry) CheckMapping(st *state.StateDB, tokenId uint64) error {
	tok, err := r.token(st, tokenId)
	if err != nil {
		return err
	}
	if !st.Has(schema.RegistryBucket, r.key(keyDomain, tok.DomainName)) {
		return fmt.Errorf("domain %s of token %d is not mapped", tok.DomainName, tokenId)
	}
	if back := st.GetUint64(schema.RegistryBucket, r.key(keyDomain, tok.DomainName)); back != tokenId {
		return fmt.Errorf("domain %s maps to token %d, want %d", tok.DomainName, back, tokenId)
	}
	return nil
}

func (r *Registry) token(st *state.StateDB, tokenId uint64) (*schema.Token, error) {
	tok := &schema.Token{}
	ok, err := st.GetJSON(schema.RegistryBucket, r.key(keyToken, idKey(tokenId)), tok)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", schema.ErrUnknownToken, tokenId)
	}
	return tok, nil
}
