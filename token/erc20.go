// Package token is a minimal ERC-20 contract used as the payment asset of
// token deposits.
package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/chain"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/state"
)

const Kind = "erc20"

const (
	keyOwner     = "owner"
	keySymbol    = "symbol"
	keyBalance   = "balance"
	keyAllowance = "allowance"
	keySupply    = "supply"
)

type transferEvent struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value string         `json:"value"`
}

type approvalEvent struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Value   string         `json:"value"`
}

// ERC20 is the handle of one token contract.
type ERC20 struct {
	addr common.Address
}

func At(addr common.Address) *ERC20 {
	return &ERC20{addr: addr}
}

func Install(c *chain.Chain) {
	c.Install(Kind, func(addr common.Address) interface{} { return At(addr) })
}

// Deploy creates a token owned by from.
func Deploy(c *chain.Chain, from common.Address, symbol string) (*ERC20, error) {
	addr, _, err := c.Create(from, Kind, func(ctx *chain.Context) error {
		ctx.State.SetAddress(schema.TokenBucket, state.Key(ctx.Self.Hex(), keyOwner), ctx.Caller)
		ctx.State.Set(schema.TokenBucket, state.Key(ctx.Self.Hex(), keySymbol), []byte(symbol))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return At(addr), nil
}

func (t *ERC20) Address() common.Address {
	return t.addr
}

func (t *ERC20) key(parts ...string) string {
	return state.Key(append([]string{t.addr.Hex()}, parts...)...)
}

func (t *ERC20) Symbol(st *state.StateDB) string {
	data, _ := st.Get(schema.TokenBucket, t.key(keySymbol))
	return string(data)
}

func (t *ERC20) BalanceOf(st *state.StateDB, owner common.Address) *big.Int {
	return st.GetBig(schema.TokenBucket, t.key(keyBalance, owner.Hex()))
}

func (t *ERC20) Allowance(st *state.StateDB, owner, spender common.Address) *big.Int {
	return st.GetBig(schema.TokenBucket, t.key(keyAllowance, owner.Hex(), spender.Hex()))
}

func (t *ERC20) TotalSupply(st *state.StateDB) *big.Int {
	return st.GetBig(schema.TokenBucket, t.key(keySupply))
}

// Mint is restricted to the deployer.
func (t *ERC20) Mint(ctx *chain.Context, to common.Address, amount *big.Int) error {
	if ctx.Caller != ctx.State.GetAddress(schema.TokenBucket, t.key(keyOwner)) {
		return fmt.Errorf("%w: only token owner can mint", schema.ErrUnauthorized)
	}
	if amount == nil || amount.Sign() < 0 {
		return schema.ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return schema.ErrZeroAddress
	}
	ctx.State.AddBig(schema.TokenBucket, t.key(keySupply), amount)
	ctx.State.AddBig(schema.TokenBucket, t.key(keyBalance, to.Hex()), amount)
	return ctx.Emit(schema.EventTransfer, transferEvent{To: to, Value: amount.String()})
}

func (t *ERC20) Transfer(ctx *chain.Context, to common.Address, amount *big.Int) error {
	return t.move(ctx, ctx.Caller, to, amount)
}

func (t *ERC20) Approve(ctx *chain.Context, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return schema.ErrInvalidAmount
	}
	ctx.State.SetBig(schema.TokenBucket, t.key(keyAllowance, ctx.Caller.Hex(), spender.Hex()), amount)
	return ctx.Emit(schema.EventApproval, approvalEvent{Owner: ctx.Caller, Spender: spender, Value: amount.String()})
}

func (t *ERC20) TransferFrom(ctx *chain.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return schema.ErrInvalidAmount
	}
	allowed := t.Allowance(ctx.State, from, ctx.Caller)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowed %s, needs %s", schema.ErrInsufficientAllowance, ctx.Caller.Hex(), allowed, amount)
	}
	ctx.State.SetBig(schema.TokenBucket, t.key(keyAllowance, from.Hex(), ctx.Caller.Hex()), new(big.Int).Sub(allowed, amount))
	return t.move(ctx, from, to, amount)
}

func (t *ERC20) move(ctx *chain.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return schema.ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return schema.ErrZeroAddress
	}
	bal := t.BalanceOf(ctx.State, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", schema.ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	ctx.State.SetBig(schema.TokenBucket, t.key(keyBalance, from.Hex()), new(big.Int).Sub(bal, amount))
	ctx.State.AddBig(schema.TokenBucket, t.key(keyBalance, to.Hex()), amount)
	return ctx.Emit(schema.EventTransfer, transferEvent{From: from, To: to, Value: amount.String()})
}
