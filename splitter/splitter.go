// Package splitter holds per-token royalty escrows. A splitter credits every
// incoming payment to its creator and treasury by basis points; recipients
// pull their balances with Withdraw.
package splitter

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/acl"
	"github.com/everFinance/domainsplit/chain"
	dcommon "github.com/everFinance/domainsplit/common"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/state"
)

var log = dcommon.NewLog("splitter")

const Kind = "splitter"

const (
	keyInfo     = "info"
	keyEth      = "eth"
	keyToken    = "token"
	keyReleased = "released"
)

// ERC20 is what a splitter needs from a deposited token contract.
type ERC20 interface {
	BalanceOf(st *state.StateDB, owner common.Address) *big.Int
	Transfer(ctx *chain.Context, to common.Address, amount *big.Int) error
	TransferFrom(ctx *chain.Context, from, to common.Address, amount *big.Int) error
}

type paymentEvent struct {
	Token    common.Address `json:"token,omitempty"`
	From     common.Address `json:"from"`
	Amount   string         `json:"amount"`
	Creator  string         `json:"creatorAmount"`
	Treasury string         `json:"treasuryAmount"`
}

type releaseEvent struct {
	Token  common.Address `json:"token,omitempty"`
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
}

type splitsEvent struct {
	CreatorBps  uint16 `json:"creatorBps"`
	TreasuryBps uint16 `json:"treasuryBps"`
}

type Splitter struct {
	addr common.Address
	acl  acl.Policy
}

func At(addr common.Address) *Splitter {
	return &Splitter{addr: addr, acl: acl.New(addr)}
}

// Install registers the splitter and the factory kinds.
func Install(c *chain.Chain) {
	c.Install(Kind, func(addr common.Address) interface{} { return At(addr) })
	c.Install(FactoryKind, func(addr common.Address) interface{} { return FactoryAt(addr) })
}

func (s *Splitter) Address() common.Address {
	return s.addr
}

func (s *Splitter) key(parts ...string) string {
	return state.Key(append([]string{s.addr.Hex()}, parts...)...)
}

func (s *Splitter) Info(st *state.StateDB) (schema.SplitterInfo, error) {
	info := schema.SplitterInfo{}
	_, err := st.GetJSON(schema.SplitterBucket, s.key(keyInfo), &info)
	return info, err
}

// Balance is the accrued, not yet withdrawn ETH of account.
func (s *Splitter) Balance(st *state.StateDB, account common.Address) *big.Int {
	return st.GetBig(schema.SplitterBucket, s.key(keyEth, account.Hex()))
}

func (s *Splitter) TokenBalance(st *state.StateDB, account, token common.Address) *big.Int {
	return st.GetBig(schema.SplitterBucket, s.key(keyToken, token.Hex(), account.Hex()))
}

// Released is the ETH account has withdrawn so far.
func (s *Splitter) Released(st *state.StateDB, account common.Address) *big.Int {
	return st.GetBig(schema.SplitterBucket, s.key(keyReleased, account.Hex()))
}

func (s *Splitter) TokenReleased(st *state.StateDB, account, token common.Address) *big.Int {
	return st.GetBig(schema.SplitterBucket, s.key(keyReleased, token.Hex(), account.Hex()))
}

// Init sets the recipients once. The treasury becomes the splits admin.
func (s *Splitter) Init(ctx *chain.Context, creator, treasury common.Address, creatorBps, treasuryBps uint16) error {
	info, err := s.Info(ctx.State)
	if err != nil {
		return err
	}
	if info.Initialized {
		return schema.ErrAlreadyInitialized
	}
	if creator == (common.Address{}) || treasury == (common.Address{}) {
		return schema.ErrZeroAddress
	}
	if err := checkSplit(creatorBps, treasuryBps); err != nil {
		return err
	}
	info = schema.SplitterInfo{
		Creator:     creator,
		Treasury:    treasury,
		CreatorBps:  creatorBps,
		TreasuryBps: treasuryBps,
		Initialized: true,
	}
	if err := ctx.State.SetJSON(schema.SplitterBucket, s.key(keyInfo), info); err != nil {
		return err
	}
	return s.acl.Setup(ctx, acl.SplitterAdminRole, treasury)
}

// Receive splits a plain ETH payment into the two balances.
func (s *Splitter) Receive(ctx *chain.Context) error {
	info, err := s.initialized(ctx.State)
	if err != nil {
		return err
	}
	if ctx.Value.Sign() == 0 {
		return nil
	}
	creatorAmt, treasuryAmt := split(ctx.Value, info.CreatorBps)
	ctx.State.AddBig(schema.SplitterBucket, s.key(keyEth, info.Creator.Hex()), creatorAmt)
	ctx.State.AddBig(schema.SplitterBucket, s.key(keyEth, info.Treasury.Hex()), treasuryAmt)
	return ctx.Emit(schema.EventPaymentReceived, paymentEvent{
		From:     ctx.Caller,
		Amount:   ctx.Value.String(),
		Creator:  creatorAmt.String(),
		Treasury: treasuryAmt.String(),
	})
}

// DepositToken pulls amount of token from the caller, who must have approved
// the splitter, and splits what actually arrived.
func (s *Splitter) DepositToken(ctx *chain.Context, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return schema.ErrInvalidAmount
	}
	return ctx.NonReentrant(func() error {
		info, err := s.initialized(ctx.State)
		if err != nil {
			return err
		}
		erc, err := loadToken(ctx, token)
		if err != nil {
			return err
		}

		before := erc.BalanceOf(ctx.State, s.addr)
		from := ctx.Caller
		if err := ctx.Call(token, nil, func(sub *chain.Context) error {
			return erc.TransferFrom(sub, from, s.addr, amount)
		}); err != nil {
			return fmt.Errorf("%w: %w", schema.ErrTransferFailed, err)
		}
		received := new(big.Int).Sub(erc.BalanceOf(ctx.State, s.addr), before)
		if received.Sign() <= 0 {
			return nil
		}

		creatorAmt, treasuryAmt := split(received, info.CreatorBps)
		ctx.State.AddBig(schema.SplitterBucket, s.key(keyToken, token.Hex(), info.Creator.Hex()), creatorAmt)
		ctx.State.AddBig(schema.SplitterBucket, s.key(keyToken, token.Hex(), info.Treasury.Hex()), treasuryAmt)
		return ctx.Emit(schema.EventTokenDeposited, paymentEvent{
			Token:    token,
			From:     from,
			Amount:   received.String(),
			Creator:  creatorAmt.String(),
			Treasury: treasuryAmt.String(),
		})
	})
}

// Withdraw sends the caller its whole ETH balance. The balance is cleared
// before the transfer, so a nested withdraw finds nothing to send.
func (s *Splitter) Withdraw(ctx *chain.Context) error {
	if _, err := s.recipient(ctx); err != nil {
		return err
	}
	key := s.key(keyEth, ctx.Caller.Hex())
	amount := ctx.State.GetBig(schema.SplitterBucket, key)
	if amount.Sign() == 0 {
		return nil
	}
	ctx.State.SetBig(schema.SplitterBucket, key, nil)
	ctx.State.AddBig(schema.SplitterBucket, s.key(keyReleased, ctx.Caller.Hex()), amount)

	if err := ctx.Transfer(ctx.Caller, amount); err != nil {
		log.Warn("withdraw transfer failed", "splitter", s.addr, "to", ctx.Caller, "amount", amount, "err", err)
		return err
	}
	return ctx.Emit(schema.EventPaymentReleased, releaseEvent{To: ctx.Caller, Amount: amount.String()})
}

func (s *Splitter) WithdrawToken(ctx *chain.Context, token common.Address) error {
	if _, err := s.recipient(ctx); err != nil {
		return err
	}
	key := s.key(keyToken, token.Hex(), ctx.Caller.Hex())
	amount := ctx.State.GetBig(schema.SplitterBucket, key)
	if amount.Sign() == 0 {
		return nil
	}
	erc, err := loadToken(ctx, token)
	if err != nil {
		return err
	}
	ctx.State.SetBig(schema.SplitterBucket, key, nil)
	ctx.State.AddBig(schema.SplitterBucket, s.key(keyReleased, token.Hex(), ctx.Caller.Hex()), amount)

	to := ctx.Caller
	if err := ctx.Call(token, nil, func(sub *chain.Context) error {
		return erc.Transfer(sub, to, amount)
	}); err != nil {
		return fmt.Errorf("%w: %w", schema.ErrTransferFailed, err)
	}
	return ctx.Emit(schema.EventTokenReleased, releaseEvent{Token: token, To: to, Amount: amount.String()})
}

// SetSplits changes the ratio of future deposits. Accrued balances stay.
func (s *Splitter) SetSplits(ctx *chain.Context, creatorBps, treasuryBps uint16) error {
	if err := s.acl.Require(ctx, acl.SplitterAdminRole); err != nil {
		return err
	}
	info, err := s.initialized(ctx.State)
	if err != nil {
		return err
	}
	if err := checkSplit(creatorBps, treasuryBps); err != nil {
		return err
	}
	info.CreatorBps = creatorBps
	info.TreasuryBps = treasuryBps
	if err := ctx.State.SetJSON(schema.SplitterBucket, s.key(keyInfo), info); err != nil {
		return err
	}
	return ctx.Emit(schema.EventSplitsUpdated, splitsEvent{CreatorBps: creatorBps, TreasuryBps: treasuryBps})
}

func (s *Splitter) initialized(st *state.StateDB) (schema.SplitterInfo, error) {
	info, err := s.Info(st)
	if err != nil {
		return info, err
	}
	if !info.Initialized {
		return info, schema.ErrNotInitialized
	}
	return info, nil
}

func (s *Splitter) recipient(ctx *chain.Context) (schema.SplitterInfo, error) {
	info, err := s.initialized(ctx.State)
	if err != nil {
		return info, err
	}
	if ctx.Caller != info.Creator && ctx.Caller != info.Treasury {
		return info, fmt.Errorf("%w: %s is not a recipient", schema.ErrUnauthorized, ctx.Caller.Hex())
	}
	return info, nil
}

func loadToken(ctx *chain.Context, token common.Address) (ERC20, error) {
	c, err := ctx.At(token)
	if err != nil {
		return nil, err
	}
	erc, ok := c.(ERC20)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a token", schema.ErrNotImplement, token.Hex())
	}
	return erc, nil
}

func checkSplit(creatorBps, treasuryBps uint16) error {
	if uint32(creatorBps)+uint32(treasuryBps) != schema.BpsDenominator {
		return fmt.Errorf("%w: %d + %d != %d", schema.ErrInvalidSplit, creatorBps, treasuryBps, schema.BpsDenominator)
	}
	return nil
}

// split rounds the creator part down; the remainder goes to the treasury.
func split(amount *big.Int, creatorBps uint16) (creatorAmt, treasuryAmt *big.Int) {
	creatorAmt = new(big.Int).Mul(amount, big.NewInt(int64(creatorBps)))
	creatorAmt.Quo(creatorAmt, big.NewInt(schema.BpsDenominator))
	treasuryAmt = new(big.Int).Sub(amount, creatorAmt)
	return
}
