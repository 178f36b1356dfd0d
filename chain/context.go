package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/state"
)

type txContext struct {
	hash   common.Hash
	origin common.Address
	time   time.Time
	logs   []*schema.Log
}

// Context is one call frame. Caller is the immediate sender, Self the
// contract being executed and Value the wei that came with the call.
type Context struct {
	State  *state.StateDB
	Caller common.Address
	Self   common.Address
	Value  *big.Int

	chain *Chain
	tx    *txContext
	depth int
}

func (ctx *Context) Origin() common.Address {
	return ctx.tx.origin
}

func (ctx *Context) Now() time.Time {
	return ctx.tx.time
}

func (ctx *Context) TxHash() common.Hash {
	return ctx.tx.hash
}

// Call runs fn in a nested frame executed by the contract at to, with Self
// as the caller. The nested frame is reverted alone when fn fails.
func (ctx *Context) Call(to common.Address, value *big.Int, fn func(sub *Context) error) error {
	return ctx.chain.call(ctx.tx, ctx.Self, to, value, fn, ctx.depth+1)
}

// Transfer sends amount wei from Self to to. Contract recipients run their
// receive hook; any failure surfaces as ErrTransferFailed.
func (ctx *Context) Transfer(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := ctx.chain.call(ctx.tx, ctx.Self, to, amount, nil, ctx.depth+1); err != nil {
		return fmt.Errorf("%w: to %s: %w", schema.ErrTransferFailed, to.Hex(), err)
	}
	return nil
}

// At returns the contract handle living at addr.
func (ctx *Context) At(addr common.Address) (interface{}, error) {
	return ctx.chain.load(ctx.State, addr)
}

func (ctx *Context) HasCode(addr common.Address) bool {
	return codeAt(ctx.State, addr) != ""
}

func (ctx *Context) Balance(addr common.Address) *big.Int {
	return ctx.State.GetBig(schema.AccountBalanceBucket, addr.Hex())
}

// Emit records an event log for Self.
func (ctx *Context) Emit(name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx.tx.logs = append(ctx.tx.logs, &schema.Log{
		Address: ctx.Self,
		Name:    name,
		Data:    data,
	})
	return nil
}

// CreateClone installs the code of kind at the next CREATE address of Self.
func (ctx *Context) CreateClone(kind string) (common.Address, error) {
	nonce := ctx.State.GetUint64(schema.AccountNonceBucket, ctx.Self.Hex())
	addr := crypto.CreateAddress(ctx.Self, nonce)
	if err := ctx.deploy(addr, kind); err != nil {
		return common.Address{}, err
	}
	ctx.State.SetUint64(schema.AccountNonceBucket, ctx.Self.Hex(), nonce+1)
	return addr, nil
}

func (ctx *Context) deploy(addr common.Address, kind string) error {
	if _, ok := ctx.chain.kinds[kind]; !ok {
		return fmt.Errorf("%w: %s", schema.ErrUnknownKind, kind)
	}
	if codeAt(ctx.State, addr) != "" {
		return fmt.Errorf("contract already deployed at %s", addr.Hex())
	}
	ctx.State.Set(schema.AccountCodeBucket, addr.Hex(), []byte(kind))
	return nil
}

// NonReentrant holds the lock of Self while fn runs; a nested entry into
// any guarded function of the same contract fails with ErrReentrantCall.
func (ctx *Context) NonReentrant(fn func() error) error {
	key := ctx.Self.Hex()
	if ctx.State.GetFlag(schema.LockBucket, key) {
		return schema.ErrReentrantCall
	}
	ctx.State.SetFlag(schema.LockBucket, key, true)
	err := fn()
	ctx.State.SetFlag(schema.LockBucket, key, false)
	return err
}
