// Package chain executes contract operations as sequential, all-or-nothing
// transactions over a journaled world state.
package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	dcommon "github.com/everFinance/domainsplit/common"
	"github.com/everFinance/domainsplit/rawdb"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/state"
)

var log = dcommon.NewLog("chain")

const (
	maxCallDepth = 64

	heightKey = "height"
)

// Loader returns the handle of a contract of one kind living at addr.
type Loader func(addr common.Address) interface{}

// Payable is implemented by contracts that accept plain ETH transfers.
type Payable interface {
	Receive(ctx *Context) error
}

type Chain struct {
	mu    sync.Mutex
	state *state.StateDB
	kinds map[string]Loader
	clock func() time.Time

	// set while a Batch stages its writes
	batch bool
}

func New(db rawdb.KeyValueDB) *Chain {
	return &Chain{
		state: state.New(db),
		kinds: make(map[string]Loader),
		clock: time.Now,
	}
}

func (c *Chain) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// Install registers the shared code of a contract kind. Every address whose
// code slot names kind executes through loader with its own storage.
func (c *Chain) Install(kind string, loader Loader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds[kind] = loader
}

// Alloc credits genesis funds to addr.
func (c *Chain) Alloc(addr common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amount.Sign() < 0 {
		return schema.ErrInvalidAmount
	}
	c.state.AddBig(schema.AccountBalanceBucket, addr.Hex(), amount)
	if c.batch {
		return nil
	}
	return c.state.Commit()
}

// Batch runs fn with every Alloc, Create and Transact it issues staged in
// memory and commits them as one write once fn returns nil. Nothing is
// persisted when fn fails. Batches do not nest.
func (c *Chain) Batch(fn func() error) error {
	c.mu.Lock()
	if c.batch {
		c.mu.Unlock()
		return errors.New("chain: batch already in progress")
	}
	c.batch = true
	c.mu.Unlock()

	err := fn()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.batch = false
	if err != nil {
		c.state.Discard()
		return err
	}
	if err := c.state.Commit(); err != nil {
		log.Error("batch commit failed", "err", err)
		return err
	}
	return nil
}

// Transact runs fn as a transaction sent by from to the contract at to with
// value attached. fn == nil is a plain transfer that triggers the receive hook
// of a contract recipient. Nothing is persisted when an error is returned.
func (c *Chain) Transact(from, to common.Address, value *big.Int, fn func(ctx *Context) error) (*schema.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apply(from, to, value, fn)
}

// Create deploys a contract of the given kind at the CREATE address of from
// and runs ctor against it in the same transaction.
func (c *Chain) Create(from common.Address, kind string, ctor func(ctx *Context) error) (common.Address, *schema.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr := crypto.CreateAddress(from, c.state.GetUint64(schema.AccountNonceBucket, from.Hex()))
	rcpt, err := c.apply(from, addr, nil, func(ctx *Context) error {
		if err := ctx.deploy(addr, kind); err != nil {
			return err
		}
		if ctor == nil {
			return nil
		}
		return ctor(ctx)
	})
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, rcpt, nil
}

// View gives read access to the committed state.
func (c *Chain) View(fn func(st *state.StateDB) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.state)
}

func (c *Chain) BalanceOf(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.GetBig(schema.AccountBalanceBucket, addr.Hex())
}

func (c *Chain) CodeAt(addr common.Address) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return codeAt(c.state, addr)
}

func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.GetUint64(schema.ConstantsBucket, heightKey)
}

func (c *Chain) apply(from, to common.Address, value *big.Int, fn func(ctx *Context) error) (*schema.Receipt, error) {
	st := c.state
	nonce := st.GetUint64(schema.AccountNonceBucket, from.Hex())
	height := st.GetUint64(schema.ConstantsBucket, heightKey) + 1
	tx := &txContext{
		hash:   txHash(from, nonce),
		origin: from,
		time:   c.clock(),
	}

	if err := c.call(tx, from, to, value, fn, 0); err != nil {
		// the failed frame is already reverted; a batch keeps its earlier writes
		if !c.batch {
			st.Discard()
		}
		log.Debug("transaction reverted", "from", from, "to", to, "err", err)
		return nil, err
	}
	st.SetUint64(schema.AccountNonceBucket, from.Hex(), nonce+1)
	st.SetUint64(schema.ConstantsBucket, heightKey, height)
	if !c.batch {
		if err := st.Commit(); err != nil {
			log.Error("st.Commit()", "err", err, "from", from, "to", to)
			return nil, err
		}
	}

	for i, l := range tx.logs {
		l.TxHash = tx.hash
		l.Index = uint(i)
	}
	return &schema.Receipt{
		TxHash: tx.hash,
		From:   from,
		To:     to,
		Height: height,
		Time:   tx.time.Unix(),
		Logs:   tx.logs,
	}, nil
}

// call opens a frame: value moves from caller to to, then fn runs with to as
// Self. A failing frame is reverted on its own, logs included.
func (c *Chain) call(tx *txContext, caller, to common.Address, value *big.Int, fn func(ctx *Context) error, depth int) (err error) {
	if depth > maxCallDepth {
		return fmt.Errorf("max call depth %d exceeded", maxCallDepth)
	}
	if value == nil {
		value = new(big.Int)
	}
	st := c.state
	snap := st.Snapshot()
	logMark := len(tx.logs)
	defer func() {
		if err != nil {
			st.RevertToSnapshot(snap)
			tx.logs = tx.logs[:logMark]
		}
	}()

	if value.Sign() < 0 {
		return schema.ErrInvalidAmount
	}
	if value.Sign() > 0 {
		bal := st.GetBig(schema.AccountBalanceBucket, caller.Hex())
		if bal.Cmp(value) < 0 {
			return fmt.Errorf("%w: %s has %s, needs %s", schema.ErrInsufficientBalance, caller.Hex(), bal, value)
		}
		st.SetBig(schema.AccountBalanceBucket, caller.Hex(), new(big.Int).Sub(bal, value))
		st.AddBig(schema.AccountBalanceBucket, to.Hex(), value)
	}

	ctx := &Context{
		State:  st,
		Caller: caller,
		Self:   to,
		Value:  value,
		chain:  c,
		tx:     tx,
		depth:  depth,
	}
	if fn != nil {
		return fn(ctx)
	}
	if codeAt(st, to) == "" {
		return nil
	}
	contract, err := c.load(st, to)
	if err != nil {
		return err
	}
	p, ok := contract.(Payable)
	if !ok {
		return fmt.Errorf("contract %s has no receive function", to.Hex())
	}
	return p.Receive(ctx)
}

func (c *Chain) load(st *state.StateDB, addr common.Address) (interface{}, error) {
	kind := codeAt(st, addr)
	if kind == "" {
		return nil, fmt.Errorf("%w: %s", schema.ErrNoCode, addr.Hex())
	}
	loader, ok := c.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownKind, kind)
	}
	return loader(addr), nil
}

func codeAt(st *state.StateDB, addr common.Address) string {
	data, _ := st.Get(schema.AccountCodeBucket, addr.Hex())
	return string(data)
}

func txHash(from common.Address, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(from.Bytes(), common.BigToHash(new(big.Int).SetUint64(nonce)).Bytes())
}
