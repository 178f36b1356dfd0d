package splitter

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/chain"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/state"
)

const FactoryKind = "splitter-factory"

const (
	keyCount = "count"
	keyIndex = "index"
)

type createdEvent struct {
	Splitter    common.Address `json:"splitter"`
	Creator     common.Address `json:"creator"`
	Treasury    common.Address `json:"treasury"`
	CreatorBps  uint16         `json:"creatorBps"`
	TreasuryBps uint16         `json:"treasuryBps"`
}

// Factory creates splitter clones, each with its own storage.
type Factory struct {
	addr common.Address
}

func FactoryAt(addr common.Address) *Factory {
	return &Factory{addr: addr}
}

func DeployFactory(c *chain.Chain, from common.Address) (*Factory, error) {
	addr, _, err := c.Create(from, FactoryKind, nil)
	if err != nil {
		return nil, err
	}
	return FactoryAt(addr), nil
}

func (f *Factory) Address() common.Address {
	return f.addr
}

func (f *Factory) key(parts ...string) string {
	return state.Key(append([]string{f.addr.Hex()}, parts...)...)
}

// CreateSplitter clones a splitter and initializes it in the same frame,
// so no caller ever sees it uninitialized.
func (f *Factory) CreateSplitter(ctx *chain.Context, creator, treasury common.Address, creatorBps, treasuryBps uint16) (common.Address, error) {
	addr, err := ctx.CreateClone(Kind)
	if err != nil {
		return common.Address{}, err
	}
	if err := ctx.Call(addr, nil, func(sub *chain.Context) error {
		return At(addr).Init(sub, creator, treasury, creatorBps, treasuryBps)
	}); err != nil {
		return common.Address{}, fmt.Errorf("init splitter %s: %w", addr.Hex(), err)
	}

	n := f.Count(ctx.State)
	ctx.State.SetAddress(schema.FactoryBucket, f.key(keyIndex, strconv.FormatUint(n, 10)), addr)
	ctx.State.SetUint64(schema.FactoryBucket, f.key(keyCount), n+1)

	return addr, ctx.Emit(schema.EventSplitterCreated, createdEvent{
		Splitter:    addr,
		Creator:     creator,
		Treasury:    treasury,
		CreatorBps:  creatorBps,
		TreasuryBps: treasuryBps,
	})
}

func (f *Factory) Count(st *state.StateDB) uint64 {
	return st.GetUint64(schema.FactoryBucket, f.key(keyCount))
}

func (f *Factory) SplitterAt(st *state.StateDB, index uint64) (common.Address, error) {
	if index >= f.Count(st) {
		return common.Address{}, schema.ErrNotExist
	}
	return st.GetAddress(schema.FactoryBucket, f.key(keyIndex, strconv.FormatUint(index, 10))), nil
}
