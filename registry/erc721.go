package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/chain"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/state"
)

// ERC721Received is the value OnERC721Received must return to accept a
// safe transfer.
var ERC721Received = [4]byte{0x15, 0x0b, 0x7a, 0x02}

// Receiver is implemented by contracts that can hold registry tokens.
type Receiver interface {
	OnERC721Received(ctx *chain.Context, operator, from common.Address, tokenId uint64, data []byte) ([4]byte, error)
}

type approvalEvent struct {
	Owner    common.Address `json:"owner"`
	Approved common.Address `json:"approved"`
	TokenId  uint64         `json:"tokenId"`
}

type operatorEvent struct {
	Owner    common.Address `json:"owner"`
	Operator common.Address `json:"operator"`
	Approved bool           `json:"approved"`
}

func (r *Registry) OwnerOf(st *state.StateDB, tokenId uint64) (common.Address, error) {
	if !st.Has(schema.RegistryBucket, r.key(keyOwner, idKey(tokenId))) {
		return common.Address{}, fmt.Errorf("%w: %d", schema.ErrUnknownToken, tokenId)
	}
	return st.GetAddress(schema.RegistryBucket, r.key(keyOwner, idKey(tokenId))), nil
}

func (r *Registry) BalanceOf(st *state.StateDB, owner common.Address) uint64 {
	return st.GetUint64(schema.RegistryBucket, r.key(keyBalance, owner.Hex()))
}

func (r *Registry) GetApproved(st *state.StateDB, tokenId uint64) (common.Address, error) {
	if _, err := r.OwnerOf(st, tokenId); err != nil {
		return common.Address{}, err
	}
	return st.GetAddress(schema.RegistryBucket, r.key(keyApproved, idKey(tokenId))), nil
}

func (r *Registry) IsApprovedForAll(st *state.StateDB, owner, operator common.Address) bool {
	return st.GetFlag(schema.RegistryBucket, r.key(keyOperator, owner.Hex(), operator.Hex()))
}

// Approve lets to move tokenId once. Only the owner or one of its operators
// may approve.
func (r *Registry) Approve(ctx *chain.Context, to common.Address, tokenId uint64) error {
	owner, err := r.OwnerOf(ctx.State, tokenId)
	if err != nil {
		return err
	}
	if ctx.Caller != owner && !r.IsApprovedForAll(ctx.State, owner, ctx.Caller) {
		return fmt.Errorf("%w: %s cannot approve token %d", schema.ErrUnauthorized, ctx.Caller.Hex(), tokenId)
	}
	r.setApproved(ctx.State, tokenId, to)
	return ctx.Emit(schema.EventApproval, approvalEvent{Owner: owner, Approved: to, TokenId: tokenId})
}

func (r *Registry) SetApprovalForAll(ctx *chain.Context, operator common.Address, approved bool) error {
	if operator == ctx.Caller {
		return fmt.Errorf("%w: approve to caller", schema.ErrUnauthorized)
	}
	ctx.State.SetFlag(schema.RegistryBucket, r.key(keyOperator, ctx.Caller.Hex(), operator.Hex()), approved)
	return ctx.Emit(schema.EventApprovalForAll, operatorEvent{Owner: ctx.Caller, Operator: operator, Approved: approved})
}

func (r *Registry) TransferFrom(ctx *chain.Context, from, to common.Address, tokenId uint64) error {
	owner, err := r.OwnerOf(ctx.State, tokenId)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("%w: token %d is not owned by %s", schema.ErrUnauthorized, tokenId, from.Hex())
	}
	if to == (common.Address{}) {
		return schema.ErrZeroAddress
	}
	if !r.isApprovedOrOwner(ctx.State, ctx.Caller, owner, tokenId) {
		return fmt.Errorf("%w: %s cannot transfer token %d", schema.ErrUnauthorized, ctx.Caller.Hex(), tokenId)
	}

	r.setApproved(ctx.State, tokenId, common.Address{})
	r.addBalance(ctx.State, from, -1)
	r.addBalance(ctx.State, to, 1)
	r.setOwner(ctx.State, tokenId, to)
	return ctx.Emit(schema.EventTransfer, schema.TokenEvent{TokenId: tokenId, From: from, To: to})
}

// SafeTransferFrom transfers like TransferFrom; a contract recipient must
// accept the token through OnERC721Received.
func (r *Registry) SafeTransferFrom(ctx *chain.Context, from, to common.Address, tokenId uint64, data []byte) error {
	if err := r.TransferFrom(ctx, from, to, tokenId); err != nil {
		return err
	}
	if !ctx.HasCode(to) {
		return nil
	}
	c, err := ctx.At(to)
	if err != nil {
		return err
	}
	recv, ok := c.(Receiver)
	if !ok {
		return fmt.Errorf("%w: %s", schema.ErrNotReceiver, to.Hex())
	}
	operator := ctx.Caller
	var ret [4]byte
	if err := ctx.Call(to, nil, func(sub *chain.Context) (err error) {
		ret, err = recv.OnERC721Received(sub, operator, from, tokenId, data)
		return
	}); err != nil {
		return fmt.Errorf("%w: %s: %w", schema.ErrNotReceiver, to.Hex(), err)
	}
	if ret != ERC721Received {
		return fmt.Errorf("%w: %s returned %x", schema.ErrNotReceiver, to.Hex(), ret)
	}
	return nil
}

func (r *Registry) isApprovedOrOwner(st *state.StateDB, spender, owner common.Address, tokenId uint64) bool {
	if spender == owner || r.IsApprovedForAll(st, owner, spender) {
		return true
	}
	approved := st.GetAddress(schema.RegistryBucket, r.key(keyApproved, idKey(tokenId)))
	return approved != (common.Address{}) && approved == spender
}

func (r *Registry) setOwner(st *state.StateDB, tokenId uint64, owner common.Address) {
	st.SetAddress(schema.RegistryBucket, r.key(keyOwner, idKey(tokenId)), owner)
}

func (r *Registry) setApproved(st *state.StateDB, tokenId uint64, to common.Address) {
	if to == (common.Address{}) {
		st.Delete(schema.RegistryBucket, r.key(keyApproved, idKey(tokenId)))
		return
	}
	st.SetAddress(schema.RegistryBucket, r.key(keyApproved, idKey(tokenId)), to)
}

func (r *Registry) addBalance(st *state.StateDB, owner common.Address, delta int) {
	n := r.BalanceOf(st, owner)
	if delta < 0 {
		n--
	} else {
		n++
	}
	st.SetUint64(schema.RegistryBucket, r.key(keyBalance, owner.Hex()), n)
}
