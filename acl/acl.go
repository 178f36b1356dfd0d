// Package acl is the role-based capability check shared by all contracts.
// Each contract gets its own Policy; roles are granted per contract.
package acl

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/everFinance/domainsplit/chain"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/state"
)

var (
	DefaultAdminRole     = common.Hash{}
	MinterRole           = crypto.Keccak256Hash([]byte("MINTER_ROLE"))
	SalesRecorderRole    = crypto.Keccak256Hash([]byte("SALES_RECORDER_ROLE"))
	MarketplaceAdminRole = crypto.Keccak256Hash([]byte("MARKETPLACE_ADMIN_ROLE"))
	SplitterAdminRole    = crypto.Keccak256Hash([]byte("SPLITTER_ADMIN_ROLE"))
)

var roleNames = map[common.Hash]string{
	DefaultAdminRole:     "DEFAULT_ADMIN_ROLE",
	MinterRole:           "MINTER_ROLE",
	SalesRecorderRole:    "SALES_RECORDER_ROLE",
	MarketplaceAdminRole: "MARKETPLACE_ADMIN_ROLE",
	SplitterAdminRole:    "SPLITTER_ADMIN_ROLE",
}

func RoleName(role common.Hash) string {
	if name, ok := roleNames[role]; ok {
		return name
	}
	return role.Hex()
}

// RoleByName resolves names such as "MINTER_ROLE".
func RoleByName(name string) (common.Hash, bool) {
	for role, n := range roleNames {
		if n == name {
			return role, true
		}
	}
	return common.Hash{}, false
}

type roleEvent struct {
	Role    string         `json:"role"`
	Account common.Address `json:"account"`
	Sender  common.Address `json:"sender"`
}

type Policy struct {
	contract common.Address
}

func New(contract common.Address) Policy {
	return Policy{contract: contract}
}

func (p Policy) key(role common.Hash, account common.Address) string {
	return state.Key(p.contract.Hex(), role.Hex(), account.Hex())
}

func (p Policy) HasRole(st *state.StateDB, role common.Hash, account common.Address) bool {
	return st.GetFlag(schema.RoleBucket, p.key(role, account))
}

// Require fails with ErrUnauthorized unless the frame caller holds role.
func (p Policy) Require(ctx *chain.Context, role common.Hash) error {
	if !p.HasRole(ctx.State, role, ctx.Caller) {
		return fmt.Errorf("%w: %s lacks %s", schema.ErrUnauthorized, ctx.Caller.Hex(), RoleName(role))
	}
	return nil
}

// Setup grants role without an admin check; only constructors and
// initializers call it.
func (p Policy) Setup(ctx *chain.Context, role common.Hash, account common.Address) error {
	if p.HasRole(ctx.State, role, account) {
		return nil
	}
	ctx.State.SetFlag(schema.RoleBucket, p.key(role, account), true)
	return ctx.Emit(schema.EventRoleGranted, roleEvent{Role: RoleName(role), Account: account, Sender: ctx.Caller})
}

func (p Policy) Grant(ctx *chain.Context, role common.Hash, account common.Address) error {
	if err := p.Require(ctx, DefaultAdminRole); err != nil {
		return err
	}
	return p.Setup(ctx, role, account)
}

func (p Policy) Revoke(ctx *chain.Context, role common.Hash, account common.Address) error {
	if err := p.Require(ctx, DefaultAdminRole); err != nil {
		return err
	}
	if !p.HasRole(ctx.State, role, account) {
		return nil
	}
	ctx.State.SetFlag(schema.RoleBucket, p.key(role, account), false)
	return ctx.Emit(schema.EventRoleRevoked, roleEvent{Role: RoleName(role), Account: account, Sender: ctx.Caller})
}
