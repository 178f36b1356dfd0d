package splitter

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/acl"
	"github.com/everFinance/domainsplit/chain"
	"github.com/everFinance/domainsplit/rawdb"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/state"
	"github.com/everFinance/domainsplit/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deployer = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	creator  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	payer    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000f2")
)

// attacker re-enters Withdraw from its receive hook and records what the
// nested call got.
type attacker struct {
	addr common.Address
}

const (
	keyTarget = "target"
	keyNested = "nested"
	keyCalls  = "calls"
)

func (a attacker) Receive(ctx *chain.Context) error {
	calls := ctx.State.GetUint64(schema.MarketBucket, state.Key(a.addr.Hex(), keyCalls))
	ctx.State.SetUint64(schema.MarketBucket, state.Key(a.addr.Hex(), keyCalls), calls+1)
	if calls > 0 {
		return nil
	}
	target := ctx.State.GetAddress(schema.MarketBucket, state.Key(a.addr.Hex(), keyTarget))
	before := ctx.Balance(a.addr)
	if err := ctx.Call(target, nil, func(sub *chain.Context) error {
		return At(target).Withdraw(sub)
	}); err != nil {
		return err
	}
	got := new(big.Int).Sub(ctx.Balance(a.addr), before)
	ctx.State.SetBig(schema.MarketBucket, state.Key(a.addr.Hex(), keyNested), got)
	return nil
}

type sink struct{}

func newTestChain(t *testing.T) (*chain.Chain, *Factory) {
	db, err := rawdb.NewBoltDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	c := chain.New(db)
	Install(c)
	token.Install(c)
	c.Install("attacker", func(addr common.Address) interface{} { return attacker{addr: addr} })
	c.Install("sink", func(addr common.Address) interface{} { return sink{} })
	require.NoError(t, c.Alloc(payer, big.NewInt(1e18)))

	f, err := DeployFactory(c, deployer)
	require.NoError(t, err)
	return c, f
}

func createSplitter(t *testing.T, c *chain.Chain, f *Factory, creator, treasury common.Address) *Splitter {
	var addr common.Address
	_, err := c.Transact(deployer, f.Address(), nil, func(ctx *chain.Context) (err error) {
		addr, err = f.CreateSplitter(ctx, creator, treasury, schema.CreatorShareBps, schema.TreasuryShareBps)
		return
	})
	require.NoError(t, err)
	return At(addr)
}

func balances(t *testing.T, c *chain.Chain, s *Splitter) (cb, tb *big.Int) {
	_ = c.View(func(st *state.StateDB) error {
		cb = s.Balance(st, creator)
		tb = s.Balance(st, treasury)
		return nil
	})
	return
}

func TestFactory(t *testing.T) {
	c, f := newTestChain(t)
	s1 := createSplitter(t, c, f, creator, treasury)
	s2 := createSplitter(t, c, f, creator, treasury)
	assert.NotEqual(t, s1.Address(), s2.Address())
	assert.Equal(t, Kind, c.CodeAt(s1.Address()))

	_ = c.View(func(st *state.StateDB) error {
		assert.Equal(t, uint64(2), f.Count(st))
		addr, err := f.SplitterAt(st, 1)
		assert.NoError(t, err)
		assert.Equal(t, s2.Address(), addr)
		_, err = f.SplitterAt(st, 2)
		assert.Equal(t, schema.ErrNotExist, err)

		info, err := s1.Info(st)
		assert.NoError(t, err)
		assert.True(t, info.Initialized)
		assert.Equal(t, creator, info.Creator)
		assert.Equal(t, treasury, info.Treasury)
		assert.True(t, acl.New(s1.Address()).HasRole(st, acl.SplitterAdminRole, treasury))
		return nil
	})

	_, err := c.Transact(deployer, f.Address(), nil, func(ctx *chain.Context) error {
		_, err := f.CreateSplitter(ctx, creator, treasury, 4000, 5000)
		return err
	})
	assert.True(t, errors.Is(err, schema.ErrInvalidSplit))
	_, err = c.Transact(deployer, f.Address(), nil, func(ctx *chain.Context) error {
		_, err := f.CreateSplitter(ctx, common.Address{}, treasury, 4000, 6000)
		return err
	})
	assert.True(t, errors.Is(err, schema.ErrZeroAddress))
}

func TestSplitConservation(t *testing.T) {
	c, f := newTestChain(t)
	s := createSplitter(t, c, f, creator, treasury)

	amounts := []int64{1, 2, 3, 7, 9999, 10000, 10001, 33333, 123456789, 1e15 + 7}
	for _, a := range amounts {
		cb0, tb0 := balances(t, c, s)
		_, err := c.Transact(payer, s.Address(), big.NewInt(a), nil)
		require.NoError(t, err)
		cb1, tb1 := balances(t, c, s)

		cd := new(big.Int).Sub(cb1, cb0)
		td := new(big.Int).Sub(tb1, tb0)
		assert.Equal(t, big.NewInt(a).String(), new(big.Int).Add(cd, td).String(), "amount %d", a)
		assert.Equal(t, big.NewInt(a*4000/10000).String(), cd.String(), "amount %d", a)
	}
	assert.Equal(t, new(big.Int).Add(balances(t, c, s)).String(), c.BalanceOf(s.Address()).String())
}

func TestDoubleInit(t *testing.T) {
	c, f := newTestChain(t)
	s := createSplitter(t, c, f, creator, treasury)

	_, err := c.Transact(stranger, s.Address(), nil, func(ctx *chain.Context) error {
		return s.Init(ctx, stranger, stranger, 10000, 0)
	})
	assert.Equal(t, schema.ErrAlreadyInitialized, err)

	_ = c.View(func(st *state.StateDB) error {
		info, err := s.Info(st)
		assert.NoError(t, err)
		assert.Equal(t, schema.SplitterInfo{
			Creator:     creator,
			Treasury:    treasury,
			CreatorBps:  4000,
			TreasuryBps: 6000,
			Initialized: true,
		}, info)
		return nil
	})
}

func TestReceiveUninitialized(t *testing.T) {
	c, _ := newTestChain(t)
	addr, _, err := c.Create(deployer, Kind, nil)
	require.NoError(t, err)
	_, err = c.Transact(payer, addr, big.NewInt(100), nil)
	assert.True(t, errors.Is(err, schema.ErrNotInitialized))
	assert.Equal(t, 0, c.BalanceOf(addr).Sign())
}

func TestWithdraw(t *testing.T) {
	c, f := newTestChain(t)
	s := createSplitter(t, c, f, creator, treasury)
	_, err := c.Transact(payer, s.Address(), big.NewInt(1000), nil)
	require.NoError(t, err)

	_, err = c.Transact(stranger, s.Address(), nil, s.Withdraw)
	assert.True(t, errors.Is(err, schema.ErrUnauthorized))

	rcpt, err := c.Transact(creator, s.Address(), nil, s.Withdraw)
	require.NoError(t, err)
	assert.Len(t, rcpt.FindLogs(schema.EventPaymentReleased), 1)
	assert.Equal(t, big.NewInt(400), c.BalanceOf(creator))

	// second withdraw is a no-op
	rcpt, err = c.Transact(creator, s.Address(), nil, s.Withdraw)
	require.NoError(t, err)
	assert.Len(t, rcpt.FindLogs(schema.EventPaymentReleased), 0)
	assert.Equal(t, big.NewInt(400), c.BalanceOf(creator))

	_, err = c.Transact(treasury, s.Address(), nil, s.Withdraw)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(600), c.BalanceOf(treasury))
	assert.Equal(t, 0, c.BalanceOf(s.Address()).Sign())

	_ = c.View(func(st *state.StateDB) error {
		assert.Equal(t, 0, s.Balance(st, creator).Sign())
		assert.Equal(t, big.NewInt(400), s.Released(st, creator))
		assert.Equal(t, big.NewInt(600), s.Released(st, treasury))
		return nil
	})
}

func TestReentrantWithdraw(t *testing.T) {
	c, f := newTestChain(t)
	evil, _, err := c.Create(deployer, "attacker", nil)
	require.NoError(t, err)
	s := createSplitter(t, c, f, evil, treasury)
	_, err = c.Transact(deployer, evil, nil, func(ctx *chain.Context) error {
		ctx.State.SetAddress(schema.MarketBucket, state.Key(evil.Hex(), keyTarget), s.Address())
		return nil
	})
	require.NoError(t, err)

	_, err = c.Transact(payer, s.Address(), big.NewInt(1000), nil)
	require.NoError(t, err)

	_, err = c.Transact(deployer, evil, nil, func(ctx *chain.Context) error {
		return ctx.Call(s.Address(), nil, func(sub *chain.Context) error {
			return s.Withdraw(sub)
		})
	})
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(400), c.BalanceOf(evil))
	assert.Equal(t, big.NewInt(600), c.BalanceOf(s.Address()))
	_ = c.View(func(st *state.StateDB) error {
		assert.Equal(t, uint64(1), st.GetUint64(schema.MarketBucket, state.Key(evil.Hex(), keyCalls)))
		assert.Equal(t, 0, st.GetBig(schema.MarketBucket, state.Key(evil.Hex(), keyNested)).Sign())
		assert.Equal(t, 0, s.Balance(st, evil).Sign())
		assert.Equal(t, big.NewInt(600), s.Balance(st, treasury))
		return nil
	})
}

func TestWithdrawToRejectingRecipient(t *testing.T) {
	c, f := newTestChain(t)
	dead, _, err := c.Create(deployer, "sink", nil)
	require.NoError(t, err)
	s := createSplitter(t, c, f, dead, treasury)
	_, err = c.Transact(payer, s.Address(), big.NewInt(1000), nil)
	require.NoError(t, err)

	_, err = c.Transact(deployer, dead, nil, func(ctx *chain.Context) error {
		return ctx.Call(s.Address(), nil, s.Withdraw)
	})
	assert.True(t, errors.Is(err, schema.ErrTransferFailed))

	// the balance survives the failed withdraw and the treasury is unaffected
	_ = c.View(func(st *state.StateDB) error {
		assert.Equal(t, big.NewInt(400), s.Balance(st, dead))
		assert.Equal(t, 0, s.Released(st, dead).Sign())
		return nil
	})
	_, err = c.Transact(treasury, s.Address(), nil, s.Withdraw)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(600), c.BalanceOf(treasury))
}

func TestSetSplits(t *testing.T) {
	c, f := newTestChain(t)
	s := createSplitter(t, c, f, creator, treasury)
	_, err := c.Transact(payer, s.Address(), big.NewInt(1000), nil)
	require.NoError(t, err)

	_, err = c.Transact(creator, s.Address(), nil, func(ctx *chain.Context) error {
		return s.SetSplits(ctx, 5000, 5000)
	})
	assert.True(t, errors.Is(err, schema.ErrUnauthorized))

	_, err = c.Transact(treasury, s.Address(), nil, func(ctx *chain.Context) error {
		return s.SetSplits(ctx, 5000, 4000)
	})
	assert.True(t, errors.Is(err, schema.ErrInvalidSplit))

	rcpt, err := c.Transact(treasury, s.Address(), nil, func(ctx *chain.Context) error {
		return s.SetSplits(ctx, 5000, 5000)
	})
	require.NoError(t, err)
	assert.Len(t, rcpt.FindLogs(schema.EventSplitsUpdated), 1)

	cb, tb := balances(t, c, s)
	assert.Equal(t, big.NewInt(400), cb)
	assert.Equal(t, big.NewInt(600), tb)

	_, err = c.Transact(payer, s.Address(), big.NewInt(1000), nil)
	require.NoError(t, err)
	cb, tb = balances(t, c, s)
	assert.Equal(t, big.NewInt(900), cb)
	assert.Equal(t, big.NewInt(1100), tb)
}

func TestDepositToken(t *testing.T) {
	c, f := newTestChain(t)
	s := createSplitter(t, c, f, creator, treasury)
	tok, err := token.Deploy(c, deployer, "USDC")
	require.NoError(t, err)
	_, err = c.Transact(deployer, tok.Address(), nil, func(ctx *chain.Context) error {
		return tok.Mint(ctx, payer, big.NewInt(5000))
	})
	require.NoError(t, err)

	deposit := func(amount int64) error {
		_, err := c.Transact(payer, s.Address(), nil, func(ctx *chain.Context) error {
			return s.DepositToken(ctx, tok.Address(), big.NewInt(amount))
		})
		return err
	}

	assert.True(t, errors.Is(deposit(0), schema.ErrInvalidAmount))
	err = deposit(1001)
	assert.True(t, errors.Is(err, schema.ErrTransferFailed))
	assert.True(t, errors.Is(err, schema.ErrInsufficientAllowance))

	_, err = c.Transact(payer, tok.Address(), nil, func(ctx *chain.Context) error {
		return tok.Approve(ctx, s.Address(), big.NewInt(1001))
	})
	require.NoError(t, err)
	require.NoError(t, deposit(1001))

	_ = c.View(func(st *state.StateDB) error {
		assert.Equal(t, big.NewInt(400), s.TokenBalance(st, creator, tok.Address()))
		assert.Equal(t, big.NewInt(601), s.TokenBalance(st, treasury, tok.Address()))
		assert.Equal(t, big.NewInt(1001), tok.BalanceOf(st, s.Address()))
		assert.Equal(t, 0, s.Balance(st, creator).Sign())
		return nil
	})

	_, err = c.Transact(stranger, s.Address(), nil, func(ctx *chain.Context) error {
		return s.WithdrawToken(ctx, tok.Address())
	})
	assert.True(t, errors.Is(err, schema.ErrUnauthorized))

	rcpt, err := c.Transact(treasury, s.Address(), nil, func(ctx *chain.Context) error {
		return s.WithdrawToken(ctx, tok.Address())
	})
	require.NoError(t, err)
	assert.Len(t, rcpt.FindLogs(schema.EventTokenReleased), 1)

	_ = c.View(func(st *state.StateDB) error {
		assert.Equal(t, big.NewInt(601), tok.BalanceOf(st, treasury))
		assert.Equal(t, big.NewInt(400), tok.BalanceOf(st, s.Address()))
		assert.Equal(t, 0, s.TokenBalance(st, treasury, tok.Address()).Sign())
		assert.Equal(t, big.NewInt(601), s.TokenReleased(st, treasury, tok.Address()))
		return nil
	})
}
