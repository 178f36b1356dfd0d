package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/rawdb"
	"github.com/everFinance/domainsplit/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) (*StateDB, *rawdb.BoltDB) {
	db, err := rawdb.NewBoltDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), db
}

func TestSnapshotRevert(t *testing.T) {
	s, _ := newTestState(t)
	bkt := schema.MarketBucket

	s.SetUint64(bkt, "a", 1)
	snap := s.Snapshot()
	s.SetUint64(bkt, "a", 2)
	s.SetUint64(bkt, "b", 3)
	inner := s.Snapshot()
	s.Delete(bkt, "a")
	assert.False(t, s.Has(bkt, "a"))

	s.RevertToSnapshot(inner)
	assert.Equal(t, uint64(2), s.GetUint64(bkt, "a"))
	assert.Equal(t, uint64(3), s.GetUint64(bkt, "b"))

	s.RevertToSnapshot(snap)
	assert.Equal(t, uint64(1), s.GetUint64(bkt, "a"))
	assert.False(t, s.Has(bkt, "b"))
}

func TestRevertUnknownSnapshotPanics(t *testing.T) {
	s, _ := newTestState(t)
	snap := s.Snapshot()
	s.RevertToSnapshot(snap)
	assert.Panics(t, func() { s.RevertToSnapshot(snap) })
}

func TestCommit(t *testing.T) {
	s, db := newTestState(t)
	bkt := schema.AccountBalanceBucket

	s.SetBig(bkt, "alice", big.NewInt(100))
	s.SetBig(bkt, "bob", big.NewInt(5))
	assert.False(t, db.Exist(bkt, "alice"))
	require.NoError(t, s.Commit())
	assert.True(t, db.Exist(bkt, "alice"))

	// deletes reach the db and reads fall through to it
	s.SetBig(bkt, "bob", big.NewInt(0))
	require.NoError(t, s.Commit())
	assert.False(t, db.Exist(bkt, "bob"))
	assert.Equal(t, big.NewInt(100), s.GetBig(bkt, "alice"))
	assert.Equal(t, 0, s.GetBig(bkt, "bob").Sign())
}

func TestDiscard(t *testing.T) {
	s, db := newTestState(t)
	s.SetFlag(schema.LockBucket, "m", true)
	assert.True(t, s.GetFlag(schema.LockBucket, "m"))
	s.Discard()
	assert.False(t, s.GetFlag(schema.LockBucket, "m"))
	assert.False(t, db.Exist(schema.LockBucket, "m"))
}

func TestEncodingHelpers(t *testing.T) {
	s, _ := newTestState(t)
	bkt := schema.RegistryBucket
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	s.SetAddress(bkt, "owner", addr)
	assert.Equal(t, addr, s.GetAddress(bkt, "owner"))

	assert.Equal(t, big.NewInt(7), s.AddBig(bkt, "sum", big.NewInt(7)))
	assert.Equal(t, big.NewInt(10), s.AddBig(bkt, "sum", big.NewInt(3)))

	type rec struct {
		Name string
		N    int
	}
	require.NoError(t, s.SetJSON(bkt, "rec", rec{Name: "x.eth", N: 2}))
	got := rec{}
	ok, err := s.GetJSON(bkt, "rec", &got)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rec{Name: "x.eth", N: 2}, got)

	ok, err = s.GetJSON(bkt, "missing", &got)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "a/b/c", Key("a", "b", "c"))
}
