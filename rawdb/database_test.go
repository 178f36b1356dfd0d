package rawdb

import (
	"fmt"
	"sort"
	"testing"

	"github.com/everFinance/domainsplit/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltDB(t *testing.T) {
	bktName := schema.ConstantsBucket // can be replaced by any bucket in schema
	keyNum := 100
	keys := make([]string, keyNum)
	values := make([][]byte, keyNum)
	for i := 0; i < keyNum; i++ {
		keys[i] = fmt.Sprintf("key%d", i)
		values[i] = []byte(fmt.Sprintf("v%d", i))
	}
	boltDb, err := NewBoltDB(t.TempDir())
	require.NoError(t, err)
	defer boltDb.Close()

	for i := 0; i < keyNum; i++ {
		err = boltDb.Put(bktName, keys[i], values[i])
		assert.NoError(t, err)
	}
	for i := 0; i < keyNum; i++ {
		val, err := boltDb.Get(bktName, keys[i])
		assert.NoError(t, err)
		assert.Equal(t, values[i], val)
	}

	// GetAllKey return order may different from keys
	allKeys, err := boltDb.GetAllKey(bktName)
	assert.NoError(t, err)
	sort.Strings(allKeys)
	sort.Strings(keys)
	assert.Equal(t, keys, allKeys)

	for i := 0; i < keyNum; i++ {
		err = boltDb.Delete(bktName, keys[i])
		assert.NoError(t, err)
	}
	for i := 0; i < keyNum; i++ {
		_, err = boltDb.Get(bktName, keys[i])
		assert.Equal(t, schema.ErrNotExist, err)
	}
}

func TestBoltWriteBatch(t *testing.T) {
	boltDb, err := NewBoltDB(t.TempDir())
	require.NoError(t, err)
	defer boltDb.Close()

	assert.NoError(t, boltDb.Put(schema.MarketBucket, "gone", []byte("x")))
	err = WriteBatch(boltDb, []Op{
		{Bucket: schema.MarketBucket, Key: "a", Value: []byte("1")},
		{Bucket: schema.RegistryBucket, Key: "b", Value: []byte("2")},
		{Bucket: schema.MarketBucket, Key: "gone", Delete: true},
	})
	assert.NoError(t, err)

	val, err := boltDb.Get(schema.MarketBucket, "a")
	assert.NoError(t, err)
	assert.Equal(t, []byte("1"), val)
	assert.True(t, boltDb.Exist(schema.RegistryBucket, "b"))
	assert.False(t, boltDb.Exist(schema.MarketBucket, "gone"))
}

func TestBoltGetUnknownBucket(t *testing.T) {
	boltDb, err := NewBoltDB(t.TempDir())
	require.NoError(t, err)
	defer boltDb.Close()

	_, err = boltDb.Get("no-such-bucket", "k")
	assert.Equal(t, schema.ErrNotExist, err)
	keys, err := boltDb.GetAllKey("no-such-bucket")
	assert.NoError(t, err)
	assert.Empty(t, keys)
}
