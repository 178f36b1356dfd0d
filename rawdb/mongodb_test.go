package rawdb

import (
	"context"
	"os"
	"testing"

	"github.com/everFinance/domainsplit/schema"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// needs a running replica set for WriteBatch, e.g. MONGO_URI=mongodb://localhost:27017/?replicaSet=rs0
func TestMongoDB(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	db, err := NewMongoDB(context.TODO(), uri, "domainsplit_test")
	require.NoError(t, err)
	defer db.Close()

	bkt := schema.ConstantsBucket
	k1 := uuid.New().String()
	k2 := uuid.New().String()
	assert.NoError(t, db.Put(bkt, k1, []byte("v1")))
	assert.NoError(t, db.Put(bkt, k1, []byte("v1-new")))

	val, err := db.Get(bkt, k1)
	assert.NoError(t, err)
	assert.Equal(t, []byte("v1-new"), val)

	_, err = db.Get(bkt, k2)
	assert.Equal(t, schema.ErrNotExist, err)

	assert.NoError(t, db.WriteBatch([]Op{
		{Bucket: bkt, Key: k2, Value: []byte("v2")},
		{Bucket: bkt, Key: k1, Delete: true},
	}))
	assert.True(t, db.Exist(bkt, k2))
	assert.False(t, db.Exist(bkt, k1))
	assert.NoError(t, db.Delete(bkt, k2))
}
