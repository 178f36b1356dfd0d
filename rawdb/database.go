package rawdb

import (
	"github.com/everFinance/domainsplit/common"
)

var log = common.NewLog("rawdb")

type KeyValueDB interface {
	Put(bucket, key string, value []byte) (err error)

	Get(bucket, key string) (data []byte, err error)

	GetAllKey(bucket string) (keys []string, err error)

	Delete(bucket, key string) (err error)

	Close() (err error)

	Type() string

	Exist(bucket, key string) bool
}

// Op is one write of a committed batch. Delete wins over Value.
type Op struct {
	Bucket string
	Key    string
	Value  []byte
	Delete bool
}

// Batcher is implemented by backends that can apply a batch in one transaction.
type Batcher interface {
	WriteBatch(ops []Op) error
}

// WriteBatch applies ops atomically when db supports it, one by one otherwise.
func WriteBatch(db KeyValueDB, ops []Op) error {
	if b, ok := db.(Batcher); ok {
		return b.WriteBatch(ops)
	}
	for _, op := range ops {
		var err error
		if op.Delete {
			err = db.Delete(op.Bucket, op.Key)
		} else {
			err = db.Put(op.Bucket, op.Key, op.Value)
		}
		if err != nil {
			log.Error("non-atomic batch write failed", "err", err, "db", db.Type(), "bucket", op.Bucket, "key", op.Key)
			return err
		}
	}
	return nil
}
