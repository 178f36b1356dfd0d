package domainsplit

import (
	"context"
	"encoding/json"

	"github.com/everFinance/domainsplit/rawdb"
	"github.com/everFinance/domainsplit/schema"
)

const contractsKey = "genesis-contracts"

type Store struct {
	KVDb rawdb.KeyValueDB
}

func NewBoltStore(boltDirPath string) (*Store, error) {
	Db, err := rawdb.NewBoltDB(boltDirPath)
	if err != nil {
		return nil, err
	}
	return &Store{KVDb: Db}, nil
}

func NewS3Store(accKey, secretKey, region, bucket, endpoint string) (*Store, error) {
	Db, err := rawdb.NewS3DB(accKey, secretKey, region, bucket, endpoint)
	if err != nil {
		return nil, err
	}
	return &Store{KVDb: Db}, nil
}

func NewMongoStore(uri, dbName string) (*Store, error) {
	Db, err := rawdb.NewMongoDB(context.Background(), uri, dbName)
	if err != nil {
		return nil, err
	}
	return &Store{KVDb: Db}, nil
}

func (s *Store) Close() error {
	return s.KVDb.Close()
}

// LoadContracts returns schema.ErrNotExist before genesis. The record is
// written by the genesis batch itself.
func (s *Store) LoadContracts() (c schema.Contracts, err error) {
	val, err := s.KVDb.Get(schema.ConstantsBucket, contractsKey)
	if err != nil {
		return
	}
	err = json.Unmarshal(val, &c)
	return
}
