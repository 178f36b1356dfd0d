package state

import (
	"encoding/binary"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (s *StateDB) GetBig(bucket, key string) *big.Int {
	data, ok := s.Get(bucket, key)
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(data)
}

// SetBig stores a non-negative amount; zero deletes the key.
func (s *StateDB) SetBig(bucket, key string, v *big.Int) {
	if v == nil || v.Sign() == 0 {
		s.Delete(bucket, key)
		return
	}
	s.Set(bucket, key, v.Bytes())
}

func (s *StateDB) AddBig(bucket, key string, delta *big.Int) *big.Int {
	v := new(big.Int).Add(s.GetBig(bucket, key), delta)
	s.SetBig(bucket, key, v)
	return v
}

func (s *StateDB) GetUint64(bucket, key string) uint64 {
	data, ok := s.Get(bucket, key)
	if !ok || len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

func (s *StateDB) SetUint64(bucket, key string, v uint64) {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, v)
	s.Set(bucket, key, bz)
}

func (s *StateDB) GetAddress(bucket, key string) common.Address {
	data, _ := s.Get(bucket, key)
	return common.BytesToAddress(data)
}

func (s *StateDB) SetAddress(bucket, key string, addr common.Address) {
	s.Set(bucket, key, addr.Bytes())
}

func (s *StateDB) GetFlag(bucket, key string) bool {
	return s.Has(bucket, key)
}

func (s *StateDB) SetFlag(bucket, key string, on bool) {
	if on {
		s.Set(bucket, key, []byte{0x01})
		return
	}
	s.Delete(bucket, key)
}

// GetJSON decodes the value at key into v and reports whether the key exists.
func (s *StateDB) GetJSON(bucket, key string, v interface{}) (bool, error) {
	data, ok := s.Get(bucket, key)
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func (s *StateDB) SetJSON(bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Set(bucket, key, data)
	return nil
}
