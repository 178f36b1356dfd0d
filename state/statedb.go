// Package state keeps the world state of all contracts in one journaled
// overlay on top of a rawdb.KeyValueDB.
//
// Writes stay in memory until Commit. Snapshot/RevertToSnapshot undo writes
// made after the snapshot was taken, which is how a failed call frame is rolled
// back without touching the frames around it. A StateDB is not safe for
// concurrent use; the chain serializes access.
package state

import (
	"sort"
	"strings"

	"github.com/everFinance/domainsplit/rawdb"
	"github.com/everFinance/domainsplit/schema"
)

type entry struct {
	data    []byte
	deleted bool
}

type revision struct {
	id           int
	journalIndex int
}

type StateDB struct {
	db    rawdb.KeyValueDB
	dirty map[string]map[string]*entry // bucket -> key -> pending value

	journal        journal
	validRevisions []revision
	nextRevisionId int

	// first error from the backing db; reads after it are unreliable
	dbErr error
}

func New(db rawdb.KeyValueDB) *StateDB {
	return &StateDB{
		db:    db,
		dirty: make(map[string]map[string]*entry),
	}
}

// Key joins key parts with "/".
func Key(parts ...string) string {
	return strings.Join(parts, "/")
}

func (s *StateDB) setError(err error) {
	if s.dbErr == nil {
		s.dbErr = err
	}
}

// Error returns the first backing db error seen since the last commit.
func (s *StateDB) Error() error {
	return s.dbErr
}

func (s *StateDB) Get(bucket, key string) ([]byte, bool) {
	if e, ok := s.dirty[bucket][key]; ok {
		if e.deleted {
			return nil, false
		}
		return e.data, true
	}
	data, err := s.db.Get(bucket, key)
	if err != nil {
		if err != schema.ErrNotExist {
			s.setError(err)
		}
		return nil, false
	}
	return data, true
}

func (s *StateDB) Has(bucket, key string) bool {
	_, ok := s.Get(bucket, key)
	return ok
}

func (s *StateDB) Set(bucket, key string, data []byte) {
	s.write(bucket, key, &entry{data: append([]byte{}, data...)})
}

func (s *StateDB) Delete(bucket, key string) {
	s.write(bucket, key, &entry{deleted: true})
}

func (s *StateDB) write(bucket, key string, e *entry) {
	bkt, ok := s.dirty[bucket]
	if !ok {
		bkt = make(map[string]*entry)
		s.dirty[bucket] = bkt
	}
	s.journal.append(change{bucket: bucket, key: key, prev: bkt[key]})
	bkt[key] = e
}

// Snapshot returns an identifier for the current revision of the state.
func (s *StateDB) Snapshot() int {
	id := s.nextRevisionId
	s.nextRevisionId++
	s.validRevisions = append(s.validRevisions, revision{id, s.journal.length()})
	return id
}

// RevertToSnapshot reverts all state changes made since the given revision.
func (s *StateDB) RevertToSnapshot(revid int) {
	idx := sort.Search(len(s.validRevisions), func(i int) bool {
		return s.validRevisions[i].id >= revid
	})
	if idx == len(s.validRevisions) || s.validRevisions[idx].id != revid {
		panic("state: revision id cannot be reverted")
	}
	snapshot := s.validRevisions[idx].journalIndex

	s.journal.revert(s, snapshot)
	s.validRevisions = s.validRevisions[:idx]
}

// Commit writes every pending change to the backing db in one batch.
func (s *StateDB) Commit() error {
	if s.dbErr != nil {
		err := s.dbErr
		s.reset()
		return err
	}
	ops := make([]rawdb.Op, 0)
	for bucket, keys := range s.dirty {
		for key, e := range keys {
			ops = append(ops, rawdb.Op{Bucket: bucket, Key: key, Value: e.data, Delete: e.deleted})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Bucket != ops[j].Bucket {
			return ops[i].Bucket < ops[j].Bucket
		}
		return ops[i].Key < ops[j].Key
	})
	err := rawdb.WriteBatch(s.db, ops)
	s.reset()
	return err
}

// Discard drops every pending change.
func (s *StateDB) Discard() {
	s.reset()
}

func (s *StateDB) reset() {
	s.dirty = make(map[string]map[string]*entry)
	s.journal = journal{}
	s.validRevisions = s.validRevisions[:0]
	s.dbErr = nil
}
