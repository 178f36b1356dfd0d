package state

type change struct {
	bucket string
	key    string
	prev   *entry // nil when the key had no pending value
}

type journal struct {
	entries []change
}

func (j *journal) append(c change) {
	j.entries = append(j.entries, c)
}

func (j *journal) length() int {
	return len(j.entries)
}

// revert undoes entries down to snapshot, newest first.
func (j *journal) revert(s *StateDB, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		c := j.entries[i]
		if c.prev == nil {
			delete(s.dirty[c.bucket], c.key)
			continue
		}
		s.dirty[c.bucket][c.key] = c.prev
	}
	j.entries = j.entries[:snapshot]
}
