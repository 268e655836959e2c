package groupby

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	xxhash "github.com/cespare/xxhash/v2"

	"github.com/paveg/tabula/internal/aggregate"
	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/table"
)

// Key is the tuple of group column values of a group.
type Key []any

// Hash feeds an exact encoding of k to d and returns the digest.
func (k Key) Hash(d *xxhash.Digest) uint64 {
	d.Reset()
	for _, v := range k {
		table.HashValue(d, v)
	}
	return d.Sum64()
}

// Equal reports exact identity: floats compare bit-wise.
func (k Key) Equal(types []table.ValueType, o Key) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if !table.Equal(types[i], k[i], o[i]) {
			return false
		}
	}
	return true
}

// State is the aggregate state of one group: one accumulator per
// aggregation, the row count and the optional hilite membership.
type State struct {
	Key       Key
	accs      []aggregate.Accumulator
	count     int64
	hilite    *roaring64.Bitmap
	finalized bool
}

func newState(p *plan, key Key) *State {
	s := &State{Key: key, accs: make([]aggregate.Accumulator, len(p.aggs))}
	for i, agg := range p.aggs {
		s.accs[i] = agg.op.New(agg.typ)
	}
	if p.spec.Hilite {
		s.hilite = roaring64.New()
	}
	return s
}

// Add folds the projected row at source offset into the state.
func (s *State) Add(p *plan, offset int64, row table.Row) {
	for i, agg := range p.aggs {
		s.accs[i].Add(row.Values[agg.input])
	}
	s.count++
	if s.hilite != nil {
		s.hilite.Add(uint64(offset))
	}
}

// Count returns the number of rows added.
func (s *State) Count() int64 { return s.count }

// Hilite returns the source offsets of the group, nil when not tracked.
func (s *State) Hilite() *roaring64.Bitmap { return s.hilite }

// finalize returns the output values of the group. It may be called once.
func (s *State) finalize(p *plan) ([]any, error) {
	if s.finalized {
		return nil, errors.NewConsistencyError(opGroupBy, "group finalized twice")
	}
	s.finalized = true
	values := make([]any, 0, len(s.Key)+len(s.accs)+1)
	values = append(values, s.Key...)
	for _, acc := range s.accs {
		values = append(values, acc.Result())
	}
	if p.spec.CountColumn != "" {
		values = append(values, s.count)
	}
	return values, nil
}

// groupMap finds the state of a key by hash and exact equality and keeps
// states in first-seen order.
type groupMap struct {
	p       *plan
	digest  *xxhash.Digest
	buckets map[uint64][]*State
	order   []*State
}

func newGroupMap(p *plan) *groupMap {
	return &groupMap{p: p, digest: xxhash.New(), buckets: make(map[uint64][]*State)}
}

func (m *groupMap) key(row table.Row) Key {
	k := make(Key, len(m.p.groupIdx))
	for i, idx := range m.p.groupIdx {
		k[i] = row.Values[idx]
	}
	return k
}

func (m *groupMap) add(offset int64, row table.Row) {
	k := m.key(row)
	h := k.Hash(m.digest)
	for _, s := range m.buckets[h] {
		if s.Key.Equal(m.p.groupTypes, k) {
			s.Add(m.p, offset, row)
			return
		}
	}
	s := newState(m.p, k)
	m.buckets[h] = append(m.buckets[h], s)
	m.order = append(m.order, s)
	s.Add(m.p, offset, row)
}

func (m *groupMap) len() int { return len(m.order) }

func (m *groupMap) reset() {
	clear(m.buckets)
	m.order = nil
}
