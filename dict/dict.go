// Package dict implements the sharded K-mer dictionary (spec §4.3), one Go
// map per shard: a hash set over canonical K-mers carrying a mutable context
// and a once-only edge placement.
package dict

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/zeebo/wyhash"

	"github.com/altingia/w2rap-contigger/kmer"
)

// numShards fixes the dictionary's bucket fan-out; parallel_for_each_bucket
// (spec §4.3) operates at this granularity.
const numShards = 256

// KDef is the mutable per-entry edge placement (spec §3, "Dictionary
// entry"). Null == true means the K-mer has not yet been placed on an edge.
type KDef struct {
	EdgeID uint32
	Offset uint32
	Null   bool
}

var (
	// ErrAlreadyPlaced is the invariant violation from spec §3: "concurrent
	// placement of the same K-mer is a fatal invariant violation."
	ErrAlreadyPlaced = errors.New("dict: K-mer already placed on an edge")
	ErrNotFound       = errors.New("dict: K-mer not present")
	ErrNotCanonical   = errors.New("dict: K-mer is not canonical")
)

// entry is the dictionary's atomically-mutated payload. ctx packs
// (pred<<8 | succ) so it fits a single atomic uint32. state is 0 while
// null; once placed it holds (edgeID+1)<<32 | offset, so a single CAS from
// 0 implements the null -> placed transition.
type entry struct {
	ctx   uint32
	state uint64
}

func packCtx(c kmer.Context) uint32    { return uint32(c.Pred)<<8 | uint32(c.Succ) }
func unpackCtx(v uint32) kmer.Context  { return kmer.Context{Pred: uint8(v >> 8), Succ: uint8(v)} }

func (e *entry) context() kmer.Context {
	return unpackCtx(atomic.LoadUint32(&e.ctx))
}

func (e *entry) setContext(c kmer.Context) {
	atomic.StoreUint32(&e.ctx, packCtx(c))
}

func (e *entry) orContext(c kmer.Context) {
	add := packCtx(c)
	for {
		old := atomic.LoadUint32(&e.ctx)
		next := old | add
		if next == old {
			return
		}
		if atomic.CompareAndSwapUint32(&e.ctx, old, next) {
			return
		}
	}
}

func (e *entry) kdef() KDef {
	st := atomic.LoadUint64(&e.state)
	if st == 0 {
		return KDef{Null: true}
	}
	return KDef{EdgeID: uint32(st>>32) - 1, Offset: uint32(st)}
}

func (e *entry) place(edgeID, offset uint32) error {
	want := (uint64(edgeID)+1)<<32 | uint64(offset)
	if !atomic.CompareAndSwapUint64(&e.state, 0, want) {
		return ErrAlreadyPlaced
	}
	return nil
}

type shard struct {
	mu sync.RWMutex
	m  map[kmer.Kmer128]*entry
}

// Dict is the sharded dictionary (spec §4.3). It is sized at construction
// from the counter's survivor count; the repair passes may insert more
// entries afterwards.
type Dict struct {
	shards [numShards]*shard
}

// New allocates a dictionary sized for expectedSize survivors.
func New(expectedSize int) *Dict {
	d := &Dict{}
	perShard := expectedSize/numShards + 1
	for i := range d.shards {
		d.shards[i] = &shard{m: make(map[kmer.Kmer128]*entry, perShard)}
	}
	return d
}

func shardIndex(k kmer.Kmer128) int {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], k.Hi)
	binary.LittleEndian.PutUint64(buf[8:16], k.Lo)
	h := wyhash.Hash(buf[:], 0)
	return int(h % numShards)
}

// Insert assumes k is absent. Used for the bulk load of the counter's
// survivors and for the repair passes' new K-mers, always from a single
// goroutine; not thread-safe (spec §4.3 insert contract).
func (d *Dict) Insert(k kmer.Kmer128, ctx kmer.Context) {
	s := d.shards[shardIndex(k)]
	s.m[k] = &entry{ctx: packCtx(ctx)}
}

// Len reports the number of entries currently held (informational; used for
// progress logging, not part of the spec's required operation set).
func (d *Dict) Len() int {
	n := 0
	for _, s := range d.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Find returns the entry for k (which need not be canonical) and whether it
// was present. Thread-safe for concurrent readers.
func (d *Dict) Find(k kmer.Kmer128) (kmer.Context, KDef, bool) {
	s := d.shards[shardIndex(k)]
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return kmer.Context{}, KDef{}, false
	}
	return e.context(), e.kdef(), true
}

// FindCanonical is like Find but asserts k is canonical (spec §4.3).
func (d *Dict) FindCanonical(k kmer.Kmer128) (kmer.Context, KDef, bool, error) {
	if !k.Equal(k.Canonical()) {
		return kmer.Context{}, KDef{}, false, ErrNotCanonical
	}
	ctx, kd, ok := d.Find(k)
	return ctx, kd, ok, nil
}

// ApplyCanonical atomically ORs ctx into the entry for canonical K-mer k
// (spec §4.3 apply_canonical contract).
func (d *Dict) ApplyCanonical(k kmer.Kmer128, ctx kmer.Context) error {
	if !k.Equal(k.Canonical()) {
		return ErrNotCanonical
	}
	s := d.shards[shardIndex(k)]
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	e.orContext(ctx)
	return nil
}

// Place transitions k's KDef from null to placed. It is the edge builder's
// single write point per K-mer: a second call for the same K-mer returns
// ErrAlreadyPlaced (spec §3's fatal invariant violation, surfaced here as
// an error rather than a process abort so callers can attach the offending
// K-mer to their own diagnostic).
func (d *Dict) Place(k kmer.Kmer128, edgeID, offset uint32) error {
	s := d.shards[shardIndex(k)]
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return e.place(edgeID, offset)
}

// NullEntries clears every entry's KDef back to is_null=true (spec §4.3),
// the first step of rebuilding edges after a repair pass.
func (d *Dict) NullEntries() {
	var wg sync.WaitGroup
	for _, s := range d.shards {
		wg.Add(1)
		go func(s *shard) {
			defer wg.Done()
			s.mu.RLock()
			defer s.mu.RUnlock()
			for _, e := range s.m {
				atomic.StoreUint64(&e.state, 0)
			}
		}(s)
	}
	wg.Wait()
}

// RecomputeAdjacencies rescans every entry and rebuilds its context from the
// dictionary's own contents: a predecessor or successor bit is set exactly
// when the K-mer obtained by shifting that base in is present. A bit claimed
// during counting for a neighbour that was below min_freq and never
// inserted is cleared, so the edge builder never sees a branch that isn't
// in the dictionary; K-mers added later by the gap filler or overlap joiner
// are linked to every present K-mer they overlap by K-1 bases, whatever
// context either side was inserted with.
func (d *Dict) RecomputeAdjacencies() {
	var wg sync.WaitGroup
	for _, s := range d.shards {
		wg.Add(1)
		go func(s *shard) {
			defer wg.Done()
			s.mu.RLock()
			type update struct {
				e *entry
				c kmer.Context
			}
			var updates []update
			for k, e := range s.m {
				updates = append(updates, update{e, d.neighbourContext(k)})
			}
			s.mu.RUnlock()
			for _, u := range updates {
				u.e.setContext(u.c)
			}
		}(s)
	}
	wg.Wait()
}

func (d *Dict) neighbourContext(k kmer.Kmer128) kmer.Context {
	var out kmer.Context
	for _, b := range []kmer.Base{kmer.BaseA, kmer.BaseC, kmer.BaseG, kmer.BaseT} {
		if d.neighbourLive(k.ShiftInLeft(b)) {
			out.Pred |= predMask(b)
		}
		if d.neighbourLive(k.ShiftInRight(b)) {
			out.Succ |= succMask(b)
		}
	}
	return out
}

func (d *Dict) neighbourLive(k kmer.Kmer128) bool {
	_, _, ok := d.Find(k.Canonical())
	return ok
}

func predMask(b kmer.Base) uint8 { return 1 << uint(b) }
func succMask(b kmer.Base) uint8 { return 1 << uint(b) }

// ParallelForEachBucket invokes f once per shard with that shard's current
// key set, run in parallel across shards (spec §4.3
// parallel_for_each_bucket). f must not mutate d.
func (d *Dict) ParallelForEachBucket(f func(bucket int, keys []kmer.Kmer128)) {
	var wg sync.WaitGroup
	for i, s := range d.shards {
		wg.Add(1)
		go func(i int, s *shard) {
			defer wg.Done()
			s.mu.RLock()
			keys := make([]kmer.Kmer128, 0, len(s.m))
			for k := range s.m {
				keys = append(keys, k)
			}
			s.mu.RUnlock()
			f(i, keys)
		}(i, s)
	}
	wg.Wait()
}
