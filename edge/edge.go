// Package edge implements the edge builder (spec §4.4): it walks the
// K-mer dictionary and emits maximal non-branching paths (unitigs) and
// smooth circular components as canonical-orientation base sequences.
package edge

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/altingia/w2rap-contigger/dict"
	"github.com/altingia/w2rap-contigger/kmer"
)

// Edge is a maximal non-branching base sequence (spec §3). Circular is set
// for the smooth-circle pass's output: Bases then holds exactly one base
// per constituent K-mer (the periodic "necklace"), read cyclically, rather
// than the K-1-overlapping linear form.
type Edge struct {
	Bases    []kmer.Base
	Circular bool
}

// NumKmers is the number of distinct K-mers this edge carries.
func (e Edge) NumKmers() int {
	if e.Circular {
		return len(e.Bases)
	}
	return len(e.Bases) - kmer.K + 1
}

// KmerAt reconstructs the K-mer at the given offset (0 <= offset < NumKmers()).
func (e Edge) KmerAt(offset int) kmer.Kmer128 {
	if e.Circular {
		n := len(e.Bases)
		bases := make([]kmer.Base, kmer.K)
		for i := 0; i < kmer.K; i++ {
			bases[i] = e.Bases[(offset+i)%n]
		}
		k, _ := kmer.FromBases(bases)
		return k
	}
	k, _ := kmer.FromBases(e.Bases[offset : offset+kmer.K])
	return k
}

// Builder accumulates edges under a single writer lock (spec §9's "global
// writer serialisation" note).
type Builder struct {
	mu    sync.Mutex
	edges []Edge
}

// NewBuilder returns an empty edge builder.
func NewBuilder() *Builder { return &Builder{} }

// Edges returns the edges built so far.
func (b *Builder) Edges() []Edge { return b.edges }

type pendingEdge struct {
	bases   []kmer.Base
	visited []kmer.Kmer128 // canonical K-mers, in edge order, for placement
}

// Build runs the full edge-building pass over d: a parallel per-bucket walk
// followed by a single-threaded smooth-circle pass (spec §4.4).
func (b *Builder) Build(d *dict.Dict) ([]Edge, error) {
	var (
		errMu   sync.Mutex
		walkErr error
	)

	d.ParallelForEachBucket(func(_ int, keys []kmer.Kmer128) {
		var local []pendingEdge
		for _, k := range keys {
			ctx, kd, ok := d.Find(k)
			if !ok || !kd.Null {
				continue
			}
			p, emit, err := classify(d, k, ctx)
			if err != nil {
				errMu.Lock()
				if walkErr == nil {
					walkErr = err
				}
				errMu.Unlock()
				return
			}
			if emit {
				local = append(local, p)
			}
		}
		if len(local) == 0 {
			return
		}
		if err := b.flush(d, local); err != nil {
			errMu.Lock()
			if walkErr == nil {
				walkErr = err
			}
			errMu.Unlock()
		}
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if err := b.smoothCircles(d); err != nil {
		return nil, err
	}
	return b.edges, nil
}

// flush appends a worker's locally-built edges under the single writer
// lock, assigning edge ids and placing every constituent K-mer (spec §4.4
// step 5). A small per-worker staging buffer that takes the lock once per
// batch rather than once per edge, per spec §9's equivalence note.
func (b *Builder) flush(d *dict.Dict, pending []pendingEdge) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range pending {
		// A linear unitig is walked from both of its endpoints and both walks
		// canonicalise to the same sequence; whichever is flushed second finds
		// its first K-mer already placed and is dropped.
		if _, kd, ok := d.Find(p.visited[0]); ok && !kd.Null {
			continue
		}
		id := uint32(len(b.edges))
		b.edges = append(b.edges, Edge{Bases: p.bases})
		for offset, k := range p.visited {
			if err := d.Place(k, id, uint32(offset)); err != nil {
				return errors.Wrapf(err, "placing K-mer %s at edge %d offset %d", k, id, offset)
			}
		}
	}
	return nil
}

// classify implements spec §4.4 steps 2-4 for a single dictionary entry,
// returning the edge to emit (if any) and whether one should be emitted at
// all ("extensible both ways" entries are skipped: they will be reached
// from an endpoint elsewhere).
func classify(d *dict.Dict, k kmer.Kmer128, ctx kmer.Context) (pendingEdge, bool, error) {
	if k.IsPalindrome() {
		p := emitSingleKmer(k)
		if len(p.bases) != kmer.K {
			return pendingEdge{}, false, errors.Errorf("edge builder: palindromic K-mer %s produced an edge of %d bases, not %d", k, len(p.bases), kmer.K)
		}
		return p, true, nil
	}

	up := extensibleUpstream(d, k, ctx)
	down := extensibleDownstream(d, k, ctx)

	switch {
	case up && down:
		return pendingEdge{}, false, nil
	case up && !down:
		bases, visited := walk(d, k.RevComp())
		return finishEdge(bases, visited)
	case down && !up:
		bases, visited := walk(d, k)
		return finishEdge(bases, visited)
	default:
		return emitSingleKmer(k), true, nil
	}
}

// emitSingleKmer builds the pending edge for a palindrome or a K-mer with
// neither a usable predecessor nor successor (spec §4.4 step 2, branches
// "Palindrome" and "Neither").
func emitSingleKmer(k kmer.Kmer128) pendingEdge {
	bases := make([]kmer.Base, kmer.K)
	for i := 0; i < kmer.K; i++ {
		bases[i] = k.At(i)
	}
	return pendingEdge{bases: bases, visited: []kmer.Kmer128{k}}
}

// extensibleDownstream implements spec §4.4's "Extensible downstream"
// definition: k has exactly one successor S; shifting S in is not a
// palindrome; the resulting K-mer's dictionary entry has exactly one
// predecessor (from that K-mer's own orientation).
func extensibleDownstream(d *dict.Dict, k kmer.Kmer128, ctx kmer.Context) bool {
	s, ok := ctx.SoleSucc()
	if !ok {
		return false
	}
	next := k.ShiftInRight(s)
	if next.IsPalindrome() {
		return false
	}
	cnt, _, found := predecessorInfo(d, next)
	return found && cnt == 1
}

// extensibleUpstream is the symmetric dual for k's predecessor.
func extensibleUpstream(d *dict.Dict, k kmer.Kmer128, ctx kmer.Context) bool {
	p, ok := ctx.SolePred()
	if !ok {
		return false
	}
	prev := k.ShiftInLeft(p)
	if prev.IsPalindrome() {
		return false
	}
	cnt, _, found := successorInfo(d, prev)
	return found && cnt == 1
}

// successorInfo reports, relative to k's own orientation (k need not be
// canonical), the number of observed successor bases and — when that
// count is exactly one — the base itself. The dictionary always stores
// context relative to the canonical orientation, so when k is the
// reverse-complement of its own canonical form the roles of predecessor
// and successor swap and each base complements.
func successorInfo(d *dict.Dict, k kmer.Kmer128) (count int, sole kmer.Base, ok bool) {
	canon := k.Canonical()
	ctx, _, found := d.Find(canon)
	if !found {
		return 0, 0, false
	}
	if k.Equal(canon) {
		count = ctx.SuccCount()
		if count == 1 {
			sole, _ = ctx.SoleSucc()
		}
		return count, sole, true
	}
	count = ctx.PredCount()
	if count == 1 {
		p, _ := ctx.SolePred()
		sole = p.Complement()
	}
	return count, sole, true
}

// predecessorInfo is the mirror of successorInfo for walking left.
func predecessorInfo(d *dict.Dict, k kmer.Kmer128) (count int, sole kmer.Base, ok bool) {
	canon := k.Canonical()
	ctx, _, found := d.Find(canon)
	if !found {
		return 0, 0, false
	}
	if k.Equal(canon) {
		count = ctx.PredCount()
		if count == 1 {
			sole, _ = ctx.SolePred()
		}
		return count, sole, true
	}
	count = ctx.SuccCount()
	if count == 1 {
		s, _ := ctx.SoleSucc()
		sole = s.Complement()
	}
	return count, sole, true
}

// walk extends start to the right, in start's own orientation, recording
// every visited K-mer in canonical form for later placement (spec §4.4
// step 3). The loop re-checks the next K-mer's own predecessor count at
// every step, not just at the seed: that is what makes this a *maximal*
// non-branching walk rather than one that overruns a true branch point the
// moment it's reached mid-chain (spec §3's edge-boundary definition
// requires exactly this check on both ends of every internal K-mer).
func walk(d *dict.Dict, start kmer.Kmer128) ([]kmer.Base, []kmer.Kmer128) {
	bases := make([]kmer.Base, kmer.K)
	for i := 0; i < kmer.K; i++ {
		bases[i] = start.At(i)
	}
	visited := []kmer.Kmer128{start.Canonical()}

	cur := start
	for {
		cnt, s, ok := successorInfo(d, cur)
		if !ok || cnt != 1 {
			break
		}
		next := cur.ShiftInRight(s)
		if next.IsPalindrome() {
			break
		}
		pcnt, _, pok := predecessorInfo(d, next)
		if !pok || pcnt != 1 {
			break
		}
		bases = append(bases, s)
		visited = append(visited, next.Canonical())
		cur = next
	}
	return bases, visited
}

// finishEdge canonicalises a walked edge (spec §4.4 step 4): if its
// canonical form is REV, reverse-complement the sequence and reverse the
// visited list.
func finishEdge(bases []kmer.Base, visited []kmer.Kmer128) (pendingEdge, bool, error) {
	first, err := kmer.FromBases(bases[:kmer.K])
	if err != nil {
		return pendingEdge{}, false, errors.Wrap(err, "edge builder: malformed first K-mer")
	}
	last, err := kmer.FromBases(bases[len(bases)-kmer.K:])
	if err != nil {
		return pendingEdge{}, false, errors.Wrap(err, "edge builder: malformed last K-mer")
	}
	if last.RevComp().Less(first) {
		bases = revCompBases(bases)
		visited = reverseKmers(visited)
	}
	return pendingEdge{bases: bases, visited: visited}, true, nil
}

func revCompBases(bases []kmer.Base) []kmer.Base {
	out := make([]kmer.Base, len(bases))
	n := len(bases)
	for i, b := range bases {
		out[n-1-i] = b.Complement()
	}
	return out
}

func reverseKmers(ks []kmer.Kmer128) []kmer.Kmer128 {
	out := make([]kmer.Kmer128, len(ks))
	n := len(ks)
	for i, k := range ks {
		out[n-1-i] = k
	}
	return out
}

// smoothCircles is the single-threaded pass over every entry still null
// after the parallel walk (spec §4.4's "circle pass"): each must belong to
// a smooth circle, i.e. every K-mer in it has exactly one predecessor and
// one successor.
func (b *Builder) smoothCircles(d *dict.Dict) error {
	var remaining []kmer.Kmer128
	var mu sync.Mutex
	d.ParallelForEachBucket(func(_ int, keys []kmer.Kmer128) {
		var local []kmer.Kmer128
		for _, k := range keys {
			_, kd, ok := d.Find(k)
			if ok && kd.Null {
				local = append(local, k)
			}
		}
		if len(local) > 0 {
			mu.Lock()
			remaining = append(remaining, local...)
			mu.Unlock()
		}
	})

	for _, start := range remaining {
		_, kd, ok := d.Find(start)
		if !ok || !kd.Null {
			// already consumed by an earlier circle found in this pass
			continue
		}

		walked, canon, err := walkCircle(d, start)
		if err != nil {
			return err
		}

		walked, canon = rotateMinFirst(walked, canon)
		walked, canon = canonicalizeCircle(walked, canon)

		id := uint32(len(b.edges))
		b.edges = append(b.edges, Edge{Bases: walked, Circular: true})
		for offset, k := range canon {
			if err := d.Place(k, id, uint32(offset)); err != nil {
				return errors.Wrapf(err, "placing K-mer %s on circular edge %d offset %d", k, id, offset)
			}
		}
	}
	return nil
}

// walkCircle follows the unique successor chain from start back to start,
// returning the circular "necklace" (one base per K-mer, its own first
// base, so that the K-mer at offset i reads bases[i..i+K-1] cyclically)
// alongside the canonical form of every visited K-mer.
func walkCircle(d *dict.Dict, start kmer.Kmer128) ([]kmer.Base, []kmer.Kmer128, error) {
	var bases []kmer.Base
	var canon []kmer.Kmer128

	cur := start
	for {
		bases = append(bases, cur.First())
		canon = append(canon, cur.Canonical())

		cnt, s, ok := successorInfo(d, cur)
		if !ok || cnt != 1 {
			return nil, nil, errors.Errorf("circle pass: K-mer %s does not have a single successor", cur)
		}
		next := cur.ShiftInRight(s)
		if next.Equal(start) {
			return bases, canon, nil
		}
		pcnt, _, pok := predecessorInfo(d, next)
		if !pok || pcnt != 1 {
			return nil, nil, errors.Errorf("circle pass: K-mer %s does not have a single predecessor", next)
		}
		cur = next
	}
}

// rotateMinFirst rotates the circular edge so its minimum-valued
// constituent K-mer sits at offset 0 (spec §4.4), keeping bases and the
// canonical visited list in lockstep.
func rotateMinFirst(bases []kmer.Base, canon []kmer.Kmer128) ([]kmer.Base, []kmer.Kmer128) {
	minIdx := 0
	for i := 1; i < len(canon); i++ {
		if canon[i].Less(canon[minIdx]) {
			minIdx = i
		}
	}
	if minIdx == 0 {
		return bases, canon
	}
	n := len(bases)
	rb := make([]kmer.Base, n)
	rc := make([]kmer.Kmer128, n)
	for i := 0; i < n; i++ {
		rb[i] = bases[(i+minIdx)%n]
		rc[i] = canon[(i+minIdx)%n]
	}
	return rb, rc
}

// canonicalizeCircle flips the whole necklace to its reverse complement if
// the rotated placement's leading K-mer is not itself in canonical
// orientation (spec §4.4: "if that placement has REV canonical form,
// reverse-complement").
func canonicalizeCircle(bases []kmer.Base, canon []kmer.Kmer128) ([]kmer.Base, []kmer.Kmer128) {
	if len(canon) == 0 {
		return bases, canon
	}
	k := kmerAtNecklace(bases, 0)
	if k.Equal(k.Canonical()) {
		return bases, canon
	}
	n := len(bases)
	rb := make([]kmer.Base, n)
	rc := make([]kmer.Kmer128, n)
	for i := 0; i < n; i++ {
		rb[i] = bases[n-1-i].Complement()
		// the flipped K-mer at i is the reverse complement of the one at n-i-K
		rc[i] = canon[((n-i-kmer.K)%n+n)%n]
	}
	return rb, rc
}

func kmerAtNecklace(bases []kmer.Base, offset int) kmer.Kmer128 {
	n := len(bases)
	window := make([]kmer.Base, kmer.K)
	for i := 0; i < kmer.K; i++ {
		window[i] = bases[(offset+i)%n]
	}
	k, _ := kmer.FromBases(window)
	return k
}
