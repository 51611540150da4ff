package counter

import (
	"sync"

	"github.com/altingia/w2rap-contigger/kmer"
)

// mergeTree reduces a set of already sorted, already-deduplicated leaves
// down to a single sorted, deduplicated slice via a progressive pairwise
// merge tree (spec §4.2: "a reduction tree of depth ceil(log2(#leaves))").
// The recursion always splits leaves at the midpoint regardless of which
// half's goroutine finishes first, so the result depends only on the set
// of leaves, never on scheduling order or how many leaves there were to
// start with -- the determinism property the counter promises (spec §8
// scenario 6: identical results across batch sizes).
func mergeTree(leaves [][]kmer.Record) []kmer.Record {
	switch len(leaves) {
	case 0:
		return nil
	case 1:
		return leaves[0]
	case 2:
		return mergeSorted(leaves[0], leaves[1])
	}

	mid := len(leaves) / 2
	var left, right []kmer.Record
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		left = mergeTree(leaves[:mid])
	}()
	go func() {
		defer wg.Done()
		right = mergeTree(leaves[mid:])
	}()
	wg.Wait()
	return mergeSorted(left, right)
}

// mergeSorted merges two sorted, internally-deduplicated record slices into
// one sorted, deduplicated slice, summing counts and unioning contexts for
// K-mers present in both (spec §4.2 step 3).
func mergeSorted(a, b []kmer.Record) []kmer.Record {
	out := make([]kmer.Record, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Kmer.Equal(b[j].Kmer):
			merged := a[i]
			merged.Ctx = merged.Ctx.Union(b[j].Ctx)
			merged.AddCount(int(b[j].Count))
			out = append(out, merged)
			i++
			j++
		case a[i].Kmer.Less(b[j].Kmer):
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
