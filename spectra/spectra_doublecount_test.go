package spectra

import (
	"strings"
	"testing"

	"github.com/altingia/w2rap-contigger/kmer"
)

// naiveCrossTabulate is a faithful port of original_source/src/SpectraCn.cc's
// DumpSpectraCN loop body, including its probably-buggy unconditional
// increment after the three-way dispatch (spec §9 Open Question): the cell
// is bumped once inside the if/else-if/else on the query-vs-target
// comparison, then bumped again right after, unconditionally. It exists only
// so the test below can demonstrate the discrepancy CrossTabulate avoids.
func naiveCrossTabulate(graphKmers, readKmers []kmer.Record) map[[2]uint8]uint64 {
	hist := make(map[[2]uint8]uint64)
	j := 0
	for i := range graphKmers {
		gk := graphKmers[i]
		for j < len(readKmers) && readKmers[j].Kmer.Less(gk.Kmer) {
			j++
		}
		match := j < len(readKmers) && readKmers[j].Kmer.Equal(gk.Kmer)
		readCount := uint8(0)
		if match {
			readCount = readKmers[j].Count
		}
		hist[[2]uint8{gk.Count, readCount}]++
		if match {
			hist[[2]uint8{gk.Count, readCount}]++
		} else {
			hist[[2]uint8{gk.Count, 0}]++
		}
	}
	return hist
}

// TestCrossTabulateDoesNotDoubleCount pins down that a graph K-mer which
// matches a read K-mer contributes exactly one count to its (f0,f1) cell,
// unlike the naive port of the original's two-increment branch.
func TestCrossTabulateDoesNotDoubleCount(t *testing.T) {
	k, err := kmer.FromString(strings.Repeat("A", kmer.K-4) + "ACGT")
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	k = k.Canonical()

	graphKmers := []kmer.Record{{Kmer: k, Count: 3}}
	readKmers := []kmer.Record{{Kmer: k, Count: 7}}

	naive := naiveCrossTabulate(graphKmers, readKmers)
	if naive[[2]uint8{3, 7}] != 2 {
		t.Fatalf("expected the naive port to double count a match, got %d", naive[[2]uint8{3, 7}])
	}

	got := CrossTabulate(graphKmers, readKmers)
	if got[[2]uint8{3, 7}] != 1 {
		t.Fatalf("expected CrossTabulate to count a match exactly once, got %d", got[[2]uint8{3, 7}])
	}
}
