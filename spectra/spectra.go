// Package spectra implements the spectra-cn cross-tabulation (spec §6,
// §7 supplemented feature): it compares the K-mer multiset found by walking
// a graph's own edges against the K-mer survivor set the counter wrote to
// raw_kmers.data, and buckets every distinct graph K-mer by its
// (graph_kmer_count, read_kmer_count) pair; read K-mers absent from the
// graph are not counted.
//
// This is a sibling entry point to the core pipeline (it runs after a
// contigger.Build has already produced a graph and a raw_kmers.data file),
// not something the core pipeline calls itself.
package spectra

import (
	"github.com/altingia/w2rap-contigger/edge"
	"github.com/altingia/w2rap-contigger/graph"
	"github.com/altingia/w2rap-contigger/kmer"
)

// GraphKmers extracts every K-mer occurrence from a graph's edges, one
// Record per window with Count=1 and context exactly as the counter would
// have produced it (spec §4.2), so the result can be merged with
// counter.SortAndCollapse the same way counter's own shard leaves are.
//
// Only one directed copy of each edge is walked: g.Inv[e] < e marks e as
// the redundant reverse-complement copy (mirrors original_source's
// "if (inv[edgeID] < edgeID) continue", which skips re-deriving the same
// physical K-mer twice from both directed copies of one unitig).
func GraphKmers(g *graph.Graph) []kmer.Record {
	var out []kmer.Record
	for e, ed := range g.Edges {
		if g.Inv[e] < uint32(e) {
			continue
		}
		out = append(out, edgeKmerRecords(ed)...)
	}
	return out
}

// edgeKmerRecords windows one edge into canonicalised records, identically
// to counter.appendReadRecords but without the ntHash sharding/hashing
// machinery that function needs for its parallel bucket split — a graph
// edge is walked once, sequentially, so there is nothing to shard. It goes
// through Edge.NumKmers/KmerAt rather than re-deriving windows from Bases
// directly, so the smooth-circle necklace representation (Edge.Circular)
// is windowed correctly too.
func edgeKmerRecords(e edge.Edge) []kmer.Record {
	n := e.NumKmers()
	if !e.Circular && n < 2 {
		// original_source requires len(edge) > K (n >= 2) for a linear
		// edge before it contributes any K-mer; a bare single-K-mer edge
		// has no internal context to speak of and is skipped just as there.
		return nil
	}
	if n <= 0 {
		return nil
	}
	out := make([]kmer.Record, 0, n)
	for w := 0; w < n; w++ {
		k := e.KmerAt(w)

		var ctx kmer.Context
		switch {
		case n == 1:
			ctx = kmer.Context{}
		case w == 0:
			ctx = kmer.InitialContext(e.KmerAt(1).Last())
		case w == n-1:
			ctx = kmer.FinalContext(e.KmerAt(n - 2).First())
		default:
			ctx = kmer.InteriorContext(e.KmerAt(w-1).First(), e.KmerAt(w+1).Last())
		}

		if k.RevComp().Less(k) {
			k = k.RevComp()
			ctx = ctx.RevComp()
		}
		out = append(out, kmer.Record{Kmer: k, Ctx: ctx, Count: 1})
	}
	return out
}

// Histogram is the spectra-cn cross-tabulation result: the number of
// distinct K-mers found at each (graph_kmer_count, read_kmer_count) pair
// (spec §6's "f0,f1,kmers" CSV rows).
type Histogram map[[2]uint8]uint64

// CrossTabulate merges two record streams sorted ascending by Kmer — the
// graph's own K-mer multiset (already run through counter.SortAndCollapse
// so each entry's Count is the number of times that K-mer occurs across the
// graph's non-redundant edges) and the counter's read-derived survivor set
// read back from raw_kmers.data — into a Histogram keyed by
// (graph_kmer_count, read_kmer_count). A graph K-mer absent from the read
// set contributes to read_kmer_count 0.
//
// original_source's DumpSpectraCN increments the same (f0,f1) cell twice
// whenever a graph K-mer matches a read K-mer: once inside the `if/else`
// dispatching on the three-way comparison, and once more, unconditionally,
// right after it (see the spec's recorded Open Question). CrossTabulate
// increments exactly once per graph K-mer; spectra_doublecount_test.go
// pins this down against the naive two-increment port.
func CrossTabulate(graphKmers, readKmers []kmer.Record) Histogram {
	hist := make(Histogram)
	j := 0
	for i := range graphKmers {
		gk := graphKmers[i]
		for j < len(readKmers) && readKmers[j].Kmer.Less(gk.Kmer) {
			j++
		}
		readCount := uint8(0)
		if j < len(readKmers) && readKmers[j].Kmer.Equal(gk.Kmer) {
			readCount = readKmers[j].Count
		}
		hist[[2]uint8{gk.Count, readCount}]++
	}
	return hist
}
