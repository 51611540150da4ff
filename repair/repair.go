// Package repair implements the two optional post-edge-building passes
// (spec §4.5, §4.6): the gap filler, which re-extracts K-mers from a read
// over a part-list gap that doesn't conform to its surrounding edges, and
// the overlap joiner (see overlap.go), which bridges short gaps with a
// validated synthetic read. Both re-path every read against the current
// edge set via package pather and feed survivors back through the
// dictionary before the edge builder runs again.
package repair

import (
	"sync"

	"github.com/altingia/w2rap-contigger/counter"
	"github.com/altingia/w2rap-contigger/dict"
	"github.com/altingia/w2rap-contigger/edge"
	"github.com/altingia/w2rap-contigger/graph"
	"github.com/altingia/w2rap-contigger/kmer"
	"github.com/altingia/w2rap-contigger/pather"
)

// insertSurvivors is the common tail of both repair passes (spec §4.5's
// "inserts survivors into the dictionary, ORing contexts into pre-existing
// entries where collisions occur"): sequential, since dict.Insert is only
// safe for bulk loading into entries known to be absent.
func insertSurvivors(d *dict.Dict, survivors []kmer.Record) {
	for _, r := range survivors {
		if _, _, ok := d.Find(r.Kmer); ok {
			d.ApplyCanonical(r.Kmer, r.Ctx)
			continue
		}
		d.Insert(r.Kmer, r.Ctx)
	}
}

// rebuild implements the shared tail of spec §4.5/§4.6: null every entry,
// recompute adjacencies from the now-enlarged dictionary, and rebuild
// edges from scratch.
func rebuild(d *dict.Dict) ([]edge.Edge, error) {
	d.NullEntries()
	d.RecomputeAdjacencies()
	return edge.NewBuilder().Build(d)
}

// FillGaps implements spec §4.5. It re-paths every read against the
// current edge set, finds internal gap parts of at most maxGapSize bases
// that fail the conformity test against their flanking seeds, re-extracts
// K-mer records from the raw read over that gap, and (if any such record
// reaches minFreq2 after aggregation) inserts the survivors and rebuilds
// the edge set. changed reports whether any survivor was inserted into,
// or merged with an existing entry of, the dictionary.
func FillGaps(reads pather.ReadSet, d *dict.Dict, g *graph.Graph, maxGapSize int, minFreq2 uint32) (edges []edge.Edge, changed bool, err error) {
	n := reads.Len()
	perRead := make([][]kmer.Record, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			read := reads.Read(i)
			parts := pather.InitialParts(read, d, g)
			perRead[i] = nonconformingGapRecords(read, parts, g, maxGapSize)
		}(i)
	}
	wg.Wait()

	var all []kmer.Record
	for _, recs := range perRead {
		all = append(all, recs...)
	}
	if len(all) == 0 {
		return nil, false, nil
	}

	merged := counter.SortAndCollapse(all)
	var survivors []kmer.Record
	for _, r := range merged {
		if uint32(r.Count) >= minFreq2 {
			survivors = append(survivors, r)
		}
	}
	if len(survivors) == 0 {
		return nil, false, nil
	}

	insertSurvivors(d, survivors)
	edges, err = rebuild(d)
	if err != nil {
		return nil, false, err
	}
	return edges, true, nil
}

// nonconformingGapRecords walks one read's part list (spec §4.8's
// part-list shape, reused here per §4.5) and, for every internal gap that
// qualifies, re-extracts the K-mer windows that overlap it.
func nonconformingGapRecords(read []kmer.Base, parts []pather.Part, g *graph.Graph, maxGapSize int) []kmer.Record {
	var out []kmer.Record
	cursor := 0
	for i, p := range parts {
		start := cursor
		cursor += p.Length
		if !p.Gap || i == 0 || i == len(parts)-1 {
			continue
		}
		prev, next := parts[i-1], parts[i+1]
		if prev.Gap || next.Gap {
			continue
		}
		if p.Length > maxGapSize {
			continue
		}
		if pather.GapConforms(g, prev, p, next) {
			continue
		}
		out = append(out, gapWindowRecords(read, start, cursor)...)
	}
	return out
}

// gapWindowRecords re-extracts every K-window whose span overlaps
// [gapStart,gapEnd) in the read, canonicalising each exactly as the
// counter does (spec §4.2) — a small single-read variant of
// counter.appendReadRecords, since that function is tied to ntHash
// sharding for the bulk counting pass and this call site processes one
// read's single gap region at a time.
func gapWindowRecords(read []kmer.Base, gapStart, gapEnd int) []kmer.Record {
	winStart := gapStart - (kmer.K - 1)
	if winStart < 0 {
		winStart = 0
	}
	winEnd := gapEnd
	if max := len(read) - kmer.K + 1; winEnd > max {
		winEnd = max
	}

	var out []kmer.Record
	for w := winStart; w < winEnd; w++ {
		k, err := kmer.FromBases(read[w : w+kmer.K])
		if err != nil {
			continue
		}

		var ctx kmer.Context
		switch {
		case w == 0 && w+kmer.K == len(read):
			ctx = kmer.Context{}
		case w == 0:
			ctx = kmer.InitialContext(read[w+kmer.K])
		case w+kmer.K == len(read):
			ctx = kmer.FinalContext(read[w-1])
		default:
			ctx = kmer.InteriorContext(read[w-1], read[w+kmer.K])
		}

		if k.RevComp().Less(k) {
			k = k.RevComp()
			ctx = ctx.RevComp()
		}
		out = append(out, kmer.Record{Kmer: k, Ctx: ctx, Count: 1})
	}
	return out
}
