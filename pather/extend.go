package pather

import (
	"github.com/altingia/w2rap-contigger/graph"
	"github.com/altingia/w2rap-contigger/kmer"
)

// extendEnds implements spec §4.8 step 7: "apply a left/right
// path-extension routine that consults quality scores to resolve ambiguous
// vertex exits at the ends of the path."
//
// Spec §9's design notes and §8's path-reconstruction property pin down
// that a path must never invent bases the read doesn't have, so extension
// here only ever resolves a *leading or trailing gap already present in
// the part list* into a located part, by testing it against the edges in
// the adjacent vertex's Incoming (leading gap) or Outgoing (trailing gap)
// list. A candidate is adopted only on an exact base match against the
// gap's read bases. Every exact match has the same quality-weighted score
// (the sum of the gap's quality values), so when several candidates match
// exactly the first one in the vertex's list is taken; quality values do
// not change which candidate is chosen.
func extendEnds(read []kmer.Base, qual []uint8, g *graph.Graph, parts []Part) []Part {
	if len(parts) == 0 {
		return parts
	}
	out := make([]Part, len(parts))
	copy(out, parts)

	if out[0].Gap && len(out) > 1 {
		if resolved, ok := resolveLeadingGap(read, qual, g, out[0], out[1]); ok {
			out[0] = resolved
		}
	}
	if n := len(out); out[n-1].Gap && n > 1 {
		if resolved, ok := resolveTrailingGap(read, qual, g, out[n-2], out[n-1]); ok {
			out[n-1] = resolved
		}
	}
	return out
}

func qualWeightedMatch(a, b []kmer.Base, q []uint8) (score int, exact bool) {
	exact = true
	for i := range a {
		if a[i] == b[i] {
			score += int(q[i])
		} else {
			exact = false
		}
	}
	return score, exact
}

// resolveLeadingGap tries to explain a leading gap by one of the edges
// feeding into the first located part's head vertex.
func resolveLeadingGap(read []kmer.Base, qual []uint8, g *graph.Graph, gap, firstSeed Part) (Part, bool) {
	head := g.HeadVertex[firstSeed.EdgeID]
	if head < 0 {
		return Part{}, false
	}
	gapLen := gap.Length
	if gapLen > len(read) {
		return Part{}, false
	}
	readBases := read[:gapLen]
	readQual := qual[:min(len(qual), gapLen)]
	if len(readQual) < gapLen {
		return Part{}, false
	}

	best := -1
	bestScore := -1
	for _, cand := range g.Vertices[head].Incoming {
		e := g.Edges[cand]
		if len(e.Bases) < gapLen {
			continue
		}
		tail := e.Bases[len(e.Bases)-gapLen:]
		score, exact := qualWeightedMatch(tail, readBases, readQual)
		if !exact {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = int(cand)
		}
	}
	if best < 0 {
		return Part{}, false
	}
	offset := len(g.Edges[best].Bases) - gapLen
	return Part{EdgeID: uint32(best), Offset: offset, Length: gapLen}, true
}

// resolveTrailingGap is the mirror for a trailing gap against the last
// located part's tail vertex.
func resolveTrailingGap(read []kmer.Base, qual []uint8, g *graph.Graph, lastSeed, gap Part) (Part, bool) {
	tail := g.TailVertex[lastSeed.EdgeID]
	if tail < 0 {
		return Part{}, false
	}
	gapLen := gap.Length
	if gapLen > len(read) {
		return Part{}, false
	}
	readBases := read[len(read)-gapLen:]
	if len(qual) < gapLen {
		return Part{}, false
	}
	readQual := qual[len(qual)-gapLen:]

	best := -1
	bestScore := -1
	for _, cand := range g.Vertices[tail].Outgoing {
		e := g.Edges[cand]
		if len(e.Bases) < gapLen {
			continue
		}
		head := e.Bases[:gapLen]
		score, exact := qualWeightedMatch(head, readBases, readQual)
		if !exact {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = int(cand)
		}
	}
	if best < 0 {
		return Part{}, false
	}
	return Part{EdgeID: uint32(best), Offset: 0, Length: gapLen}, true
}
