// Package pather implements the read pather (spec §4.8): a six-stage
// per-read pipeline that walks a read against the graph's K-mer placements,
// suppresses hanging-edge seeds, coalesces and repairs gaps, trims
// unreliable trailing seeds, and converts the surviving parts into a
// read path.
package pather

import (
	"sync"

	"github.com/altingia/w2rap-contigger/dict"
	"github.com/altingia/w2rap-contigger/graph"
	"github.com/altingia/w2rap-contigger/kmer"
)

// maxHangingEdgeLen and minHangingTailIn/minHangingTailOut implement spec
// §4.8 step 2's hanging-edge suppression thresholds.
const (
	maxHangingEdgeLen     = 100
	minHangingTailIn      = 2
	minHangingTailOut     = 1
	shortSeedTrimMaxLen   = 5
	gapConformJitter      = 1
)

// Part is one piece of a read's part-list: either a located seed on a
// graph edge, or an unresolved gap of read bases.
type Part struct {
	Gap    bool
	EdgeID uint32 // graph edge id; valid only when !Gap
	Offset int    // offset into the edge's bases where this part begins
	Length int    // number of read bases this part covers
}

// Path is the final read path (spec §3/§6): the offset into the first
// edge, and the coalesced sequence of distinct edge ids the read traverses.
type Path struct {
	Offset int32
	Edges  []uint32
}

// PathRead runs the full six-stage pipeline (spec §4.8) for a single read.
func PathRead(read []kmer.Base, qual []uint8, d *dict.Dict, g *graph.Graph) Path {
	if len(read) < kmer.K {
		return Path{}
	}

	parts := InitialParts(read, d, g)
	parts = repairInternalInconsistency(parts, g)
	parts = trimShortFinalSeed(parts)
	parts = coalesceGaps(parts)
	parts = extendEnds(read, qual, g, parts)

	return toPath(parts)
}

// InitialParts runs steps 1-3 of the pather's pipeline (spec §4.8: initial
// windowed pathing, hanging-edge suppression, gap coalescing) and returns
// the part list before step 4's internal-inconsistency repair.
//
// Package repair's gap filler (spec §4.5) needs exactly this list, not the
// full pipeline's: step 4 exists to make a *read path* well-formed by
// discarding an internal gap's surrounding structure outright, which would
// erase the very gap the filler is looking for before it ever sees it. The
// gap filler runs first, against this pre-repair part list, so that the
// dictionary and edge set are fixed up and a later, real PathRead over the
// rebuilt edges never needs step 4's destructive fallback in the first
// place. The sum of every part's Length always equals len(read).
func InitialParts(read []kmer.Base, d *dict.Dict, g *graph.Graph) []Part {
	if len(read) < kmer.K {
		return []Part{{Gap: true, Length: len(read)}}
	}

	parts := initialPath(read, d, g)
	parts = suppressHangingEdges(parts, g)
	parts = coalesceGaps(parts)
	return parts
}

// PathReads paths every read independently and in parallel (spec §4.8:
// "each read pathing is independent; the pather holds no writable state
// over the dictionary or edges", spec §5's read-pathing parallel region).
func PathReads(reads ReadSet, quals QualSet, d *dict.Dict, g *graph.Graph) []Path {
	n := reads.Len()
	paths := make([]Path, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			paths[i] = PathRead(reads.Read(i), quals.Qual(i), d, g)
		}(i)
	}
	wg.Wait()
	return paths
}

// ReadSet and QualSet mirror the core's external collaborator interfaces
// (spec §6). They are declared here with method sets that contigger's own
// ReadSet and QualSet satisfy, so contigger can pass the same values
// straight through.
type ReadSet interface {
	Len() int
	Read(i int) []kmer.Base
}

type QualSet interface {
	Qual(i int) []uint8
}

// initialPath implements spec §4.8 step 1: walk the read in K-sized
// windows, extend greedily past each hit, and accumulate misses into gaps.
func initialPath(read []kmer.Base, d *dict.Dict, g *graph.Graph) []Part {
	var parts []Part
	cursor := 0
	for cursor < len(read) {
		if cursor+kmer.K > len(read) {
			appendGap(&parts, len(read)-cursor)
			break
		}
		window := read[cursor : cursor+kmer.K]
		k, err := kmer.FromBases(window)
		if err != nil {
			appendGap(&parts, 1)
			cursor++
			continue
		}
		canon := k.Canonical()
		_, kd, ok := d.Find(canon)
		if !ok || kd.Null {
			appendGap(&parts, 1)
			cursor++
			continue
		}

		edgeID, offset := resolveDirected(g, kd, k)
		length := extendMatch(g, edgeID, offset, read, cursor)
		parts = append(parts, Part{EdgeID: edgeID, Offset: offset, Length: length})
		cursor += length
	}
	return parts
}

func appendGap(parts *[]Part, n int) {
	if len(*parts) > 0 && (*parts)[len(*parts)-1].Gap {
		(*parts)[len(*parts)-1].Length += n
		return
	}
	*parts = append(*parts, Part{Gap: true, Length: n})
}

// resolveDirected translates a dict placement (indexed over the
// pre-doubling unitig list) into the graph edge id and offset matching the
// read's own orientation at this window. A K-mer's position within a
// unitig's stored bases isn't guaranteed to sit in canonical orientation
// itself (the walk that built the unitig may pass through either
// orientation at any internal step), so the comparison is made directly
// against what the forward copy actually holds at that offset, not
// against the canonical form used as the dictionary key.
func resolveDirected(g *graph.Graph, kd dict.KDef, raw kmer.Kmer128) (edgeID uint32, offset int) {
	fwdID := g.CanonicalID[kd.EdgeID]
	fwdEdge := g.Edges[fwdID]
	stored := fwdEdge.KmerAt(int(kd.Offset))
	if raw.Equal(stored) {
		return fwdID, int(kd.Offset)
	}
	revID := g.Inv[fwdID]
	numK := fwdEdge.NumKmers()
	return revID, numK - 1 - int(kd.Offset)
}

// extendMatch greedily compares read bases against the matched edge past
// the initial K-window, for as long as they agree (spec §4.8 step 1:
// "extend along the matched edge by greedy equality comparison with the
// read").
func extendMatch(g *graph.Graph, edgeID uint32, offset int, read []kmer.Base, cursor int) int {
	e := g.Edges[edgeID]
	length := kmer.K
	for cursor+length < len(read) && offset+length < len(e.Bases) {
		if read[cursor+length] != e.Bases[offset+length] {
			break
		}
		length++
	}
	return length
}

// suppressHangingEdges implements spec §4.8 step 2: demote a seed on a
// short dead-end branch back to a gap so later stages don't trust it.
func suppressHangingEdges(parts []Part, g *graph.Graph) []Part {
	out := make([]Part, len(parts))
	copy(out, parts)
	for i, p := range out {
		if p.Gap {
			continue
		}
		e := g.Edges[p.EdgeID]
		if len(e.Bases) > maxHangingEdgeLen {
			continue
		}
		head := g.HeadVertex[p.EdgeID]
		tail := g.TailVertex[p.EdgeID]
		if head < 0 || tail < 0 {
			continue
		}
		if g.InDegree(head) == 0 && g.InDegree(tail) >= minHangingTailIn && g.OutDegree(tail) >= minHangingTailOut {
			out[i] = Part{Gap: true, Length: p.Length}
		}
	}
	return out
}

// coalesceGaps implements spec §4.8 step 3: merge adjacent gap parts.
func coalesceGaps(parts []Part) []Part {
	var out []Part
	for _, p := range parts {
		if p.Gap && len(out) > 0 && out[len(out)-1].Gap {
			out[len(out)-1].Length += p.Length
			continue
		}
		out = append(out, p)
	}
	return out
}

// GapConforms implements spec §4.5's "conforming captured gap" test; spec
// §4.8 step 4 reuses the identical test under the name "conformity test".
// Exported so package repair's gap filler can apply the same test to the
// internal gaps it considers re-extracting K-mers over.
func GapConforms(g *graph.Graph, prev, gap, next Part) bool {
	return gapConforms(g, prev, gap, next)
}

func gapConforms(g *graph.Graph, prev, gap, next Part) bool {
	var graphDist int
	if prev.EdgeID == next.EdgeID {
		graphDist = next.Offset - (prev.Offset + prev.Length)
	} else {
		graphDist = len(g.Edges[prev.EdgeID].Bases) + next.Offset - (prev.Offset + prev.Length)
	}
	diff := gap.Length - graphDist
	if diff < 0 {
		diff = -diff
	}
	return diff <= gapConformJitter
}

// joinable implements spec §4.8 step 4's neighbour-joinability definition:
// same edge, or the two edges share a vertex at their facing ends.
func joinable(g *graph.Graph, prev, next Part) bool {
	if prev.EdgeID == next.EdgeID {
		return true
	}
	tail := g.TailVertex[prev.EdgeID]
	return tail >= 0 && tail == g.HeadVertex[next.EdgeID]
}

// repairInternalInconsistency implements spec §4.8 step 4: find the first
// internal captured gap that fails conformity or joinability, and repair
// by either truncating from the preceding seed (when ≥2 seeds already
// precede it) or absorbing everything after it into that gap.
func repairInternalInconsistency(parts []Part, g *graph.Graph) []Part {
	for i, p := range parts {
		if !p.Gap || i == 0 || i == len(parts)-1 {
			continue
		}
		prev, next := parts[i-1], parts[i+1]
		if prev.Gap || next.Gap {
			continue
		}
		if gapConforms(g, prev, p, next) && joinable(g, prev, next) {
			continue
		}

		seedsBefore := 0
		for _, q := range parts[:i] {
			if !q.Gap {
				seedsBefore++
			}
		}

		if seedsBefore >= 2 {
			combined := 0
			for _, q := range parts[i-1:] {
				combined += q.Length
			}
			out := make([]Part, i-1, i)
			copy(out, parts[:i-1])
			return append(out, Part{Gap: true, Length: combined})
		}
		combined := 0
		for _, q := range parts[i:] {
			combined += q.Length
		}
		out := make([]Part, i, i+1)
		copy(out, parts[:i])
		return append(out, Part{Gap: true, Length: combined})
	}
	return parts
}

// trimShortFinalSeed implements spec §4.8 step 5.
func trimShortFinalSeed(parts []Part) []Part {
	if len(parts) == 0 {
		return parts
	}
	last := parts[len(parts)-1]
	if !last.Gap && last.Offset == 0 && last.Length <= shortSeedTrimMaxLen {
		out := make([]Part, len(parts))
		copy(out, parts)
		out[len(out)-1] = Part{Gap: true, Length: last.Length}
		return out
	}
	return parts
}

// toPath implements spec §4.8 step 6: drop gaps, coalesce identical
// adjacent edges, derive the path offset.
func toPath(parts []Part) Path {
	if len(parts) == 0 {
		return Path{}
	}

	var edges []uint32
	for _, p := range parts {
		if p.Gap {
			continue
		}
		if len(edges) == 0 || edges[len(edges)-1] != p.EdgeID {
			edges = append(edges, p.EdgeID)
		}
	}

	var offset int32
	switch {
	case !parts[0].Gap:
		offset = int32(parts[0].Offset)
	case len(parts) >= 2:
		offset = int32(parts[1].Offset - parts[0].Length)
	default:
		offset = 0
	}

	return Path{Offset: offset, Edges: edges}
}
