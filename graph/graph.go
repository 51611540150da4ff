// Package graph assembles the bidirected de Bruijn graph (spec §4.7) from
// the edges produced by package edge: it doubles every unitig into its two
// directed copies (forward and reverse-complement), builds the involution
// array pairing them, and collapses (K-1)-mer endpoints into shared
// vertices.
package graph

import (
	"github.com/altingia/w2rap-contigger/edge"
	"github.com/altingia/w2rap-contigger/kmer"
)

// km1 is the vertex key width: heads and tails of edges are (K-1)-mers.
const km1 = kmer.K - 1

// vertexKey is a canonical (K-1)-mer, stored unpacked (one byte per base)
// since K-1=59 does not fit Kmer128's K=60 packing; vertex keys only need
// to be comparable map keys, not arithmetic operands.
type vertexKey [km1]kmer.Base

func canonKey(bases []kmer.Base) vertexKey {
	var fwd, rev vertexKey
	copy(fwd[:], bases)
	n := len(bases)
	for i := 0; i < n; i++ {
		rev[n-1-i] = bases[i].Complement()
	}
	if keyLess(rev, fwd) {
		return rev
	}
	return fwd
}

func keyLess(a, b vertexKey) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Vertex is a collapsed (K-1)-mer junction: the edges terminating here
// (Incoming) and the edges departing from here (Outgoing).
type Vertex struct {
	Incoming []uint32
	Outgoing []uint32
}

// Graph is the assembled bidirected graph: every input unitig appears
// twice, once per strand, except self-reverse-complementary edges
// (palindromes), which appear once and self-map under Inv.
type Graph struct {
	Edges []edge.Edge
	// Inv[e] is the edge id of e's reverse complement; Inv[Inv[e]] == e
	// always (spec §8's involution idempotence property).
	Inv []uint32

	Vertices []Vertex
	// HeadVertex[e]/TailVertex[e] index into Vertices for the first/last
	// (K-1)-mer of edge e; -1 for circular edges, which have no endpoints.
	HeadVertex []int32
	TailVertex []int32

	// CanonicalID[i] is the graph edge id of the forward (as-stored)
	// direction of the i-th input unitig, letting callers that hold a
	// builder edge id (e.g. from dict.KDef, which is indexed over the
	// pre-doubling unitig list) translate it into this graph's doubled
	// edge-id space; Inv[CanonicalID[i]] gives the reverse-complement copy.
	CanonicalID []uint32
}

// isSelfRevComp reports whether an edge's base sequence is its own reverse
// complement: for a linear edge this is exactly the single-K-mer
// palindrome case (spec §4.4's "Edge-count palindrome handling"); for a
// circular edge it additionally requires checking every rotation, since a
// necklace has no fixed starting point.
func isSelfRevComp(e edge.Edge) bool {
	n := len(e.Bases)
	rc := make([]kmer.Base, n)
	for i, b := range e.Bases {
		rc[n-1-i] = b.Complement()
	}
	if !e.Circular {
		return basesEqual(e.Bases, rc)
	}
	for rot := 0; rot < n; rot++ {
		if rotationEquals(e.Bases, rc, rot) {
			return true
		}
	}
	return false
}

func basesEqual(a, b []kmer.Base) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func rotationEquals(a, rc []kmer.Base, rot int) bool {
	n := len(a)
	for i := 0; i < n; i++ {
		if a[i] != rc[(i+rot)%n] {
			return false
		}
	}
	return true
}

func revCompBases(bases []kmer.Base) []kmer.Base {
	n := len(bases)
	out := make([]kmer.Base, n)
	for i, b := range bases {
		out[n-1-i] = b.Complement()
	}
	return out
}

// Build realises spec §4.7: doubles every unitig into its forward and
// reverse-complement directed copies (the standard bidirected-de-Bruijn
// rendition of "produce an involution array inv[e]" — see DESIGN.md), then
// collapses (K-1)-mer endpoints into shared vertices.
func Build(unitigs []edge.Edge) (*Graph, error) {
	g := &Graph{}
	g.Edges = make([]edge.Edge, 0, 2*len(unitigs))
	g.Inv = make([]uint32, 0, 2*len(unitigs))
	g.CanonicalID = make([]uint32, len(unitigs))

	for i, e := range unitigs {
		fwdID := uint32(len(g.Edges))
		g.CanonicalID[i] = fwdID
		g.Edges = append(g.Edges, e)

		if isSelfRevComp(e) {
			g.Inv = append(g.Inv, fwdID)
			continue
		}

		revID := uint32(len(g.Edges))
		g.Edges = append(g.Edges, edge.Edge{Bases: revCompBases(e.Bases), Circular: e.Circular})
		g.Inv = append(g.Inv, revID, fwdID)
	}

	g.HeadVertex = make([]int32, len(g.Edges))
	g.TailVertex = make([]int32, len(g.Edges))
	index := make(map[vertexKey]int32)

	vertexFor := func(k vertexKey) int32 {
		if id, ok := index[k]; ok {
			return id
		}
		id := int32(len(g.Vertices))
		g.Vertices = append(g.Vertices, Vertex{})
		index[k] = id
		return id
	}

	for id := range g.HeadVertex {
		g.HeadVertex[id] = -1
		g.TailVertex[id] = -1
	}

	// Incoming/Outgoing membership is derived once per *original* unitig,
	// not per doubled directed copy: an edge's own reverse-complement
	// partner always arrives back at that edge's head (head(RC(e)) ==
	// tail(e), a direct consequence of canonKey being RC-invariant), so
	// counting both doubled copies as independent graph structure would
	// inflate every non-isolated vertex's degree by the edge's own
	// mirror — see DESIGN.md's graph ledger entry. Both directed copies
	// of an edge share the same underlying vertex ids (swapped head/tail
	// for the reverse copy), but only the forward insertion below
	// populates Incoming/Outgoing.
	for i, e := range unitigs {
		if e.Circular || len(e.Bases) < kmer.K {
			continue
		}
		fwdID := g.CanonicalID[i]
		revID := g.Inv[fwdID]

		hv := vertexFor(canonKey(e.Bases[:km1]))
		tv := vertexFor(canonKey(e.Bases[len(e.Bases)-km1:]))

		g.HeadVertex[fwdID] = hv
		g.TailVertex[fwdID] = tv
		g.Vertices[hv].Outgoing = append(g.Vertices[hv].Outgoing, fwdID)
		g.Vertices[tv].Incoming = append(g.Vertices[tv].Incoming, fwdID)

		if revID != fwdID {
			g.HeadVertex[revID] = tv
			g.TailVertex[revID] = hv
		}
	}

	return g, nil
}

// InDegree and OutDegree are the counts the pather's hanging-edge
// suppression rule (spec §4.8 step 2) consults directly.
func (g *Graph) InDegree(vertex int32) int {
	if vertex < 0 {
		return 0
	}
	return len(g.Vertices[vertex].Incoming)
}

func (g *Graph) OutDegree(vertex int32) int {
	if vertex < 0 {
		return 0
	}
	return len(g.Vertices[vertex].Outgoing)
}
