package repair

import (
	"testing"
)

// TestJoinOverlapsBridgesSharedOverlap grounds spec §4.6: two edges sharing
// a true K-mer-internal overlap (edgeL's tail equals edgeR's head) should,
// once a read's internal gap shorter than K-1 exposes that overlap, merge
// into a single edge spanning both.
func TestJoinOverlapsBridgesSharedOverlap(t *testing.T) {
	const overlap = 10
	tag := "TAGTGGTTCT"
	leftUnique := "TAAAAACAACCCCTCACGTAAGCTGGTTGGGTAAGGAATTACGGTTATACAATTGAAGCAGTGGA"
	rightUnique := "CTTTCGTTGCAGTATGCCAGAAACATGGAAAGCCCCCAAGTACTGCCTTACTAACGCATAGACGC"
	bridge := "CGGTGTCGGGTGATGTTGCTTCCTGCCGTAGGTGCGAGGGTGTCCTGCA"

	edgeLSeq := leftUnique + tag  // 75 bases, ends in the shared tag
	edgeRSeq := tag + rightUnique // 75 bases, starts with the shared tag
	read := edgeLSeq + bridge + edgeRSeq

	d, g, _ := buildFixture(t, edgeLSeq, edgeRSeq)

	reads := readSlice{encode(t, read)}
	edges, changed, err := JoinOverlaps(reads, d, g, 1, t.TempDir())
	if err != nil {
		t.Fatalf("JoinOverlaps: %v", err)
	}
	if !changed {
		t.Fatalf("expected JoinOverlaps to report a change")
	}
	if len(edges) != 1 {
		t.Fatalf("expected the two edges to merge into one via their shared overlap, got %d", len(edges))
	}

	want := edgeLSeq + edgeRSeq[overlap:]
	got := baseString(edges[0].Bases)
	rc := revCompString(got)
	if got != want && rc != want {
		t.Fatalf("rebuilt edge %q matches neither %q nor its reverse complement", got, want)
	}
}

// TestJoinOverlapsRejectsMismatchedOverlap checks the validation rule
// (spec §4.6: "the overlap bases on the left edge must equal the overlap
// bases on the right edge"): when the bases don't actually agree, no join
// is made and the edge set is untouched.
func TestJoinOverlapsRejectsMismatchedOverlap(t *testing.T) {
	edgeLSeq := "TAAAAACAACCCCTCACGTAAGCTGGTTGGGTAAGGAATTACGGTTATACAATTGAAGCAGTGGATAGTGGTTCT"
	// edgeR starts with a tag that does NOT match edgeL's trailing 10 bases.
	edgeRSeq := "CGCAGTTGACCTTTCGTTGCAGTATGCCAGAAACATGGAAAGCCCCCAAGTACTGCCTTACTAACGCATAGACGC"
	bridge := "CGGTGTCGGGTGATGTTGCTTCCTGCCGTAGGTGCGAGGGTGTCCTGCA"
	read := edgeLSeq + bridge + edgeRSeq

	d, g, _ := buildFixture(t, edgeLSeq, edgeRSeq)

	reads := readSlice{encode(t, read)}
	edges, changed, err := JoinOverlaps(reads, d, g, 1, t.TempDir())
	if err != nil {
		t.Fatalf("JoinOverlaps: %v", err)
	}
	if changed {
		t.Fatalf("expected no change: the overlap bases disagree, so the join must be rejected")
	}
	if edges != nil {
		t.Fatalf("expected nil edges on rejection")
	}
}
