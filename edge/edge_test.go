package edge

import (
	"testing"

	"github.com/altingia/w2rap-contigger/counter"
	"github.com/altingia/w2rap-contigger/dict"
	"github.com/altingia/w2rap-contigger/kmer"
)

type fakeReads [][]kmer.Base

func (f fakeReads) Len() int               { return len(f) }
func (f fakeReads) Read(i int) []kmer.Base { return f[i] }

func encode(t *testing.T, s string) []kmer.Base {
	t.Helper()
	out := make([]kmer.Base, len(s))
	for i := 0; i < len(s); i++ {
		b, err := kmer.EncodeBase(s[i])
		if err != nil {
			t.Fatalf("EncodeBase(%q): %v", s[i], err)
		}
		out[i] = b
	}
	return out
}

func revComp(t *testing.T, s string) string {
	t.Helper()
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b, err := kmer.EncodeBase(s[len(s)-1-i])
		if err != nil {
			t.Fatalf("EncodeBase: %v", err)
		}
		out[i] = b.Complement().Byte()
	}
	return string(out)
}

func buildDict(t *testing.T, reads [][]kmer.Base, minFreq uint32) *dict.Dict {
	t.Helper()
	lens := make([]int, len(reads))
	for i, r := range reads {
		lens[i] = len(r)
	}
	res, err := counter.Count(fakeReads(reads), lens, counter.Options{MinFreq: minFreq, BatchSize: 2, Shards: 2})
	if err != nil {
		t.Fatalf("counter.Count: %v", err)
	}
	d := dict.New(len(res.Survivors))
	for _, r := range res.Survivors {
		d.Insert(r.Kmer, r.Ctx)
	}
	return d
}

func edgeString(e Edge) string {
	out := make([]byte, len(e.Bases))
	for i, b := range e.Bases {
		out[i] = b.Byte()
	}
	return string(out)
}

func TestBuildSingleReadProducesOneLinearEdge(t *testing.T) {
	// 61 unique, non-repetitive bases so every window is distinct and the
	// resulting edge has no internal branching.
	seq := "ACGTTGCATCGGATCCAGTTAGCCGGTATCGATCGGCATTAGGCCATGGATCCGTATGCAA"
	if len(seq) != kmer.K+1 {
		t.Fatalf("test fixture must be K+1 bases long, got %d", len(seq))
	}
	reads := [][]kmer.Base{encode(t, seq)}
	d := buildDict(t, reads, 1)

	edges, err := NewBuilder().Build(d)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected exactly 1 edge, got %d", len(edges))
	}
	e := edges[0]
	if e.Circular {
		t.Fatalf("expected a linear edge")
	}
	if e.NumKmers() != 2 {
		t.Fatalf("expected 2 K-mers on the edge, got %d", e.NumKmers())
	}
	got := edgeString(e)
	rc := revComp(t, seq)
	if got != seq && got != rc {
		t.Fatalf("edge sequence %q matches neither the read nor its reverse complement", got)
	}
}

func TestBuildOverlappingReadsProduceSingleEdge(t *testing.T) {
	seq := "ACGTTGCATCGGATCCAGTTAGCCGGTATCGATCGGCATTAGGCCATGGATCCGTATGCAACCGGTTAACC"
	// two reads shifted by a single base, so all but their two extreme
	// windows overlap and reach count 2 under min_freq=2; the surviving
	// K-mers still form one contiguous chain, seq[1:len(seq)-1].
	r1 := seq[:len(seq)-1]
	r2 := seq[1:]
	reads := [][]kmer.Base{encode(t, r1), encode(t, r2)}
	d := buildDict(t, reads, 2)

	edges, err := NewBuilder().Build(d)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected the two overlapping reads to collapse into 1 edge, got %d", len(edges))
	}
	want := seq[1 : len(seq)-1]
	got := edgeString(edges[0])
	rc := revComp(t, want)
	if got != want && got != rc {
		t.Fatalf("edge sequence %q matches neither %q nor its reverse complement", got, want)
	}
}

func TestBuildEveryCanonicalKmerPlacedExactlyOnce(t *testing.T) {
	seq := "ACGTTGCATCGGATCCAGTTAGCCGGTATCGATCGGCATTAGGCCATGGATCCGTATGCAACCGGTTAACCGGATTACCGGATTACC"
	reads := [][]kmer.Base{encode(t, seq)}
	d := buildDict(t, reads, 1)

	if _, err := NewBuilder().Build(d); err != nil {
		t.Fatalf("Build: %v", err)
	}

	d.ParallelForEachBucket(func(_ int, keys []kmer.Kmer128) {
		for _, k := range keys {
			_, kd, ok := d.Find(k)
			if !ok {
				t.Errorf("key %s vanished from dictionary", k)
				continue
			}
			if kd.Null {
				t.Errorf("K-mer %s was never placed on an edge", k)
			}
		}
	})
}
