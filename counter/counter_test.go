package counter

import (
	"reflect"
	"testing"

	"github.com/altingia/w2rap-contigger/kmer"
)

type fakeReads [][]kmer.Base

func (f fakeReads) Len() int             { return len(f) }
func (f fakeReads) Read(i int) []kmer.Base { return f[i] }

func encodeAll(t *testing.T, s string) []kmer.Base {
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

// syntheticGenome builds a long repeat-free-ish reference by tiling four
// distinct 61-base blocks, so sliding windows of length >= K produce a
// realistic mix of distinct and repeated K-mers.
func syntheticGenome() string {
	blocks := []string{
		"ACGTTGCATCGGATCCAGTTAGCCGGTATCGATCGGCATTAGGCCATGGATCCGTATGCA",
		"TTGGCCAATCGGATTACGGCTTAACCGGATCCGGTATTCAGGCCTTAGGCATCGATCCAT",
		"GCATGCATCGATCGGATCCAATTCGGATCCGGTAACCGGTATCGGATCCAATCGGCATTA",
		"CCGGATTAGCATCGGATCCAATCGGATTACCGGTATCGGATCCAATCGGATTACCGGTA",
	}
	out := blocks[0] + blocks[1] + blocks[2] + blocks[3] + blocks[1] + blocks[2]
	return out
}

// slidingReads cuts the genome into overlapping reads of the given length
// and step, interleaving forward and reverse-complement strands the way
// real paired sequencing libraries mix strands.
func slidingReads(t *testing.T, genome string, readLen, step int) [][]kmer.Base {
	t.Helper()
	var reads [][]kmer.Base
	for start := 0; start+readLen <= len(genome); start += step {
		s := genome[start : start+readLen]
		if (start/step)%2 == 1 {
			s = revComp(t, s)
		}
		reads = append(reads, encodeAll(t, s))
	}
	return reads
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

func allGood(reads [][]kmer.Base) []int {
	lens := make([]int, len(reads))
	for i, r := range reads {
		lens[i] = len(r)
	}
	return lens
}

func TestCountSingleReadExactlyK(t *testing.T) {
	s := make([]byte, kmer.K)
	for i := range s {
		s[i] = "ACGT"[i%4]
	}
	reads := fakeReads{encodeAll(t, string(s))}
	res, err := Count(reads, []int{kmer.K}, Options{MinFreq: 1, BatchSize: 10, Shards: 2})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if len(res.Survivors) != 1 {
		t.Fatalf("expected exactly 1 K-mer, got %d", len(res.Survivors))
	}
	if res.Survivors[0].Ctx != kmer.Empty {
		t.Fatalf("a read of exactly K bases should produce an empty context, got %+v", res.Survivors[0].Ctx)
	}
	if res.Survivors[0].Count != 1 {
		t.Fatalf("expected count 1, got %d", res.Survivors[0].Count)
	}
}

func TestCountShortReadsContributeNothing(t *testing.T) {
	reads := fakeReads{encodeAll(t, "ACGTACGT")}
	res, err := Count(reads, []int{8}, Options{MinFreq: 1, BatchSize: 4})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if len(res.Survivors) != 0 {
		t.Fatalf("reads shorter than K should contribute no K-mers, got %d", len(res.Survivors))
	}
}

// TestCountDeterministicAcrossBatchSizes pins down the determinism property
// (spec §8 scenario 6): the final (kmer, count, context) multiset must not
// depend on count_batch_size or the internal shard fan-out.
func TestCountDeterministicAcrossBatchSizes(t *testing.T) {
	genome := syntheticGenome()
	reads := slidingReads(t, genome, 80, 11)

	configs := []Options{
		{MinFreq: 1, BatchSize: 1, Shards: 1},
		{MinFreq: 1, BatchSize: 3, Shards: 4},
		{MinFreq: 1, BatchSize: len(reads), Shards: 1},
		{MinFreq: 1, BatchSize: 1000000, Shards: 8},
	}

	var first Result
	for i, cfg := range configs {
		got, err := Count(fakeReads(reads), allGood(reads), cfg)
		if err != nil {
			t.Fatalf("config %d: Count: %v", i, err)
		}
		if i == 0 {
			first = got
			continue
		}
		if !reflect.DeepEqual(got.Survivors, first.Survivors) {
			t.Fatalf("config %d produced a different survivor multiset than config 0", i)
		}
		if got.Histogram != first.Histogram {
			t.Fatalf("config %d produced a different histogram than config 0", i)
		}
	}
}

func TestCountMinFreqFilter(t *testing.T) {
	genome := syntheticGenome()
	reads := slidingReads(t, genome, 80, 11)

	lowThreshold, err := Count(fakeReads(reads), allGood(reads), Options{MinFreq: 1, BatchSize: 7, Shards: 3})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	highThreshold, err := Count(fakeReads(reads), allGood(reads), Options{MinFreq: 3, BatchSize: 7, Shards: 3})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if len(highThreshold.Survivors) >= len(lowThreshold.Survivors) {
		t.Fatalf("a higher min_freq should strictly reduce survivors: low=%d high=%d",
			len(lowThreshold.Survivors), len(highThreshold.Survivors))
	}
	for _, r := range highThreshold.Survivors {
		if r.Count < 3 {
			t.Fatalf("survivor with count %d should not pass MinFreq=3", r.Count)
		}
	}
	// the histogram must be identical regardless of the filter threshold,
	// since it reflects the full merged spectrum.
	if lowThreshold.Histogram != highThreshold.Histogram {
		t.Fatalf("histogram should be independent of MinFreq")
	}
}

func TestCountRevCompReadsShareCanonicalKmers(t *testing.T) {
	fwd := "ACGTTGCATCGGATCCAGTTAGCCGGTATCGATCGGCATTAGGCCATGGATCCGTATGCAA"
	rc := revComp(t, fwd)
	reads := fakeReads{encodeAll(t, fwd), encodeAll(t, rc)}
	res, err := Count(reads, allGood(reads), Options{MinFreq: 1, BatchSize: 1, Shards: 2})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	// a forward read and its exact reverse complement must canonicalise to
	// the very same K-mers, so every survivor should have count 2.
	for _, r := range res.Survivors {
		if r.Count != 2 {
			t.Fatalf("expected every shared K-mer to have count 2, got %d", r.Count)
		}
	}
}
