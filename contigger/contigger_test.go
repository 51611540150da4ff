package contigger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/altingia/w2rap-contigger/kmer"
)

type fakeReads [][]kmer.Base

func (f fakeReads) Len() int               { return len(f) }
func (f fakeReads) Read(i int) []kmer.Base { return f[i] }

type fakeQuals [][]uint8

func (f fakeQuals) Len() int           { return len(f) }
func (f fakeQuals) Qual(i int) []uint8 { return f[i] }

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

func allGood(n int) []uint8 {
	q := make([]uint8, n)
	for i := range q {
		q[i] = DefaultMinQual + 1
	}
	return q
}

func TestConfigNormalizeDerivesMinFreq2(t *testing.T) {
	cases := []struct {
		minFreq  uint32
		fraction float64
		want     uint32
	}{
		{minFreq: 10, fraction: 0.5, want: 5},
		{minFreq: 1, fraction: 1, want: 2}, // floor of 2 even when minFreq*fraction < 2
		{minFreq: 3, fraction: 0, want: 3}, // fraction<=0 defaults to 1
	}
	for _, c := range cases {
		cfg := Config{MinFreq: c.minFreq, MinFreq2Fraction: c.fraction, Workdir: t.TempDir()}
		if err := cfg.normalize(); err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if cfg.minFreq2 != c.want {
			t.Errorf("minFreq=%d fraction=%v: got minFreq2=%d, want %d", c.minFreq, c.fraction, cfg.minFreq2, c.want)
		}
	}
}

func TestConfigNormalizeCreatesWorkdir(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "nested", "workdir")
	cfg := Config{Workdir: dir}
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("workdir not created: %v", err)
	}
}

func TestConfigNormalizeDefaultsMinQual(t *testing.T) {
	cfg := Config{Workdir: t.TempDir()}
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.MinQual != DefaultMinQual {
		t.Errorf("got MinQual=%d, want default %d", cfg.MinQual, DefaultMinQual)
	}
}

func TestBuildSingleReadProducesOnePathAndFreqsFile(t *testing.T) {
	// 61 unique, non-repetitive bases: one linear edge, one read path.
	seq := "ACGTTGCATCGGATCCAGTTAGCCGGTATCGATCGGCATTAGGCCATGGATCCGTATGCAA"
	if len(seq) != kmer.K+1 {
		t.Fatalf("test fixture must be K+1 bases long, got %d", len(seq))
	}
	reads := fakeReads{encode(t, seq)}
	quals := fakeQuals{allGood(len(seq))}

	workdir := t.TempDir()
	cfg := Config{MinFreq: 1, Workdir: workdir}

	g, paths, err := Build(reads, quals, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Edges) != 2 {
		// Build doubles every unitig into forward + reverse-complement copies.
		t.Fatalf("expected 2 directed edges (fwd+rc), got %d", len(g.Edges))
	}
	if len(paths) != 1 {
		t.Fatalf("expected 1 read path, got %d", len(paths))
	}

	if _, err := os.Stat(filepath.Join(workdir, "small_K.freqs")); err != nil {
		t.Fatalf("small_K.freqs not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workdir, "raw_kmers.data")); err == nil {
		t.Fatalf("raw_kmers.data should not be written when WriteRawKmers is unset")
	}
}

func TestBuildWritesRawKmersWhenRequested(t *testing.T) {
	seq := "ACGTTGCATCGGATCCAGTTAGCCGGTATCGATCGGCATTAGGCCATGGATCCGTATGCAA"
	reads := fakeReads{encode(t, seq)}
	quals := fakeQuals{allGood(len(seq))}

	workdir := t.TempDir()
	cfg := Config{MinFreq: 1, Workdir: workdir, WriteRawKmers: true}

	if _, _, err := Build(reads, quals, cfg); err != nil {
		t.Fatalf("Build: %v", err)
	}
	info, err := os.Stat(filepath.Join(workdir, "raw_kmers.data"))
	if err != nil {
		t.Fatalf("raw_kmers.data not written: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("raw_kmers.data is empty")
	}
}

func TestBuildDropsShortReadsFromDictionary(t *testing.T) {
	// A read shorter than K contributes no K-mers (qual.GoodLength never
	// reaches K), so Build should still succeed with zero edges.
	seq := "ACGTACGTACGT"
	reads := fakeReads{encode(t, seq)}
	quals := fakeQuals{allGood(len(seq))}

	g, paths, err := Build(reads, quals, Config{MinFreq: 1, Workdir: t.TempDir()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Edges) != 0 {
		t.Fatalf("expected no edges from an under-length read, got %d", len(g.Edges))
	}
	if len(paths) != 1 {
		t.Fatalf("expected a (empty) path entry per read, got %d", len(paths))
	}
}

func TestEdgeLengthSummaryReportsEdgeAndVertexCounts(t *testing.T) {
	seq := "ACGTTGCATCGGATCCAGTTAGCCGGTATCGATCGGCATTAGGCCATGGATCCGTATGCAA"
	reads := fakeReads{encode(t, seq)}
	quals := fakeQuals{allGood(len(seq))}

	g, _, err := Build(reads, quals, Config{MinFreq: 1, Workdir: t.TempDir()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out := EdgeLengthSummary(g)
	if out == "" {
		t.Fatalf("expected non-empty summary")
	}
}
