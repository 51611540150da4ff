// Package contigger is the root orchestrator (spec §2/§6): it wires
// qual -> counter -> dict -> edge -> (optional repair passes) -> graph ->
// pather into the single Build entry point, and owns the two external
// sinks the pipeline writes under its workdir (small_K.freqs always,
// raw_kmers.data when the spectra-cn sibling has asked for it).
package contigger

import (
	"math"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	logging "github.com/shenwei356/go-logging"
	"github.com/shenwei356/util/pathutil"

	"github.com/altingia/w2rap-contigger/counter"
	"github.com/altingia/w2rap-contigger/dict"
	"github.com/altingia/w2rap-contigger/edge"
	"github.com/altingia/w2rap-contigger/graph"
	"github.com/altingia/w2rap-contigger/kmer"
	"github.com/altingia/w2rap-contigger/pather"
	"github.com/altingia/w2rap-contigger/qual"
	"github.com/altingia/w2rap-contigger/repair"
)

var log = logging.MustGetLogger("contigger")

// DefaultMinQual re-exports qual.DefaultMinQual so callers (notably
// cmd/contigger) can state a flag default without importing qual directly.
const DefaultMinQual = qual.DefaultMinQual

// ReadSet and QualSet are the pipeline's external collaborators (spec §6):
// random access to each read's unpacked bases and per-base quality scores.
type ReadSet interface {
	Len() int
	Read(i int) []kmer.Base
}

type QualSet interface {
	Len() int
	Qual(i int) []uint8
}

// Config is the recognised set of options (spec §6).
type Config struct {
	// MinQual is the quality floor the good-length qualifier scans for
	// (spec's min_qual). Defaults to qual.DefaultMinQual.
	MinQual uint8
	// MinFreq is the primary dictionary's survival threshold.
	MinFreq uint32
	// MinFreq2Fraction derives the repair passes' stricter threshold:
	// min_freq2 = max(2, round(MinFreq2Fraction * MinFreq)).
	MinFreq2Fraction float64
	// MaxGapSize bounds a gap the filler will attempt to repair.
	MaxGapSize int
	// DoFillGaps and DoJoinOverlaps gate the two optional repair passes.
	DoFillGaps     bool
	DoJoinOverlaps bool
	// CountBatchSize is the number of reads per counting batch
	// (count_batch_size); 0 lets counter.Count pick its own default.
	CountBatchSize int
	// Workdir is where small_K.freqs (always) and raw_kmers.data (when
	// WriteRawKmers is set) are written. "" defaults to the current
	// directory; a leading "~" is expanded.
	Workdir string
	// WriteRawKmers emits raw_kmers.data for the spectra-cn sibling tool
	// (spec §6/§9) alongside the always-emitted small_K.freqs.
	WriteRawKmers bool
	// Verbose gates the Infof progress lines (spec §7 "verbosity level 2").
	Verbose bool

	minFreq2 uint32
}

// normalize fills in defaults, derives MinFreq2, and resolves/creates
// Workdir. Mirrors the teacher's cmd.Options, generalized into a plain
// struct since config parsing itself is the CLI layer's job, not this
// package's.
func (c *Config) normalize() error {
	if c.MinQual == 0 {
		c.MinQual = qual.DefaultMinQual
	}
	if c.MinFreq == 0 {
		c.MinFreq = 1
	}
	if c.MinFreq2Fraction <= 0 {
		c.MinFreq2Fraction = 1
	}
	derived := math.Round(c.MinFreq2Fraction * float64(c.MinFreq))
	if derived < 2 {
		derived = 2
	}
	c.minFreq2 = uint32(derived)

	dir, err := homedir.Expand(c.Workdir)
	if err != nil {
		return errors.Wrapf(err, "contigger: expand workdir %q", c.Workdir)
	}
	if dir == "" {
		dir = "."
	}
	c.Workdir = dir

	exists, err := pathutil.DirExists(c.Workdir)
	if err != nil {
		return errors.Wrapf(err, "contigger: check workdir %q", c.Workdir)
	}
	if !exists {
		if err := os.MkdirAll(c.Workdir, 0o755); err != nil {
			return errors.Wrapf(err, "contigger: create workdir %q", c.Workdir)
		}
	}
	return nil
}

// Build runs the full pipeline (spec §2) and returns the assembled graph
// and every read's path through it.
func Build(reads ReadSet, quals QualSet, cfg Config) (*graph.Graph, []pather.Path, error) {
	if err := cfg.normalize(); err != nil {
		return nil, nil, err
	}

	qualSlice := make([][]uint8, quals.Len())
	for i := range qualSlice {
		qualSlice[i] = quals.Qual(i)
	}
	goodLengths := qual.GoodLengths(qualSlice, kmer.K, cfg.MinQual)

	res, err := counter.Count(reads, goodLengths, counter.Options{
		MinFreq:   cfg.MinFreq,
		BatchSize: cfg.CountBatchSize,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "contigger: count")
	}
	if cfg.Verbose {
		log.Infof("%s", counter.Summary(res))
	}

	if err := counter.WriteHistogram(filepath.Join(cfg.Workdir, "small_K.freqs"), res.Histogram); err != nil {
		return nil, nil, errors.Wrap(err, "contigger: write small_K.freqs")
	}
	if cfg.WriteRawKmers {
		if err := writeRawKmers(filepath.Join(cfg.Workdir, "raw_kmers.data"), res.Survivors); err != nil {
			return nil, nil, errors.Wrap(err, "contigger: write raw_kmers.data")
		}
	}

	d := dict.New(len(res.Survivors) * 2)
	for _, r := range res.Survivors {
		d.Insert(r.Kmer, r.Ctx)
	}
	d.RecomputeAdjacencies()

	edges, err := edge.NewBuilder().Build(d)
	if err != nil {
		return nil, nil, errors.Wrap(err, "contigger: build edges")
	}
	g, err := graph.Build(edges)
	if err != nil {
		return nil, nil, errors.Wrap(err, "contigger: assemble graph")
	}
	if cfg.Verbose {
		log.Infof("initial build: %d edges, %d vertices", len(g.Edges), len(g.Vertices))
	}

	if cfg.DoFillGaps {
		g, err = runRepairPass(g, func() ([]edge.Edge, bool, error) {
			return repair.FillGaps(reads, d, g, cfg.MaxGapSize, cfg.minFreq2)
		}, "gap fill", cfg.Verbose)
		if err != nil {
			return nil, nil, err
		}
	}

	if cfg.DoJoinOverlaps {
		g, err = runRepairPass(g, func() ([]edge.Edge, bool, error) {
			return repair.JoinOverlaps(reads, d, g, cfg.minFreq2, cfg.Workdir)
		}, "overlap join", cfg.Verbose)
		if err != nil {
			return nil, nil, err
		}
	}

	paths := pather.PathReads(reads, quals, d, g)
	return g, paths, nil
}

// runRepairPass runs one of the two optional repair passes and, if it
// changed the edge set, reassembles the graph from the rebuilt edges
// (spec §4.5/§4.6: both passes already null/recompute/rebuild the
// dictionary-side state themselves; only the bidirected graph on top of
// the edge set needs redoing here).
func runRepairPass(g *graph.Graph, pass func() ([]edge.Edge, bool, error), name string, verbose bool) (*graph.Graph, error) {
	newEdges, changed, err := pass()
	if err != nil {
		return nil, errors.Wrapf(err, "contigger: %s", name)
	}
	if !changed {
		if verbose {
			log.Infof("%s: no change", name)
		}
		return g, nil
	}
	g2, err := graph.Build(newEdges)
	if err != nil {
		return nil, errors.Wrapf(err, "contigger: reassemble graph after %s", name)
	}
	if verbose {
		log.Infof("%s: %d edges after rebuild", name, len(g2.Edges))
	}
	return g2, nil
}

// writeRawKmers emits raw_kmers.data (spec §6/§9): a little-endian u64
// record count followed by that many packed records, sorted ascending by
// (Hi, Lo) — exactly the order counter.Result.Survivors is already in.
// Opened with plain os.Create, not xopen: RecordWriter seeks back to patch
// its header once the final count is known, which needs io.WriteSeeker.
func writeRawKmers(path string, survivors []kmer.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	rw, err := kmer.NewRecordWriter(f)
	if err != nil {
		return err
	}
	for _, r := range survivors {
		if err := rw.Write(r); err != nil {
			return err
		}
	}
	return rw.Close()
}
