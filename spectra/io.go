package spectra

import (
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"

	"github.com/altingia/w2rap-contigger/edge"
	"github.com/altingia/w2rap-contigger/kmer"
)

// ErrEmptySequence is the FASTA ingest's terminal error (spec §6's "empty
// sequence encountered mid-stream"): original_source aborts the whole run
// rather than skipping the offending record, since a record with an empty
// sequence almost always means a malformed or truncated file.
type ErrEmptySequence struct {
	Path  string
	Index int
}

func (e *ErrEmptySequence) Error() string {
	return fmt.Sprintf("spectra: %s: empty sequence at record %d", e.Path, e.Index)
}

// FastaKmers reads a FASTA file as the FASTA-only entry point of
// original_source's DumpSpectraCN does, windowing every record's sequence
// into canonicalised K-mer records exactly as GraphKmers does for a graph's
// edges. It is the fallback form used when spectra-cn is run against an
// assembly FASTA dump rather than directly against a graph.
func FastaKmers(path string) ([]kmer.Record, error) {
	reader, err := fastx.NewDefaultReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "spectra: open %s", path)
	}

	var out []kmer.Record
	idx := 0
	for {
		rec, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrapf(err, "spectra: %s: record %d", path, idx)
		}
		if len(rec.Seq.Seq) == 0 {
			return nil, &ErrEmptySequence{Path: path, Index: idx}
		}

		bases := make([]kmer.Base, len(rec.Seq.Seq))
		for i, c := range rec.Seq.Seq {
			b, err := kmer.EncodeBase(c)
			if err != nil {
				bases = nil
				break
			}
			bases[i] = b
		}
		if bases != nil && len(bases) > kmer.K {
			out = append(out, edgeKmerRecords(edge.Edge{Bases: bases})...)
		}
		idx++
	}
	return out, nil
}

// WriteCSV writes a Histogram out in the spec §6 "f0,f1,kmers" format,
// rows sorted ascending by (f0,f1) for reproducible output, via xopen (the
// teacher's own output-opening layer, which transparently handles gzip by
// extension the same way unikmer's cmd package does for every writer it
// opens).
func WriteCSV(path string, h Histogram) error {
	out, err := xopen.Wopen(path)
	if err != nil {
		return errors.Wrapf(err, "spectra: open %s", path)
	}
	defer out.Close()

	if _, err := out.WriteString("f0,f1,kmers\n"); err != nil {
		return errors.Wrap(err, "spectra: write header")
	}

	keys := make([][2]uint8, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	for _, k := range keys {
		if _, err := fmt.Fprintf(out, "%d,%d,%d\n", k[0], k[1], h[k]); err != nil {
			return errors.Wrap(err, "spectra: write row")
		}
	}
	out.Flush()
	return nil
}
