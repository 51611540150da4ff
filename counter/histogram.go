package counter

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"

	"github.com/altingia/w2rap-contigger/kmer"
)

// WriteHistogram emits the count -> #kmers spectrum (small_K.freqs, spec
// §4.2) as a two-column CSV, transparently gzip-compressing if path ends in
// .gz (xopen.Wopen / WopenGzip, as the teacher's cmd package uses for every
// output file).
func WriteHistogram(path string, hist [kmer.MaxCount + 1]uint64) error {
	w, err := xopen.Wopen(path)
	if err != nil {
		return errors.Wrapf(err, "opening histogram output %s", path)
	}
	defer w.Close()

	if _, err := fmt.Fprintln(w, "count,kmers"); err != nil {
		return errors.Wrap(err, "writing histogram header")
	}
	for count := 1; count <= kmer.MaxCount; count++ {
		n := hist[count]
		if n == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%d,%d\n", count, n); err != nil {
			return errors.Wrapf(err, "writing histogram row for count %d", count)
		}
	}
	return nil
}

// Summary renders a short human-readable line describing a counting pass,
// in the style of the teacher's "stats" table values formatted via
// go-humanize (e.g. cmd's use of humanize.Comma for K-mer counts).
func Summary(r Result) string {
	var distinct uint64
	for count := 1; count <= kmer.MaxCount; count++ {
		distinct += r.Histogram[count]
	}
	return fmt.Sprintf("%s distinct K-mers observed, %s survived the frequency filter",
		humanize.Comma(int64(distinct)), humanize.Comma(int64(len(r.Survivors))))
}
