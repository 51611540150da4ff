package cmd

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"

	"github.com/altingia/w2rap-contigger/contigger"
	"github.com/altingia/w2rap-contigger/kmer"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "build a de Bruijn graph from a FASTQ read file",
	Long: `build runs the full contigger pipeline over a single FASTQ file:
K-mer counting, dictionary construction, edge building, the optional gap-fill
and overlap-join repair passes, bidirected graph assembly, and read pathing.
`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			checkError(errors.New("build takes exactly one FASTQ file argument"))
		}
		verbose := getFlagBool(cmd, "verbose")

		reads, err := loadFastq(args[0])
		checkError(err)
		if verbose {
			log.Infof("%d reads loaded from %s", reads.Len(), args[0])
		}

		cfg := contigger.Config{
			MinQual:          uint8(getFlagPositiveInt(cmd, "min-qual")),
			MinFreq:          getFlagUint32(cmd, "min-freq"),
			MinFreq2Fraction: getFlagFloat64(cmd, "min-freq2-fraction"),
			MaxGapSize:       getFlagPositiveInt(cmd, "max-gap-size"),
			DoFillGaps:       getFlagBool(cmd, "fill-gaps"),
			DoJoinOverlaps:   getFlagBool(cmd, "join-overlaps"),
			CountBatchSize:   getFlagPositiveInt(cmd, "count-batch-size"),
			Workdir:          getFlagString(cmd, "workdir"),
			WriteRawKmers:    getFlagBool(cmd, "write-raw-kmers"),
			Verbose:          verbose,
		}

		g, paths, err := contigger.Build(reads, reads, cfg)
		checkError(err)
		log.Infof("build complete: %d read paths", len(paths))
		fmt.Println(contigger.EdgeLengthSummary(g))
	},
}

func init() {
	RootCmd.AddCommand(buildCmd)

	buildCmd.Flags().IntP("min-qual", "q", int(contigger.DefaultMinQual), "quality floor for the good-length qualifier")
	buildCmd.Flags().Uint32P("min-freq", "m", 2, "minimum K-mer count to survive into the dictionary")
	buildCmd.Flags().Float64P("min-freq2-fraction", "f", 1.0, "fraction of min-freq used to derive the repair passes' threshold")
	buildCmd.Flags().IntP("max-gap-size", "g", 10, "upper bound on a repairable captured gap")
	buildCmd.Flags().Bool("fill-gaps", false, "run the gap-fill repair pass")
	buildCmd.Flags().Bool("join-overlaps", false, "run the overlap-join repair pass")
	buildCmd.Flags().IntP("count-batch-size", "b", 65536, "reads per counting batch")
	buildCmd.Flags().StringP("workdir", "o", ".", "destination for small_K.freqs and (optionally) raw_kmers.data")
	buildCmd.Flags().Bool("write-raw-kmers", false, "also emit raw_kmers.data for the spectra-cn sibling tool")
}

// fastqReads adapts a fully-loaded FASTQ file to contigger.ReadSet and
// contigger.QualSet.
type fastqReads struct {
	bases [][]kmer.Base
	quals [][]uint8
}

func (r *fastqReads) Len() int               { return len(r.bases) }
func (r *fastqReads) Read(i int) []kmer.Base { return r.bases[i] }
func (r *fastqReads) Qual(i int) []uint8     { return r.quals[i] }

// loadFastq reads an entire FASTQ file into memory, in the same
// fastx.NewDefaultReader/record.Seq.Seq loop shape package spectra's
// FastaKmers uses for its own FASTA ingest. Quality is Phred+33 encoded
// (the FASTQ-standard offset); a read containing a base outside {A,C,G,T}
// is dropped rather than encoded, mirroring spectra.FastaKmers' handling of
// an unencodable base.
func loadFastq(path string) (*fastqReads, error) {
	reader, err := fastx.NewDefaultReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	out := &fastqReads{}
	idx := 0
	for {
		rec, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrapf(err, "%s: record %d", path, idx)
		}
		idx++

		seq := rec.Seq.Seq
		bases := make([]kmer.Base, len(seq))
		ok := true
		for i, c := range seq {
			b, err := kmer.EncodeBase(c)
			if err != nil {
				ok = false
				break
			}
			bases[i] = b
		}
		if !ok {
			continue
		}

		qualBytes := rec.Seq.Qual
		quals := make([]uint8, len(seq))
		for i := range quals {
			if i < len(qualBytes) && qualBytes[i] >= 33 {
				quals[i] = qualBytes[i] - 33
			} else {
				quals[i] = 255 // no quality string (e.g. FASTA input): treat as always-good
			}
		}

		out.bases = append(out.bases, bases)
		out.quals = append(out.quals, quals)
	}
	return out, nil
}
