// Package counter implements the multi-level parallel K-mer counter
// (spec §4.2): canonicalised K-mer + context generation per read,
// hash-sharded local sort+collapse, a progressive pairwise merge-tree
// reduction across every shard of every batch, a minimum-frequency filter,
// and the small_K.freqs histogram sink. Counting is in memory: every
// batch's records are held at once until the merge, and nothing is staged
// to disk.
package counter

import (
	"runtime"
	"sync"

	"github.com/twotwotwo/sorts"
	"github.com/will-rowe/nthash"

	"github.com/altingia/w2rap-contigger/kmer"
)

// ReadSource is the read collection collaborator (spec §6): random access
// to each read's unpacked bases. Quality-based trimming has already
// happened upstream (package qual); goodLengths[i] is the usable prefix
// length for read i.
type ReadSource interface {
	Len() int
	Read(i int) []kmer.Base
}

// Options configures a counting pass.
type Options struct {
	// MinFreq is the minimum count a canonical K-mer must reach to survive
	// into the dictionary (spec §6 min_freq / min_freq2).
	MinFreq uint32
	// BatchSize is the number of reads per counting batch (count_batch_size).
	// Batches are generated and sorted concurrently; it does not bound how
	// many records are held in memory.
	BatchSize int
	// Shards is the per-batch hash-partition fan-out used to parallelise a
	// single batch's sort (spec §2: "multi-level parallel"). Defaults to
	// GOMAXPROCS if <= 0.
	Shards int
}

// Result is the outcome of a counting pass.
type Result struct {
	// Survivors is the sorted, deduplicated list of records whose count
	// reached MinFreq, ready for dictionary insertion (is_null=true).
	Survivors []kmer.Record
	// Histogram maps count (1..255) to the number of distinct canonical
	// K-mers that reached exactly that count, over the *full* merged list,
	// i.e. before the min_freq filter is applied (spec §4.2: the spectrum
	// is meant to inform the choice of min_freq, so it must show the whole
	// distribution, not just the survivors).
	Histogram [kmer.MaxCount + 1]uint64
}

// Count runs the full counter pipeline described in spec §4.2 over reads
// whose good length is goodLengths[i].
func Count(reads ReadSource, goodLengths []int, opts Options) (Result, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 65536
	}
	shards := opts.Shards
	if shards <= 0 {
		shards = runtime.GOMAXPROCS(0)
	}
	if shards < 1 {
		shards = 1
	}

	n := reads.Len()
	type batchRange struct{ start, end int }
	var batchRanges []batchRange
	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		batchRanges = append(batchRanges, batchRange{start, end})
	}
	if len(batchRanges) == 0 {
		return Result{}, nil
	}

	// Every (batch, shard) pair is a leaf of the progressive merge tree:
	// generation happens per batch, hash-partitioning spreads one batch's
	// records across `shards` independently-sortable buckets.
	leaves := make([][]kmer.Record, len(batchRanges)*shards)

	var wg sync.WaitGroup
	for bi, br := range batchRanges {
		wg.Add(1)
		go func(bi int, br batchRange) {
			defer wg.Done()
			buckets := generateAndPartition(reads, goodLengths, br.start, br.end, shards)

			var swg sync.WaitGroup
			for s, bucket := range buckets {
				swg.Add(1)
				go func(s int, bucket []kmer.Record) {
					defer swg.Done()
					sortRecords(bucket)
					leaves[bi*shards+s] = collapse(bucket)
				}(s, bucket)
			}
			swg.Wait()
		}(bi, br)
	}
	wg.Wait()

	merged := mergeTree(leaves)

	var hist [kmer.MaxCount + 1]uint64
	survivors := make([]kmer.Record, 0, len(merged))
	for _, r := range merged {
		hist[r.Count]++
		if uint32(r.Count) >= opts.MinFreq {
			survivors = append(survivors, r)
		}
	}

	return Result{Survivors: survivors, Histogram: hist}, nil
}

// generateAndPartition builds every canonicalised record for the reads in
// [start,end) and hash-partitions them into `shards` buckets keyed on
// ntHash's canonical rolling hash, so that no two goroutines ever need to
// touch the same bucket while sorting (spec §2's "multi-level parallel").
func generateAndPartition(reads ReadSource, goodLengths []int, start, end, shards int) [][]kmer.Record {
	buckets := make([][]kmer.Record, shards)
	for i := start; i < end; i++ {
		appendReadRecords(buckets, shards, reads.Read(i), goodLengths[i])
	}
	return buckets
}

// appendReadRecords generates the canonicalised (kmer, context, count=1)
// records for one read's usable prefix (spec §4.2, first paragraph) and
// drops each one into buckets[hash%shards].
func appendReadRecords(buckets [][]kmer.Record, shards int, bases []kmer.Base, goodLen int) {
	if goodLen < kmer.K || goodLen > len(bases) {
		return
	}

	seq := make([]byte, len(bases))
	for i, b := range bases {
		seq[i] = b.Byte()
	}
	hasher, err := nthash.NewHasher(&seq, uint(kmer.K))
	if err != nil {
		// nthash rejected the base stream; the records themselves come from
		// the manual shift below, which does not use the hash, so every
		// window falls back to hash 0 (shard 0) rather than dropping the read.
		hasher = nil
	}

	var cur kmer.Kmer128
	for i := 0; i < kmer.K; i++ {
		cur = cur.ShiftInRight(bases[i])
	}

	nWindows := goodLen - kmer.K + 1
	for w := 0; w < nWindows; w++ {
		var h uint64
		if hasher != nil {
			if hv, ok := hasher.Next(true); ok {
				h = hv
			}
		}

		var ctx kmer.Context
		switch {
		case w == 0 && nWindows == 1:
			ctx = kmer.Empty
		case w == 0:
			ctx = kmer.InitialContext(bases[w+kmer.K])
		case w == nWindows-1:
			ctx = kmer.FinalContext(bases[w-1])
		default:
			ctx = kmer.InteriorContext(bases[w-1], bases[w+kmer.K])
		}

		k := cur
		if k.RevComp().Less(k) {
			k = k.RevComp()
			ctx = ctx.RevComp()
		}

		s := int(h % uint64(shards))
		buckets[s] = append(buckets[s], kmer.Record{Kmer: k, Ctx: ctx, Count: 1})

		if w != nWindows-1 {
			cur = cur.ShiftInRight(bases[w+kmer.K])
		}
	}
}

// SortAndCollapse sorts records by canonical K-mer and merges duplicates
// (context OR, saturating count sum) in place. It is the same reduce shape
// Count uses internally over its merge-tree leaves; package repair reuses
// it for the gap filler's and overlap joiner's own record aggregation
// passes (spec §4.5/§4.6: "a map-reduce then aggregates"/"in the reduce").
func SortAndCollapse(recs []kmer.Record) []kmer.Record {
	sortRecords(recs)
	return collapse(recs)
}

// sortRecords sorts records by canonical K-mer bit value using
// twotwotwo/sorts' parallel Quicksort (the same package the teacher's
// cmd/common.go configures via sorts.MaxProcs for its big cross-file
// K-mer merges).
func sortRecords(recs []kmer.Record) {
	if len(recs) < 2 {
		return
	}
	sorts.Quicksort(recordSlice(recs))
}

type recordSlice []kmer.Record

func (s recordSlice) Len() int      { return len(s) }
func (s recordSlice) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s recordSlice) Less(i, j int) bool {
	return s[i].Kmer.Less(s[j].Kmer)
}

// collapse runs of equal K-mers in a sorted slice, OR-ing contexts and
// saturating counts (spec §4.2 step 2).
func collapse(sorted []kmer.Record) []kmer.Record {
	if len(sorted) == 0 {
		return nil
	}
	out := make([]kmer.Record, 0, len(sorted))
	cur := sorted[0]
	for _, r := range sorted[1:] {
		if r.Kmer.Equal(cur.Kmer) {
			cur.Ctx = cur.Ctx.Union(r.Ctx)
			cur.AddCount(int(r.Count))
			continue
		}
		out = append(out, cur)
		cur = r
	}
	out = append(out, cur)
	return out
}
