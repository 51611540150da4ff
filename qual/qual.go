// Package qual computes, for each read, the longest usable prefix: the
// longest stretch of bases (scanning from the 3' end back towards the 5'
// end) whose terminal K consecutive bases all meet a minimum quality
// score (spec §4.1, "good length").
package qual

import (
	"runtime"
	"sync"

	"github.com/altingia/w2rap-contigger/kmer"
)

// GoodLength scans quals from the end back toward the start, keeping a
// running count of consecutive bases with qual >= minQual (reset on any
// violation). The first time that run reaches length K, the good length is
// the index of that base plus K; that is what gets returned. When no run
// of K good bases exists the result is 0. The counter uses a read only when
// its good length is at least K, so a good length of exactly K yields one
// K-mer.
func GoodLength(quals []uint8, k int, minQual uint8) int {
	run := 0
	for i := len(quals) - 1; i >= 0; i-- {
		if quals[i] >= minQual {
			run++
			if run == k {
				return i + k
			}
		} else {
			run = 0
		}
	}
	return 0
}

// GoodLengths computes GoodLength for every read in parallel (spec §4.1:
// "parallelised across reads with no cross-read dependency").
func GoodLengths(quals [][]uint8, k int, minQual uint8) []int {
	out := make([]int, len(quals))
	if len(quals) == 0 {
		return out
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(quals) {
		workers = len(quals)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	chunk := (len(quals) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if start >= len(quals) {
			break
		}
		if end > len(quals) {
			end = len(quals)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				out[i] = GoodLength(quals[i], k, minQual)
			}
		}(start, end)
	}
	wg.Wait()
	return out
}

// DefaultMinQual is the spec's default min_qual (§6).
const DefaultMinQual uint8 = 7

// K is re-exported for callers that want the qualifier's window without
// importing kmer directly.
const K = kmer.K
