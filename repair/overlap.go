package repair

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/breader"

	"github.com/altingia/w2rap-contigger/counter"
	"github.com/altingia/w2rap-contigger/dict"
	"github.com/altingia/w2rap-contigger/edge"
	"github.com/altingia/w2rap-contigger/graph"
	"github.com/altingia/w2rap-contigger/kmer"
	"github.com/altingia/w2rap-contigger/pather"
)

// join is a directed bridge between two graph edges at a specific pair of
// offsets, canonicalised so the same physical join always hashes to the
// same key regardless of which read's orientation discovered it.
type join struct {
	left, right         uint32
	leftEnd, rightStart int
	overlap             int
}

// JoinOverlaps implements spec §4.6. It re-paths every read, and for each
// internal gap shorter than K-1 flanked by two located parts, validates and
// records a directed join. The map phase spills every read's candidate
// joins to a TSV file under workdir, one line per observation, so the
// reduce phase can run out-of-core over an arbitrarily large candidate set
// (spec §4.6/§5's map-reduce); joins observed at least minFreq2 times each
// contribute one synthetic "fake read" bridging the two edges, and the
// dictionary is re-processed over the fake reads and edges rebuilt.
// changed reports whether any join survived.
func JoinOverlaps(reads pather.ReadSet, d *dict.Dict, g *graph.Graph, minFreq2 uint32, workdir string) (edges []edge.Edge, changed bool, err error) {
	n := reads.Len()
	perRead := make([][]join, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			read := reads.Read(i)
			parts := pather.InitialParts(read, d, g)
			perRead[i] = findJoins(g, parts)
		}(i)
	}
	wg.Wait()

	spillPath, err := spillJoinCandidates(workdir, perRead)
	if err != nil {
		return nil, false, err
	}
	defer os.Remove(spillPath)

	counts, err := reduceJoinCandidates(spillPath)
	if err != nil {
		return nil, false, err
	}

	var survivors []join
	for j, c := range counts {
		if uint32(c) >= minFreq2 {
			survivors = append(survivors, j)
		}
	}
	if len(survivors) == 0 {
		return nil, false, nil
	}
	// Deterministic ordering: map iteration order is randomised, and the
	// fake-read set's content doesn't depend on order, but a stable
	// ordering keeps counting/rebuild output reproducible across runs.
	sort.Slice(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.left != b.left {
			return a.left < b.left
		}
		if a.right != b.right {
			return a.right < b.right
		}
		return a.leftEnd < b.leftEnd
	})

	var fakeReads [][]kmer.Base
	for _, j := range survivors {
		if fr, ok := buildFakeRead(g, j); ok {
			fakeReads = append(fakeReads, fr)
		}
	}
	if len(fakeReads) == 0 {
		return nil, false, nil
	}

	reads2 := fakeReadSet(fakeReads)
	res, err := counter.Count(reads2, reads2.goodLengths(), counter.Options{MinFreq: 1})
	if err != nil {
		return nil, false, err
	}

	insertSurvivors(d, res.Survivors)
	edges, err = rebuild(d)
	if err != nil {
		return nil, false, err
	}
	return edges, true, nil
}

// spillJoinCandidates writes every read's observed joins as one TSV line
// each (left, right, leftEnd, rightStart, overlap) to a temp file under
// workdir, so the reduce phase can count occurrences without holding every
// read's candidates in memory at once.
func spillJoinCandidates(workdir string, perRead [][]join) (string, error) {
	f, err := os.CreateTemp(workdir, "join-candidates-*.tsv")
	if err != nil {
		return "", errors.Wrap(err, "repair: create join-candidate spill file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, js := range perRead {
		for _, j := range js {
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\n", j.left, j.right, j.leftEnd, j.rightStart, j.overlap)
		}
	}
	if err := w.Flush(); err != nil {
		return "", errors.Wrap(err, "repair: flush join-candidate spill file")
	}
	return f.Name(), nil
}

// reduceJoinCandidates parses the spilled TSV back in parallel chunks
// (the same breader.NewBufferedReader(file, bufSize, chunkSize, parseFunc)
// shape the teacher's Taxonomy loader uses for nodes.dmp) and tallies
// occurrences per distinct join.
func reduceJoinCandidates(path string) (map[join]int, error) {
	parseFunc := func(line string) (interface{}, bool, error) {
		fields := strings.Split(line, "\t")
		if len(fields) != 5 {
			return nil, false, nil
		}
		var vals [5]int
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, false, err
			}
			vals[i] = v
		}
		return join{
			left:       uint32(vals[0]),
			right:      uint32(vals[1]),
			leftEnd:    vals[2],
			rightStart: vals[3],
			overlap:    vals[4],
		}, true, nil
	}

	reader, err := breader.NewBufferedReader(path, 8, 100, parseFunc)
	if err != nil {
		return nil, errors.Wrap(err, "repair: open join-candidate spill file")
	}

	counts := make(map[join]int)
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			return nil, errors.Wrap(chunk.Err, "repair: parse join-candidate spill file")
		}
		for _, data := range chunk.Data {
			counts[data.(join)]++
		}
	}
	return counts, nil
}

// findJoins walks one read's part list for internal gaps short enough for
// an overlap join (spec §4.6: "internal gap of length < K-1").
func findJoins(g *graph.Graph, parts []pather.Part) []join {
	var out []join
	for i, p := range parts {
		if !p.Gap || i == 0 || i == len(parts)-1 {
			continue
		}
		prev, next := parts[i-1], parts[i+1]
		if prev.Gap || next.Gap {
			continue
		}
		if p.Length >= kmer.K-1 {
			continue
		}
		overlap := kmer.K - p.Length - 1
		leftEnd := prev.Offset + prev.Length
		rightStart := next.Offset
		if j, ok := canonicalJoin(g, prev.EdgeID, leftEnd, next.EdgeID, rightStart, overlap); ok {
			out = append(out, j)
		}
	}
	return out
}

// canonicalJoin validates the join (spec §4.6: "the overlap bases on the
// left edge must equal the overlap bases on the right edge") and
// canonicalises its direction by swapping to the reverse-complement pair
// via the graph's involution when the right edge id is the smaller one, so
// the same physical bridge counts as a single join regardless of which
// directed copy a given read happened to path through.
func canonicalJoin(g *graph.Graph, left uint32, leftEnd int, right uint32, rightStart int, overlap int) (join, bool) {
	leftBases := g.Edges[left].Bases
	rightBases := g.Edges[right].Bases
	if overlap <= 0 || leftEnd-overlap < 0 || leftEnd > len(leftBases) {
		return join{}, false
	}
	if rightStart < 0 || rightStart+overlap > len(rightBases) {
		return join{}, false
	}

	lOverlap := leftBases[leftEnd-overlap : leftEnd]
	rOverlap := rightBases[rightStart : rightStart+overlap]
	if !basesEqual(lOverlap, rOverlap) {
		return join{}, false
	}

	if right < left {
		newLeft, newRight := g.Inv[right], g.Inv[left]
		newLeftEnd := len(g.Edges[newLeft].Bases) - rightStart
		newRightStart := len(g.Edges[newRight].Bases) - leftEnd
		return join{left: newLeft, right: newRight, leftEnd: newLeftEnd, rightStart: newRightStart, overlap: overlap}, true
	}
	return join{left: left, right: right, leftEnd: leftEnd, rightStart: rightStart, overlap: overlap}, true
}

func basesEqual(a, b []kmer.Base) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// buildFakeRead assembles the synthetic read spec §4.6 describes: its
// leading K bases taken from the left edge at the join point, its
// remaining K-overlap bases from the right edge beyond the shared overlap.
func buildFakeRead(g *graph.Graph, j join) ([]kmer.Base, bool) {
	left := g.Edges[j.left].Bases
	right := g.Edges[j.right].Bases
	if j.leftEnd < kmer.K || j.leftEnd > len(left) {
		return nil, false
	}
	tailLen := kmer.K - j.overlap
	if j.rightStart+j.overlap+tailLen > len(right) {
		return nil, false
	}

	out := make([]kmer.Base, 0, kmer.K+tailLen)
	out = append(out, left[j.leftEnd-kmer.K:j.leftEnd]...)
	out = append(out, right[j.rightStart+j.overlap:j.rightStart+j.overlap+tailLen]...)
	return out, true
}

// fakeReadSet adapts a slice of synthetic reads to counter.ReadSource.
type fakeReadSet [][]kmer.Base

func (r fakeReadSet) Len() int               { return len(r) }
func (r fakeReadSet) Read(i int) []kmer.Base { return r[i] }

func (r fakeReadSet) goodLengths() []int {
	out := make([]int, len(r))
	for i, bases := range r {
		out[i] = len(bases)
	}
	return out
}
