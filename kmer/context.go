package kmer

// Context carries, for a canonical K-mer, the set of bases observed
// immediately before (Pred) and immediately after (Succ) occurrences of
// that K-mer in the input, as 4-bit masks indexed by Base (bit i set means
// base i was observed). Matches spec §3's "two 4-element bitmasks."
type Context struct {
	Pred uint8
	Succ uint8
}

// Empty is the zero context: no predecessors, no successors.
var Empty = Context{}

func maskFor(b Base) uint8 { return 1 << uint(b&3) }

// InitialContext is the context assigned to the first K-mer of a read: no
// predecessor in the read, one known successor.
func InitialContext(succ Base) Context { return Context{Succ: maskFor(succ)} }

// FinalContext is the context assigned to the last K-mer of a read: one
// known predecessor, no successor.
func FinalContext(pred Base) Context { return Context{Pred: maskFor(pred)} }

// InteriorContext is the context for a K-mer with both a predecessor and a
// successor observed in the read.
func InteriorContext(pred, succ Base) Context {
	return Context{Pred: maskFor(pred), Succ: maskFor(succ)}
}

// Union returns the bitwise-OR of two contexts (∪ in spec §3).
func (c Context) Union(other Context) Context {
	return Context{Pred: c.Pred | other.Pred, Succ: c.Succ | other.Succ}
}

// complementNibble complements each base represented in a 4-bit mask:
// A<->T (bits 0 and 3), C<->G (bits 1 and 2).
func complementNibble(m uint8) uint8 {
	var out uint8
	if m&maskFor(BaseA) != 0 {
		out |= maskFor(BaseT)
	}
	if m&maskFor(BaseT) != 0 {
		out |= maskFor(BaseA)
	}
	if m&maskFor(BaseC) != 0 {
		out |= maskFor(BaseG)
	}
	if m&maskFor(BaseG) != 0 {
		out |= maskFor(BaseC)
	}
	return out
}

// RevComp reverse-complements a context: complement each mask, then swap
// predecessor and successor, matching spec §3: "Reverse-complementing a
// context swaps the two masks after complementing each 4-bit value."
func (c Context) RevComp() Context {
	return Context{Pred: complementNibble(c.Succ), Succ: complementNibble(c.Pred)}
}

// PredCount returns the number of distinct predecessor bases (0..4).
func (c Context) PredCount() int { return popcount4(c.Pred) }

// SuccCount returns the number of distinct successor bases (0..4).
func (c Context) SuccCount() int { return popcount4(c.Succ) }

func popcount4(m uint8) int {
	n := 0
	for m != 0 {
		n += int(m & 1)
		m >>= 1
	}
	return n
}

// SolePred returns the single predecessor base and true, iff PredCount()==1.
func (c Context) SolePred() (Base, bool) {
	if c.PredCount() != 1 {
		return 0, false
	}
	for b := BaseA; b <= BaseT; b++ {
		if c.Pred&maskFor(b) != 0 {
			return b, true
		}
	}
	return 0, false
}

// SoleSucc returns the single successor base and true, iff SuccCount()==1.
func (c Context) SoleSucc() (Base, bool) {
	if c.SuccCount() != 1 {
		return 0, false
	}
	for b := BaseA; b <= BaseT; b++ {
		if c.Succ&maskFor(b) != 0 {
			return b, true
		}
	}
	return 0, false
}
