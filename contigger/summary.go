package contigger

import (
	"fmt"

	humanize "github.com/dustin/go-humanize"
	"github.com/shenwei356/stable"

	"github.com/altingia/w2rap-contigger/graph"
)

// tableStyle matches the teacher's cmd/info.go plain-table style exactly:
// two-space column separator, no padding, no border.
var tableStyle = &stable.TableStyle{
	Name:      "plain",
	HeaderRow: stable.RowStyle{Begin: "", Sep: "  ", End: ""},
	DataRow:   stable.RowStyle{Begin: "", Sep: "  ", End: ""},
	Padding:   "",
}

// lengthBucket buckets an edge's base length into the same kind of
// order-of-magnitude ranges a post-assembly N50-style report uses.
func lengthBucket(n int) string {
	switch {
	case n < 100:
		return "<100"
	case n < 1000:
		return "100-999"
	case n < 10000:
		return "1k-9.9k"
	case n < 100000:
		return "10k-99k"
	default:
		return ">=100k"
	}
}

// EdgeLengthSummary renders a post-build edge-count-by-length-bucket table
// (spec §7's "summary table" progress output), in the teacher's
// cmd/info.go stable.Table shape: plain style, right-aligned counts.
func EdgeLengthSummary(g *graph.Graph) string {
	order := []string{"<100", "100-999", "1k-9.9k", "10k-99k", ">=100k"}
	counts := make(map[string]int, len(order))
	circular := 0
	for _, e := range g.Edges {
		if e.Circular {
			circular++
			continue
		}
		counts[lengthBucket(len(e.Bases))]++
	}

	tbl := stable.New()
	tbl.HeaderWithFormat([]stable.Column{
		{Header: "length bucket"},
		{Header: "edges", Align: stable.AlignRight},
	})
	for _, bucket := range order {
		tbl.AddRow([]interface{}{bucket, humanize.Comma(int64(counts[bucket]))})
	}
	if circular > 0 {
		tbl.AddRow([]interface{}{"circular", humanize.Comma(int64(circular))})
	}

	return fmt.Sprintf("%d edges, %d vertices\n%s", len(g.Edges), len(g.Vertices), tbl.Render(tableStyle))
}
