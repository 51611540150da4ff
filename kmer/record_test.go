package kmer

import (
	"bytes"
	"io"
	"testing"
)

// seekBuffer is an io.WriteSeeker backed by a growable slice, enough for
// RecordWriter's header patch-up.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.pos = int(offset)
	case io.SeekCurrent:
		s.pos += int(offset)
	case io.SeekEnd:
		s.pos = len(s.buf) + int(offset)
	}
	return int64(s.pos), nil
}

func TestPackedRecordRoundTrip(t *testing.T) {
	k := mustFrom(t, seq60("ACGTACGTAC"))
	r := Record{Kmer: k, Ctx: InteriorContext(BaseA, BaseG), Count: 42}
	buf := EncodePacked(r)
	if len(buf) != packedRecordSize {
		t.Fatalf("packed record must be %d bytes, got %d", packedRecordSize, len(buf))
	}
	got := DecodePacked(buf)
	if got != r {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, r)
	}
}

func TestAddCountSaturates(t *testing.T) {
	r := Record{Count: 250}
	r.AddCount(100)
	if r.Count != MaxCount {
		t.Fatalf("expected saturation at %d, got %d", MaxCount, r.Count)
	}
}

func TestRecordWriterReaderRoundTrip(t *testing.T) {
	recs := []Record{
		{Kmer: mustFrom(t, seq60("AAAAAAAAAA")), Ctx: InitialContext(BaseC), Count: 1},
		{Kmer: mustFrom(t, seq60("CCCCCCCCCC")), Ctx: FinalContext(BaseG), Count: 255},
		{Kmer: mustFrom(t, seq60("GGGGGGGGGG")), Ctx: InteriorContext(BaseT, BaseA), Count: 7},
	}

	sb := &seekBuffer{}
	w, err := NewRecordWriter(sb)
	if err != nil {
		t.Fatalf("NewRecordWriter: %v", err)
	}
	for _, r := range recs {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rr, err := NewRecordReader(bytes.NewReader(sb.buf))
	if err != nil {
		t.Fatalf("NewRecordReader: %v", err)
	}
	if rr.Count != uint64(len(recs)) {
		t.Fatalf("header count: got %d want %d", rr.Count, len(recs))
	}
	var got []Record
	for {
		r, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != len(recs) {
		t.Fatalf("got %d records, want %d", len(got), len(recs))
	}
	for i := range recs {
		if got[i] != recs[i] {
			t.Fatalf("record %d: got %+v want %+v", i, got[i], recs[i])
		}
	}
}

func TestRecordReaderShortFile(t *testing.T) {
	// header says 1 record but the stream is truncated.
	buf := make([]byte, 8)
	le.PutUint64(buf, 1)
	buf = append(buf, 0x01, 0x02, 0x03) // far short of 18 bytes
	rr, err := NewRecordReader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("NewRecordReader: %v", err)
	}
	if _, err := rr.Next(); err == nil {
		t.Fatalf("expected an error reading a truncated record")
	}
}
