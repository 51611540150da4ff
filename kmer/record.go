package kmer

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Record is a count record as it exists inside the counter and dictionary:
// a canonical K-mer, its accumulated neighbour context, and its saturating
// count (spec §3's "Count record").
type Record struct {
	Kmer  Kmer128
	Ctx   Context
	Count uint8
}

// MaxCount is the saturation ceiling for Record.Count (spec §3: "count
// saturates at 255").
const MaxCount = 255

// AddCount adds n to the record's count, saturating at MaxCount.
func (r *Record) AddCount(n int) {
	v := int(r.Count) + n
	if v > MaxCount {
		v = MaxCount
	}
	r.Count = uint8(v)
}

// packedRecordSize is the external wire size of one record: two uint64
// K-mer limbs, one count byte, one context byte. 8+8+1+1 = 18 bytes, tight,
// no padding (spec §6/§9).
const packedRecordSize = 18

// le is the explicit byte order for the raw_kmers.data wire format. Per
// spec §6/§9 the file is "not portable across endianness" and simply uses
// whatever order the host that wrote it uses; we pin that down to
// little-endian, which is what every plausible deployment target for this
// pipeline (amd64/arm64) natively uses, and document the contract as
// little-endian explicitly rather than leaving it host-dependent.
var le = binary.LittleEndian

// contextByte packs a Context into the wire's single "kc" byte: predecessor
// mask in the high nibble, successor mask in the low nibble.
func contextByte(c Context) byte { return (c.Pred&0xF)<<4 | (c.Succ & 0xF) }

func contextFromByte(b byte) Context {
	return Context{Pred: (b >> 4) & 0xF, Succ: b & 0xF}
}

// EncodePacked serialises r into the 18-byte raw_kmers.data record layout:
// kdata[0]=Hi, kdata[1]=Lo, then count, then context byte.
func EncodePacked(r Record) [packedRecordSize]byte {
	var buf [packedRecordSize]byte
	le.PutUint64(buf[0:8], r.Kmer.Hi)
	le.PutUint64(buf[8:16], r.Kmer.Lo)
	buf[16] = r.Count
	buf[17] = contextByte(r.Ctx)
	return buf
}

// DecodePacked is the inverse of EncodePacked.
func DecodePacked(buf [packedRecordSize]byte) Record {
	return Record{
		Kmer:  Kmer128{Hi: le.Uint64(buf[0:8]), Lo: le.Uint64(buf[8:16])},
		Count: buf[16],
		Ctx:   contextFromByte(buf[17]),
	}
}

// ErrShortRead means the packed stream ended mid-record.
var ErrShortRead = errors.New("kmer: short read from packed K-mer stream")

// RecordWriter writes the raw_kmers.data format: a little-endian u64 record
// count, followed by that many 18-byte packed records, sorted ascending by
// (Hi, Lo) (spec §6). The caller is responsible for presenting records
// already in that order; RecordWriter does not buffer or sort.
type RecordWriter struct {
	w     io.WriteSeeker
	count uint64
	start int64
}

// NewRecordWriter reserves space for the header and returns a writer whose
// Close patches in the final record count.
func NewRecordWriter(w io.WriteSeeker) (*RecordWriter, error) {
	start, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(err, "raw_kmers.data: seek")
	}
	var zero [8]byte
	if _, err := w.Write(zero[:]); err != nil {
		return nil, errors.Wrap(err, "raw_kmers.data: reserve header")
	}
	return &RecordWriter{w: w, start: start}, nil
}

// Write appends one record.
func (rw *RecordWriter) Write(r Record) error {
	buf := EncodePacked(r)
	if _, err := rw.w.Write(buf[:]); err != nil {
		return errors.Wrap(err, "raw_kmers.data: write record")
	}
	rw.count++
	return nil
}

// Close patches the reserved header with the final record count.
func (rw *RecordWriter) Close() error {
	cur, err := rw.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrap(err, "raw_kmers.data: seek end")
	}
	if _, err := rw.w.Seek(rw.start, io.SeekStart); err != nil {
		return errors.Wrap(err, "raw_kmers.data: seek header")
	}
	var hdr [8]byte
	le.PutUint64(hdr[:], rw.count)
	if _, err := rw.w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "raw_kmers.data: patch header")
	}
	_, err = rw.w.Seek(cur, io.SeekStart)
	return errors.Wrap(err, "raw_kmers.data: restore position")
}

// RecordReader reads the raw_kmers.data format back.
type RecordReader struct {
	r     io.Reader
	Count uint64
	read  uint64
}

// NewRecordReader reads the header and returns a reader for the records.
func NewRecordReader(r io.Reader) (*RecordReader, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "raw_kmers.data: read header")
	}
	return &RecordReader{r: r, Count: le.Uint64(hdr[:])}, nil
}

// Next reads one record, returning io.EOF once Count records have been
// consumed.
func (rr *RecordReader) Next() (Record, error) {
	if rr.read >= rr.Count {
		return Record{}, io.EOF
	}
	var buf [packedRecordSize]byte
	n, err := io.ReadFull(rr.r, buf[:])
	if err != nil {
		if n > 0 {
			return Record{}, errors.Wrap(ErrShortRead, "raw_kmers.data")
		}
		return Record{}, errors.Wrap(err, "raw_kmers.data: read record")
	}
	rr.read++
	return DecodePacked(buf), nil
}
