// Package codec implements the binary read/write primitives, record
// framing, string-interning, and LZMA compression adapter specified in
// §4.1 and the save file layout of §6. It has no knowledge of any
// specific form type — package form drives it per-record.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Writer provides sized-primitive encoding over an io.Writer, matching
// the integer/bool/double/duration/string/sequence primitives of §4.1.
type Writer struct {
	w   io.Writer
	err error
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Err returns the first error encountered by any Write* call.
func (w *Writer) Err() error { return w.err }

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

// WriteRaw copies p verbatim, for callers (the form registry's save
// path) that already have fully-framed record bytes to splice in.
func (w *Writer) WriteRaw(p []byte) { w.write(p) }

func (w *Writer) WriteU8(v uint8) { w.write([]byte{v}) }
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.write(b[:])
}

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.write(b[:])
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.write(b[:])
}

func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

func (w *Writer) WriteDouble(v float64) { w.WriteU64(f64bits(v)) }

// WriteDuration encodes a duration as a signed 64-bit nanosecond count
// (§4.1).
func (w *Writer) WriteDuration(d time.Duration) { w.WriteI64(int64(d)) }

// WriteString writes a length-prefixed (u64) UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteU64(uint64(len(s)))
	w.write([]byte(s))
}

// WriteBytes writes a length-prefixed (u64) byte blob.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU64(uint64(len(b)))
	w.write(b)
}

// WriteStringSeq writes a length-prefixed sequence of strings.
func (w *Writer) WriteStringSeq(ss []string) {
	w.WriteU64(uint64(len(ss)))
	for _, s := range ss {
		w.WriteString(s)
	}
}

// Reader is the symmetric decoder.
type Reader struct {
	r   io.Reader
	err error
}

func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

func (r *Reader) Err() error { return r.err }

func (r *Reader) read(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.err = fmt.Errorf("short read (%d bytes): %w", n, err)
	}
	return b
}

func (r *Reader) ReadU8() uint8 { return r.read(1)[0] }

func (r *Reader) ReadBool() bool { return r.ReadU8() != 0 }

func (r *Reader) ReadU16() uint16 { return binary.LittleEndian.Uint16(r.read(2)) }

func (r *Reader) ReadU32() uint32 { return binary.LittleEndian.Uint32(r.read(4)) }

func (r *Reader) ReadI32() int32 { return int32(r.ReadU32()) }

func (r *Reader) ReadU64() uint64 { return binary.LittleEndian.Uint64(r.read(8)) }

func (r *Reader) ReadI64() int64 { return int64(r.ReadU64()) }

func (r *Reader) ReadDouble() float64 { return f64frombits(r.ReadU64()) }

func (r *Reader) ReadDuration() time.Duration { return time.Duration(r.ReadI64()) }

func (r *Reader) ReadString() string {
	n := r.ReadU64()
	if r.err != nil || n > maxReasonableLen {
		return ""
	}
	return string(r.read(int(n)))
}

func (r *Reader) ReadBytes() []byte {
	n := r.ReadU64()
	if r.err != nil || n > maxReasonableLen {
		return nil
	}
	return r.read(int(n))
}

func (r *Reader) ReadStringSeq() []string {
	n := r.ReadU64()
	if r.err != nil || n > maxReasonableLen {
		return nil
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		out = append(out, r.ReadString())
	}
	return out
}

// maxReasonableLen guards against a corrupt length prefix causing an
// enormous allocation attempt.
const maxReasonableLen = 1 << 34
