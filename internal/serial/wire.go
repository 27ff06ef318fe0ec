package serial

import (
	"encoding/binary"
	"errors"
)

var errShortBuffer = errors.New("unexpected end of data")

// wireWriter builds binary snapshot fields. All multi-byte writes are
// big-endian; strings carry a uint16 length prefix and blobs a uint32 one.
type wireWriter struct {
	buf []byte
}

func newWireWriter(sizeHint int) *wireWriter {
	return &wireWriter{buf: make([]byte, 0, sizeHint)}
}

func (w *wireWriter) WriteU16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *wireWriter) WriteU32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *wireWriter) WriteU64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// WriteString writes a uint16 length followed by the raw bytes. Callers
// check the length limit before writing.
func (w *wireWriter) WriteString(s string) {
	w.WriteU16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBlob writes a uint32 length followed by b.
func (w *wireWriter) WriteBlob(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *wireWriter) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *wireWriter) Bytes() []byte {
	return w.buf
}

func (w *wireWriter) Len() int {
	return len(w.buf)
}

// wireReader reads fields written by wireWriter. The first out-of-bounds
// read sets a sticky error and every later read returns zero values.
type wireReader struct {
	data []byte
	off  int
	err  error
}

func newWireReader(data []byte) *wireReader {
	return &wireReader{data: data}
}

func (r *wireReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errShortBuffer
		return false
	}
	return true
}

func (r *wireReader) ReadU16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *wireReader) ReadU32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *wireReader) ReadU64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

func (r *wireReader) ReadString() string {
	n := int(r.ReadU16())
	if !r.need(n) {
		return ""
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s
}

// ReadBlob returns a copy of a uint32-length-prefixed byte run.
func (r *wireReader) ReadBlob() []byte {
	n := int(r.ReadU32())
	if !r.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// Remaining returns the number of unread bytes.
func (r *wireReader) Remaining() int {
	return len(r.data) - r.off
}

func (r *wireReader) Err() error {
	return r.err
}
