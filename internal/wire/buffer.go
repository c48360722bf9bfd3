package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

type writer struct {
	buf []byte
	err error
}

func (w *writer) int32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *writer) int64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *writer) string(s string) {
	if len(s) > math.MaxInt32 {
		if w.err == nil {
			w.err = fmt.Errorf("string of %d bytes exceeds int32 length", len(s))
		}
		return
	}
	w.int32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// reader is sticky: after the first failure every read returns a zero value
// and err keeps the first cause.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail(what string, n int) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s at offset %d (%d bytes, message length %d)",
			ErrMalformedMessage, what, r.off, n, len(r.buf))
	}
}

func (r *reader) take(what string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf)-r.off {
		r.fail(what+" runs past end of message", n)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) int32(what string) int32 {
	b := r.take(what, 4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *reader) int64(what string) int64 {
	b := r.take(what, 8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *reader) string(what string) string {
	n := r.int32(what + " length")
	if r.err != nil {
		return ""
	}
	if n < 0 {
		r.fail("negative "+what+" length", int(n))
		return ""
	}
	return string(r.take(what, int(n)))
}

// count reads an element count and rejects values that are negative or that
// could not fit in the remaining bytes given each element's minimum size.
func (r *reader) count(what string, minSize int) int {
	n := r.int32(what)
	if r.err != nil {
		return 0
	}
	if n < 0 {
		r.fail("negative "+what, int(n))
		return 0
	}
	if int64(n)*int64(minSize) > int64(len(r.buf)-r.off) {
		r.fail(what+" exceeds remaining bytes", int(n))
		return 0
	}
	return int(n)
}
