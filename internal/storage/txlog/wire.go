package txlog

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	errStringTooLong = errors.New("string exceeds 65535 bytes")
	errInvalidUTF8   = errors.New("invalid UTF-8")
)

// writer appends big-endian primitives to a buffer.
type writer struct {
	buf []byte
	err error
}

func (w *writer) byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *writer) int32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *writer) int64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *writer) utf(s string) {
	if len(s) > math.MaxUint16 {
		if w.err == nil {
			w.err = errStringTooLong
		}
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) bytes(b []byte) {
	w.int32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) id(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

// reader consumes big-endian primitives and records the first failure as
// a DecodeError.
type reader struct {
	buf []byte
	off int
	err *DecodeError
}

func (r *reader) fail(reason string, err error) {
	if r.err == nil {
		r.err = &DecodeError{Offset: r.off, Reason: reason, Err: err}
	}
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.fail("reading "+what, ErrTruncated)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) byte(what string) byte {
	b := r.take(1, what)
	if r.err != nil {
		return 0
	}
	return b[0]
}

func (r *reader) int32(what string) int32 {
	b := r.take(4, what)
	if r.err != nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *reader) int64(what string) int64 {
	b := r.take(8, what)
	if r.err != nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *reader) utf(what string) string {
	b := r.take(2, what+" length")
	if r.err != nil {
		return ""
	}
	s := r.take(int(binary.BigEndian.Uint16(b)), what)
	if r.err != nil {
		return ""
	}
	if !utf8.Valid(s) {
		r.fail("reading "+what, errInvalidUTF8)
		return ""
	}
	return string(s)
}

func (r *reader) bytes(what string) []byte {
	n := r.int32(what + " length")
	if r.err != nil {
		return nil
	}
	b := r.take(int(n), what)
	if r.err != nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) id(what string) uuid.UUID {
	var id uuid.UUID
	copy(id[:], r.take(16, what))
	return id
}

// done fails the decode if bytes remain.
func (r *reader) done() error {
	if r.err == nil && r.off != len(r.buf) {
		r.fail("end of edit", ErrTrailingBytes)
	}
	if r.err != nil {
		return r.err
	}
	return nil
}
