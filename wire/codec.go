package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/openvstorage/volumedriver-sub006/cmn"
)

// BodyWriter accumulates a request/response body as a flat byte slice using
// the spec's length-prefixed encoding for variable-size fields.
type BodyWriter struct {
	buf []byte
}

func NewBodyWriter() *BodyWriter { return &BodyWriter{} }

func (w *BodyWriter) Bytes() []byte { return w.buf }

func (w *BodyWriter) PutU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *BodyWriter) PutU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *BodyWriter) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// PutBytes writes a u32 length prefix followed by the raw bytes.
func (w *BodyWriter) PutBytes(b []byte) {
	w.PutU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *BodyWriter) PutString(s string) { w.PutBytes([]byte(s)) }

func (w *BodyWriter) PutStringList(list []string) {
	w.PutU32(uint32(len(list)))
	for _, s := range list {
		w.PutString(s)
	}
}

func (w *BodyWriter) PutBytesList(list [][]byte) {
	w.PutU32(uint32(len(list)))
	for _, b := range list {
		w.PutBytes(b)
	}
}

// BodyReader walks a flat byte slice with the inverse of BodyWriter.
type BodyReader struct {
	buf []byte
	off int
}

func NewBodyReader(b []byte) *BodyReader { return &BodyReader{buf: b} }

func (r *BodyReader) need(n int) error {
	if r.off+n > len(r.buf) {
		return cmn.Protocol(fmt.Sprintf("short body: need %d bytes at offset %d, have %d", n, r.off, len(r.buf)))
	}
	return nil
}

func (r *BodyReader) GetU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *BodyReader) GetU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *BodyReader) GetBool() (bool, error) {
	if err := r.need(1); err != nil {
		return false, err
	}
	v := r.buf[r.off] != 0
	r.off++
	return v, nil
}

func (r *BodyReader) GetBytes() ([]byte, error) {
	n, err := r.GetU32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+int(n)])
	r.off += int(n)
	return out, nil
}

func (r *BodyReader) GetString() (string, error) {
	b, err := r.GetBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *BodyReader) GetStringList() ([]string, error) {
	n, err := r.GetU32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := r.GetString()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (r *BodyReader) GetBytesList() ([][]byte, error) {
	n, err := r.GetU32()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, n)
	for i := range out {
		b, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// Remaining reports whether any unconsumed bytes remain, useful for
// detecting trailing-garbage schema violations.
func (r *BodyReader) Remaining() int { return len(r.buf) - r.off }
