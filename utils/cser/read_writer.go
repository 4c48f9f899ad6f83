package cser

import (
	"errors"
	"math/big"
)

var (
	ErrNonCanonicalEncoding = errors.New("non canonical encoding")
	ErrMalformedEncoding    = errors.New("malformed encoding")
	ErrTooLargeAlloc        = errors.New("too large allocation")
)

// MaxAlloc bounds every decoded byte slice.
const MaxAlloc = 100 * 1024

// MaxBigIntBytes bounds a decoded big integer (4096 bits).
const MaxBigIntBytes = 512

// Writer encodes values into two streams: flags and integer sizes go to the
// bit stream, payload bytes go to the body.
type Writer struct {
	bits bitWriter
	body []byte
}

// Reader decodes what Writer produced. Malformed input panics; use
// UnmarshalBinaryAdapter to turn those panics into errors.
type Reader struct {
	bits bitReader
	body byteReader
}

func NewWriter() *Writer {
	return &Writer{
		bits: bitWriter{buf: make([]byte, 0, 32)},
		body: make([]byte, 0, 200),
	}
}

// appendSuffixSize appends v as a base-128 varint whose high bit marks the
// last group.
func appendSuffixSize(dst []byte, v uint64) []byte {
	for {
		group := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(dst, group|0x80)
		}
		dst = append(dst, group)
	}
}

func readSuffixSize(r *byteReader) uint64 {
	var v uint64
	for i := 0; ; i++ {
		b := r.readByte()
		group := uint64(b & 0x7f)
		v |= group << (7 * i)
		if b&0x80 == 0 {
			continue
		}
		if i > 0 && group == 0 {
			panic(ErrNonCanonicalEncoding)
		}
		return v
	}
}

// writeSized appends v little-endian using at least minSize bytes and
// records the extra length in sizeBits bits.
func (w *Writer) writeSized(minSize, sizeBits int, v uint64) {
	size := 0
	for size < minSize || v != 0 {
		w.body = append(w.body, byte(v))
		v >>= 8
		size++
	}
	w.bits.write(sizeBits, uint(size-minSize))
}

func (r *Reader) readSized(minSize, sizeBits int) uint64 {
	size := int(r.bits.read(sizeBits)) + minSize
	buf := r.body.read(size)
	var v uint64
	for i, b := range buf {
		v |= uint64(b) << (8 * i)
	}
	if size > 1 && buf[size-1] == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	return v
}

func (w *Writer) U8(v uint8) {
	w.body = append(w.body, v)
}

func (r *Reader) U8() uint8 {
	return r.body.readByte()
}

func (w *Writer) U16(v uint16) {
	w.writeSized(1, 1, uint64(v))
}

func (r *Reader) U16() uint16 {
	return uint16(r.readSized(1, 1))
}

func (w *Writer) U32(v uint32) {
	w.writeSized(1, 2, uint64(v))
}

func (r *Reader) U32() uint32 {
	return uint32(r.readSized(1, 2))
}

func (w *Writer) U64(v uint64) {
	w.writeSized(1, 3, v)
}

func (r *Reader) U64() uint64 {
	return r.readSized(1, 3)
}

// VarUint is U64 under the name used for counters and map sizes.
func (w *Writer) VarUint(v uint64) {
	w.U64(v)
}

func (r *Reader) VarUint() uint64 {
	return r.U64()
}

// I64 is a sign bit followed by the magnitude. Negative zero is rejected.
func (w *Writer) I64(v int64) {
	w.Bool(v < 0)
	if v < 0 {
		w.U64(uint64(-v))
		return
	}
	w.U64(uint64(v))
}

func (r *Reader) I64() int64 {
	neg := r.Bool()
	abs := r.U64()
	if neg && abs == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	if neg {
		return -int64(abs)
	}
	return int64(abs)
}

// U56 encodes slice lengths. Zero takes no body bytes.
func (w *Writer) U56(v uint64) {
	if v >= 1<<56 {
		panic("cser: U56 overflow")
	}
	w.writeSized(0, 3, v)
}

func (r *Reader) U56() uint64 {
	return r.readSized(0, 3)
}

func (w *Writer) Bool(v bool) {
	var bit uint
	if v {
		bit = 1
	}
	w.bits.write(1, bit)
}

func (r *Reader) Bool() bool {
	return r.bits.read(1) != 0
}

// FixedBytes writes v with no length prefix.
func (w *Writer) FixedBytes(v []byte) {
	w.body = append(w.body, v...)
}

// FixedBytes fills v entirely.
func (r *Reader) FixedBytes(v []byte) {
	copy(v, r.body.read(len(v)))
}

func (w *Writer) SliceBytes(v []byte) {
	w.U56(uint64(len(v)))
	w.FixedBytes(v)
}

// SliceBytes reads a length-prefixed slice of at most maxLen bytes.
func (r *Reader) SliceBytes(maxLen int) []byte {
	size := r.U56()
	if size > uint64(maxLen) {
		panic(ErrTooLargeAlloc)
	}
	buf := make([]byte, size)
	r.FixedBytes(buf)
	return buf
}

// PaddedBytes left-pads b with zeros to n bytes.
func PaddedBytes(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	return append(make([]byte, n-len(b)), b...)
}

// BigInt writes the big-endian magnitude of v, zero as an empty slice. The
// sign is dropped; see SignedBigInt.
func (w *Writer) BigInt(v *big.Int) {
	w.SliceBytes(v.Bytes())
}

func (r *Reader) BigInt() *big.Int {
	buf := r.SliceBytes(MaxBigIntBytes)
	if len(buf) > 0 && buf[0] == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	return new(big.Int).SetBytes(buf)
}

// SignedBigInt is a sign bit followed by BigInt of the magnitude.
func (w *Writer) SignedBigInt(v *big.Int) {
	w.Bool(v.Sign() < 0)
	w.BigInt(new(big.Int).Abs(v))
}

func (r *Reader) SignedBigInt() *big.Int {
	neg := r.Bool()
	v := r.BigInt()
	if neg && v.Sign() == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	if neg {
		v.Neg(v)
	}
	return v
}
