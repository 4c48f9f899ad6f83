package cser

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitStream(t *testing.T) {
	require := require.New(t)

	w := &bitWriter{}
	w.write(1, 1)
	w.write(3, 5)
	w.write(7, 0x55)
	w.write(0, 0)
	w.write(13, 0x1abc)
	require.Len(w.buf, 3)

	r := &bitReader{buf: w.buf}
	require.Equal(uint(1), r.read(1))
	require.Equal(uint(5), r.read(3))
	require.Equal(uint(0x55), r.read(7))
	require.Equal(uint(0), r.read(0))
	require.Equal(uint(0x1abc), r.read(13))
	require.Equal(0, r.unreadBits())
	require.Panics(func() { r.read(1) })
}

func TestRoundTrip(t *testing.T) {
	require := require.New(t)

	big1, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	raw, err := MarshalBinaryAdapter(func(w *Writer) error {
		w.U8(0xff)
		w.U16(math.MaxUint16)
		w.U32(0)
		w.U64(math.MaxUint64)
		w.VarUint(300)
		w.I64(math.MinInt64 + 1)
		w.I64(-7)
		w.U56(1<<56 - 1)
		w.Bool(true)
		w.Bool(false)
		w.FixedBytes([]byte{1, 2, 3})
		w.SliceBytes(nil)
		w.SliceBytes([]byte("chronos"))
		w.BigInt(big.NewInt(0))
		w.BigInt(big1)
		w.SignedBigInt(new(big.Int).Neg(big1))
		return nil
	})
	require.NoError(err)

	err = UnmarshalBinaryAdapter(raw, func(r *Reader) error {
		require.Equal(uint8(0xff), r.U8())
		require.Equal(uint16(math.MaxUint16), r.U16())
		require.Equal(uint32(0), r.U32())
		require.Equal(uint64(math.MaxUint64), r.U64())
		require.Equal(uint64(300), r.VarUint())
		require.Equal(int64(math.MinInt64+1), r.I64())
		require.Equal(int64(-7), r.I64())
		require.Equal(uint64(1<<56-1), r.U56())
		require.True(r.Bool())
		require.False(r.Bool())
		fixed := make([]byte, 3)
		r.FixedBytes(fixed)
		require.Equal([]byte{1, 2, 3}, fixed)
		require.Empty(r.SliceBytes(MaxAlloc))
		require.Equal([]byte("chronos"), r.SliceBytes(MaxAlloc))
		require.Zero(r.BigInt().Sign())
		require.Zero(big1.Cmp(r.BigInt()))
		require.Zero(new(big.Int).Neg(big1).Cmp(r.SignedBigInt()))
		return nil
	})
	require.NoError(err)
}

func TestEmpty(t *testing.T) {
	require := require.New(t)

	raw, err := MarshalBinaryAdapter(func(*Writer) error { return nil })
	require.NoError(err)
	require.Equal([]byte{0x80}, raw)
	require.NoError(UnmarshalBinaryAdapter(raw, func(*Reader) error { return nil }))
}

func TestCompactSizes(t *testing.T) {
	for _, tc := range []struct {
		name string
		v    uint64
		body int
	}{
		{"zero", 0, 1},
		{"one byte", 0xff, 1},
		{"two bytes", 0x100, 2},
		{"eight bytes", math.MaxUint64, 8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWriter()
			w.U64(tc.v)
			require.Len(t, w.body, tc.body)
			require.Len(t, w.bits.buf, 1)
		})
	}
}

func TestRejects(t *testing.T) {
	valid, err := MarshalBinaryAdapter(func(w *Writer) error {
		w.U32(5)
		w.Bool(true)
		return nil
	})
	require.NoError(t, err)
	readValid := func(r *Reader) error {
		r.U32()
		r.Bool()
		return nil
	}

	t.Run("leftover body", func(t *testing.T) {
		raw := frame([]byte{5, 9}, []byte{0b100})
		require.ErrorIs(t, UnmarshalBinaryAdapter(raw, readValid), ErrNonCanonicalEncoding)
	})
	t.Run("trailing bits", func(t *testing.T) {
		raw := frame([]byte{5}, []byte{0b1100})
		require.ErrorIs(t, UnmarshalBinaryAdapter(raw, readValid), ErrNonCanonicalEncoding)
	})
	t.Run("padded integer", func(t *testing.T) {
		raw := frame([]byte{5, 0}, []byte{0b101})
		require.ErrorIs(t, UnmarshalBinaryAdapter(raw, readValid), ErrNonCanonicalEncoding)
	})
	t.Run("truncated", func(t *testing.T) {
		require.ErrorIs(t, UnmarshalBinaryAdapter(valid[1:], readValid), ErrMalformedEncoding)
		require.Error(t, UnmarshalBinaryAdapter(nil, readValid))
	})
	t.Run("body shorter than sizes", func(t *testing.T) {
		// the bit stream follows the body in memory, it must not be read as body
		raw := frame(nil, []byte{0b100})
		require.ErrorIs(t, UnmarshalBinaryAdapter(raw, readValid), ErrMalformedEncoding)
		raw = frame([]byte{5}, []byte{0b0101})
		require.ErrorIs(t, UnmarshalBinaryAdapter(raw, readValid), ErrMalformedEncoding)
	})
	t.Run("bit stream larger than input", func(t *testing.T) {
		require.ErrorIs(t, UnmarshalBinaryAdapter([]byte{0x85}, readValid), ErrMalformedEncoding)
	})
	t.Run("padded suffix", func(t *testing.T) {
		raw := []byte{5, 0b100, 0x80, 0x01}
		require.ErrorIs(t, UnmarshalBinaryAdapter(raw, readValid), ErrNonCanonicalEncoding)
	})
	t.Run("negative zero", func(t *testing.T) {
		raw := frame([]byte{0}, []byte{0b1})
		err := UnmarshalBinaryAdapter(raw, func(r *Reader) error {
			r.I64()
			return nil
		})
		require.ErrorIs(t, err, ErrNonCanonicalEncoding)
	})
	t.Run("padded big int", func(t *testing.T) {
		raw, err := MarshalBinaryAdapter(func(w *Writer) error {
			w.SliceBytes([]byte{0, 1})
			return nil
		})
		require.NoError(t, err)
		err = UnmarshalBinaryAdapter(raw, func(r *Reader) error {
			r.BigInt()
			return nil
		})
		require.ErrorIs(t, err, ErrNonCanonicalEncoding)
	})
	t.Run("too large", func(t *testing.T) {
		raw, err := MarshalBinaryAdapter(func(w *Writer) error {
			w.SliceBytes(make([]byte, 33))
			return nil
		})
		require.NoError(t, err)
		err = UnmarshalBinaryAdapter(raw, func(r *Reader) error {
			r.SliceBytes(32)
			return nil
		})
		require.ErrorIs(t, err, ErrTooLargeAlloc)
	})
}

func TestByteReaderBounds(t *testing.T) {
	require := require.New(t)

	buf := make([]byte, 2, 8)
	r := &byteReader{buf: buf[:1]}
	require.Panics(func() { r.read(2) })
	require.Equal([]byte{0}, r.read(1))
	require.True(r.empty())
	require.PanicsWithValue(ErrMalformedEncoding, func() { r.readByte() })
	require.PanicsWithValue(ErrMalformedEncoding, func() { r.read(1) })
}

func TestU56Overflow(t *testing.T) {
	require.Panics(t, func() { NewWriter().U56(1 << 56) })
}

func TestPaddedBytes(t *testing.T) {
	require := require.New(t)

	require.Equal([]byte{0, 0, 1, 2}, PaddedBytes([]byte{1, 2}, 4))
	require.Equal([]byte{1, 2, 3}, PaddedBytes([]byte{1, 2, 3}, 2))
}
