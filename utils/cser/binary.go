// Package cser is the canonical binary encoding of blocks, proofs and
// accumulated states. Every value has exactly one valid encoding; decoders
// reject padding, leftover bytes and non-zero trailing bits.
//
// An encoding is laid out as
//
//	body | bit stream | reversed varint(len(bit stream))
package cser

const maxSuffixSize = 9

// MarshalBinaryAdapter runs marshalCser on a fresh Writer and frames the result.
func MarshalBinaryAdapter(marshalCser func(*Writer) error) ([]byte, error) {
	w := NewWriter()
	if err := marshalCser(w); err != nil {
		return nil, err
	}
	return frame(w.body, w.bits.buf), nil
}

func frame(body, bits []byte) []byte {
	suffix := appendSuffixSize(make([]byte, 0, 4), uint64(len(bits)))
	out := make([]byte, 0, len(body)+len(bits)+len(suffix))
	out = append(out, body...)
	out = append(out, bits...)
	return append(out, reversed(suffix)...)
}

func unframe(raw []byte) (body, bits []byte, err error) {
	start := len(raw) - maxSuffixSize
	if start < 0 {
		start = 0
	}
	suffix := &byteReader{buf: reversed(raw[start:])}
	bitsSize := readSuffixSize(suffix)
	raw = raw[:len(raw)-suffix.pos]
	if uint64(len(raw)) < bitsSize {
		return nil, nil, ErrMalformedEncoding
	}
	split := len(raw) - int(bitsSize)
	return raw[:split:split], raw[split:], nil
}

// UnmarshalBinaryAdapter decodes raw with unmarshalCser and checks that the
// input was consumed exactly. Decoder panics become ErrMalformedEncoding,
// or the error they carry when it is one of this package's errors.
func UnmarshalBinaryAdapter(raw []byte, unmarshalCser func(reader *Reader) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrMalformedEncoding
			if e, ok := r.(error); ok && (e == ErrNonCanonicalEncoding || e == ErrTooLargeAlloc) {
				err = e
			}
		}
	}()

	body, bits, err := unframe(raw)
	if err != nil {
		return err
	}
	r := &Reader{
		bits: bitReader{buf: bits},
		body: byteReader{buf: body},
	}
	if err := unmarshalCser(r); err != nil {
		return err
	}

	if r.bits.unreadBytes() > 1 {
		return ErrNonCanonicalEncoding
	}
	if r.bits.read(r.bits.unreadBits()) != 0 {
		return ErrNonCanonicalEncoding
	}
	if !r.body.empty() {
		return ErrNonCanonicalEncoding
	}
	return nil
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
