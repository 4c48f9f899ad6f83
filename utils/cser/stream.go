package cser

// bitWriter packs values LSB-first into a byte slice.
type bitWriter struct {
	buf []byte
	// off is the number of used bits in the last byte, 0 when it is full.
	off int
}

func (w *bitWriter) write(n int, v uint) {
	for n > 0 {
		if w.off == 0 {
			w.buf = append(w.buf, 0)
		}
		take := 8 - w.off
		if take > n {
			take = n
		}
		w.buf[len(w.buf)-1] |= byte(v&(1<<take-1)) << w.off
		v >>= take
		n -= take
		w.off = (w.off + take) % 8
	}
}

// bitReader is the inverse of bitWriter. Reading past the end panics.
type bitReader struct {
	buf []byte
	pos int
}

func (r *bitReader) read(n int) uint {
	var v uint
	for got := 0; got < n; {
		off := r.pos % 8
		take := 8 - off
		if take > n-got {
			take = n - got
		}
		chunk := uint(r.buf[r.pos/8]>>off) & (1<<take - 1)
		v |= chunk << got
		got += take
		r.pos += take
	}
	return v
}

// unreadBytes counts the bytes not fully consumed, the current one included.
func (r *bitReader) unreadBytes() int {
	return len(r.buf) - r.pos/8
}

func (r *bitReader) unreadBits() int {
	return len(r.buf)*8 - r.pos
}

// byteReader walks a byte slice. Reading past the end panics.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) readByte() byte {
	if r.pos >= len(r.buf) {
		panic(ErrMalformedEncoding)
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *byteReader) read(n int) []byte {
	if n > len(r.buf)-r.pos {
		panic(ErrMalformedEncoding)
	}
	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b
}

func (r *byteReader) empty() bool {
	return r.pos == len(r.buf)
}
