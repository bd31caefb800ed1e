package rsyncwire

import "fmt"

// The variable-length integer encodings store a value in a header byte plus
// zero or more little-endian payload bytes. The number of leading one bits
// in the header announces the payload length; the remaining header bits
// hold the most significant data bits.

// leadingOnes returns the number of consecutive one bits at the top of ch,
// capped at max.
func leadingOnes(ch byte, max int) int {
	n := 0
	for bit := byte(0x80); bit != 0 && ch&bit != 0; bit >>= 1 {
		n++
	}
	if n > max {
		n = max
	}
	return n
}

// WriteVarint32 writes data in the variable-length 32-bit encoding, which
// occupies between one and five bytes.
func (b *Buffer) WriteVarint32(data int32) {
	var buf [5]byte
	u := uint32(data)
	// cnt payload bytes hold the low bits; the top bits must fit in the
	// 7-cnt data bits the header has left.
	cnt := 0
	for cnt < 4 && u>>(8*cnt) >= 1<<(7-cnt) {
		cnt++
	}
	top := byte(u >> (8 * cnt))
	var header byte
	if cnt > 0 {
		header = ^byte(1<<(8-cnt) - 1)
	}
	if cnt == 4 {
		// The four payload bytes already hold the entire value; the low
		// header bits are unused.
		top = 0
	}
	buf[0] = header | top
	for i := 0; i < cnt; i++ {
		buf[1+i] = byte(u >> (8 * i))
	}
	b.data = append(b.data, buf[:1+cnt]...)
}

func (b *Buffer) ReadVarint32() (int32, error) {
	if b.Len() < 1 {
		return 0, ErrShortRead
	}
	header := b.data[b.pos]
	extra := leadingOnes(header, 4)
	if b.Len() < 1+extra {
		return 0, ErrShortRead
	}
	var u uint32
	for i := 0; i < extra; i++ {
		u |= uint32(b.data[b.pos+1+i]) << (8 * i)
	}
	if extra < 4 {
		mask := byte(1<<(8-extra) - 1)
		u |= uint32(header&mask) << (8 * extra)
	}
	// In the five-byte form the payload holds the entire value; the low
	// four header bits carry no data and are ignored.
	b.pos += 1 + extra
	return int32(u), nil
}

// WriteVarint64 writes data in the variable-length 64-bit encoding, which
// occupies at least minBytes bytes. minBytes must be between 1 and 8;
// values below 3 cannot represent every 64-bit value, so writing a value
// that does not fit fails.
func (b *Buffer) WriteVarint64(data int64, minBytes int) error {
	if minBytes < 1 || minBytes > 8 {
		return fmt.Errorf("rsyncwire: varint64 min_bytes %d out of range [1, 8]", minBytes)
	}
	u := uint64(data)
	for extra := 0; extra <= 6; extra++ {
		n := minBytes - 1 + extra // payload bytes
		capacity := 8*n + (7 - extra)
		if capacity < 64 && u>>capacity != 0 {
			continue
		}
		top := byte(u >> (8 * n))
		var header byte
		if extra > 0 {
			header = ^byte(1<<(8-extra) - 1)
		}
		b.data = append(b.data, header|top)
		for i := 0; i < n; i++ {
			b.data = append(b.data, byte(u>>(8*i)))
		}
		return nil
	}
	return fmt.Errorf("rsyncwire: value %d does not fit in varint64 with min_bytes %d", data, minBytes)
}

func (b *Buffer) ReadVarint64(minBytes int) (int64, error) {
	if minBytes < 1 || minBytes > 8 {
		return 0, fmt.Errorf("rsyncwire: varint64 min_bytes %d out of range [1, 8]", minBytes)
	}
	if b.Len() < 1 {
		return 0, ErrShortRead
	}
	header := b.data[b.pos]
	extra := leadingOnes(header, 6)
	n := minBytes - 1 + extra
	if b.Len() < 1+n {
		return 0, ErrShortRead
	}
	var u uint64
	for i := 0; i < n; i++ {
		ch := b.data[b.pos+1+i]
		if i >= 8 {
			if ch != 0 {
				return 0, fmt.Errorf("rsyncwire: varint64 value overflows 64 bits")
			}
			continue
		}
		u |= uint64(ch) << (8 * i)
	}
	top := header & byte(1<<(8-extra)-1)
	if extra == 0 {
		top = header
	}
	if 8*n >= 64 {
		if top != 0 {
			return 0, fmt.Errorf("rsyncwire: varint64 value overflows 64 bits")
		}
	} else {
		u |= uint64(top) << (8 * n)
	}
	b.pos += 1 + n
	return int64(u), nil
}
