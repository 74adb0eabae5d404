package protocol

import (
	"errors"
	"fmt"
	"io"
)

// maxVLQBytes bounds a variable-length quantity to 10 bytes (enough for any
// 64-bit value). Longer sequences indicate a corrupt stream.
const maxVLQBytes = 10

// ErrVLQOverflow is returned when a variable-length quantity does not
// terminate within the 64-bit range.
var ErrVLQOverflow = errors.New("vlq overflow")

// ReadVLQ reads an unsigned variable-length quantity: big-endian base-128
// groups, high bit set on every byte except the last. It returns the value
// together with the exact bytes consumed, so callers can retain the header
// verbatim for pass-through forwarding.
func ReadVLQ(r io.Reader) (uint64, []byte, error) {
	var (
		value uint64
		raw   = make([]byte, 0, 2)
		buf   [1]byte
	)
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, raw, err
		}
		raw = append(raw, buf[0])
		if len(raw) > maxVLQBytes {
			return 0, raw, ErrVLQOverflow
		}
		value = value<<7 | uint64(buf[0]&0x7f)
		if buf[0]&0x80 == 0 {
			return value, raw, nil
		}
	}
}

// ReadSignedVLQ reads a signed variable-length quantity. The unsigned form
// carries the sign in its lowest bit: even values map to v/2, odd values to
// -((v >> 1) + 1).
func ReadSignedVLQ(r io.Reader) (int64, []byte, error) {
	v, raw, err := ReadVLQ(r)
	if err != nil {
		return 0, raw, err
	}
	if v&1 == 0 {
		return int64(v >> 1), raw, nil
	}
	return -int64(v>>1) - 1, raw, nil
}

// AppendVLQ appends the unsigned VLQ encoding of v to dst.
func AppendVLQ(dst []byte, v uint64) []byte {
	var tmp [maxVLQBytes]byte
	i := len(tmp)
	tmp[i-1] = byte(v & 0x7f)
	i--
	v >>= 7
	for v > 0 {
		i--
		tmp[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	return append(dst, tmp[i:]...)
}

// AppendSignedVLQ appends the signed VLQ encoding of v to dst.
func AppendSignedVLQ(dst []byte, v int64) []byte {
	var u uint64
	if v < 0 {
		u = uint64(-v-1)<<1 | 1
	} else {
		u = uint64(v) << 1
	}
	return AppendVLQ(dst, u)
}

// readByteVLQ is ReadVLQ for a bytes-backed reader inside payload decoders,
// where the consumed bytes are not needed.
func readByteVLQ(r io.ByteReader) (uint64, error) {
	var value uint64
	for i := 0; ; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if i >= maxVLQBytes {
			return 0, fmt.Errorf("%w in payload", ErrVLQOverflow)
		}
		value = value<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return value, nil
		}
	}
}
