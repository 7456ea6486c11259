package block

import (
	"encoding/binary"
)

// Layout describes how samples are packed in a pixel buffer.
type Layout struct {
	BitsAllocated int
	BitsStored    int
	HighBit       int
	BigEndian     bool
}

// Sample decodes the i-th packed sample of buf and masks it to the stored
// bits. ok is false when buf is too short.
func (l Layout) Sample(buf []byte, i int) (uint64, bool) {
	raw, ok := l.raw(buf, i)
	if !ok {
		return 0, false
	}
	return l.mask(raw), true
}

func (l Layout) raw(buf []byte, i int) (uint64, bool) {
	var order binary.ByteOrder = binary.LittleEndian
	if l.BigEndian {
		order = binary.BigEndian
	}

	switch l.BitsAllocated {
	case 8:
		if i >= len(buf) {
			return 0, false
		}
		return uint64(buf[i]), true
	case 16:
		off := i * 2
		if off+2 > len(buf) {
			return 0, false
		}
		return uint64(order.Uint16(buf[off:])), true
	case 32:
		off := i * 4
		if off+4 > len(buf) {
			return 0, false
		}
		return uint64(order.Uint32(buf[off:])), true
	case 64:
		off := i * 8
		if off+8 > len(buf) {
			return 0, false
		}
		return order.Uint64(buf[off:]), true
	}
	return unpackBits(buf, i*l.BitsAllocated, l.BitsAllocated, l.BigEndian)
}

// mask keeps the stored bits ending at HighBit.
func (l Layout) mask(raw uint64) uint64 {
	stored := l.BitsStored
	if stored <= 0 || stored >= 64 || stored > l.BitsAllocated {
		return raw
	}
	high := l.HighBit
	if high < stored-1 || high >= l.BitsAllocated {
		high = stored - 1
	}
	shift := uint(high + 1 - stored)
	return (raw >> shift) & (uint64(1)<<uint(stored) - 1)
}

// unpackBits reads n bits starting at bit offset off. Little-endian streams
// fill each byte from its least significant bit, big-endian streams from its
// most significant bit.
func unpackBits(buf []byte, off, n int, bigEndian bool) (uint64, bool) {
	if n <= 0 || n > 64 || off < 0 || (off+n+7)/8 > len(buf) {
		return 0, false
	}
	var v uint64
	for k := 0; k < n; k++ {
		bit := off + k
		b := buf[bit/8]
		if bigEndian {
			v = v<<1 | uint64(b>>(7-uint(bit%8))&1)
		} else {
			v |= uint64(b>>uint(bit%8)&1) << uint(k)
		}
	}
	return v, true
}
