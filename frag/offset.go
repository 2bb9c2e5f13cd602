package frag

import "github.com/pkg/errors"

const (
	OffsetMask = 0x1fff
	MoreMask   = 0x2000

	// MaxOffset max byte offset the offset field can express
	MaxOffset = OffsetMask * 8
)

// Offset fragment offset field
//
//	{ reserved(2b) : MF(1b) : offset/8(13b) }
type Offset uint16

// NewOffset byteOffset must be multiple of 8, and not greater than MaxOffset.
func NewOffset(byteOffset int, more bool) (Offset, error) {
	if byteOffset < 0 || byteOffset > MaxOffset {
		return 0, errors.Errorf("fragment offset %d out of range [0, %d]", byteOffset, MaxOffset)
	} else if byteOffset%8 != 0 {
		return 0, errors.Errorf("fragment offset %d not aligned to 8", byteOffset)
	}

	o := Offset(byteOffset >> 3)
	if more {
		o |= MoreMask
	}
	return o, nil
}

// Units offset in 8-byte units
func (o Offset) Units() uint16 { return uint16(o) & OffsetMask }

func (o Offset) ByteOffset() int { return int(o.Units()) << 3 }

// More more-fragments flag
func (o Offset) More() bool { return o&MoreMask != 0 }

func (o Offset) Valid() error {
	if o&^(OffsetMask|MoreMask) != 0 {
		return errors.Errorf("fragment offset reserved bits 0x%04x", uint16(o))
	}
	return nil
}
