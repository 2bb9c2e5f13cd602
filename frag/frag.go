package frag

// fragment layer
//  split a too large packet (over fragSize limit) into several DataWithFrag
//  messages, just like ip fragment. all fragments of one packet share a
//  fragment group id, allocated from the connection once per packet.
//  reassemble is peer's duty.

import (
	"github.com/lysShub/fragtun/proto"
	"github.com/lysShub/netkit/debug"
	"github.com/lysShub/netkit/packet"
	"github.com/lysShub/rawsock/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var (
	ErrNullReference = errors.New("null reference")
	ErrInvalidState  = errors.New("invalid state")
)

// MaxFragSize max payload of a fragment message
const MaxFragSize = (proto.MaxWireMTU - HeaderSize) &^ 7

// Sender the connection which owns fragment group id counter.
type Sender interface {
	// NextFragID return current fragment group id, and increase it
	NextFragID() uint16

	// SendMessage send a complete wire message, msg can't be
	// referenced after return.
	SendMessage(msg *packet.Packet) error
}

// Send fragment pkt and send each fragment by conn. fragSize will be
// round down to multiple of 8, and len(pkt) must be greater than it.
//
// return the first SendMessage error as is, the sent fragments can't
// be retracted.
func Send(conn Sender, pkt []byte, fragSize int) error {
	if conn == nil || pkt == nil {
		return errors.WithStack(ErrNullReference)
	}

	fragSize = RoundSize(fragSize)
	if fragSize <= 0 {
		return errors.WithMessagef(ErrInvalidState, "fragment size %d", fragSize)
	} else if fragSize > MaxFragSize {
		return errors.WithMessagef(ErrInvalidState, "fragment size %d exceed %d", fragSize, MaxFragSize)
	}
	if len(pkt) <= fragSize {
		return errors.WithMessagef(ErrInvalidState, "packet %d not need fragment by %d", len(pkt), fragSize)
	}
	if last := (len(pkt) - 1) / fragSize * fragSize; last > MaxOffset {
		return errors.WithMessagef(ErrInvalidState, "packet %d fragment offset %d exceed %d", len(pkt), last, MaxOffset)
	}

	var (
		id  = conn.NextFragID()
		msg = packet.Make(HeaderSize, 0, fragSize)
	)
	for off := 0; off < len(pkt); {
		n := min(len(pkt)-off, fragSize)

		o, err := NewOffset(off, len(pkt)-off > fragSize)
		if err != nil {
			return err
		}
		hdr := Fields{Length: uint16(n), ID: id, Offset: o}

		msg.Sets(HeaderSize, 0).Append(pkt[off : off+n]...)
		if err := hdr.Encode(msg); err != nil {
			return err
		}
		if debug.Debug() {
			f := Frag(msg.Bytes())
			require.Equal(test.T(), HeaderSize+n, len(f))
			require.Equal(test.T(), id, f.ID())
			require.Equal(test.T(), off, f.Offset().ByteOffset())
		}

		if err := conn.SendMessage(msg); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// RoundSize round fragment size down to multiple of 8.
func RoundSize(fragSize int) int {
	if fragSize <= 0 {
		return 0
	}
	return fragSize &^ 7
}

// Count fragments number of a length packet.
func Count(length, fragSize int) int {
	fragSize = RoundSize(fragSize)
	if fragSize == 0 || length <= 0 {
		return 0
	}
	return (length + fragSize - 1) / fragSize
}
