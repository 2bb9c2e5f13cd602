package frag

import (
	"encoding/binary"
	"fmt"

	"github.com/lysShub/fragtun/proto"
	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
)

/*
	fragment message, Kind is DataWithFrag
	{
		Kind(1B)
		Length(2B)        : payload length of this fragment
		ID(2B)            : fragment group id, same for all fragments of one packet
		Offset(2B)        : MF flag and offset/8, see Offset
		payload(nB)
	}
	all fields are big endian.
*/

const HeaderSize = proto.HeaderSize + 6

// Frag fragment message view, require len(f) >= HeaderSize
type Frag []byte

func (f Frag) Kind() proto.Kind {
	return proto.Kind(f[0])
}
func (f Frag) SetKind(kind proto.Kind) {
	f[0] = byte(kind)
}
func (f Frag) Length() uint16 {
	return binary.BigEndian.Uint16(f[1:3])
}
func (f Frag) SetLength(n uint16) {
	binary.BigEndian.PutUint16(f[1:3], n)
}
func (f Frag) ID() uint16 {
	return binary.BigEndian.Uint16(f[3:5])
}
func (f Frag) SetID(id uint16) {
	binary.BigEndian.PutUint16(f[3:5], id)
}
func (f Frag) Offset() Offset {
	return Offset(binary.BigEndian.Uint16(f[5:7]))
}
func (f Frag) SetOffset(off Offset) {
	binary.BigEndian.PutUint16(f[5:7], uint16(off))
}
func (f Frag) Payload() []byte {
	return f[HeaderSize:]
}

type Fields struct {
	Length uint16 // payload length
	ID     uint16 // fragment group id
	Offset Offset
}

func (h Fields) String() string {
	return fmt.Sprintf(
		"{ID:%d, Offset:%d, MF:%t, Length:%d}",
		h.ID, h.Offset.ByteOffset(), h.Offset.More(), h.Length,
	)
}

func (h Fields) Valid() error {
	if err := h.Offset.Valid(); err != nil {
		return err
	}
	if h.Length == 0 {
		return errors.New("empty fragment")
	}
	if HeaderSize+int(h.Length) > proto.MaxWireMTU {
		return errors.Errorf("fragment length %d exceed mtu %d", h.Length, proto.MaxWireMTU)
	}
	return nil
}

// Encode attach fragment header before payload, the payload is to's data.
func (h *Fields) Encode(to *packet.Packet) error {
	if err := h.Valid(); err != nil {
		return err
	} else if to.Data() != int(h.Length) {
		return errors.Errorf("fragment length %d, payload %d", h.Length, to.Data())
	}

	to.Attach(binary.BigEndian.AppendUint16(nil, uint16(h.Offset))...)
	to.Attach(binary.BigEndian.AppendUint16(nil, h.ID)...)
	to.Attach(binary.BigEndian.AppendUint16(nil, h.Length)...)
	var hdr = proto.Header{Kind: proto.DataWithFrag}
	return hdr.Encode(to)
}

// Decode detach fragment header, from's data will be the payload.
func (h *Fields) Decode(from *packet.Packet) error {
	b := Frag(from.Bytes())
	if len(b) < HeaderSize {
		return errors.Errorf("packet too short %d", len(b))
	}
	if b.Kind() != proto.DataWithFrag {
		return errors.Errorf("not fragment message %s", b.Kind().String())
	}

	h.Length = b.Length()
	h.ID = b.ID()
	h.Offset = b.Offset()
	if err := h.Valid(); err != nil {
		return err
	}
	if int(h.Length) != len(b)-HeaderSize {
		return errors.Errorf("fragment length %d, payload %d", h.Length, len(b)-HeaderSize)
	}

	from.DetachN(HeaderSize)
	return nil
}
