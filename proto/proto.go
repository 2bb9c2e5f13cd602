package proto

import (
	"encoding/binary"
	"fmt"

	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
)

const (
	// HeaderSize common message header, shared by every Kind
	HeaderSize = 1

	// DataHeaderSize common header + payload length
	DataHeaderSize = HeaderSize + 2

	// MaxWireMTU max wire message size, include header
	MaxWireMTU = 1500
)

type Kind uint8

const (
	_ Kind = iota
	Noop
	Ping
	Pong
	Auth
	Data
	ConfigIPv4
	AuthResponse
	AuthResponseWithConfig
	ServerConfig
	SessionRequest
	SessionResponse
	Goodbye
	_ // deprecated
	DataWithFrag

	_kind_end
)

var kinds = [...]string{
	Noop:                   "Noop",
	Ping:                   "Ping",
	Pong:                   "Pong",
	Auth:                   "Auth",
	Data:                   "Data",
	ConfigIPv4:             "ConfigIPv4",
	AuthResponse:           "AuthResponse",
	AuthResponseWithConfig: "AuthResponseWithConfig",
	ServerConfig:           "ServerConfig",
	SessionRequest:         "SessionRequest",
	SessionResponse:        "SessionResponse",
	Goodbye:                "Goodbye",
	DataWithFrag:           "DataWithFrag",
}

func (k Kind) String() string {
	if int(k) < len(kinds) && kinds[k] != "" {
		return kinds[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) Valid() error {
	if 0 < k && k < _kind_end && kinds[k] != "" {
		return nil
	}
	return errors.Errorf("kind %s", k.String())
}

// Header common message header
type Header struct {
	Kind Kind
}

func (h *Header) Encode(to *packet.Packet) error {
	if err := h.Kind.Valid(); err != nil {
		return err
	}
	to.Attach(byte(h.Kind))
	return nil
}

func (h *Header) Decode(from *packet.Packet) error {
	b := from.Bytes()
	if len(b) < HeaderSize {
		return errors.Errorf("packet too short %d", len(b))
	}

	h.Kind = Kind(b[0])
	if err := h.Kind.Valid(); err != nil {
		return err
	}
	from.DetachN(HeaderSize)
	return nil
}

// DataFields non-fragmented data message, the payload is the packet
// data behind the header.
//
//	{ Kind(1B) : Length(2B) : payload }
type DataFields struct {
	Length uint16
}

func (d *DataFields) Encode(to *packet.Packet) error {
	if to.Data() != int(d.Length) {
		return errors.Errorf("data length %d, payload %d", d.Length, to.Data())
	}
	if DataHeaderSize+to.Data() > MaxWireMTU {
		return errors.Errorf("data message %d exceed mtu %d", DataHeaderSize+to.Data(), MaxWireMTU)
	}

	to.Attach(binary.BigEndian.AppendUint16(nil, d.Length)...)
	var h = Header{Kind: Data}
	return h.Encode(to)
}

func (d *DataFields) Decode(from *packet.Packet) error {
	b := from.Bytes()
	if len(b) < DataHeaderSize {
		return errors.Errorf("packet too short %d", len(b))
	}
	if Kind(b[0]) != Data {
		return errors.Errorf("not data message %s", Kind(b[0]).String())
	}

	d.Length = binary.BigEndian.Uint16(b[HeaderSize:])
	if int(d.Length) != len(b)-DataHeaderSize {
		return errors.Errorf("data length %d, payload %d", d.Length, len(b)-DataHeaderSize)
	}
	from.DetachN(DataHeaderSize)
	return nil
}
