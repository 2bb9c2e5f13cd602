package helper

// IP packet parser and builder

import (
	"encoding/binary"
	"net/netip"

	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

var ErrInvalidIP = errors.New("invalid ip packet")

type Ipack []byte

func (u Ipack) Validate() error {
	switch u.Version() {
	case header.IPv4Version:
		if !header.IPv4(u).IsValid(len(u)) {
			return errors.WithMessage(ErrInvalidIP, "ipv4")
		}
	case header.IPv6Version:
		if !header.IPv6(u).IsValid(len(u)) {
			return errors.WithMessage(ErrInvalidIP, "ipv6")
		}
	default:
		return errors.WithMessagef(ErrInvalidIP, "version %d", u.Version())
	}
	return nil
}

func (u Ipack) Version() int {
	if len(u) < 1 {
		return 0
	}
	return header.IPVersion(u)
}

func (u Ipack) Proto() uint8 {
	switch u.Version() {
	case header.IPv4Version:
		return header.IPv4(u).Protocol()
	case header.IPv6Version:
		return header.IPv6(u).NextHeader()
	default:
		return 0
	}
}

func (u Ipack) hdrLen() int {
	switch u.Version() {
	case header.IPv4Version:
		return int(header.IPv4(u).HeaderLength())
	case header.IPv6Version:
		return header.IPv6MinimumSize
	default:
		return 0
	}
}

// Laddr source address, port is valid for tcp/udp
func (u Ipack) Laddr() (addr netip.AddrPort) {
	if u.Validate() != nil || len(u) < u.hdrLen()+4 {
		return addr
	}

	hl := u.hdrLen()
	switch u.Version() {
	case header.IPv4Version:
		return netip.AddrPortFrom(
			netip.AddrFrom4([4]byte(u[12:16])),
			binary.BigEndian.Uint16(u[hl:hl+2]),
		)
	case header.IPv6Version:
		return netip.AddrPortFrom(
			netip.AddrFrom16([16]byte(u[8:24])),
			binary.BigEndian.Uint16(u[hl:hl+2]),
		)
	default:
		return addr
	}
}

// Raddr destination address, port is valid for tcp/udp
func (u Ipack) Raddr() (addr netip.AddrPort) {
	if u.Validate() != nil || len(u) < u.hdrLen()+4 {
		return addr
	}

	hl := u.hdrLen()
	switch u.Version() {
	case header.IPv4Version:
		return netip.AddrPortFrom(
			netip.AddrFrom4([4]byte(u[16:20])),
			binary.BigEndian.Uint16(u[hl+2:hl+4]),
		)
	case header.IPv6Version:
		return netip.AddrPortFrom(
			netip.AddrFrom16([16]byte(u[24:40])),
			binary.BigEndian.Uint16(u[hl+2:hl+4]),
		)
	default:
		return addr
	}
}

// UDPPacket build a ipv4 udp packet with payload
func UDPPacket(src, dst netip.AddrPort, payload []byte) (Ipack, error) {
	if !src.Addr().Is4() || !dst.Addr().Is4() {
		return nil, errors.Errorf("only support ipv4 %s-->%s", src.String(), dst.String())
	}
	total := header.IPv4MinimumSize + header.UDPMinimumSize + len(payload)
	if total > 0xffff {
		return nil, errors.Errorf("packet too large %d", total)
	}

	var b = packet.Make(header.IPv4MinimumSize+header.UDPMinimumSize, 0, len(payload)).Append(payload...)
	attachUDPHdr(b, src, dst)
	attachIPv4Hdr(b, src.Addr(), dst.Addr())
	return Ipack(b.Bytes()), nil
}

func attachUDPHdr(b *packet.Packet, src, dst netip.AddrPort) {
	hdr := header.UDP(b.AttachN(header.UDPMinimumSize).Bytes())
	hdr.Encode(&header.UDPFields{
		SrcPort:  src.Port(),
		DstPort:  dst.Port(),
		Length:   uint16(len(hdr)),
		Checksum: 0,
	})

	sum := header.PseudoHeaderChecksum(
		header.UDPProtocolNumber,
		tcpip.AddrFrom4(src.Addr().As4()),
		tcpip.AddrFrom4(dst.Addr().As4()),
		uint16(len(hdr)),
	)
	sum = checksum.Checksum(hdr, sum)
	hdr.SetChecksum(^sum)
}

func attachIPv4Hdr(b *packet.Packet, src, dst netip.Addr) {
	ip := header.IPv4(b.AttachN(header.IPv4MinimumSize).Bytes())
	ip.Encode(&header.IPv4Fields{
		TOS:            0,
		TotalLength:    uint16(len(ip)),
		ID:             0,
		Flags:          header.IPv4FlagDontFragment,
		FragmentOffset: 0,
		TTL:            64,
		Protocol:       uint8(header.UDPProtocolNumber),
		Checksum:       0,
		SrcAddr:        tcpip.AddrFrom4(src.As4()),
		DstAddr:        tcpip.AddrFrom4(dst.As4()),
		Options:        nil,
	})
	ip.SetChecksum(^ip.CalculateChecksum())
}
