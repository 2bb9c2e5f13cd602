package conn

import (
	"net"
	"net/netip"
	"strconv"

	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
)

// datagram connect, refer net.UDPConn
type Conn interface {
	Read(*packet.Packet) (err error)
	Write(*packet.Packet) (err error)

	ReadFromAddrPort(*packet.Packet) (netip.AddrPort, error)
	WriteToAddrPort(*packet.Packet, netip.AddrPort) error

	LocalAddr() netip.AddrPort
	RemoteAddr() netip.AddrPort
	Close() error
}

// Dial connect to raddr, laddr can be empty.
func Dial(network string, laddr, raddr string) (Conn, error) {
	loc, err := resolveAddr(laddr)
	if err != nil {
		return nil, err
	}
	rem, err := resolveAddr(raddr)
	if err != nil {
		return nil, err
	}
	if !rem.IsValid() || rem.Addr().IsUnspecified() || rem.Port() == 0 {
		return nil, errors.Errorf("invalid remote address %s", raddr)
	}

	switch network {
	case "udp", "udp4", "udp6":
		return dialUDP(network, loc, rem)
	default:
		return nil, errors.Errorf("not support network %s", network)
	}
}

func Listen(network string, laddr string) (Conn, error) {
	loc, err := resolveAddr(laddr)
	if err != nil {
		return nil, err
	}

	switch network {
	case "udp", "udp4", "udp6":
		return listenUDP(network, loc)
	default:
		return nil, errors.Errorf("not support network %s", network)
	}
}

// resolveAddr resolve "host:port", empty host or port means unspecified.
func resolveAddr(addr string) (netip.AddrPort, error) {
	if addr == "" {
		return netip.AddrPortFrom(netip.IPv4Unspecified(), 0), nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return netip.AddrPort{}, errors.WithStack(err)
	}

	var p uint64
	if port != "" {
		p, err = strconv.ParseUint(port, 10, 16)
		if err != nil {
			return netip.AddrPort{}, errors.WithStack(err)
		}
	}

	var ip = netip.IPv4Unspecified()
	if host != "" {
		if ip, err = netip.ParseAddr(host); err != nil {
			ips, err := net.LookupIP(host)
			if err != nil {
				return netip.AddrPort{}, errors.WithStack(err)
			} else if len(ips) == 0 {
				return netip.AddrPort{}, errors.Errorf("can't resolve %s", host)
			}

			var ok bool
			if ip, ok = netip.AddrFromSlice(ips[0]); !ok {
				return netip.AddrPort{}, errors.Errorf("can't resolve %s", host)
			}
		}
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(p)), nil
}
