package conn

import (
	"log/slog"
	"net"
	"net/netip"

	"github.com/lysShub/netkit/debug"
	"github.com/lysShub/netkit/errorx"
	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
)

type udpConn struct {
	conn *net.UDPConn
}

func dialUDP(network string, laddr, raddr netip.AddrPort) (Conn, error) {
	var loc *net.UDPAddr
	if laddr.IsValid() && (!laddr.Addr().IsUnspecified() || laddr.Port() != 0) {
		loc = net.UDPAddrFromAddrPort(laddr)
	}

	conn, err := net.DialUDP(network, loc, net.UDPAddrFromAddrPort(raddr))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := setDontFragment(conn, network); err != nil {
		conn.Close()
		return nil, err
	}
	return &udpConn{conn}, nil
}

func listenUDP(network string, laddr netip.AddrPort) (Conn, error) {
	conn, err := net.ListenUDP(network, net.UDPAddrFromAddrPort(laddr))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := setDontFragment(conn, network); err != nil {
		conn.Close()
		return nil, err
	}
	return &udpConn{conn}, nil
}

func (c *udpConn) Read(b *packet.Packet) (err error) {
	n, err := c.conn.Read(b.Bytes())
	if err != nil {
		return errors.WithStack(err)
	}
	b.SetData(n)
	return nil
}
func (c *udpConn) Write(b *packet.Packet) (err error) {
	_, err = c.conn.Write(b.Bytes())
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}
func (c *udpConn) ReadFromAddrPort(b *packet.Packet) (netip.AddrPort, error) {
	n, addr, err := c.conn.ReadFromUDPAddrPort(b.Bytes())
	if err != nil {
		return netip.AddrPort{}, errors.WithStack(err)
	}
	if debug.Debug() && n == b.Data() {
		slog.Warn("too short warning", errorx.Trace(nil))
	}
	b.SetData(n)
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()), nil
}
func (c *udpConn) WriteToAddrPort(b *packet.Packet, dst netip.AddrPort) error {
	_, err := c.conn.WriteToUDPAddrPort(b.Bytes(), dst)
	return errors.WithStack(err)
}
func (c *udpConn) LocalAddr() netip.AddrPort {
	addr := c.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}
func (c *udpConn) RemoteAddr() netip.AddrPort {
	if raddr, ok := c.conn.RemoteAddr().(*net.UDPAddr); ok && raddr != nil {
		addr := raddr.AddrPort()
		return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
	}
	return netip.AddrPort{}
}
func (c *udpConn) Close() error { return c.conn.Close() }
