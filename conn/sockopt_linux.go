//go:build linux
// +build linux

package conn

import (
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// setDontFragment set DF for outgoing datagram, message over path mtu
// will fail with EMSGSIZE instead of ip fragment.
func setDontFragment(conn *net.UDPConn, network string) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return errors.WithStack(err)
	}

	var e4, e6 error
	err = raw.Control(func(fd uintptr) {
		if network != "udp6" {
			e4 = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
		}
		if network != "udp4" {
			e6 = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_MTU_DISCOVER, unix.IPV6_PMTUDISC_DO)
		}
	})
	if err != nil {
		return errors.WithStack(err)
	}

	switch network {
	case "udp4":
		return errors.WithStack(e4)
	case "udp6":
		return errors.WithStack(e6)
	default:
		// dual stack socket, one of them is enough
		if e4 != nil && e6 != nil {
			return errors.WithStack(e4)
		}
		return nil
	}
}
