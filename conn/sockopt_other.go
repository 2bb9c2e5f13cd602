//go:build !linux
// +build !linux

package conn

import "net"

func setDontFragment(conn *net.UDPConn, network string) error { return nil }
