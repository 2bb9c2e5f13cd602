package tunnel

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/lysShub/fragtun/conn"
	"github.com/lysShub/fragtun/frag"
	"github.com/lysShub/fragtun/helper"
	"github.com/lysShub/fragtun/proto"
	"github.com/lysShub/netkit/errorx"
	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
)

var (
	ErrPacketTooLarge = errors.New("packet too large")
	ErrInvalidPacket  = errors.New("invalid packet")
)

// Conn tunnel connection, send inner ip packet as Data message, or
// DataWithFrag messages when the packet over OutsideMTU.
//
// encryption is raw's duty.
type Conn struct {
	config *Config
	raw    conn.Conn

	// mu serialize write, fragNextID and msg are protected by it
	mu         sync.Mutex
	fragNextID uint16
	msg        *packet.Packet

	stats stats

	closed   atomic.Bool
	closeErr errorx.CloseErr
}

func New(raw conn.Conn, config *Config) (*Conn, error) {
	if raw == nil {
		return nil, errors.WithStack(frag.ErrNullReference)
	}
	if config == nil {
		config = &Config{}
	}
	config, err := config.init()
	if err != nil {
		return nil, err
	}

	var c = &Conn{
		config: config,
		raw:    raw,
		msg:    packet.Make(proto.DataHeaderSize, 0, config.OutsideMTU),
	}
	c.config.Logger.Info("tunnel open",
		slog.String("local", raw.LocalAddr().String()),
		slog.String("remote", raw.RemoteAddr().String()),
		slog.Int("mtu", config.OutsideMTU),
		slog.Bool("fragment", !config.DisableFragment),
	)
	return c, nil
}

func (c *Conn) close(cause error) error {
	c.closed.Store(true)
	if cause != nil {
		c.config.Logger.Error(cause.Error(), errorx.Trace(cause))
	} else {
		c.config.Logger.Info("tunnel close", errorx.Trace(nil))
	}

	return c.closeErr.Close(func() (errs []error) {
		errs = append(errs, cause)
		if c.raw != nil {
			errs = append(errs, c.raw.Close())
		}
		return errs
	})
}

func (c *Conn) Close() error { return c.close(nil) }

// WritePacket send a ip packet through tunnel.
func (c *Conn) WritePacket(ip []byte) error {
	if err := validIP(ip); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return errors.WithStack(net.ErrClosed)
	}
	c.stats.packets.Add(1)

	if proto.DataHeaderSize+len(ip) <= c.config.OutsideMTU {
		c.msg.Sets(proto.DataHeaderSize, 0).Append(ip...)

		var d = proto.DataFields{Length: uint16(len(ip))}
		if err := d.Encode(c.msg); err != nil {
			return err
		}
		if err := c.sendMessage(c.msg); err != nil {
			return err
		}
		c.stats.datas.Add(1)
		return nil
	}

	if c.config.DisableFragment {
		return errors.WithMessagef(ErrPacketTooLarge, "packet %d, mtu %d", len(ip), c.config.OutsideMTU)
	}
	if err := frag.Send((*sender)(c), ip, c.config.FragSize()); err != nil {
		c.config.Logger.Warn(err.Error(), errorx.Trace(err), slog.Int("length", len(ip)))
		return err
	}
	c.stats.fragmented.Add(1)
	return nil
}

// SendMessage send a complete wire message.
func (c *Conn) SendMessage(msg *packet.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return errors.WithStack(net.ErrClosed)
	}
	return c.sendMessage(msg)
}

func (c *Conn) sendMessage(msg *packet.Packet) error {
	if msg.Data() > c.config.OutsideMTU {
		return errors.WithMessagef(ErrPacketTooLarge, "message %d, mtu %d", msg.Data(), c.config.OutsideMTU)
	}

	if err := c.raw.Write(msg); err != nil {
		c.stats.sendErrors.Add(1)
		return err
	}
	c.stats.messages.Add(1)
	c.stats.bytes.Add(uint64(msg.Data()))
	return nil
}

// FragNextID the fragment group id of next fragmented packet
func (c *Conn) FragNextID() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fragNextID
}

func (c *Conn) LocalAddr() net.Addr {
	return net.UDPAddrFromAddrPort(c.raw.LocalAddr())
}

func (c *Conn) RemoteAddr() net.Addr {
	return net.UDPAddrFromAddrPort(c.raw.RemoteAddr())
}

// sender implement frag.Sender, only used with Conn.mu held.
type sender Conn

func (s *sender) NextFragID() uint16 {
	id := s.fragNextID
	s.fragNextID++
	return id
}

func (s *sender) SendMessage(msg *packet.Packet) error {
	if err := (*Conn)(s).sendMessage(msg); err != nil {
		return err
	}
	s.stats.fragments.Add(1)
	return nil
}

func validIP(ip []byte) error {
	if err := helper.Ipack(ip).Validate(); err != nil {
		return errors.WithMessage(ErrInvalidPacket, err.Error())
	}
	return nil
}
