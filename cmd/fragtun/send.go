package main

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/lysShub/fragtun/admin"
	"github.com/lysShub/fragtun/conn"
	"github.com/lysShub/fragtun/frag"
	"github.com/lysShub/fragtun/helper"
	"github.com/lysShub/fragtun/proto"
	"github.com/lysShub/fragtun/tunnel"
	"github.com/lysShub/netkit/errorx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

var (
	innerSrc = netip.MustParseAddrPort("10.125.0.2:19986")
	innerDst = netip.MustParseAddrPort("10.125.0.1:9")
)

const minPacketSize = header.IPv4MinimumSize + header.UDPMinimumSize

// NewSendCmd send synthetic ipv4/udp packets through tunnel.
func NewSendCmd(cfg *Config) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send synthetic packets through tunnel",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Remote == "" {
				return errors.New("requires --remote")
			}
			if cfg.Size < minPacketSize || cfg.Size > 0xffff {
				return errors.Errorf("invalid packet size %d: must in [%d, %d]", cfg.Size, minPacketSize, 0xffff)
			}
			if cfg.Count < 1 {
				return errors.Errorf("invalid count %d", cfg.Count)
			}
			if cfg.Tunnel.OutsideMTU != 0 && (cfg.Tunnel.OutsideMTU <= frag.HeaderSize || cfg.Tunnel.OutsideMTU > proto.MaxWireMTU) {
				return errors.Errorf("invalid mtu %d", cfg.Tunnel.OutsideMTU)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return nil
			}
			return runSend(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.Remote, "remote", "", "Tunnel peer address")
	cmd.Flags().StringVar(&cfg.Local, "local", "", "Local address")
	cmd.Flags().StringVar(&cfg.Admin, "admin", "", "Admin http listen address, disabled if empty")
	cmd.Flags().IntVar(&cfg.Tunnel.OutsideMTU, "mtu", proto.MaxWireMTU, "Max wire message size")
	cmd.Flags().BoolVar(&cfg.Tunnel.DisableFragment, "no-frag", false, "Reject packets over mtu instead of fragment")
	cmd.Flags().IntVar(&cfg.Size, "size", 4000, "Inner packet size")
	cmd.Flags().IntVar(&cfg.Count, "count", 1, "Number of packets")
	cmd.Flags().IntVar(&cfg.Interval, "interval", 100, "Interval between packets in milliseconds")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate args without sending")
	return cmd
}

func runSend(cmd *cobra.Command, cfg *Config) error {
	logger, err := cfg.logger()
	if err != nil {
		return err
	}

	raw, err := conn.Dial("udp", cfg.Local, cfg.Remote)
	if err != nil {
		return err
	}
	c, err := tunnel.New(raw, &cfg.Tunnel)
	if err != nil {
		raw.Close()
		return err
	}
	defer c.Close()

	if cfg.Admin != "" {
		ctr, err := admin.New(cfg.Admin, c, logger)
		if err != nil {
			return err
		}
		defer ctr.Close()
		go func() {
			if err := ctr.Serve(); err != nil {
				logger.Warn(err.Error(), errorx.Trace(err))
			}
		}()
	}

	var payload = make([]byte, cfg.Size-minPacketSize)
	for i := 0; i < cfg.Count; i++ {
		for j := range payload {
			payload[j] = byte(i + j)
		}
		ip, err := helper.UDPPacket(innerSrc, innerDst, payload)
		if err != nil {
			return err
		}

		id := c.FragNextID()
		if err := c.WritePacket(ip); err != nil {
			return err
		}
		if proto.DataHeaderSize+len(ip) > cfg.Tunnel.OutsideMTU {
			logger.Info("send fragmented",
				slog.Int("length", len(ip)),
				slog.Int("id", int(id)),
				slog.Int("fragments", frag.Count(len(ip), cfg.Tunnel.FragSize())),
			)
		} else {
			logger.Info("send data", slog.Int("length", len(ip)))
		}

		if i+1 < cfg.Count && cfg.Interval > 0 {
			time.Sleep(time.Duration(cfg.Interval) * time.Millisecond)
		}
	}

	s := c.Stats()
	fmt.Fprintf(cmd.OutOrStdout(),
		"packets %d, data %d, fragmented %d, fragments %d, bytes %d\n",
		s.Packets, s.Datas, s.Fragmented, s.Fragments, s.Bytes,
	)
	return nil
}
