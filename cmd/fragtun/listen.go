package main

import (
	"fmt"
	"log/slog"

	"github.com/lysShub/fragtun/conn"
	"github.com/lysShub/fragtun/helper"
	"github.com/lysShub/fragtun/proto"
	"github.com/lysShub/fragtun/tunnel"
	"github.com/lysShub/netkit/errorx"
	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewListenCmd receive and print tunnel messages, fragments are not
// reassembled.
func NewListenCmd(cfg *Config) *cobra.Command {
	var (
		count  int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive and decode tunnel messages",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Listen == "" {
				return errors.New("requires --listen")
			}
			if count < 0 {
				return errors.Errorf("invalid count %d", count)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return nil
			}
			return runListen(cmd, cfg, count)
		},
	}

	cmd.Flags().StringVar(&cfg.Listen, "listen", "", "Listen address")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after receive count messages, 0 means never")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate args without listening")
	return cmd
}

func runListen(cmd *cobra.Command, cfg *Config, count int) error {
	logger, err := cfg.logger()
	if err != nil {
		return err
	}

	l, err := conn.Listen("udp", cfg.Listen)
	if err != nil {
		return err
	}
	defer l.Close()
	logger.Info("listen", slog.String("addr", l.LocalAddr().String()))

	var pkt = packet.Make(0, proto.MaxWireMTU)
	for n := 0; count == 0 || n < count; n++ {
		peer, err := l.ReadFromAddrPort(pkt.Sets(0, 0xffff))
		if err != nil {
			return err
		}

		msg, err := tunnel.Decode(pkt)
		if err != nil {
			logger.Warn(err.Error(), errorx.Trace(err), slog.String("peer", peer.String()))
			continue
		}

		switch msg.Kind {
		case proto.DataWithFrag:
			logger.Info("fragment",
				slog.String("peer", peer.String()),
				slog.Int("id", int(msg.Frag.ID)),
				slog.Int("offset", msg.Frag.Offset.ByteOffset()),
				slog.Bool("more", msg.Frag.Offset.More()),
				slog.Int("length", int(msg.Frag.Length)),
			)
		case proto.Data:
			ip := helper.Ipack(msg.Payload)
			logger.Info("data",
				slog.String("peer", peer.String()),
				slog.Int("length", len(ip)),
				slog.String("src", ip.Laddr().String()),
				slog.String("dst", ip.Raddr().String()),
			)
		default:
			logger.Info("message", slog.String("peer", peer.String()), slog.String("kind", msg.Kind.String()))
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg.String())
	}
	return nil
}
