package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lysShub/fragtun/conn"
	"github.com/lysShub/fragtun/proto"
	"github.com/lysShub/fragtun/tunnel"
	"github.com/lysShub/netkit/packet"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) (string, error) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestSendCommand_RequiresRemote(t *testing.T) {
	_, err := execute("send", "--dry-run")
	require.Error(t, err)
}

func TestSendCommand_Validate(t *testing.T) {
	_, err := execute("send", "--remote", "127.0.0.1:19986", "--dry-run")
	require.NoError(t, err)

	_, err = execute("send", "--remote", "127.0.0.1:19986", "--size", "10", "--dry-run")
	require.Error(t, err)

	_, err = execute("send", "--remote", "127.0.0.1:19986", "--count", "0", "--dry-run")
	require.Error(t, err)

	_, err = execute("send", "--remote", "127.0.0.1:19986", "--mtu", "1501", "--dry-run")
	require.Error(t, err)
}

func TestListenCommand_RequiresListen(t *testing.T) {
	_, err := execute("listen", "--dry-run")
	require.Error(t, err)

	_, err = execute("listen", "--listen", ":19986", "--dry-run")
	require.NoError(t, err)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fragtun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"tunnel:",
		"  outside_mtu: 576",
		"  disable_fragment: true",
		"remote: 127.0.0.1:19986",
		"size: 1000",
		"count: 3",
	}, "\n")), 0o644))

	var cfg Config
	require.NoError(t, loadConfig(path, &cfg))
	require.Equal(t, 576, cfg.Tunnel.OutsideMTU)
	require.True(t, cfg.Tunnel.DisableFragment)
	require.Equal(t, "127.0.0.1:19986", cfg.Remote)
	require.Equal(t, 1000, cfg.Size)
	require.Equal(t, 3, cfg.Count)

	// remote come from config file
	_, err := execute("--config", path, "send", "--dry-run")
	require.NoError(t, err)

	require.Error(t, loadConfig(filepath.Join(t.TempDir(), "not-exist.yaml"), &cfg))
}

func TestSend(t *testing.T) {
	l, err := conn.Listen("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	var cfg = Config{
		Remote:   l.LocalAddr().String(),
		Size:     3000,
		Count:    2,
		Interval: 0,
		Tunnel: tunnel.Config{
			OutsideMTU: proto.MaxWireMTU,
			Logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
		},
	}
	cmd := NewSendCmd(&Config{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	require.NoError(t, runSend(cmd, &cfg))
	require.Equal(t, "packets 2, data 0, fragmented 2, fragments 6, bytes 6042\n", buf.String())

	go func() {
		time.Sleep(time.Second * 5)
		l.Close()
	}()
	var b = packet.Make(0, proto.MaxWireMTU)
	for i := 0; i < 6; i++ {
		_, err := l.ReadFromAddrPort(b.Sets(0, 0xffff))
		require.NoError(t, err)

		m, err := tunnel.Decode(b)
		require.NoError(t, err)
		require.Equal(t, proto.DataWithFrag, m.Kind)
		require.Equal(t, uint16(i/3), m.Frag.ID)
	}
}
