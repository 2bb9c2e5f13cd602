package tunnel

import (
	"log/slog"
	"os"

	"github.com/lysShub/fragtun/frag"
	"github.com/lysShub/fragtun/proto"
	"github.com/pkg/errors"
)

type Config struct {
	// OutsideMTU max wire message size, default proto.MaxWireMTU
	OutsideMTU int `yaml:"outside_mtu"`

	// DisableFragment packet over OutsideMTU will be rejected with
	// ErrPacketTooLarge instead of fragment
	DisableFragment bool `yaml:"disable_fragment"`

	LogPath string       `yaml:"log_path"`
	Logger  *slog.Logger `yaml:"-"`
}

const minOutsideMTU = frag.HeaderSize + 8

func (c *Config) init() (*Config, error) {
	if c.OutsideMTU == 0 {
		c.OutsideMTU = proto.MaxWireMTU
	} else if c.OutsideMTU < minOutsideMTU || c.OutsideMTU > proto.MaxWireMTU {
		return nil, errors.Errorf("outside mtu %d out of range [%d, %d]", c.OutsideMTU, minOutsideMTU, proto.MaxWireMTU)
	}

	if c.Logger == nil {
		var fh = os.Stdout
		if c.LogPath != "" {
			var err error
			fh, err = os.OpenFile(c.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o666)
			if err != nil {
				return nil, errors.WithStack(err)
			}
		}
		c.Logger = slog.New(slog.NewJSONHandler(fh, nil))
	}
	return c, nil
}

// FragSize fragment payload size used for oversize packet
func (c *Config) FragSize() int {
	return frag.RoundSize(c.OutsideMTU - frag.HeaderSize)
}
