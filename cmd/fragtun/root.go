package main

import (
	"log/slog"
	"os"

	"github.com/lysShub/fragtun/tunnel"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config holds the CLI configuration, flags override the config file.
type Config struct {
	Tunnel tunnel.Config `yaml:"tunnel"`

	Remote string `yaml:"remote"`
	Local  string `yaml:"local"`
	Admin  string `yaml:"admin"`
	Listen string `yaml:"listen"`

	Size     int `yaml:"size"`
	Count    int `yaml:"count"`
	Interval int `yaml:"interval_ms"`
}

func loadConfig(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return errors.Wrapf(err, "config %s", path)
	}
	return nil
}

// logger build logger same as tunnel.Config does
func (c *Config) logger() (*slog.Logger, error) {
	if c.Tunnel.Logger != nil {
		return c.Tunnel.Logger, nil
	}

	var fh = os.Stdout
	if c.Tunnel.LogPath != "" {
		var err error
		fh, err = os.OpenFile(c.Tunnel.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o666)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	c.Tunnel.Logger = slog.New(slog.NewJSONHandler(fh, nil))
	return c.Tunnel.Logger, nil
}

// NewRootCmd creates and returns the root cobra command.
func NewRootCmd() *cobra.Command {
	var (
		cfg  Config
		path string
	)

	cmd := &cobra.Command{
		Use:   "fragtun",
		Short: "Datagram tunnel with message fragmentation",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return nil
			}

			// reload file, then re-apply explicitly set flags
			var file Config
			if err := loadConfig(path, &file); err != nil {
				return err
			}
			mergeConfig(cmd, &cfg, &file)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&path, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&cfg.Tunnel.LogPath, "log", "", "Log file path, default stdout")

	cmd.AddCommand(NewSendCmd(&cfg), NewListenCmd(&cfg))
	return cmd
}

// mergeConfig copy file's value into cfg, except flags set on command line
func mergeConfig(cmd *cobra.Command, cfg, file *Config) {
	set := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if !set("log") && file.Tunnel.LogPath != "" {
		cfg.Tunnel.LogPath = file.Tunnel.LogPath
	}
	if !set("mtu") && file.Tunnel.OutsideMTU != 0 {
		cfg.Tunnel.OutsideMTU = file.Tunnel.OutsideMTU
	}
	if !set("no-frag") && file.Tunnel.DisableFragment {
		cfg.Tunnel.DisableFragment = true
	}
	if !set("remote") && file.Remote != "" {
		cfg.Remote = file.Remote
	}
	if !set("local") && file.Local != "" {
		cfg.Local = file.Local
	}
	if !set("listen") && file.Listen != "" {
		cfg.Listen = file.Listen
	}
	if !set("admin") && file.Admin != "" {
		cfg.Admin = file.Admin
	}
	if !set("size") && file.Size != 0 {
		cfg.Size = file.Size
	}
	if !set("count") && file.Count != 0 {
		cfg.Count = file.Count
	}
	if !set("interval") && file.Interval != 0 {
		cfg.Interval = file.Interval
	}
}
