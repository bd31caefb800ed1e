// Package rsyncdconfig loads the daemon's TOML configuration file.
package rsyncdconfig

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/gokrazy/rsyncproto/rsyncsession"
)

type Listener struct {
	Rsyncd         string `toml:"rsyncd"`
	HTTPMonitoring string `toml:"http_monitoring"`
}

type Config struct {
	Listeners []Listener            `toml:"listener"`
	Modules   []rsyncsession.Module `toml:"module"`

	// Motd is sent to every client before module negotiation concludes.
	Motd string `toml:"motd"`

	// Secrets maps "module/user" to the plain-text password used to
	// answer that module's auth challenge.
	Secrets map[string]string `toml:"secrets"`
}

func FromString(input string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(input, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func FromFile(path string) (*Config, error) {
	input, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromString(string(input))
}

func FromDefaultFiles() (*Config, string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, "", err
	}
	fn := filepath.Join(configDir, "rsyncproto-daemon.toml")
	cfg, err := FromFile(fn)
	if err != nil {
		return nil, "", err
	}
	return cfg, fn, nil
}
