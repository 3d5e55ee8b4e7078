// Package config loads the on-disk YAML configuration for
// cmd/sendspin-player, merged under whatever CLI flags the caller
// supplies. Grounded on doismellburning-samoyed's src/deviceid.go
// (yaml.Unmarshal into a plain struct) and the teacher repository's
// main.go flag set, generalized to Sendspin's discovery-or-manual
// connect model.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk/CLI-mergeable configuration for the player.
type Config struct {
	// ServerAddr, when set, connects directly to this host:port and puts
	// the auto-connect policy in manual mode. Discovery (Component G) is
	// not skipped: it still runs, but discovered servers trigger no
	// connection.
	ServerAddr string `yaml:"server_addr"`

	// ClientName identifies this player to the server's controller UI.
	ClientName string `yaml:"client_name"`

	// ClientID is a stable identifier for this installation. Left
	// empty, Component F generates a fresh one with google/uuid per
	// process.
	ClientID string `yaml:"client_id"`

	// PlayoutOffsetMS seeds Component E's playout offset, per §4.5.
	PlayoutOffsetMS int64 `yaml:"playout_offset_ms"`

	// RecentsSize bounds the remembered-servers store, per §6.
	RecentsSize int `yaml:"recents_size"`

	// LogFile, when set, additionally writes logs to this path.
	LogFile string `yaml:"log_file"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`
}

// DefaultPlayoutOffsetMS matches the teacher's own jitter-buffer
// default of 150ms.
const DefaultPlayoutOffsetMS = 150

// Default returns a Config with the player's baseline defaults, before
// any file or flag overrides are applied.
func Default() Config {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "unknown"
	}
	return Config{
		ClientName:      name + "-sendspin-player",
		PlayoutOffsetMS: DefaultPlayoutOffsetMS,
	}
}

// Load reads a YAML config file at path, merging it onto Default(). A
// missing file is not an error; Default() is returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
