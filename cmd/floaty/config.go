package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/zbo14/floaty/internal/swim"
)

// PeerSeed names one bootstrap peer in a TOML config file.
type PeerSeed struct {
	ID   int    `toml:"id"`
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Config is the on-disk shape of a floaty node's config file. Durations
// are strings (e.g. "1s") because TOML has no native duration type.
type Config struct {
	ID    int        `toml:"id"`
	Host  string      `toml:"host"`
	Port  int        `toml:"port"`
	Peers []PeerSeed `toml:"peers"`

	ProbeTimeout        string `toml:"probe_timeout"`
	ProtocolPeriod      string `toml:"protocol_period"`
	MaxPiggybackUpdates int    `toml:"max_piggyback_updates"`
	DisseminationFactor float64 `toml:"dissemination_factor"`
	IndirectProbes      int    `toml:"indirect_probes"`

	JournalPath string `toml:"journal_path"`
	StatusAddr  string `toml:"status_addr"`
}

// DefaultConfig returns a Config with floaty's defaults: an ephemeral
// in-memory journal, the status API on 127.0.0.1:8080 (set status_addr
// to "" in a config file to disable it), and the SWIM package's own
// timer defaults.
func DefaultConfig() Config {
	d := swim.DefaultConfig()
	return Config{
		Host:                "0.0.0.0",
		ProbeTimeout:        d.ProbeTimeout.String(),
		ProtocolPeriod:      d.ProtocolPeriod.String(),
		MaxPiggybackUpdates: d.MaxPiggybackUpdates,
		DisseminationFactor: d.DisseminationFactor,
		IndirectProbes:      d.IndirectProbes,
		JournalPath:         ":memory:",
		StatusAddr:          "127.0.0.1:8080",
	}
}

// LoadConfig reads and decodes a TOML config file, starting from
// DefaultConfig so an omitted field keeps its default rather than
// zeroing out.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// toSWIMConfig parses the string durations and copies the timer/buffer
// knobs into a swim.Config, leaving ID/Host/Port to the caller since
// those are also settable by CLI flag.
func (c Config) toSWIMConfig() (swim.Config, error) {
	var cfg swim.Config
	var err error

	if c.ProbeTimeout != "" {
		if cfg.ProbeTimeout, err = time.ParseDuration(c.ProbeTimeout); err != nil {
			return swim.Config{}, fmt.Errorf("probe_timeout: %w", err)
		}
	}
	if c.ProtocolPeriod != "" {
		if cfg.ProtocolPeriod, err = time.ParseDuration(c.ProtocolPeriod); err != nil {
			return swim.Config{}, fmt.Errorf("protocol_period: %w", err)
		}
	}
	cfg.MaxPiggybackUpdates = c.MaxPiggybackUpdates
	cfg.DisseminationFactor = c.DisseminationFactor
	cfg.IndirectProbes = c.IndirectProbes
	return cfg, nil
}
