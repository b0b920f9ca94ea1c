package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want %q", cfg.Host, "0.0.0.0")
	}
	if cfg.ProbeTimeout != "1s" {
		t.Errorf("ProbeTimeout = %q, want %q", cfg.ProbeTimeout, "1s")
	}
	if cfg.ProtocolPeriod != "2s" {
		t.Errorf("ProtocolPeriod = %q, want %q", cfg.ProtocolPeriod, "2s")
	}
	if cfg.MaxPiggybackUpdates != 6 {
		t.Errorf("MaxPiggybackUpdates = %d, want 6", cfg.MaxPiggybackUpdates)
	}
	if cfg.JournalPath != ":memory:" {
		t.Errorf("JournalPath = %q, want %q", cfg.JournalPath, ":memory:")
	}
}

func TestLoadConfigMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") error: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("LoadConfig(\"\") = %+v, want DefaultConfig()", cfg)
	}
}

func TestLoadConfigOverridesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "floaty.toml")
	toml := `
id = 7
host = "10.0.0.5"
port = 9000

[[peers]]
id = 8
host = "10.0.0.6"
port = 9001
`
	if err := os.WriteFile(path, []byte(toml), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.ID != 7 || cfg.Host != "10.0.0.5" || cfg.Port != 9000 {
		t.Errorf("cfg = %+v, want id=7 host=10.0.0.5 port=9000", cfg)
	}
	if cfg.ProbeTimeout != "1s" {
		t.Errorf("ProbeTimeout = %q, want default %q preserved", cfg.ProbeTimeout, "1s")
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].ID != 8 {
		t.Fatalf("Peers = %+v, want one seed with id=8", cfg.Peers)
	}
}

func TestToSWIMConfigParsesDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProbeTimeout = "250ms"
	cfg.ProtocolPeriod = "500ms"

	swimCfg, err := cfg.toSWIMConfig()
	if err != nil {
		t.Fatalf("toSWIMConfig() error: %v", err)
	}
	if swimCfg.ProbeTimeout != 250*time.Millisecond {
		t.Errorf("ProbeTimeout = %v, want 250ms", swimCfg.ProbeTimeout)
	}
	if swimCfg.ProtocolPeriod != 500*time.Millisecond {
		t.Errorf("ProtocolPeriod = %v, want 500ms", swimCfg.ProtocolPeriod)
	}
}

func TestToSWIMConfigRejectsBadDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProbeTimeout = "not-a-duration"

	if _, err := cfg.toSWIMConfig(); err == nil {
		t.Error("toSWIMConfig() error = nil, want error for malformed duration")
	}
}

func TestParsePeerSeeds(t *testing.T) {
	seeds, err := parsePeerSeeds([]string{"2@10.0.0.2:7000", "3@10.0.0.3:7000"})
	if err != nil {
		t.Fatalf("parsePeerSeeds() error: %v", err)
	}
	if len(seeds) != 2 || seeds[0].ID != 2 || seeds[1].Host != "10.0.0.3" {
		t.Errorf("seeds = %+v", seeds)
	}
}

func TestParsePeerSeedsRejectsMalformed(t *testing.T) {
	cases := []string{"no-at-sign", "2@no-colon", "x@host:7000", "2@host:notaport"}
	for _, c := range cases {
		if _, err := parsePeerSeeds([]string{c}); err == nil {
			t.Errorf("parsePeerSeeds(%q) error = nil, want error", c)
		}
	}
}
