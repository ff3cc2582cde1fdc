// Package config handles configuration for the guest agent: defaults,
// an optional JSON overlay and command-line flags, later sources
// overriding earlier ones.
package config

import (
	"fmt"

	"github.com/virtbridge/vmcourier/internal/wire"
)

// Config holds runtime settings for the courier agent.
//
// Fields:
//   - Endpoint: listen endpoint (vsock://[cid]:port, tcp://host:port,
//     unix:///path).
//   - FragmentSize: payload bound for streamed fragments, bytes.
//   - LogLevel: debug, info, warn or error.
//   - LogFormat: json or text.
type Config struct {
	Endpoint     string
	FragmentSize int
	LogLevel     string
	LogFormat    string
}

// LoadDefaults populates c with the production guest setup: any-CID
// vsock listen on the well-known port, JSON logs.
func (c *Config) LoadDefaults() {
	c.Endpoint = fmt.Sprintf("vsock://:%d", wire.DefaultPort)
	c.FragmentSize = wire.DefaultFragmentSize
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// LoadConfig constructs a Config, applies defaults, then overlays
// values from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
