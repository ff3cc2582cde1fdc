// Package config handles configuration for courierctl: defaults plus
// an optional JSON overlay (-c/-config). Command-line flags sit on top
// of it in the CLI layer, which uses these values as flag defaults.
package config

import (
	"time"

	"github.com/virtbridge/vmcourier/internal/netx"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// Config holds runtime settings for courierctl.
//
// Fields:
//   - Endpoint: full endpoint URL; when set it wins over CID/Port.
//   - CID, Port: vsock coordinates of the guest agent.
//   - FragmentSize: payload bound for streamed fragments, bytes.
//   - Timeout: per-operation deadline; zero means none.
//   - DialRetries / DialBackoff: reachability probe before the first
//     call (exponential backoff base).
//   - JournalPath: operation journal location; empty selects the
//     default under the user state directory.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	Endpoint     string
	CID          uint32
	Port         uint32
	FragmentSize int
	Timeout      time.Duration
	DialRetries  int
	DialBackoff  time.Duration
	JournalPath  string
	LogLevel     string
}

// LoadDefaults populates c with sensible defaults. CID 3 is the first
// guest context id a hypervisor hands out.
func (c *Config) LoadDefaults() {
	c.Endpoint = ""
	c.CID = 3
	c.Port = wire.DefaultPort
	c.FragmentSize = wire.DefaultFragmentSize
	c.Timeout = 0
	c.DialRetries = 5
	c.DialBackoff = 200 * time.Millisecond
	c.JournalPath = ""
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays
// values from JSON if a config file was named.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	return cfg
}

// DialEndpoint resolves the endpoint to dial, preferring the URL form
// over the cid/port pair.
func (c *Config) DialEndpoint() (netx.Endpoint, error) {
	if c.Endpoint != "" {
		return netx.ParseEndpoint(c.Endpoint)
	}
	return netx.Endpoint{Scheme: "vsock", CID: c.CID, Port: c.Port}, nil
}
