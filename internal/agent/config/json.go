package config

import (
	"encoding/json"
	"os"

	"github.com/virtbridge/vmcourier/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Fields
// are pointers so that keys absent from the file leave the defaults
// untouched.
type JsonConfig struct {
	Endpoint     *string `json:"endpoint"`
	FragmentSize *int    `json:"fragment_size"`
	LogLevel     *string `json:"log_level"`
	LogFormat    *string `json:"log_format"`
}

// parseJson overlays Config with values loaded from a JSON file. The
// file path comes from the -c or -config flags via
// flagx.JsonConfigFlags; with no flag set nothing is loaded. Read and
// unmarshal errors panic, the same as malformed flags.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.Endpoint != nil {
		cfg.Endpoint = *jc.Endpoint
	}
	if jc.FragmentSize != nil {
		cfg.FragmentSize = *jc.FragmentSize
	}
	if jc.LogLevel != nil {
		cfg.LogLevel = *jc.LogLevel
	}
	if jc.LogFormat != nil {
		cfg.LogFormat = *jc.LogFormat
	}
}
