package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/virtbridge/vmcourier/internal/flagx"
	"github.com/virtbridge/vmcourier/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It
// relies on timex.Duration so JSON can specify durations either as
// strings like "3s" or as integer nanoseconds. Fields are pointers so
// that keys absent from the file leave the defaults untouched.
type JsonConfig struct {
	Endpoint     *string         `json:"endpoint"`
	CID          *uint32         `json:"cid"`
	Port         *uint32         `json:"port"`
	FragmentSize *int            `json:"fragment_size"`
	Timeout      *timex.Duration `json:"timeout"`
	DialRetries  *int            `json:"dial_retries"`
	DialBackoff  *timex.Duration `json:"dial_backoff"`
	JournalPath  *string         `json:"journal_path"`
	LogLevel     *string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from a JSON file named
// by the -c or -config flags. Read and unmarshal errors panic.
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
	if jc.CID != nil {
		cfg.CID = *jc.CID
	}
	if jc.Port != nil {
		cfg.Port = *jc.Port
	}
	if jc.FragmentSize != nil {
		cfg.FragmentSize = *jc.FragmentSize
	}
	if jc.Timeout != nil {
		cfg.Timeout = time.Duration(jc.Timeout.Duration)
	}
	if jc.DialRetries != nil {
		cfg.DialRetries = *jc.DialRetries
	}
	if jc.DialBackoff != nil {
		cfg.DialBackoff = time.Duration(jc.DialBackoff.Duration)
	}
	if jc.JournalPath != nil {
		cfg.JournalPath = *jc.JournalPath
	}
	if jc.LogLevel != nil {
		cfg.LogLevel = *jc.LogLevel
	}
}
