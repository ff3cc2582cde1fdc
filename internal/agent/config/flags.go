package config

import (
	"flag"
	"os"

	"github.com/virtbridge/vmcourier/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   listen endpoint (default from Config)
//	-f int      fragment size in bytes
//	-l string   log level (debug, info, warn, error)
//	-o string   log format (json, text)
//
// The function filters os.Args to only the flags it knows about, using
// flagx.FilterArgs, so the -c/-config flags of the JSON overlay do not
// interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-f", "-l", "-o"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.Endpoint, "a", cfg.Endpoint, "endpoint to listen on")
	fs.IntVar(&cfg.FragmentSize, "f", cfg.FragmentSize, "fragment size in bytes")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "o", cfg.LogFormat, "log format (json or text)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
