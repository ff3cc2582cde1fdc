// Package buildinfo exposes version metadata stamped into the binary
// at build time:
//
//	go build -ldflags "-X github.com/virtbridge/vmcourier/internal/buildinfo.buildVersion=v1.2.3"
package buildinfo

import (
	"fmt"
	"io"
)

var (
	buildVersion = "N/A"
	buildDate    = "N/A"
	buildCommit  = "N/A"
)

// Version returns the stamped version string.
func Version() string {
	return buildVersion
}

// PrintBuildData writes the build metadata to w, one line per field.
func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", buildVersion)
	fmt.Fprintf(w, "Build date: %s\n", buildDate)
	fmt.Fprintf(w, "Build commit: %s\n", buildCommit)
}
