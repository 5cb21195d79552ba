// Package version reports build information for hybridrag.
package version

import (
	"fmt"
	"runtime"
)

// Name is the program name used in version strings and MCP handshakes.
const Name = "hybridrag"

// Version is set with -ldflags "-X github.com/Aman-CERP/hybridrag/pkg/version.Version=..."
// and defaults to dev.
var Version = "dev"

// Build information set via ldflags.
var (
	Commit = "unknown"
	Date   = "unknown"

	// GoVersion is the toolchain the binary was built with.
	GoVersion = runtime.Version()
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns the version with all build info on one line.
func String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s, %s/%s)",
		Name, Version, Commit, Date, GoVersion, runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version string.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
