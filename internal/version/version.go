// Package version provides build-time version information.
package version

import (
	"fmt"
	"runtime/debug"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X github.com/javanstorm/perftune/internal/version.Version=1.0.0 \
//	                   -X github.com/javanstorm/perftune/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/javanstorm/perftune/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	// Version is the semantic version of the application.
	Version = "dev"

	// Commit is the git commit SHA at build time.
	Commit = "unknown"

	// BuildDate is the date when the binary was built.
	BuildDate = "unknown"
)

// String renders the version block printed by `perftune version`.
func String() string {
	commit := Commit
	if commit == "unknown" {
		// go install builds carry the VCS revision in the build info
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
				}
			}
		}
	}
	return fmt.Sprintf("perftune %s\n  Commit:     %s\n  Build Date: %s\n", Version, commit, BuildDate)
}
