// Package version provides build-time version information for
// gotrs-livesync. The variables are set at build time via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables set via ldflags
var (
	// Version is the semantic version or branch name if not a tagged build
	Version = "dev"

	// GitCommit is the short git commit SHA
	GitCommit = "unknown"

	// BuildDate is the build timestamp
	BuildDate = "unknown"
)

// Info contains structured version information.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

// GetInfo returns the current version info.
func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// String returns a human-readable version string, e.g. "v0.5.1 (abc1234)".
func String() string {
	return fmt.Sprintf("%s (%s)", Version, GitCommit)
}

// UserAgent is the User-Agent sent to the ticket API.
func UserAgent() string {
	return "gotrs-livesync/" + Version
}
