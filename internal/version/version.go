// Package version contains build version information.
package version

import "fmt"

// Build metadata, set at build time via
// -ldflags "-X github.com/bissquit/riskengine/internal/version.Version=...".
var (
	Version   = "0.0.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the build metadata reported by /version and the CLI.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{Version: Version, Commit: GitCommit, BuildDate: BuildDate}
}

func (i Info) String() string {
	return fmt.Sprintf("riskengine %s (commit %s, built %s)", i.Version, i.Commit, i.BuildDate)
}
