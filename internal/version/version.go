package version

import "fmt"

var (
	// Version is set with -ldflags at release time.
	Version = "dev"
	Commit  = "unknown"
	// BuildDate is RFC3339 when injected.
	BuildDate = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("penwatch %s (commit %s, built %s)", Version, Commit, BuildDate)
}
