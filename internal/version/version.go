// Package version holds build metadata injected via ldflags.
package version

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String returns a single-line build description for startup logs.
func String() string {
	return Version + " (" + Commit + ", built " + Date + ")"
}
