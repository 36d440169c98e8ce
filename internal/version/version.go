// Package version carries build metadata stamped via -ldflags.
package version

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
