// Package build holds build-time metadata, overridden at link time.
package build

var (
	// ProjectName is the canonical name of this project.
	ProjectName = "driftdb"

	// Version is the release version, set via ldflags.
	Version = "dev"

	// Commit is the git commit the binary was built from, set via ldflags.
	Commit = "none"

	// Date is the build timestamp, set via ldflags.
	Date = "unknown"
)
