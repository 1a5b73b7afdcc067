// Package version holds build-time version information, overridden via
// -ldflags at release build time.
package version

var (
	// Version is the service's release version, e.g. "1.4.2".
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "unknown"
)
