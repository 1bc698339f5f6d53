// Package version carries build-time identification, overridden via
// -ldflags at release build time; the zero-value defaults are for
// unreleased development builds.
package version

import "fmt"

var (
	// Version is the semantic version, e.g. "1.4.0".
	Version = "dev"
	// Commit is the short git commit hash.
	Commit = "none"
	// BuildDate is the RFC3339 build timestamp.
	BuildDate = "unknown"
)

// Short returns the semantic version alone, suitable for a response
// header or a log field.
func Short() string {
	return Version
}

// Info returns a one-line human-readable summary for --version output.
func Info() string {
	return fmt.Sprintf("sensorhostd %s (commit %s, built %s)", Version, Commit, BuildDate)
}

// Map returns the build identifiers as a string map, for embedding in a
// JSON health response.
func Map() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     Commit,
		"build_date": BuildDate,
	}
}
