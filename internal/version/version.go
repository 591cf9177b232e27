// Package version holds build metadata for the toonify binary, set with
// -ldflags "-X github.com/54b3r/toonify-go/internal/version.Version=v0.3.0".
// Commit and BuildDate are set the same way.
package version

import "fmt"

// Version is the semantic version, "dev" for local builds.
var Version = "dev"

// Commit is the short git SHA, "unknown" when not stamped.
var Commit = "unknown"

// BuildDate is the UTC build date in RFC3339, "unknown" when not stamped.
var BuildDate = "unknown"

// String formats the build metadata for the version command and logs.
func String() string {
	return fmt.Sprintf("toonify %s (commit %s, built %s)", Version, Commit, BuildDate)
}

// UserAgent is sent on outbound catalog requests.
func UserAgent() string {
	return "toonify/" + Version
}
