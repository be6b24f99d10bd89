// Package version provides build information for freshshell.
package version

// Version is the freshshell release. Overridden at build time using ldflags.
var Version = "development"

// Commit is the git commit hash. Overridden at build time using ldflags.
var Commit = "unknown"

// String returns the full version string including the commit hash if available.
func String() string {
	if Commit != "unknown" {
		return Version + "+" + Commit
	}
	return Version
}

// UserAgent identifies the update agent on outgoing requests.
func UserAgent() string {
	return "freshshell/" + String()
}
