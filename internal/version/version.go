// Package version exposes build metadata injected with -ldflags.
package version

var (
	Version   = "dev"
	CommitSHA = "unknown"
)

// String returns a short human readable version string.
func String() string {
	return Version + " (" + CommitSHA + ")"
}
