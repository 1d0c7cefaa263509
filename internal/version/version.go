// Package version carries build metadata injected at link time via
// -ldflags "-X github.com/banshee-data/dronetrace/internal/version.Version=...".
package version

var (
	// Version is the release version of the decoder.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for -version output.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
