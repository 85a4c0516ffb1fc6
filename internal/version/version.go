// Package version holds build metadata injected with -ldflags:
//
//	go build -ldflags "-X github.com/PulfordJ/lastsignal/internal/version.Version=v1.2.0"
package version

// Version is the release version, "dev" for local builds.
var Version = "dev"

// Build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the version for --version output.
func String() string {
	if GitCommit == "unknown" {
		return Version
	}
	return Version + " (" + GitCommit + ", " + BuildTime + ")"
}
