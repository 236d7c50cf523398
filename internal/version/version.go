package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Info is the build metadata reported by /healthz.
type Info struct {
	Version   string `json:"version"`
	GitSHA    string `json:"gitSha"`
	BuildTime string `json:"buildTime"`
}

// Current returns the linked-in build metadata.
func Current() Info {
	return Info{Version: Version, GitSHA: GitSHA, BuildTime: BuildTime}
}

// String formats the build metadata for -version output.
func String() string {
	return fmt.Sprintf("balloontrack %s (%s, built %s)", Version, GitSHA, BuildTime)
}
