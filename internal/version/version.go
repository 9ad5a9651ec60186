// Package version provides build-time version information for tvgrid.
//
// Version, Commit, and Date are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/tvgrid/internal/version.Version=x.y.z \
//	                   -X github.com/jmylchreest/tvgrid/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/jmylchreest/tvgrid/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

// Build-time variables injected via ldflags.
var (
	// Version is the semantic version following SemVer 2.0.0.
	// Release format: "1.2.3"
	// Prerelease format: "1.2.3-SNAPSHOT.abc1234" (next patch + SNAPSHOT + short SHA)
	Version = "dev"

	// Commit is the full git commit SHA.
	Commit = "unknown"

	// Date is the build timestamp in RFC3339 format.
	Date = "unknown"

	// Branch is the git branch the build was produced from.
	Branch = "unknown"

	// TreeState is "clean" or "dirty" depending on uncommitted changes
	// at build time.
	TreeState = "unknown"
)

// GoVersion is the Go runtime version.
var GoVersion = runtime.Version()

// ApplicationName is the canonical name of this application.
const ApplicationName = "tvgrid"

// Info contains structured version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	CommitSHA string `json:"commit_sha,omitempty"`
	Date      string `json:"date"`
	Branch    string `json:"branch,omitempty"`
	TreeState string `json:"tree_state,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo returns all version information as a structured type.
func GetInfo() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		Branch:    Branch,
		TreeState: TreeState,
		GoVersion: GoVersion,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if Commit != "unknown" && len(Commit) >= 8 {
		info.CommitSHA = Commit[:8]
	}
	return info
}

// displaySHA is the short commit for human-readable output, with a "*"
// suffix when the build tree was dirty.
func displaySHA() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	sha := Commit[:8]
	if TreeState == "dirty" {
		sha += "*"
	}
	return sha
}

// String returns a human-readable version string.
func String() string {
	info := GetInfo()
	sha := displaySHA()
	if sha == "" {
		return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
	}
	s := fmt.Sprintf("%s version %s (commit: %s, built: %s", ApplicationName, info.Version, sha, info.Date)
	if Branch != "unknown" && Branch != "" {
		s += fmt.Sprintf(", branch: %s", Branch)
	}
	return s + fmt.Sprintf(", %s, %s)", info.GoVersion, info.Platform)
}

// Short returns a short version string suitable for CLI --version output.
// The application name is omitted; Cobra prefixes it.
func Short() string {
	if sha := displaySHA(); sha != "" {
		return fmt.Sprintf("%s (%s)", Version, sha)
	}
	return Version
}

// JSON returns version information as indented JSON.
func JSON() string {
	b, _ := json.MarshalIndent(GetInfo(), "", "  ")
	return string(b)
}

// UserAgent returns a User-Agent string for HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", ApplicationName, Version)
}

// IsSnapshot returns true if this is a snapshot/prerelease build.
// Snapshots use SemVer prerelease format: X.Y.Z-SNAPSHOT.commitsha
func IsSnapshot() bool {
	return Version == "dev" || strings.Contains(Version, "-SNAPSHOT")
}

// IsRelease returns true if this is a tagged release build.
func IsRelease() bool {
	return !IsSnapshot() && Version != "dev"
}
