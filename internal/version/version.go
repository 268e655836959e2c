// Package version provides build information for tabula binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const (
	unknownValue     = "unknown"
	commitHashLength = 7

	arrowModule = "github.com/apache/arrow-go/v18"
)

// Build-time variables set by ldflags
var (
	Version   = "dev"
	BuildDate = unknownValue
	GitCommit = unknownValue
	GoVersion = runtime.Version()
)

// BuildInfo contains build information
type BuildInfo struct {
	Version      string `json:"version"`
	BuildDate    string `json:"build_date"`
	GitCommit    string `json:"git_commit"`
	GoVersion    string `json:"go_version"`
	Dirty        bool   `json:"dirty"`
	Module       string `json:"module"`
	ArrowVersion string `json:"arrow_version"`
}

// Info returns the build information of the running binary
func Info() BuildInfo {
	info := BuildInfo{
		Version:      Version,
		BuildDate:    BuildDate,
		GitCommit:    GitCommit,
		GoVersion:    GoVersion,
		Dirty:        strings.HasSuffix(GitCommit, "-dirty"),
		ArrowVersion: unknownValue,
	}

	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		info.Module = buildInfo.Main.Path
		if v := dependencyVersion(buildInfo, arrowModule); v != "" {
			info.ArrowVersion = v
		}
	}
	return info
}

func dependencyVersion(bi *debug.BuildInfo, path string) string {
	for _, dep := range bi.Deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil {
			return dep.Replace.Version
		}
		return dep.Version
	}
	return ""
}

// Short returns "tabula <version>".
func (b BuildInfo) Short() string {
	return "tabula " + b.Version
}

// String returns a multi-line version report
func (b BuildInfo) String() string {
	var sb strings.Builder
	sb.WriteString(b.Short())
	if b.Dirty {
		sb.WriteString(" (dirty)")
	}
	sb.WriteString("\n")

	if b.BuildDate != unknownValue {
		fmt.Fprintf(&sb, "Build Date: %s\n", b.BuildDate)
	}
	if b.GitCommit != unknownValue {
		commit := strings.TrimSuffix(b.GitCommit, "-dirty")
		if len(commit) > commitHashLength {
			commit = commit[:commitHashLength]
		}
		fmt.Fprintf(&sb, "Git Commit: %s\n", commit)
	}
	fmt.Fprintf(&sb, "Go Version: %s\n", b.GoVersion)
	fmt.Fprintf(&sb, "Arrow: %s\n", b.ArrowVersion)
	return sb.String()
}

// IsRelease returns true if this is a release version (not dev or pre-release)
func IsRelease() bool {
	return Version != "dev" && !strings.Contains(Version, "-")
}
