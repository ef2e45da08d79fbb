// Package version carries build metadata, set with -ldflags at release time:
//
//	go build -ldflags "-X github.com/banshee-data/lanepilot/internal/version.Version=v0.3.0"
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Info is the build metadata reported by -version and /api/status.
type Info struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

// Get returns the build metadata. When the linker did not set GitSHA or
// BuildTime, the VCS stamp embedded by the go tool is used instead.
func Get() Info {
	info := Info{Version: Version, GitSHA: GitSHA, BuildTime: BuildTime}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return fillFromSettings(info, bi.Settings)
}

func fillFromSettings(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitSHA == "unknown" && s.Value != "" {
				info.GitSHA = s.Value
				if len(info.GitSHA) > 12 {
					info.GitSHA = info.GitSHA[:12]
				}
			}
		case "vcs.time":
			if info.BuildTime == "unknown" && s.Value != "" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("lanepilot %s (%s, built %s)", i.Version, i.GitSHA, i.BuildTime)
}
