// Package version reports which lexdex build is running. Release builds set
// Version, Commit and Date with -ldflags "-X"; other builds fall back to the
// VCS stamp the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime/debug"
)

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the build description printed by `lexctl version` and logged at startup.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Dirty   bool   `json:"dirty,omitempty"`
}

// Get returns the build info, filling unset commit and date from the
// embedded VCS settings.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = fromSettings(info, bi.Settings)
	}
	return info
}

func fromSettings(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	return info
}

// String renders the build in one line, e.g. "lexdex 1.4.0 (3f0c2ab, 2026-05-01T12:00:00Z)".
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if i.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("lexdex %s (%s, %s)", i.Version, commit, i.Date)
}
