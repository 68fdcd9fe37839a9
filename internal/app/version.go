package app

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Release builds stamp these with
//
//	-ldflags "-X github.com/musicflow/musicflow/internal/app.version=v1.2.0 ..."
//
// Unstamped builds fall back to the VCS settings the go command embeds.
var (
	version   string
	commit    string
	buildDate string
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	// Dirty is set when the binary was built from a modified work tree.
	Dirty bool
}

// ReadBuildInfo merges the ldflags stamp with the module build info.
func ReadBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = info.withModule(bi)
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

func (b BuildInfo) withModule(bi *debug.BuildInfo) BuildInfo {
	if b.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		b.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.BuildDate == "" {
				b.BuildDate = s.Value
			}
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	return b
}

// ShortCommit is the first 7 characters of the commit hash.
func (b BuildInfo) ShortCommit() string {
	if len(b.Commit) > 7 {
		return b.Commit[:7]
	}
	return b.Commit
}

// String formats the build for --version output and the startup log line.
func (b BuildInfo) String() string {
	var details []string
	if c := b.ShortCommit(); c != "" {
		if b.Dirty {
			c += "-dirty"
		}
		details = append(details, c)
	}
	if b.BuildDate != "" {
		details = append(details, b.BuildDate)
	}
	if b.GoVersion != "" {
		details = append(details, b.GoVersion)
	}
	if len(details) == 0 {
		return "MusicFlow " + b.Version
	}
	return fmt.Sprintf("MusicFlow %s (%s)", b.Version, strings.Join(details, ", "))
}
