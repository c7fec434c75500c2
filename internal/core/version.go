package core

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Version identifies the tunnlto build. Release builds set it with
//
//	-ldflags "-X github.com/TunnlTo/desktop-app/internal/core.Version=v1.4.0"
//
// otherwise it is derived from the embedded build info.
var Version string

func init() {
	if Version != "" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		Version = "devel"
		return
	}
	Version = versionFromBuildInfo(info)
}

// versionFromBuildInfo prefers a tagged module version and falls back to
// the VCS revision stamped by the go command.
func versionFromBuildInfo(info *debug.BuildInfo) string {
	if v := info.Main.Version; v != "" && v != "(devel)" && !isPseudoVersion(v) {
		return v
	}

	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return "devel"
	}

	version := fmt.Sprintf("devel-%.7s", revision)
	if dirty {
		version += "-dirty"
	}
	return version
}

// FormatVersion strips the "v" prefix of tagged releases for display.
func FormatVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// isPseudoVersion reports whether v ends in the 12 hex digit commit hash
// of a Go pseudo-version, ignoring build metadata.
func isPseudoVersion(v string) bool {
	v, _, _ = strings.Cut(v, "+")
	i := strings.LastIndex(v, "-")
	if i < 0 {
		return false
	}
	hash := v[i+1:]
	if len(hash) != 12 {
		return false
	}
	return strings.Trim(hash, "0123456789abcdef") == ""
}
