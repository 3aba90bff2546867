// Package version reports the ccw build version.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is set at build time:
// -ldflags="-X github.com/ccw-dev/ccw/internal/version.Version=v1.0.0"
var Version = ""

// Get returns the version string, falling back to module build info and
// finally to the VCS revision for untagged builds.
func Get() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
				return fmt.Sprintf("dev-%s", setting.Value[:7])
			}
		}
	}
	return "dev"
}
