// Package buildinfo holds build-time metadata injected with -ldflags.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/tphakala/xferwatch/internal/buildinfo.Version=..."
var (
	Version   = ""
	BuildDate = ""
)

// Info is the build metadata of the running binary.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build metadata, falling back to the module version recorded
// by the Go toolchain when no version was injected.
func Get() Info {
	info := Info{Version: Version, BuildDate: BuildDate, GoVersion: UnknownValue}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	if info.Version == "" {
		info.Version = UnknownValue
	}
	if info.BuildDate == "" {
		info.BuildDate = UnknownValue
	}
	return info
}

// Release returns the release name reported to error telemetry.
func (i Info) Release() string {
	return "xferwatch@" + i.Version
}

// String implements fmt.Stringer.
func (i Info) String() string {
	return fmt.Sprintf("xferwatch %s (built %s, %s)", i.Version, i.BuildDate, i.GoVersion)
}
