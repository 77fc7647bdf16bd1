// Package version reports the goldtier build version.
package version

import "runtime/debug"

// version is set at build time via -ldflags "-X goldtier/internal/version.version=...".
var version = "dev" //nolint:gochecknoglobals // ldflags requires package-level var

// String returns the ldflags version, else the module version recorded by
// "go install", else "dev".
func String() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}
