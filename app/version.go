package app

import "runtime/debug"

// buildVersion returns the version of the main module, as recorded by the Go
// toolchain at build time.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
