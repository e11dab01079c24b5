package version

// Version is the current version of the analysis engine. It is stamped into
// every feature snapshot so later releases can tell which engine produced a
// row. Set at build time using ldflags:
// -ldflags "-X github.com/quantlens/eod-engine/internal/version.Version=1.2.3"
// The default value "main" indicates a development build.
var Version = "v1.4.0"

// GetVersion returns the current engine version.
func GetVersion() string {
	return Version
}
