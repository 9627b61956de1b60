package version

// VERSION and COMMIT are overridden at build time, e.g.
// -ldflags "-X github.com/JiscSD/ram-relationships/version.VERSION=v1.2.0".
var (
	VERSION = "dev"
	COMMIT  = "unknown"
)
