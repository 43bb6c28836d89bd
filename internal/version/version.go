package version

// Version is the release tag stamped by the build with
// -ldflags "-X github.com/joshp123/electrolux-bridge/internal/version.Version=...",
// else 'dev'.
var Version = "dev"
