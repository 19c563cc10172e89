// Package version holds the application version, overridable at build time.
package version

// Version is set via -ldflags "-X github.com/jmercier/folio/internal/version.Version=..."
var Version = "dev"
