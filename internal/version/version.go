// Package version holds the core version namespace. Cache entries written
// under one version are invisible to any other, so bumping this invalidates
// every memoized attack run at once.
package version

// Core is the harness core version.
const Core = "0.4.0"
