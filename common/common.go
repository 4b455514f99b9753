// Package common holds process-wide constants and logger setup shared by the binaries.
package common

// PackageName prefixes metric names.
const PackageName = "multistorage"

// Version is overridden at build time with -ldflags "-X github.com/danielkbx/multi-storage/common.Version=...".
var Version = "dev"
