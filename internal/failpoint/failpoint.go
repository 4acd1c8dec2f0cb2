//go:build !failpoint

// Package failpoint injects faults into named points of the storage engine.
// The default build compiles every hook to a no-op; build with -tags=failpoint
// to make them configurable from tests.
package failpoint

import "errors"

// ErrInjected is returned by a hook configured to fail.
var ErrInjected = errors.New("failpoint: injected error")

// Hit reports the injected error for name, if any. Always nil in this build.
func Hit(name string) error {
	return nil
}

// Enable arms a failpoint. No-op in this build.
func Enable(name string, cfg Config) {}

// Disable disarms a failpoint. No-op in this build.
func Disable(name string) {}

// DisableAll disarms every failpoint. No-op in this build.
func DisableAll() {}

// HitCount returns how often name was evaluated while armed. Always 0 in this build.
func HitCount(name string) int64 {
	return 0
}

// Enabled reports whether hooks are compiled in.
func Enabled() bool {
	return false
}
