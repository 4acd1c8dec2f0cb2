//go:build failpoint

// Package failpoint injects faults into named points of the storage engine.
// This is the armed implementation used with -tags=failpoint.
package failpoint

import (
	"errors"
	"sync"
)

// ErrInjected is returned by a hook configured to fail.
var ErrInjected = errors.New("failpoint: injected error")

type point struct {
	cfg  Config
	hits int64
}

var (
	mu     sync.Mutex
	points = make(map[string]*point)
)

// Hit evaluates the failpoint name and returns the injected error if it fires.
func Hit(name string) error {
	mu.Lock()
	defer mu.Unlock()

	p, ok := points[name]
	if !ok {
		return nil
	}
	p.hits++

	fail := false
	switch p.cfg.Mode {
	case Always:
		fail = true
	case Once:
		fail = true
		delete(points, name)
	case Times:
		fail = p.hits <= int64(p.cfg.N)
		if p.hits >= int64(p.cfg.N) {
			delete(points, name)
		}
	case After:
		fail = p.hits > int64(p.cfg.N)
	default:
		fail = true
	}
	if !fail {
		return nil
	}
	if p.cfg.Err != nil {
		return p.cfg.Err
	}
	return ErrInjected
}

// Enable arms name with cfg, resetting its hit counter.
func Enable(name string, cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	points[name] = &point{cfg: cfg}
}

// Disable disarms name.
func Disable(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(points, name)
}

// DisableAll disarms every failpoint.
func DisableAll() {
	mu.Lock()
	defer mu.Unlock()
	points = make(map[string]*point)
}

// HitCount returns how often name was evaluated while armed.
func HitCount(name string) int64 {
	mu.Lock()
	defer mu.Unlock()
	if p, ok := points[name]; ok {
		return p.hits
	}
	return 0
}

// Enabled reports whether hooks are compiled in.
func Enabled() bool {
	return true
}
