package failpoint

// Mode selects when an armed failpoint fails.
type Mode int

const (
	// Always fails on every hit.
	Always Mode = iota
	// Once fails on the first hit, then disarms itself.
	Once
	// Times fails on the first N hits, then disarms itself.
	Times
	// After passes the first N hits and fails from then on.
	After
)

// Config describes how a failpoint behaves once armed.
type Config struct {
	Mode Mode
	N    int
	// Err overrides ErrInjected when set.
	Err error
}

// AlwaysError fails every hit.
var AlwaysError = Config{Mode: Always}

// FailOnce fails the next hit only.
var FailOnce = Config{Mode: Once}

// FailTimes fails the next n hits.
func FailTimes(n int) Config {
	return Config{Mode: Times, N: n}
}

// FailAfter lets n hits pass, then fails.
func FailAfter(n int) Config {
	return Config{Mode: After, N: n}
}
