package wshub

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// hubError is the concrete error type backing every sentinel below. It
// follows the host module's own domain-error pattern: a stable message
// and an Is() that matches any hubError carrying the same message (the
// target is first unwrapped with errors.Cause). There is no retriable
// flag: a caller that hit NotStarted or InvalidPath already has its
// answer, there is nothing to retry.
type hubError struct {
	msg string
}

func newHubError(msg string) hubError {
	return hubError{msg: msg}
}

func (e hubError) Error() string { return e.msg }

func (e hubError) Is(err error) bool {
	cause := errors.Cause(err)
	if c, ok := cause.(hubError); ok {
		return c.msg == e.msg
	}
	return false
}

// Error kinds surfaced by the core. Every kind except ErrInsertRace is
// an ordinary operational outcome: callers observe it as a
// false/nil/empty return value, never as a propagated error — see the
// per-operation doc comments in manager.go for which result each one
// becomes.
var (
	ErrNotStarted         = newHubError("wshub: manager is not in Start state")
	ErrInvalidPath        = newHubError("wshub: path is empty, not absolute, or contains query/fragment")
	ErrInvalidControlData = newHubError("wshub: control frame payload exceeds 125 bytes")
	ErrNullData           = newHubError("wshub: send data is nil")
	ErrInvalidWaitTime    = newHubError("wshub: wait-time must be positive")

	// ErrInsertRace guards the invariant Manager.Add's single critical
	// section exists to hold: a path already inserted while the lock
	// was held for this very insert. Correct use can never trigger it;
	// it exists so a future regression in that locking discipline fails
	// loudly instead of silently double-inserting a host. Unlike every
	// other error above, this one is fatal: Manager.Add panics with it
	// wrapped for a full stack trace, and cmd/wshub-server's recover
	// point logs it at Fatal before the process exits.
	ErrInsertRace = newHubError("wshub: path inserted concurrently despite try-insert (registry invariant violated)")
)

// combine folds multiple per-host/per-session booleans into the single
// logical AND the fan-out discipline requires, using the same
// samber/lo reduction idiom the host module leans on elsewhere.
func combine(results []bool) bool {
	return lo.EveryBy(results, func(ok bool) bool { return ok })
}
