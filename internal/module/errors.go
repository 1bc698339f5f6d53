package module

import (
	"fmt"

	"github.com/sensorhost/sensorhost/internal/apperr"
)

// LoadError describes a failure to load a driver shared library: missing
// file, unresolved symbol, or a failed init. All of these are fatal
// per spec.md §7 — no resources are allocated on the host side when one
// occurs. A version mismatch is reported as VersionMismatchError instead.
type LoadError struct {
	Path string
	Op   string // e.g. "open", "symbol:mod_version", "symbol:functions", "init"
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load module %q: %s: %v", e.Path, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Kind implements apperr's kinder interface. A version mismatch and a
// missing symbol are both caller-facing "your driver binary is bad"
// conditions, so they classify as InvalidInput per spec.md §8 property 7.
func (e *LoadError) Kind() apperr.Kind {
	return apperr.InvalidInput
}

// VersionMismatchError is returned when a driver's mod_version() does not
// equal ABIVersion.
type VersionMismatchError struct {
	Got uint8
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("lib version '%d' doesn't match current supported version '%d'", e.Got, ABIVersion)
}

func (e *VersionMismatchError) Kind() apperr.Kind { return apperr.InvalidInput }

// CallError wraps a failure invoking a driver function (as opposed to a
// ComError, which is the driver's own non-fatal status code).
type CallError struct {
	Func string
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s: %v", e.Func, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Kind() apperr.Kind { return apperr.Internal }
