package engine

import (
	stderrors "errors"

	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasm-bridge/errors"
)

// Classify maps an error returned by a guest call to the bridge taxonomy.
// Budget exhaustion wins over everything else, so a budget error raised in
// a nested call is reported as such even when a host callback sits between.
// Host callback failures come next; anything else is a guest trap in fn.
func Classify(fn string, err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if stderrors.Is(err, errors.ErrBudgetExceeded) {
		if find(err, errors.KindBudgetExceeded, &e) {
			return e
		}
		return err
	}
	if stderrors.Is(err, errors.ErrHostCallback) {
		if find(err, errors.KindHostCallback, &e) {
			return e
		}
		return err
	}
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		return errors.New(errors.PhaseHost, errors.KindHostCallback).
			Detail("guest exited with code %d", exit.ExitCode()).
			Cause(err).
			Build()
	}
	return errors.GuestTrap(fn, err)
}

// find returns the outermost *errors.Error of kind k in err's chain.
func find(err error, k errors.Kind, out **errors.Error) bool {
	for err != nil {
		if e, ok := err.(*errors.Error); ok && e.Kind == k {
			*out = e
			return true
		}
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				if find(inner, k, out) {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	return false
}
