// Package driver invokes an entry point repeatedly, re-arming the store's
// budget before every call.
//
// Invocations share state: whatever one call leaves in memory or globals is
// seen by the next. Only their budgets are independent. The driver never
// retries; the first error ends a run.
package driver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/epoch"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/runtime"
)

// DefaultTicks is the budget each call gets unless WithTicks is given.
const DefaultTicks = 1000

// Driver calls one zero-argument, zero-result export.
type Driver struct {
	fn     *runtime.Func
	budget *epoch.Budget
	onCall func(n int, err error)
	ticks  uint64
}

// Option configures a Driver.
type Option func(*Driver)

// WithTicks sets the budget armed before each call.
func WithTicks(ticks uint64) Option {
	return func(d *Driver) { d.ticks = ticks }
}

// OnCall registers fn to run after every call with the number of completed
// calls so far and the call's error.
func OnCall(fn func(n int, err error)) Option {
	return func(d *Driver) { d.onCall = fn }
}

// New returns a driver for the export entry of inst. The export must be a
// function without parameters or results. Calls are armed on the budget of
// the store inst belongs to.
func New(inst *runtime.Instance, entry string, opts ...Option) (*Driver, error) {
	fn, err := inst.Func(entry)
	if err != nil {
		return nil, err
	}
	if ft := fn.Type(); len(ft.Params) != 0 || len(ft.Results) != 0 {
		return nil, errors.TypeMismatch(errors.PhaseRuntime, []string{entry}, "func()", ft.String())
	}
	d := &Driver{fn: fn, budget: inst.Store().Budget(), ticks: DefaultTicks}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Ticks returns the budget armed before each call.
func (d *Driver) Ticks() uint64 {
	return d.ticks
}

// Call arms the budget and invokes the entry point once.
func (d *Driver) Call(ctx context.Context) error {
	d.budget.Arm(d.ticks)
	_, err := d.fn.Invoke(ctx)
	return err
}

// Report summarises a run.
type Report struct {
	Iterations int
	Elapsed    time.Duration
}

// PerCall returns the mean time per completed call.
func (r Report) PerCall() time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return r.Elapsed / time.Duration(r.Iterations)
}

// Run calls the entry point n times, or until ctx is done when n is 0. It
// stops at the first failing call and returns its error next to the count
// of calls that completed. A run with n > 0 cut short by ctx returns the
// context error.
func (d *Driver) Run(ctx context.Context, n int) (Report, error) {
	if n < 0 {
		return Report{}, errors.InvalidInput(errors.PhaseRuntime, "iteration count is negative")
	}
	var rep Report
	start := time.Now()

	for n == 0 || rep.Iterations < n {
		if err := ctx.Err(); err != nil {
			rep.Elapsed = time.Since(start)
			if n == 0 {
				return rep, nil
			}
			return rep, err
		}
		err := d.Call(ctx)
		if err == nil {
			rep.Iterations++
		}
		if d.onCall != nil {
			d.onCall(rep.Iterations, err)
		}
		if err != nil {
			rep.Elapsed = time.Since(start)
			Logger().Debug("run stopped",
				zap.String("entry", d.fn.Name()),
				zap.Int("completed", rep.Iterations),
				zap.Error(err))
			return rep, err
		}
	}
	rep.Elapsed = time.Since(start)
	return rep, nil
}
