package epoch

import (
	stderrors "errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/wippyai/wasm-bridge/errors"
)

// State is the lifecycle of a budget across invocations.
type State uint8

const (
	Idle        State = iota // no deadline armed
	Armed                    // deadline set, no invocation running
	Running                  // an invocation is in progress
	Completed                // last invocation returned
	Interrupted              // last invocation overran its deadline
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Interrupted:
		return "interrupted"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

const unbounded = math.MaxUint64

// Budget tracks the deadline of one store. Arm, Enter and Exit are called
// from the store's goroutine; Check runs on the same goroutine from inside
// guest code. Only the deadline is read atomically so a host may re-arm
// from within a callback.
type Budget struct {
	clock      *Clock
	deadline   atomic.Uint64
	state      State
	depth      int
	interrupts uint64
}

// NewBudget returns an idle budget on clock. A nil clock uses Process().
func NewBudget(clock *Clock) *Budget {
	if clock == nil {
		clock = Process()
	}
	b := &Budget{clock: clock}
	b.deadline.Store(unbounded)
	return b
}

// Clock returns the clock the budget reads.
func (b *Budget) Clock() *Clock {
	return b.clock
}

// Arm sets the deadline to ticks epochs past the current one, saturating
// at the top of the range. Arm(0) interrupts at the first safe point.
func (b *Budget) Arm(ticks uint64) {
	now := b.clock.Current()
	d := now + ticks
	if d < now {
		d = unbounded
	}
	b.deadline.Store(d)
	if b.depth == 0 {
		b.state = Armed
	}
}

// Disarm removes the deadline.
func (b *Budget) Disarm() {
	b.deadline.Store(unbounded)
	if b.depth == 0 {
		b.state = Idle
	}
}

// Deadline returns the armed deadline, false when none is set.
func (b *Budget) Deadline() (uint64, bool) {
	d := b.deadline.Load()
	return d, d != unbounded
}

// Remaining returns the epochs left before the deadline, zero when reached.
func (b *Budget) Remaining() uint64 {
	d, now := b.deadline.Load(), b.clock.Current()
	if now >= d {
		return 0
	}
	return d - now
}

// State returns the current lifecycle state.
func (b *Budget) State() State {
	return b.state
}

// Interrupts returns how many invocations ended with BudgetExceeded.
func (b *Budget) Interrupts() uint64 {
	return b.interrupts
}

// Enter marks the start of an invocation. Nested calls, for example a host
// function calling back into the guest, only count the outermost one.
func (b *Budget) Enter() {
	b.depth++
	if b.depth == 1 {
		b.state = Running
	}
}

// Exit marks the end of an invocation started with Enter.
func (b *Budget) Exit(err error) {
	if b.depth == 0 {
		return
	}
	b.depth--
	if b.depth > 0 {
		return
	}
	if stderrors.Is(err, errors.ErrBudgetExceeded) {
		b.state = Interrupted
		b.interrupts++
		return
	}
	b.state = Completed
}

// Check is the safe-point test. It returns a BudgetExceeded error once the
// clock has reached the deadline.
func (b *Budget) Check() error {
	now, d := b.clock.Current(), b.deadline.Load()
	if now >= d {
		return errors.BudgetExceeded(now, d)
	}
	return nil
}
