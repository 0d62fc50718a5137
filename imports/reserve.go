package imports

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Reserve registers ranges of placeholder bindings that some guests import
// without calling. Names are produced by a fmt pattern with one integer verb,
// for example "reserved_%d", over the half-open range [from, to).
type Reserve struct {
	table *Table
}

// NewReserve returns a builder registering into t.
func NewReserve(t *Table) *Reserve {
	return &Reserve{table: t}
}

// Funcs registers no-op functions of type ft. Their results are zero.
func (r *Reserve) Funcs(ns, pattern string, from, to int, ft wasm.FuncType) error {
	if err := checkRange(pattern, from, to); err != nil {
		return err
	}
	results := len(ft.Results)
	noop := &HostFunc{Type: ft, Callback: func(_ context.Context, _ api.Module, stack []uint64) error {
		for i := 0; i < results; i++ {
			stack[i] = 0
		}
		return nil
	}}
	for i := from; i < to; i++ {
		if err := r.table.Register(ns, fmt.Sprintf(pattern, i), noop); err != nil {
			return err
		}
	}
	return nil
}

// Globals registers constant globals of type vt holding value.
func (r *Reserve) Globals(ns, pattern string, from, to int, vt wasm.ValType, value uint64) error {
	if err := checkRange(pattern, from, to); err != nil {
		return err
	}
	for i := from; i < to; i++ {
		name := fmt.Sprintf(pattern, i)
		if _, err := r.table.RegisterGlobal(ns, name, vt, false, value); err != nil {
			return err
		}
	}
	return nil
}

func checkRange(pattern string, from, to int) error {
	if from < 0 || to < from {
		return errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("invalid reserved range [%d, %d)", from, to))
	}
	first := fmt.Sprintf(pattern, 0)
	if strings.Contains(first, "%!") || first == fmt.Sprintf(pattern, 1) {
		return errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("pattern %q does not vary with the index", pattern))
	}
	return nil
}
