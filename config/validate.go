package config

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Validate reports every invalid setting in one error.
func (c Config) Validate() error {
	var err error
	add := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf(format, args...))
	}

	switch c.Engine.Mode {
	case "", "auto", "compiler", "interpreter":
	default:
		add("engine.mode: unknown mode %q (want compiler, interpreter or auto)", c.Engine.Mode)
	}
	if c.Engine.MemoryLimitPages > wasm.MaxPages {
		add("engine.memory_limit_pages: %d exceeds %d", c.Engine.MemoryLimitPages, wasm.MaxPages)
	}

	if c.Run.Entry == "" {
		add("run.entry: must not be empty")
	}
	if c.Run.Budget == 0 {
		add("run.budget: must be positive")
	}
	if c.Run.Iterations < 0 {
		add("run.iterations: must not be negative")
	}
	if c.Run.Tick <= 0 {
		add("run.tick: must be positive")
	}

	if c.Host.Namespace == "" {
		add("host.namespace: must not be empty")
	}
	for i, r := range c.Host.Reserved {
		prefix := fmt.Sprintf("host.reserved[%d]", i)
		if r.Pattern == "" {
			add("%s.pattern: must not be empty", prefix)
		}
		if r.From < 0 || r.To < r.From {
			add("%s: invalid range [%d, %d)", prefix, r.From, r.To)
		}
		switch r.Kind {
		case "func":
			for _, name := range append(append([]string(nil), r.Params...), r.Results...) {
				if _, ok := ParseValType(name); !ok {
					add("%s: unknown value type %q", prefix, name)
				}
			}
		case "global":
			if _, ok := ParseValType(r.Type); !ok {
				add("%s.type: unknown value type %q", prefix, r.Type)
			}
		default:
			add("%s.kind: want func or global, got %q", prefix, r.Kind)
		}
	}

	if _, lerr := zapcore.ParseLevel(c.Log.Level); lerr != nil {
		add("log.level: %v", lerr)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		add("log.format: want console or json, got %q", c.Log.Format)
	}

	if err != nil {
		return errors.Config("invalid configuration", err)
	}
	return nil
}

// ParseValType maps a numeric value type name to its wasm type.
func ParseValType(name string) (wasm.ValType, bool) {
	switch name {
	case "i32":
		return wasm.ValI32, true
	case "i64":
		return wasm.ValI64, true
	case "f32":
		return wasm.ValF32, true
	case "f64":
		return wasm.ValF64, true
	}
	return 0, false
}

// FuncType returns the signature of a func slot.
func (r ReservedSlot) FuncType() wasm.FuncType {
	var ft wasm.FuncType
	for _, p := range r.Params {
		vt, _ := ParseValType(p)
		ft.Params = append(ft.Params, vt)
	}
	for _, p := range r.Results {
		vt, _ := ParseValType(p)
		ft.Results = append(ft.Results, vt)
	}
	return ft
}
