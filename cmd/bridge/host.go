package main

import (
	"fmt"

	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/hostlib"
	"github.com/wippyai/wasm-bridge/imports"
)

// buildTable registers the host functions selected by cfg. A nil console
// leaves putchar out.
func buildTable(cfg config.HostConfig, console *hostlib.Console) (*imports.Table, error) {
	t := imports.NewTable()
	if cfg.Math {
		if err := hostlib.RegisterMath(t, cfg.Namespace); err != nil {
			return nil, err
		}
	}
	if cfg.Console && console != nil {
		if err := console.Register(t, cfg.Namespace); err != nil {
			return nil, err
		}
	}

	r := imports.NewReserve(t)
	for i, slot := range cfg.Reserved {
		var err error
		switch slot.Kind {
		case "func":
			err = r.Funcs(cfg.Namespace, slot.Pattern, slot.From, slot.To, slot.FuncType())
		case "global":
			vt, _ := config.ParseValType(slot.Type)
			err = r.Globals(cfg.Namespace, slot.Pattern, slot.From, slot.To, vt, slot.Value)
		default:
			err = fmt.Errorf("unknown kind %q", slot.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("host.reserved[%d]: %w", i, err)
		}
	}
	return t, nil
}
