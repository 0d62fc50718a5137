package hostlib

import (
	"context"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Console collects characters written by guests through putchar and hands
// each completed line to a sink. It may be shared by several stores.
type Console struct {
	sink func(line string)
	buf  strings.Builder
	mu   sync.Mutex
}

// NewConsole returns a console delivering lines to sink. A nil sink logs
// each line at info level.
func NewConsole(sink func(line string)) *Console {
	if sink == nil {
		sink = func(line string) {
			Logger().Info("guest output", zap.String("line", line))
		}
	}
	return &Console{sink: sink}
}

// Putchar appends one character. A newline flushes the buffered line.
func (c *Console) Putchar(ch byte) {
	c.mu.Lock()
	if ch != '\n' {
		c.buf.WriteByte(ch)
		c.mu.Unlock()
		return
	}
	line := c.buf.String()
	c.buf.Reset()
	c.mu.Unlock()
	c.sink(line)
}

// Flush delivers a pending partial line, if any.
func (c *Console) Flush() {
	c.mu.Lock()
	line := c.buf.String()
	c.buf.Reset()
	c.mu.Unlock()
	if line != "" {
		c.sink(line)
	}
}

// Register binds putchar (i32) -> i32 under ns. Like the C function it
// returns its argument.
func (c *Console) Register(t *imports.Table, ns string) error {
	ft := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
	return t.RegisterFunc(ns, "putchar", ft, func(_ context.Context, _ api.Module, stack []uint64) error {
		c.Putchar(byte(stack[0]))
		return nil
	})
}
