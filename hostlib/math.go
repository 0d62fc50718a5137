// Package hostlib provides host functions commonly imported by guests:
// libm-style math and a line-buffered console.
package hostlib

import (
	"math"

	"github.com/wippyai/wasm-bridge/imports"
)

// mathFuncs are registered under their libm names. Each f64 function also
// gets an f32 variant with an "f" suffix, such as "sinf".
var mathFuncs = []struct {
	name string
	fn1  func(float64) float64
	fn2  func(float64, float64) float64
}{
	{name: "sin", fn1: math.Sin},
	{name: "cos", fn1: math.Cos},
	{name: "tan", fn1: math.Tan},
	{name: "asin", fn1: math.Asin},
	{name: "acos", fn1: math.Acos},
	{name: "atan", fn1: math.Atan},
	{name: "sinh", fn1: math.Sinh},
	{name: "cosh", fn1: math.Cosh},
	{name: "tanh", fn1: math.Tanh},
	{name: "exp", fn1: math.Exp},
	{name: "log", fn1: math.Log},
	{name: "log2", fn1: math.Log2},
	{name: "log10", fn1: math.Log10},
	{name: "sqrt", fn1: math.Sqrt},
	{name: "cbrt", fn1: math.Cbrt},
	{name: "floor", fn1: math.Floor},
	{name: "ceil", fn1: math.Ceil},
	{name: "round", fn1: math.Round},
	{name: "trunc", fn1: math.Trunc},
	{name: "fabs", fn1: math.Abs},
	{name: "atan2", fn2: math.Atan2},
	{name: "pow", fn2: math.Pow},
	{name: "fmod", fn2: math.Mod},
	{name: "hypot", fn2: math.Hypot},
	{name: "fmin", fn2: math.Min},
	{name: "fmax", fn2: math.Max},
}

// MathNames returns the names RegisterMath binds, f64 variants first.
func MathNames() []string {
	names := make([]string, 0, 2*len(mathFuncs))
	for _, f := range mathFuncs {
		names = append(names, f.name)
	}
	for _, f := range mathFuncs {
		names = append(names, f.name+"f")
	}
	return names
}

// RegisterMath binds the math functions into t under ns.
func RegisterMath(t *imports.Table, ns string) error {
	for _, f := range mathFuncs {
		if err := t.RegisterGoFunc(ns, f.name, f64Func(f.fn1, f.fn2)); err != nil {
			return err
		}
	}
	for _, f := range mathFuncs {
		if err := t.RegisterGoFunc(ns, f.name+"f", f32Func(f.fn1, f.fn2)); err != nil {
			return err
		}
	}
	Logger().Debug("math functions registered")
	return nil
}

func f64Func(fn1 func(float64) float64, fn2 func(float64, float64) float64) any {
	if fn1 != nil {
		return fn1
	}
	return fn2
}

func f32Func(fn1 func(float64) float64, fn2 func(float64, float64) float64) any {
	if fn1 != nil {
		return func(x float32) float32 { return float32(fn1(float64(x))) }
	}
	return func(x, y float32) float32 { return float32(fn2(float64(x), float64(y))) }
}
