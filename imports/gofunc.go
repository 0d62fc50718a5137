package imports

import (
	"context"
	"math"
	"reflect"
	"strconv"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/wasm"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// GoFunc derives a HostFunc from a plain Go function. Supported parameter and
// result types are int32 and uint32 (i32), int64 and uint64 (i64), float32
// (f32) and float64 (f64). The function may take a leading context.Context and
// may return a trailing error.
func GoFunc(fn any) (*HostFunc, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			GoType(typeName(fn)).
			Detail("host function must be a func").Build()
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, errors.Unsupported(errors.PhaseHost, "variadic host function "+t.String())
	}

	first := 0
	takesCtx := t.NumIn() > 0 && t.In(0) == contextType
	if takesCtx {
		first = 1
	}
	var ft wasm.FuncType
	for i := first; i < t.NumIn(); i++ {
		vt, ok := valTypeOf(t.In(i))
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseHost,
				[]string{"param", strconv.Itoa(i - first)}, t.In(i).String(), "i32|i64|f32|f64")
		}
		ft.Params = append(ft.Params, vt)
	}

	numOut := t.NumOut()
	returnsErr := numOut > 0 && t.Out(numOut-1) == errorType
	if returnsErr {
		numOut--
	}
	for i := 0; i < numOut; i++ {
		vt, ok := valTypeOf(t.Out(i))
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseHost,
				[]string{"result", strconv.Itoa(i)}, t.Out(i).String(), "i32|i64|f32|f64")
		}
		ft.Results = append(ft.Results, vt)
	}

	inTypes := make([]reflect.Type, t.NumIn())
	for i := range inTypes {
		inTypes[i] = t.In(i)
	}

	cb := func(ctx context.Context, _ api.Module, stack []uint64) error {
		args := make([]reflect.Value, len(inTypes))
		if takesCtx {
			args[0] = reflect.ValueOf(ctx)
		}
		for i := first; i < len(inTypes); i++ {
			args[i] = decode(inTypes[i], stack[i-first])
		}
		out := v.Call(args)
		if returnsErr {
			if err, _ := out[numOut].Interface().(error); err != nil {
				return err
			}
		}
		for i := 0; i < numOut; i++ {
			stack[i] = encode(out[i])
		}
		return nil
	}
	return &HostFunc{Type: ft, Callback: cb}, nil
}

func valTypeOf(t reflect.Type) (wasm.ValType, bool) {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32:
		return wasm.ValI32, true
	case reflect.Int64, reflect.Uint64:
		return wasm.ValI64, true
	case reflect.Float32:
		return wasm.ValF32, true
	case reflect.Float64:
		return wasm.ValF64, true
	}
	return 0, false
}

func decode(t reflect.Type, raw uint64) reflect.Value {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int32:
		v.SetInt(int64(int32(uint32(raw))))
	case reflect.Uint32:
		v.SetUint(uint64(uint32(raw)))
	case reflect.Int64:
		v.SetInt(int64(raw))
	case reflect.Uint64:
		v.SetUint(raw)
	case reflect.Float32:
		v.SetFloat(float64(math.Float32frombits(uint32(raw))))
	case reflect.Float64:
		v.SetFloat(math.Float64frombits(raw))
	}
	return v
}

func encode(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int32:
		return uint64(uint32(int32(v.Int())))
	case reflect.Uint32:
		return v.Uint()
	case reflect.Int64:
		return uint64(v.Int())
	case reflect.Uint64:
		return v.Uint()
	case reflect.Float32:
		return uint64(math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		return math.Float64bits(v.Float())
	}
	return 0
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
