package imports

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/wasmtest"
	"github.com/wippyai/wasm-bridge/wasm"
)

func TestGoFunc_Signature(t *testing.T) {
	tests := []struct {
		name string
		fn   any
		want wasm.FuncType
	}{
		{"f64", math.Sin, f64ToF64},
		{"mixed", func(int32, uint64, float32) (uint32, float64) { return 0, 0 },
			wasm.FuncType{
				Params:  []wasm.ValType{wasm.ValI32, wasm.ValI64, wasm.ValF32},
				Results: []wasm.ValType{wasm.ValI32, wasm.ValF64},
			}},
		{"context and error", func(context.Context, int64) error { return nil },
			wasm.FuncType{Params: []wasm.ValType{wasm.ValI64}}},
		{"nullary", func() {}, wasm.FuncType{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hf, err := GoFunc(tt.fn)
			if err != nil {
				t.Fatalf("GoFunc: %v", err)
			}
			if !hf.Type.Equal(tt.want) {
				t.Errorf("Type = %v, want %v", hf.Type, tt.want)
			}
		})
	}
}

func TestGoFunc_Rejects(t *testing.T) {
	tests := []struct {
		name string
		fn   any
	}{
		{"not a func", 42},
		{"nil", nil},
		{"string param", func(string) {}},
		{"bool result", func() bool { return false }},
		{"variadic", func(...int32) {}},
		{"error not last", func() (error, int32) { return nil, 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := GoFunc(tt.fn); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGoFunc_Call(t *testing.T) {
	var gotCtx context.Context
	hf, err := GoFunc(func(ctx context.Context, a int32, b float64) (int64, float32) {
		gotCtx = ctx
		return int64(a) * 2, float32(b) + 0.5
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.WithValue(context.Background(), struct{}{}, "v")
	a := int32(-3)
	stack := []uint64{uint64(uint32(a)), math.Float64bits(1.5)}
	if err := hf.Callback(ctx, nil, stack); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if int64(stack[0]) != -6 {
		t.Errorf("result 0 = %d, want -6", int64(stack[0]))
	}
	if f := math.Float32frombits(uint32(stack[1])); f != 2 {
		t.Errorf("result 1 = %v, want 2", f)
	}
	if gotCtx != ctx {
		t.Error("context not forwarded")
	}
}

func TestGoFunc_ErrorReturned(t *testing.T) {
	boom := stderrors.New("boom")
	hf, err := GoFunc(func(int32) (int32, error) { return 0, boom })
	if err != nil {
		t.Fatal(err)
	}
	if err := hf.Callback(context.Background(), nil, []uint64{1}); !stderrors.Is(err, boom) {
		t.Errorf("callback error = %v, want boom", err)
	}
}

func TestRegisterGoFunc_WrapsErrors(t *testing.T) {
	err := NewTable().RegisterGoFunc("env", "bad", func(string) {})
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindRegistration {
		t.Fatalf("error = %v, want registration error", err)
	}
	if !stderrors.Is(err, errors.New(errors.PhaseHost, errors.KindTypeMismatch).Build()) {
		t.Errorf("cause should be a type mismatch: %v", err)
	}
}

func TestGlobal_Unmaterialised(t *testing.T) {
	g, err := NewGlobal(wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}, uint64(0xFFFF_FFFF_0000_0005))
	if err != nil {
		t.Fatal(err)
	}
	if g.Get() != 5 {
		t.Errorf("i32 initial should be truncated, got %#x", g.Get())
	}
	neg := int32(-1)
	if err := g.Set(uint64(uint32(neg))); err != nil {
		t.Fatal(err)
	}
	if g.GetI32() != -1 {
		t.Errorf("GetI32 = %d, want -1", g.GetI32())
	}

	c, err := NewGlobal(wasm.GlobalType{ValType: wasm.ValF64}, math.Float64bits(2.5))
	if err != nil {
		t.Fatal(err)
	}
	if c.GetF64() != 2.5 {
		t.Errorf("GetF64 = %v", c.GetF64())
	}
	err = c.Set(0)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindImmutable {
		t.Errorf("Set on const global: %v", err)
	}

	if _, err := NewGlobal(wasm.GlobalType{ValType: wasm.ValFuncRef}, 0); err == nil {
		t.Error("funcref globals are not supported")
	}
}

func TestMemory_Limits(t *testing.T) {
	if _, err := NewMemory(wasm.Limits{Min: 4, Max: 2, HasMax: true}); err == nil {
		t.Error("max below min should fail")
	}
	if _, err := NewMemory(wasm.Limits{Min: wasm.MaxPages + 1}); err == nil {
		t.Error("min above 65536 pages should fail")
	}
	m, err := NewMemory(wasm.Limits{Min: 1})
	if err != nil {
		t.Fatal(err)
	}
	if m.Materialised() {
		t.Error("new memory should not be materialised")
	}
	if _, err := m.Read(0, 1); !stderrors.Is(err, errors.New(errors.PhaseHost, errors.KindNotFound).Build()) {
		t.Errorf("Read before materialisation: %v", err)
	}
	if m.Size() != 0 {
		t.Errorf("Size = %d, want 0", m.Size())
	}
}

// instantiate compiles a module that exports a memory "mem" and a mutable
// i64 global "g".
func instantiate(t *testing.T, rt wazero.Runtime, name string, min, max uint32) api.Module {
	t.Helper()
	ctx := context.Background()
	b := wasmtest.New()
	mem := b.Memory(min, max)
	g := b.Global(wasm.ValI64, true, wasmtest.I64Const(11))
	b.ExportMemory("mem", mem)
	b.ExportGlobal("g", g)
	compiled, err := rt.CompileModule(ctx, b.Bytes())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return mod
}

func TestMemory_Exported(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer rt.Close(ctx)

	mod := instantiate(t, rt, "m", 1, 3)
	m := ExportedMemory(mod, "mem")
	if m == nil {
		t.Fatal("ExportedMemory returned nil")
	}
	if ExportedMemory(mod, "missing") != nil {
		t.Error("missing export should return nil")
	}

	if diff := cmp.Diff(wasm.Limits{Min: 1, Max: 3, HasMax: true}, m.Limits()); diff != "" {
		t.Errorf("limits (-want +got):\n%s", diff)
	}

	if err := m.WriteU32(8, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteU16(16, 0xBEEF); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteU64(24, 1<<40+7); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.ReadU32(8); v != 0xDEADBEEF {
		t.Errorf("ReadU32 = %#x", v)
	}
	if v, _ := m.ReadU8(8); v != 0xEF {
		t.Errorf("ReadU8 = %#x, want little-endian low byte", v)
	}
	if v, _ := m.ReadU16(16); v != 0xBEEF {
		t.Errorf("ReadU16 = %#x", v)
	}
	if v, _ := m.ReadU64(24); v != 1<<40+7 {
		t.Errorf("ReadU64 = %d", v)
	}
	if _, err := m.Read(wasm.PageSize-2, 4); !stderrors.Is(err, errors.New(errors.PhaseHost, errors.KindOutOfBounds).Build()) {
		t.Errorf("Read past end: %v", err)
	}

	prev, err := m.Grow(2)
	if err != nil || prev != 1 {
		t.Fatalf("Grow(2) = %d, %v", prev, err)
	}
	if m.Pages() != 3 || m.Limits().Min != 3 {
		t.Errorf("Pages = %d, Limits.Min = %d, want 3", m.Pages(), m.Limits().Min)
	}
	if _, err := m.Grow(1); err == nil {
		t.Error("growing past max should fail")
	}
	if v, _ := m.ReadU32(8); v != 0xDEADBEEF {
		t.Error("grow must preserve contents")
	}
}

func TestMemory_BindOncePerOwner(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer rt.Close(ctx)

	m, err := NewMemory(wasm.Limits{Min: 1, Max: 2, HasMax: true})
	if err != nil {
		t.Fatal(err)
	}
	created := 0
	create := func() (Source, error) {
		created++
		mod := instantiate(t, rt, "shared"+string(rune('0'+created)), 1, 2)
		return Source{Module: mod, Name: "mem"}, nil
	}

	ownerA, ownerB := new(int), new(int)
	first, err := m.Bind(ownerA, create)
	if err != nil {
		t.Fatal(err)
	}
	again, err := m.Bind(ownerA, create)
	if err != nil {
		t.Fatal(err)
	}
	if created != 1 || first != again {
		t.Errorf("second Bind for the same owner should reuse the source (created %d)", created)
	}
	if !m.Materialised() {
		t.Error("memory should be materialised after Bind")
	}

	if _, err := m.Bind(ownerB, create); err != nil {
		t.Fatal(err)
	}
	if created != 2 {
		t.Errorf("a new owner should materialise its own memory (created %d)", created)
	}

	m.Release(ownerB)
	if m.Materialised() {
		t.Error("releasing the current owner should drop host access")
	}
}

func TestGlobal_Exported(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer rt.Close(ctx)

	mod := instantiate(t, rt, "g", 1, 1)
	g := ExportedGlobal(mod, "g")
	if g == nil {
		t.Fatal("ExportedGlobal returned nil")
	}
	if diff := cmp.Diff(wasm.GlobalType{ValType: wasm.ValI64, Mutable: true}, g.Type()); diff != "" {
		t.Errorf("type (-want +got):\n%s", diff)
	}
	if g.Get() != 11 {
		t.Errorf("Get = %d, want 11", g.Get())
	}
	if err := g.Set(42); err != nil {
		t.Fatal(err)
	}
	if mod.ExportedGlobal("g").Get() != 42 {
		t.Error("Set should write through to the instance")
	}
}
