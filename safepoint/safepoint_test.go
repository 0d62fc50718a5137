package safepoint

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	werrors "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/wasmtest"
	"github.com/wippyai/wasm-bridge/wasm"
)

func TestInject(t *testing.T) {
	b := wasmtest.New()
	tick := b.ImportFunc("env", "tick", nil, nil)
	b.ImportGlobal("env", "g", wasm.ValI32, true)
	b.Table(2)
	helper := b.Func(nil, nil, nil, wasmtest.Nop())
	run := b.Func(nil, nil, []wasm.ValType{wasm.ValI32},
		wasmtest.CountedLoop(0, 4, wasmtest.Call(tick), wasmtest.Call(helper)),
	)
	b.Elem(0, helper, run)
	b.ExportFunc("run", run)
	b.ExportFunc("tick", tick)
	b.Start(helper)
	b.Custom("name", []byte{0x01})
	b.Custom("producers", []byte{0x02})
	src := b.Module()
	original := src.Encode()

	res, err := Inject(src)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}

	if !bytes.Equal(src.Encode(), original) {
		t.Error("Inject modified its input")
	}

	// The instrumented module must parse and validate.
	out, err := wasm.Parse(res.Binary())
	if err != nil {
		t.Fatalf("instrumented module invalid: %v", err)
	}

	if res.CheckIndex != 1 {
		t.Errorf("CheckIndex = %d, want 1", res.CheckIndex)
	}
	last := out.Imports[len(out.Imports)-1]
	if last.Module != Namespace || last.Name != CheckName || last.Desc.Kind != wasm.KindFunc {
		t.Errorf("last import = %+v", last)
	}
	if ft := out.GetFuncType(res.CheckIndex); ft == nil || len(ft.Params)+len(ft.Results) != 0 {
		t.Errorf("check type = %v", ft)
	}

	wantExports := []wasm.Export{
		{Name: "run", Kind: wasm.KindFunc, Idx: run + 1},
		{Name: "tick", Kind: wasm.KindFunc, Idx: tick},
	}
	if diff := cmp.Diff(wantExports, out.Exports); diff != "" {
		t.Errorf("exports (-want +got):\n%s", diff)
	}
	if out.Start == nil || *out.Start != helper+1 {
		t.Errorf("start = %v, want %d", out.Start, helper+1)
	}
	if diff := cmp.Diff([]uint32{helper + 1, run + 1}, out.Elements[0].FuncIdxs); diff != "" {
		t.Errorf("element indices (-want +got):\n%s", diff)
	}

	if _, ok := out.CustomSection("name"); ok {
		t.Error("name section should be dropped")
	}
	if _, ok := out.CustomSection("producers"); !ok {
		t.Error("other custom sections should be kept")
	}

	// helper: entry only; run: entry + one loop
	if res.Sites != 3 {
		t.Errorf("Sites = %d, want 3", res.Sites)
	}
}

func TestInject_BodyLayout(t *testing.T) {
	b := wasmtest.New()
	b.ImportFunc("env", "f", nil, nil)
	b.Func(nil, nil, nil,
		wasmtest.Loop(wasmtest.Nop()),
		wasmtest.Call(1), // calls itself
	)

	res, err := Inject(b.Module())
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	check := res.CheckIndex // 1, so the self call moves to 2

	want := wasmtest.Expr(wasmtest.Seq(
		wasmtest.Call(check),
		wasmtest.Op(wasm.OpLoop, 0x40), wasmtest.Call(check), wasmtest.Nop(), wasmtest.Op(wasm.OpEnd),
		wasmtest.Call(2),
	))
	if got := res.Module.Code[0].Code; !bytes.Equal(got, want) {
		t.Errorf("body:\n got %x\nwant %x", got, want)
	}
}

func TestInject_GlobalAndExprRefs(t *testing.T) {
	b := wasmtest.New()
	f := b.Func(nil, nil, nil, wasmtest.Nop())
	b.Global(wasm.ValFuncRef, false, wasmtest.RefFunc(f))
	mod := b.Module()
	mod.Elements = append(mod.Elements, wasm.Element{
		Flags: 7,
		Type:  wasm.ValFuncRef,
		Exprs: [][]byte{wasmtest.Expr(wasmtest.RefFunc(f))},
	})

	res, err := Inject(mod)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	want := wasmtest.Expr(wasmtest.RefFunc(f + 1))
	if got := res.Module.Globals[0].Init; !bytes.Equal(got, want) {
		t.Errorf("global init = %x, want %x", got, want)
	}
	if got := res.Module.Elements[0].Exprs[0]; !bytes.Equal(got, want) {
		t.Errorf("element expr = %x, want %x", got, want)
	}
	if _, err := wasm.Parse(res.Binary()); err != nil {
		t.Errorf("instrumented module invalid: %v", err)
	}
}

func TestInject_ReservedNamespace(t *testing.T) {
	b := wasmtest.New()
	b.ImportFunc("env", "ok", nil, nil)
	b.ImportFunc(Namespace, CheckName, nil, nil)

	_, err := Inject(b.Module())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, werrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	var e *werrors.Error
	if errors.As(err, &e) && (len(e.Path) != 1 || e.Path[0] != "import[1]") {
		t.Errorf("Path = %v, want [import[1]]", e.Path)
	}
}

func TestInject_NoImports(t *testing.T) {
	b := wasmtest.New()
	f := b.Func(nil, wasmtest.I32, nil, wasmtest.I32Const(7))
	b.ExportFunc("seven", f)

	res, err := Inject(b.Module())
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if res.CheckIndex != 0 {
		t.Errorf("CheckIndex = %d, want 0", res.CheckIndex)
	}
	if res.Module.Exports[0].Idx != 1 {
		t.Errorf("export index = %d, want 1", res.Module.Exports[0].Idx)
	}
}
