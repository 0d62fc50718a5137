package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseHost,
				Kind:     KindTypeMismatch,
				Path:     []string{"env", "sin"},
				GoType:   "string",
				WasmType: "f64",
				Detail:   "cannot convert",
			},
			contains: []string{"[host]", "type_mismatch", "env.sin", "string", "f64", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseRuntime,
				Kind:  KindGuestTrap,
			},
			contains: []string{"[runtime]", "guest_trap"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindValidation,
				Detail: "bad header",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "validation", "bad header", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := HostCallback("env", "log", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
	if !errors.Is(err, ErrHostCallback) {
		t.Error("errors.Is did not match ErrHostCallback")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseRuntime,
		Kind:  KindBudgetExceeded,
		Path:  []string{"foo"},
	}

	if !err.Is(ErrBudgetExceeded) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseLoad, Kind: KindBudgetExceeded}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(ErrGuestTrap) {
		t.Error("Is should not match different kind")
	}
}

func TestSentinelsDistinct(t *testing.T) {
	cases := map[string]*Error{
		"trap":   GuestTrap("run", errors.New("unreachable")),
		"host":   HostCallback("env", "f", errors.New("boom")),
		"budget": BudgetExceeded(10, 10),
		"load":   Validation([]string{"code[0]"}, "unsupported opcode", nil),
	}
	sentinels := map[string]*Error{
		"trap":   ErrGuestTrap,
		"host":   ErrHostCallback,
		"budget": ErrBudgetExceeded,
		"load":   ErrValidation,
	}

	for name, err := range cases {
		for sname, s := range sentinels {
			got := errors.Is(err, s)
			if got != (name == sname) {
				t.Errorf("errors.Is(%s, %s) = %v", name, sname, got)
			}
		}
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseHost, KindTypeMismatch).
		Path("env", "print").
		GoType("string").
		WasmType("i32").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "int32", "string").
		Build()

	if err.Phase != PhaseHost {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseHost)
	}
	if len(err.Path) != 2 || err.Path[0] != "env" || err.Path[1] != "print" {
		t.Errorf("Path = %v, want [env print]", err.Path)
	}
	if err.GoType != "string" || err.WasmType != "i32" {
		t.Errorf("GoType=%v WasmType=%v", err.GoType, err.WasmType)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected int32, got string" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestLinkError(t *testing.T) {
	err := &LinkError{
		Module: "app",
		Failures: []ImportFailure{
			{Namespace: "env", Name: "sin", Kind: KindUnresolvedImport, Want: "func (f64) -> f64"},
			{Namespace: "math", Name: "pow", Kind: KindSignatureMismatch, Want: "func (f64 f64) -> f64", Have: "func (f32 f32) -> f32"},
			{Namespace: "env", Name: "cos", Kind: KindUnresolvedImport, Want: "func (f64) -> f64"},
		},
	}

	t.Run("message groups by namespace", func(t *testing.T) {
		msg := err.Error()
		for _, s := range []string{"app", "2 unresolved", "1 mismatched", "env:", "math:", "sin", "cos", "pow", "have func (f32 f32) -> f32"} {
			if !strings.Contains(msg, s) {
				t.Errorf("message %q does not contain %q", msg, s)
			}
		}
		if strings.Index(msg, "sin") > strings.Index(msg, "cos") {
			t.Error("failures within a namespace should keep declaration order")
		}
	})

	t.Run("filters", func(t *testing.T) {
		if got := len(err.Unresolved()); got != 2 {
			t.Errorf("Unresolved() = %d, want 2", got)
		}
		if got := len(err.Mismatched()); got != 1 {
			t.Errorf("Mismatched() = %d, want 1", got)
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		var wrapped error = Wrap(PhaseInstance, KindInstantiation, err, "instantiate app")
		if !errors.Is(wrapped, ErrUnresolvedImport) {
			t.Error("should match ErrUnresolvedImport")
		}
		if !errors.Is(wrapped, ErrSignatureMismatch) {
			t.Error("should match ErrSignatureMismatch")
		}
		var le *LinkError
		if !errors.As(wrapped, &le) || len(le.Failures) != 3 {
			t.Error("errors.As should find the LinkError")
		}
	})

	t.Run("only unresolved", func(t *testing.T) {
		only := &LinkError{Failures: err.Unresolved()}
		if errors.Is(only, ErrSignatureMismatch) {
			t.Error("should not match ErrSignatureMismatch without mismatches")
		}
	})

	t.Run("empty", func(t *testing.T) {
		if msg := (&LinkError{}).Error(); !strings.Contains(msg, "no imports specified") {
			t.Errorf("empty error should have specific message, got: %s", msg)
		}
	})
}
