package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // module decoding and validation
	PhaseLinking  Phase = "linking"  // import resolution
	PhaseRuntime  Phase = "runtime"  // guest execution
	PhaseHost     Phase = "host"     // host function registration and callbacks
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseInstance Phase = "instance" // instantiation after a successful link
)

// Kind categorizes the error
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUnresolvedImport  Kind = "unresolved_import"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindGuestTrap         Kind = "guest_trap"
	KindHostCallback      Kind = "host_callback"
	KindBudgetExceeded    Kind = "budget_exceeded"
	KindTypeMismatch      Kind = "type_mismatch"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindClosed            Kind = "closed"
	KindRegistration      Kind = "registration"
	KindInstantiation     Kind = "instantiation"
	KindImmutable         Kind = "immutable"
)

// Sentinels for errors.Is. They match any *Error with the same phase and kind.
var (
	ErrValidation        = &Error{Phase: PhaseLoad, Kind: KindValidation}
	ErrUnresolvedImport  = &Error{Phase: PhaseLinking, Kind: KindUnresolvedImport}
	ErrSignatureMismatch = &Error{Phase: PhaseLinking, Kind: KindSignatureMismatch}
	ErrGuestTrap         = &Error{Phase: PhaseRuntime, Kind: KindGuestTrap}
	ErrHostCallback      = &Error{Phase: PhaseHost, Kind: KindHostCallback}
	ErrBudgetExceeded    = &Error{Phase: PhaseRuntime, Kind: KindBudgetExceeded}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	WasmType string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.WasmType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.WasmType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", wasm type ")
			b.WriteString(e.WasmType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("wasm type ")
			b.WriteString(e.WasmType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.WasmType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil && e.Cause.Error() != e.Detail {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the construct path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WasmType sets the wasm type description
func (b *Builder) WasmType(t string) *Builder {
	b.err.WasmType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Validation creates a module validation error naming the offending construct.
func Validation(path []string, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindValidation,
		Path:   path,
		Detail: detail,
		Cause:  cause,
	}
}

// GuestTrap wraps a runtime fault raised inside sandboxed execution.
func GuestTrap(function string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindGuestTrap,
		Detail: fmt.Sprintf("call %q trapped", function),
		Cause:  cause,
	}
}

// HostCallback wraps an error returned (or panicked) by a host function.
// The original error stays reachable through Unwrap.
func HostCallback(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindHostCallback,
		Path:   []string{namespace, name},
		Detail: "host function failed",
		Cause:  cause,
	}
}

// BudgetExceeded reports a cooperative interruption at a safe point.
func BudgetExceeded(epoch, deadline uint64) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindBudgetExceeded,
		Detail: fmt.Sprintf("epoch %d reached deadline %d", epoch, deadline),
		Value:  deadline,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, wasmType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		WasmType: wasmType,
	}
}

// Unsupported creates an invalid input error for something the bridge does not handle.
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: "unsupported: " + what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, offset, length uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("offset %d length %d out of bounds", offset, length),
		Value:  offset,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed reports use of a closed store, instance or engine.
func Closed(what string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// Registration creates a registration error
func Registration(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstance,
		Kind:   KindInstantiation,
		Detail: detail,
		Cause:  cause,
	}
}

// Config creates a configuration error
func Config(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}
