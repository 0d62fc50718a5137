// Package errors provides structured error types for the wasm-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes context: construct path, Go/wasm type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseHost, errors.KindTypeMismatch).
//		Path("env", "sin").
//		GoType("func(string) float64").
//		Detail("unsupported parameter type").
//		Build()
//
// Each failure the runtime reports has a sentinel:
//
//	ErrValidation        malformed module bytes
//	ErrUnresolvedImport  declared import has no binding (inside *LinkError)
//	ErrSignatureMismatch declared import bound with the wrong type (inside *LinkError)
//	ErrGuestTrap         runtime fault in sandboxed code
//	ErrHostCallback      a host function failed
//	ErrBudgetExceeded    cooperative interruption at a safe point
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
