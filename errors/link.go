package errors

import (
	"fmt"
	"strings"
)

// ImportFailure describes a single declared import that could not be linked.
type ImportFailure struct {
	Namespace string
	Name      string
	Kind      Kind   // KindUnresolvedImport or KindSignatureMismatch
	Want      string // declared type, e.g. "func (f64) -> f64"
	Have      string // provided type, empty when unresolved
}

func (f ImportFailure) String() string {
	switch f.Kind {
	case KindSignatureMismatch:
		return fmt.Sprintf("%s: want %s, have %s", f.Name, f.Want, f.Have)
	default:
		return fmt.Sprintf("%s: %s", f.Name, f.Want)
	}
}

// LinkError is returned when instantiation fails because one or more
// declared imports are missing or mistyped. Failures are listed in the
// module's import declaration order.
type LinkError struct {
	Module   string
	Failures []ImportFailure
}

// Unresolved returns the failures for imports with no binding.
func (e *LinkError) Unresolved() []ImportFailure {
	return e.filter(KindUnresolvedImport)
}

// Mismatched returns the failures for imports bound with the wrong type.
func (e *LinkError) Mismatched() []ImportFailure {
	return e.filter(KindSignatureMismatch)
}

func (e *LinkError) filter(k Kind) []ImportFailure {
	var out []ImportFailure
	for _, f := range e.Failures {
		if f.Kind == k {
			out = append(out, f)
		}
	}
	return out
}

func (e *LinkError) Error() string {
	if len(e.Failures) == 0 {
		return "[linking] unresolved_import: no imports specified"
	}

	var b strings.Builder
	missing, mismatched := len(e.Unresolved()), len(e.Mismatched())
	b.WriteString("link")
	if e.Module != "" {
		b.WriteString(" ")
		b.WriteString(e.Module)
	}
	b.WriteString(" failed:")
	if missing > 0 {
		fmt.Fprintf(&b, " %d unresolved", missing)
	}
	if mismatched > 0 {
		if missing > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, " %d mismatched", mismatched)
	}
	b.WriteString(" import(s)\n")

	// Group by namespace for cleaner output
	byNS := make(map[string][]ImportFailure)
	var nsOrder []string
	for _, f := range e.Failures {
		if _, exists := byNS[f.Namespace]; !exists {
			nsOrder = append(nsOrder, f.Namespace)
		}
		byNS[f.Namespace] = append(byNS[f.Namespace], f)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, f := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(f.String())
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is matches *LinkError targets and the unresolved/mismatch sentinels when
// at least one failure has that kind.
func (e *LinkError) Is(target error) bool {
	switch t := target.(type) {
	case *LinkError:
		return true
	case *Error:
		if t.Phase != PhaseLinking {
			return false
		}
		for _, f := range e.Failures {
			if f.Kind == t.Kind {
				return true
			}
		}
	}
	return false
}
