package linker

import (
	stderrors "errors"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Resolved is a declared import paired with the binding that satisfies it.
type Resolved struct {
	Binding imports.Binding
	Decl    wasm.ImportDecl
}

// Namespace groups the resolved imports of one import module name, in
// declaration order.
type Namespace struct {
	Name    string
	Imports []Resolved
}

// Plan is the outcome of resolving every declared import of a module.
type Plan struct {
	Module     string
	Namespaces []Namespace
}

// Len returns the number of planned imports.
func (p *Plan) Len() int {
	n := 0
	for _, ns := range p.Namespaces {
		n += len(ns.Imports)
	}
	return n
}

// Resolve plans the imports of a module named module against table.
// Imports from a namespace listed in skip are left out of the plan; the
// caller provides those itself. Every failing import is reported in one
// *errors.LinkError, in declaration order.
func Resolve(module string, decls []wasm.ImportDecl, table *imports.Table, skip ...string) (*Plan, error) {
	plan := &Plan{Module: module}
	byNS := make(map[string]int)
	var failures []errors.ImportFailure

	for _, d := range decls {
		if skipped(d.Namespace, skip) {
			continue
		}
		b, err := table.Resolve(d.Namespace, d.Name, d.Type)
		if err != nil {
			failures = append(failures, failure(d, table, err))
			continue
		}
		i, ok := byNS[d.Namespace]
		if !ok {
			i = len(plan.Namespaces)
			byNS[d.Namespace] = i
			plan.Namespaces = append(plan.Namespaces, Namespace{Name: d.Namespace})
		}
		plan.Namespaces[i].Imports = append(plan.Namespaces[i].Imports, Resolved{Decl: d, Binding: b})
	}

	if len(failures) > 0 {
		Logger().Debug("link failed",
			zap.String("module", module),
			zap.Int("failures", len(failures)))
		return nil, &errors.LinkError{Module: module, Failures: failures}
	}
	Logger().Debug("link planned",
		zap.String("module", module),
		zap.Int("imports", plan.Len()),
		zap.Int("namespaces", len(plan.Namespaces)))
	return plan, nil
}

func skipped(ns string, skip []string) bool {
	for _, s := range skip {
		if ns == s {
			return true
		}
	}
	return false
}

func failure(d wasm.ImportDecl, table *imports.Table, err error) errors.ImportFailure {
	f := errors.ImportFailure{
		Namespace: d.Namespace,
		Name:      d.Name,
		Kind:      errors.KindUnresolvedImport,
		Want:      d.Type.String(),
	}
	var e *errors.Error
	if stderrors.As(err, &e) && e.Kind == errors.KindSignatureMismatch {
		f.Kind = errors.KindSignatureMismatch
		if b, ok := table.Lookup(d.Namespace, d.Name); ok {
			f.Have = b.Extern().String()
		}
	}
	return f
}

// Describe renders the plan one import per line.
func (p *Plan) Describe() string {
	var b strings.Builder
	for _, ns := range p.Namespaces {
		for _, r := range ns.Imports {
			b.WriteString(ns.Name)
			b.WriteByte('.')
			b.WriteString(r.Decl.Name)
			b.WriteString(" <- ")
			b.WriteString(bindingKind(r.Binding))
			b.WriteByte(' ')
			b.WriteString(r.Decl.Type.String())
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func bindingKind(b imports.Binding) string {
	switch b.(type) {
	case *imports.HostFunc:
		return "host"
	case *imports.GuestFunc:
		return "guest"
	case *imports.Global:
		return "global"
	case *imports.Memory:
		return "memory"
	}
	return "unknown"
}
