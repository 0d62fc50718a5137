package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/safepoint"
	"github.com/wippyai/wasm-bridge/wasm"
)

type moduleReport struct {
	Name       string        `yaml:"name"`
	SafePoints int           `yaml:"safe_points"`
	Start      bool          `yaml:"start,omitempty"`
	Imports    []importEntry `yaml:"imports"`
	Exports    []exportEntry `yaml:"exports"`
}

type importEntry struct {
	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Type      string `yaml:"type"`
}

type exportEntry struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	Type string `yaml:"type"`
}

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "inspect file.wasm",
		Short: "List a module's imports and exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "read module")
			}
			rep, err := inspect(filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			switch output {
			case "yaml":
				return writeYAML(opts.out, rep)
			case "text", "":
				writeText(opts.out, rep)
				return nil
			default:
				return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown output format %q", output))
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or yaml")
	return cmd
}

// inspect validates data and describes the module as it would be loaded.
func inspect(name string, data []byte) (moduleReport, error) {
	m, err := wasm.Parse(data)
	if err != nil {
		return moduleReport{}, err
	}
	inj, err := safepoint.Inject(m)
	if err != nil {
		return moduleReport{}, err
	}

	rep := moduleReport{Name: name, SafePoints: inj.Sites, Start: m.Start != nil}
	for _, d := range m.ImportDecls() {
		rep.Imports = append(rep.Imports, importEntry{
			Namespace: d.Namespace,
			Name:      d.Name,
			Kind:      d.Type.Kind.String(),
			Type:      d.Type.String(),
		})
	}
	for _, d := range m.ExportDecls() {
		rep.Exports = append(rep.Exports, exportEntry{
			Name: d.Name,
			Kind: d.Type.Kind.String(),
			Type: d.Type.String(),
		})
	}
	return rep, nil
}

func writeText(w io.Writer, rep moduleReport) {
	fmt.Fprintf(w, "Module: %s\n", rep.Name)
	fmt.Fprintf(w, "Safe points: %d\n", rep.SafePoints)
	if rep.Start {
		fmt.Fprintln(w, "Start function: yes")
	}
	fmt.Fprintf(w, "\nImports (%d):\n", len(rep.Imports))
	for _, imp := range rep.Imports {
		fmt.Fprintf(w, "  %s.%s: %s\n", imp.Namespace, imp.Name, imp.Type)
	}
	fmt.Fprintf(w, "\nExports (%d):\n", len(rep.Exports))
	for _, exp := range rep.Exports {
		fmt.Fprintf(w, "  %s: %s\n", exp.Name, exp.Type)
	}
}

func writeYAML(w io.Writer, rep moduleReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return err
	}
	return enc.Close()
}
