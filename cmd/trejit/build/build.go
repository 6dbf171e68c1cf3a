package build

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/zegl/trejit/compiler"
	"github.com/zegl/trejit/compiler/circuit"
)

type Options struct {
	// Debug logs every step of the analysis.
	Debug bool

	// Dump prints the circuit after rewriting.
	Dump bool

	// Color highlights the report.
	Color bool

	// MaxVisits bounds the analysis. Zero means unbounded.
	MaxVisits int
}

const (
	colorReset = "\x1b[0m"
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
)

// Build loads the circuit at path, optimizes it and writes the findings to
// w, followed by the rewritten circuit when Dump is set.
func Build(path string, opts Options, w io.Writer) error {
	c, err := circuit.LoadFile(path)
	if err != nil {
		return err
	}

	if opts.Debug {
		log.Printf("Loaded %d gates from %s", c.Len(), path)
	}

	findings, err := compiler.Compile(c, compiler.Options{
		Debug:     opts.Debug,
		MaxVisits: opts.MaxVisits,
	})
	if err != nil {
		return fmt.Errorf("escape analysis of %s: %w", path, err)
	}

	if err := writeReport(w, c, findings, opts.Color); err != nil {
		return err
	}

	if opts.Dump {
		return c.Dump(w)
	}
	return nil
}

func writeReport(w io.Writer, c *circuit.Circuit, findings []compiler.Finding, color bool) error {
	paint := func(s, code string) string {
		if !color {
			return s
		}
		return code + s + colorReset
	}

	for _, f := range findings {
		var status string
		switch f.Verdict {
		case compiler.Escaped:
			status = paint(f.Verdict.String(), colorRed)
		case compiler.Replaced:
			status = "replaced by " + label(c, f.Replacement, map[circuit.GateRef]bool{})
		default:
			status = paint(f.Verdict.String(), colorGreen)
		}

		if _, err := fmt.Fprintf(w, "%s: %s\n", c.Name(f.Gate), status); err != nil {
			return err
		}
	}
	return nil
}

// label names a gate for the report. Synthesized phis are unnamed and are
// shown through their inputs.
func label(c *circuit.Circuit, gate circuit.GateRef, seen map[circuit.GateRef]bool) string {
	if name := c.Name(gate); name != "" {
		return name
	}
	if c.Op(gate) != circuit.OpValueSelector || seen[gate] {
		return fmt.Sprintf("%%%d", gate)
	}
	seen[gate] = true

	ins := make([]string, c.ValueCount(gate))
	for i := range ins {
		ins[i] = label(c, c.ValueIn(gate, i), seen)
	}
	return "phi(" + strings.Join(ins, ", ") + ")"
}
