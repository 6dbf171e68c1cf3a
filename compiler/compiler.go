package compiler

import (
	"log"

	"github.com/zegl/trejit/compiler/circuit"
	"github.com/zegl/trejit/compiler/passes/escape"
)

type Verdict uint8

const (
	// Escaped allocations stay in memory.
	Escaped Verdict = iota

	// Eliminated gates are removed with nothing in their place.
	Eliminated

	// Replaced loads have their uses handed to another value.
	Replaced

	// BracketRemoved allocation brackets are dropped around their
	// FINISH_ALLOCATE.
	BracketRemoved
)

func (v Verdict) String() string {
	switch v {
	case Escaped:
		return "escaped"
	case Eliminated:
		return "eliminated"
	case Replaced:
		return "replaced"
	case BracketRemoved:
		return "bracket removed"
	}
	return "unknown"
}

// Finding is one conclusion of the optimizer about a named gate.
type Finding struct {
	Gate    circuit.GateRef
	Verdict Verdict

	// Replacement is set for Replaced findings
	Replacement circuit.GateRef
}

type Options struct {
	Debug  bool
	Logger *log.Logger

	// MaxVisits bounds the analysis. Zero means unbounded.
	MaxVisits int
}

// Compile runs escape analysis over c, rewrites c from its conclusions and
// returns the findings for named gates in id order. Findings are taken
// before the rewrite, so their gates may no longer be live in c.
func Compile(c *circuit.Circuit, opts Options) ([]Finding, error) {
	ea := escape.New(c, escape.Options{Debug: opts.Debug, Logger: opts.Logger})
	if err := ea.Run(opts.MaxVisits); err != nil {
		return nil, err
	}

	var findings []Finding
	for gate := range c.Gates() {
		if c.Name(gate) == "" {
			continue
		}
		if f, ok := judge(c, ea, gate); ok {
			findings = append(findings, f)
		}
	}

	escape.NewEditor(c, ea).Run()
	return findings, nil
}

func judge(c *circuit.Circuit, ea *escape.EscapeAnalysis, gate circuit.GateRef) (Finding, bool) {
	switch {
	case c.Op(gate) == circuit.OpCreateObjectWithBuffer && ea.IsEscaped(gate):
		return Finding{Gate: gate, Verdict: Escaped}, true
	case c.Op(gate) == circuit.OpFinishAllocate && !ea.NeedsAllocationBracket(gate):
		return Finding{Gate: gate, Verdict: BracketRemoved}, true
	}

	r, ok := ea.TryGetReplacement(gate)
	switch {
	case !ok:
		return Finding{}, false
	case r == c.DeadGate():
		return Finding{Gate: gate, Verdict: Eliminated}, true
	default:
		return Finding{Gate: gate, Verdict: Replaced, Replacement: r}, true
	}
}
