// Package visitor drives per-gate passes over a circuit.
package visitor

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"golang.org/x/tools/container/intsets"

	"github.com/zegl/trejit/compiler/circuit"
)

// ErrNotConverged is returned by Run when the visit limit is exhausted
// before the worklist drains.
var ErrNotConverged = errors.New("no fixed point reached")

type Visitor interface {
	// VisitGate processes one gate and reports whether its conclusions
	// changed, in which case every user of the gate is visited again.
	VisitGate(gate circuit.GateRef) (changed bool)
}

// Revisitor is a Visitor that can also ask for gates other than the users
// of the visited gate to be visited again.
type Revisitor interface {
	Visitor

	// PendingRevisits hands over, and forgets, the gates scheduled for
	// revisiting since the last call.
	PendingRevisits() iter.Seq[circuit.GateRef]
}

// Run visits the circuit in reverse postorder and keeps revisiting gates
// until v stops reporting changes. A positive limit bounds the number of
// visits.
func Run(c *circuit.Circuit, v Revisitor, limit int) error {
	order := c.ReversePostOrder()

	var queued intsets.Sparse
	queue := make([]circuit.GateRef, 0, len(order))
	push := func(gate circuit.GateRef) {
		if queued.Insert(int(gate)) {
			queue = append(queue, gate)
		}
	}
	for _, gate := range order {
		push(gate)
	}

	visits := 0
	for len(queue) > 0 {
		gate := queue[0]
		queue = queue[1:]
		queued.Remove(int(gate))

		if c.IsDeleted(gate) {
			continue
		}
		if limit > 0 && visits >= limit {
			return fmt.Errorf("%w after %d visits, %d gates pending", ErrNotConverged, visits, len(queue)+1)
		}
		visits++

		changed := v.VisitGate(gate)
		for r := range v.PendingRevisits() {
			push(r)
		}
		if changed {
			for _, u := range c.Uses(gate) {
				push(u.User)
			}
		}
	}
	return nil
}

// Walk visits every live gate once in id order. Gates deleted by an earlier
// visit are skipped; gates created during the walk are not visited.
func Walk(c *circuit.Circuit, v Visitor) {
	for _, gate := range slices.Collect(c.Gates()) {
		if c.IsDeleted(gate) {
			continue
		}
		v.VisitGate(gate)
	}
}
