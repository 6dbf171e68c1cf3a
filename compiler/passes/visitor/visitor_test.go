package visitor

import (
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zegl/trejit/compiler/circuit"
)

type recorder struct {
	visited []circuit.GateRef

	// changes makes the first visits of a gate report a change
	changes map[circuit.GateRef]int

	// revisit is scheduled after every visit of the given gate
	revisit map[circuit.GateRef]circuit.GateRef

	pending []circuit.GateRef
}

func (r *recorder) VisitGate(gate circuit.GateRef) bool {
	r.visited = append(r.visited, gate)
	if target, ok := r.revisit[gate]; ok {
		r.pending = append(r.pending, target)
	}
	if r.changes[gate] > 0 {
		r.changes[gate]--
		return true
	}
	return false
}

func (r *recorder) PendingRevisits() iter.Seq[circuit.GateRef] {
	pending := r.pending
	r.pending = nil
	return slices.Values(pending)
}

func straightLine() (*circuit.Circuit, circuit.GateRef, circuit.GateRef, circuit.GateRef) {
	c := circuit.New()
	b := circuit.NewBuilder(c)
	arg := b.Arg(0)
	load := b.LoadConstOffset(arg, 0)
	ret := b.Return(load)
	return c, arg, load, ret
}

func TestRunVisitsEveryGateOnceInOrder(t *testing.T) {
	c, _, _, _ := straightLine()
	r := &recorder{}

	require.NoError(t, Run(c, r, 0))
	assert.Equal(t, c.ReversePostOrder(), r.visited)
}

func TestRunRevisitsUsersOnChange(t *testing.T) {
	c, arg, load, ret := straightLine()
	r := &recorder{changes: map[circuit.GateRef]int{load: 1}}

	require.NoError(t, Run(c, r, 0))
	assert.Equal(t, 1, count(r.visited, arg))
	assert.Equal(t, 1, count(r.visited, load))
	// ret is still queued when load changes, so it is not queued twice
	assert.Equal(t, 1, count(r.visited, ret))
}

func TestRunHonorsPendingRevisits(t *testing.T) {
	c, arg, _, ret := straightLine()
	r := &recorder{revisit: map[circuit.GateRef]circuit.GateRef{ret: arg}}

	// ret asks for arg after each of its visits, arg never changes
	require.NoError(t, Run(c, r, 0))
	assert.Equal(t, 2, count(r.visited, arg))
	assert.Equal(t, arg, r.visited[len(r.visited)-1])
}

func TestRunGivesUp(t *testing.T) {
	c, _, load, _ := straightLine()
	r := &recorder{revisit: map[circuit.GateRef]circuit.GateRef{load: load}}

	err := Run(c, r, 50)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.Len(t, r.visited, 50)
}

func TestRunSkipsDeletedGates(t *testing.T) {
	c, _, _, _ := straightLine()
	b := circuit.NewBuilder(c)
	k := b.Int64(1)
	c.DeleteGate(k)

	r := &recorder{}
	require.NoError(t, Run(c, r, 0))
	assert.NotContains(t, r.visited, k)
}

type deleter struct {
	c       *circuit.Circuit
	victim  circuit.GateRef
	visited []circuit.GateRef
}

func (d *deleter) VisitGate(gate circuit.GateRef) bool {
	d.visited = append(d.visited, gate)
	if d.victim != circuit.NullGate && !d.c.IsDeleted(d.victim) {
		d.c.DeleteGate(d.victim)
	}
	return false
}

func TestWalkSkipsGatesDeletedDuringTheWalk(t *testing.T) {
	c, arg, load, ret := straightLine()
	d := &deleter{c: c, victim: ret}

	Walk(c, d)
	assert.Contains(t, d.visited, arg)
	assert.Contains(t, d.visited, load)
	assert.NotContains(t, d.visited, ret)
	assert.True(t, slices.IsSorted(d.visited))
}

func count(gates []circuit.GateRef, gate circuit.GateRef) int {
	n := 0
	for _, g := range gates {
		if g == gate {
			n++
		}
	}
	return n
}
