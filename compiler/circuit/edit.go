package circuit

import (
	"fmt"
	"slices"
)

func (c *Circuit) setIn(ref GateRef, idx int, in GateRef) {
	g := c.get(ref)
	old := g.ins[idx]
	if old == in {
		return
	}
	if old != NullGate {
		c.removeUse(old, Use{User: ref, Index: idx})
	}
	g.ins[idx] = in
	if in != NullGate {
		c.get(in).uses = append(c.get(in).uses, Use{User: ref, Index: idx})
	}
}

func (c *Circuit) removeUse(src GateRef, u Use) {
	s := c.get(src)
	if i := slices.Index(s.uses, u); i >= 0 {
		s.uses = slices.Delete(s.uses, i, i+1)
		return
	}
	panic(fmt.Sprintf("circuit: %d is not used by %d at %d", src, u.User, u.Index))
}

func (c *Circuit) ReplaceStateIn(ref GateRef, idx int, in GateRef) {
	if idx < 0 || idx >= c.StateCount(ref) {
		panic(fmt.Sprintf("circuit: %s %d has no state input %d", c.Op(ref), ref, idx))
	}
	c.setIn(ref, idx, in)
}

func (c *Circuit) ReplaceDependIn(ref GateRef, idx int, in GateRef) {
	if idx < 0 || idx >= c.DependCount(ref) {
		panic(fmt.Sprintf("circuit: %s %d has no depend input %d", c.Op(ref), ref, idx))
	}
	c.setIn(ref, c.StateCount(ref)+idx, in)
}

func (c *Circuit) ReplaceValueIn(ref GateRef, idx int, in GateRef) {
	if idx < 0 || idx >= c.ValueCount(ref) {
		panic(fmt.Sprintf("circuit: %s %d has no value input %d", c.Op(ref), ref, idx))
	}
	c.setIn(ref, c.StateCount(ref)+c.DependCount(ref)+idx, in)
}

// ReplaceGate takes ref out of the circuit: its state uses are rewired to
// state, its depend uses to depend and its value uses to value, then ref is
// deleted.
func (c *Circuit) ReplaceGate(ref, state, depend, value GateRef) {
	for _, u := range c.Uses(ref) {
		var in GateRef
		switch c.EdgeKind(u) {
		case StateEdge:
			in = state
		case DependEdge:
			in = depend
		default:
			in = value
		}
		if in == NullGate {
			panic(fmt.Sprintf("circuit: ReplaceGate %s %d: nothing to rewire input %d of %s %d to",
				c.Op(ref), ref, u.Index, c.Op(u.User), u.User))
		}
		c.setIn(u.User, u.Index, in)
	}
	c.DeleteGate(ref)
}

// DeleteGate disconnects all inputs of ref and flags it deleted. Remaining
// uses of ref are left for the caller to rewire.
func (c *Circuit) DeleteGate(ref GateRef) {
	g := c.get(ref)
	for i := range g.ins {
		c.setIn(ref, i, NullGate)
	}
	g.deleted = true
}
