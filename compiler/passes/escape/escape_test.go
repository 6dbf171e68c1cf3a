package escape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zegl/trejit/compiler/circuit"
)

type fixture struct {
	b *circuit.Builder
	c *circuit.Circuit

	one, two, three, four, five circuit.GateRef
	off0, off8                  circuit.GateRef
}

func newFixture() *fixture {
	c := circuit.New()
	b := circuit.NewBuilder(c)
	return &fixture{
		b:     b,
		c:     c,
		one:   b.Int64(1),
		two:   b.Int64(2),
		three: b.Int64(3),
		four:  b.Int64(4),
		five:  b.Int64(5),
		off0:  b.Int64(0),
		off8:  b.Int64(8),
	}
}

// pair allocates the two-field object {x: 1, y: 2}.
func (f *fixture) pair() circuit.GateRef {
	return f.b.CreateObjectWithBuffer(16, f.one, f.off0, f.two, f.off8)
}

func analyze(t *testing.T, c *circuit.Circuit) *EscapeAnalysis {
	t.Helper()
	ea := New(c, Options{})
	require.NoError(t, ea.Run(10000))
	return ea
}

func assertReplacement(t *testing.T, ea *EscapeAnalysis, gate, expected circuit.GateRef) {
	t.Helper()
	r, ok := ea.TryGetReplacement(gate)
	if assert.True(t, ok, "gate %d has no replacement", gate) {
		assert.Equal(t, expected, r)
	}
}

func assertNoReplacement(t *testing.T, ea *EscapeAnalysis, gate circuit.GateRef) {
	t.Helper()
	r, ok := ea.TryGetReplacement(gate)
	assert.False(t, ok, "gate %d replaced by %d", gate, r)
}

func TestLoadOfInitializedField(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	load := f.b.LoadProperty(obj, f.off8)
	f.b.Return(load)

	ea := analyze(t, f.c)

	assertReplacement(t, ea, load, f.two)
	assertReplacement(t, ea, obj, f.c.DeadGate())
	require.NotNil(t, ea.VirtualObjectOf(obj))
	assert.False(t, ea.VirtualObjectOf(obj).IsEscaped())
	assert.Equal(t, 2, ea.VirtualObjectOf(obj).NumFields())
}

func TestLoadConstOffset(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	load := f.b.LoadConstOffset(obj, 0)
	f.b.Return(load)

	ea := analyze(t, f.c)

	assertReplacement(t, ea, load, f.one)
}

func TestCallEscapes(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	f.b.Call(obj)
	load := f.b.LoadConstOffset(obj, 8)
	f.b.Return(load)

	ea := analyze(t, f.c)

	assert.True(t, ea.IsEscaped(obj))
	assertNoReplacement(t, ea, load)
	assertNoReplacement(t, ea, obj)
}

func TestEscapeRevokesEarlierReplacement(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	before := f.b.LoadConstOffset(obj, 8)
	f.b.Call(obj)
	f.b.Return(before)

	ea := analyze(t, f.c)

	assert.True(t, ea.IsEscaped(obj))
	assertNoReplacement(t, ea, before)
}

func TestReturnEscapes(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	f.b.Return(obj)

	ea := analyze(t, f.c)

	assert.True(t, ea.IsEscaped(obj))
}

func TestStoreThenLoad(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	store := f.b.StoreProperty(obj, f.off8, f.five)
	load := f.b.LoadProperty(obj, f.off8)
	f.b.Return(load)

	ea := analyze(t, f.c)

	assertReplacement(t, ea, store, f.c.DeadGate())
	assertReplacement(t, ea, load, f.five)
	assert.Equal(t, f.five, ea.StateOf(store).Get(ea.VirtualObjectOf(obj).FieldAt(8)))
	assert.Equal(t, f.one, ea.StateOf(store).Get(ea.VirtualObjectOf(obj).FieldAt(0)))
}

func TestStoredObjectEscapesWithContainer(t *testing.T) {
	f := newFixture()
	inner := f.b.CreateObjectWithBuffer(8, f.one, f.off0)
	outer := f.pair()
	f.b.StoreProperty(outer, f.off0, inner)
	f.b.Call(outer)

	ea := analyze(t, f.c)

	assert.True(t, ea.IsEscaped(outer))
	assert.True(t, ea.IsEscaped(inner))
}

func TestUninitializedFieldEscapes(t *testing.T) {
	f := newFixture()
	obj := f.b.CreateObjectWithBuffer(16, f.one, f.off0)
	load := f.b.LoadConstOffset(obj, 8)
	f.b.Return(load)

	ea := analyze(t, f.c)

	assert.True(t, ea.IsEscaped(obj))
	assertNoReplacement(t, ea, load)
}

func TestInitializerOutsideObjectEscapes(t *testing.T) {
	f := newFixture()
	inner := f.b.CreateObjectWithBuffer(8, f.one, f.off0)
	obj := f.b.CreateObjectWithBuffer(8, f.two, f.off0, inner, f.off8)

	ea := analyze(t, f.c)

	assert.True(t, ea.IsEscaped(obj))
	assert.True(t, ea.IsEscaped(inner))
}

func TestStoreOutsideObjectEscapes(t *testing.T) {
	f := newFixture()
	obj := f.b.CreateObjectWithBuffer(8, f.one, f.off0)
	store := f.b.StoreProperty(obj, f.off8, f.two)

	ea := analyze(t, f.c)

	assert.True(t, ea.IsEscaped(obj))
	assertNoReplacement(t, ea, store)
}

func TestDynamicOffsetEscapes(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	load := f.b.LoadProperty(obj, f.b.Arg(0))
	f.b.Return(load)

	ea := analyze(t, f.c)

	assert.True(t, ea.IsEscaped(obj))
	assertNoReplacement(t, ea, load)
}

func TestLoadFromUnknownBase(t *testing.T) {
	f := newFixture()
	arg := f.b.Arg(0)
	load := f.b.LoadConstOffset(arg, 0)
	store := f.b.StoreProperty(arg, f.off0, f.one)
	f.b.Return(load)

	ea := analyze(t, f.c)

	assertNoReplacement(t, ea, load)
	assertNoReplacement(t, ea, store)
	assert.Nil(t, ea.VirtualObjectOf(arg))
}

func TestLoadedObjectKeepsIdentity(t *testing.T) {
	f := newFixture()
	inner := f.b.CreateObjectWithBuffer(8, f.one, f.off0)
	outer := f.b.CreateObjectWithBuffer(8, inner, f.off0)
	load := f.b.LoadConstOffset(outer, 0)
	f.b.Call(load)

	ea := analyze(t, f.c)

	assertReplacement(t, ea, load, inner)
	assert.True(t, ea.IsEscaped(inner))
	assert.False(t, ea.IsEscaped(outer))
}

func TestCheckAndConvertPassThrough(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	check := f.b.ObjectTypeCheck(obj)
	conv := f.b.Convert(obj)
	load := f.b.LoadConstOffset(conv, 8)
	f.b.Return(load)

	ea := analyze(t, f.c)

	assert.Same(t, ea.VirtualObjectOf(obj), ea.VirtualObjectOf(conv))
	assert.Same(t, ea.VirtualObjectOf(obj), ea.VirtualObjectOf(check))
	assertReplacement(t, ea, load, f.two)
	assertReplacement(t, ea, check, f.c.DeadGate())
	assertReplacement(t, ea, conv, f.c.DeadGate())
}

func TestConvertedObjectEscapes(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	conv := f.b.Convert(obj)
	f.b.Call(conv)

	ea := analyze(t, f.c)

	assert.True(t, ea.IsEscaped(obj))
	assertNoReplacement(t, ea, conv)
}

func TestFrameStateDoesNotEscape(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	split := f.b.StateSplit(f.b.FrameState(obj))
	load := f.b.LoadConstOffset(obj, 8)
	f.b.Return(load)

	ea := analyze(t, f.c)

	assert.False(t, ea.IsEscaped(obj))
	assertNoReplacement(t, ea, split)
	assertReplacement(t, ea, load, f.two)
	assert.True(t, ea.StateOf(split).Equal(ea.StateOf(obj)))
}

func TestEscapeIsMonotone(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	first := f.b.Call(obj)
	second := f.b.Call(obj)

	ea := New(f.c, Options{})
	ea.VisitGate(obj)
	assert.Empty(t, collect(ea))

	ea.VisitGate(first)
	assert.Equal(t, []circuit.GateRef{obj}, collect(ea))
	assert.True(t, ea.IsEscaped(obj))

	ea.VisitGate(second)
	assert.Empty(t, collect(ea))
	assert.True(t, ea.IsEscaped(obj))
}

func TestCommitReportsChanges(t *testing.T) {
	f := newFixture()
	obj := f.pair()
	load := f.b.LoadConstOffset(obj, 0)

	ea := New(f.c, Options{})
	assert.True(t, ea.VisitGate(obj))
	assert.False(t, ea.VisitGate(obj))
	assert.True(t, ea.VisitGate(load))
	assert.False(t, ea.VisitGate(load))
	assertReplacement(t, ea, load, f.one)
}

func TestFieldOffsetMustBeAligned(t *testing.T) {
	f := newFixture()
	obj := f.b.CreateObjectWithBuffer(8, f.one, f.b.Int64(4))

	ea := New(f.c, Options{})
	assert.Panics(t, func() { ea.VisitGate(obj) })
}

func collect(ea *EscapeAnalysis) []circuit.GateRef {
	var gates []circuit.GateRef
	for g := range ea.PendingRevisits() {
		gates = append(gates, g)
	}
	return gates
}
