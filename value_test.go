package ssi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func frame() explainFrame { return explainFrame{} }

func TestFindCompressesCanonicalChain(t *testing.T) {
	a := NewOpaqueValue(1, frame())
	b := NewConcreteValue(7, frame())
	a.rewriteCanonical(b)
	require.Equal(t, b, a.Find())
	require.Equal(t, b, a.canonical, "expected path compression to point directly at the root")
}

func TestLiftAllConcreteProducesConcreteResult(t *testing.T) {
	tr := NewTrace()
	a := NewConcreteValue(2, frame())
	b := NewConcreteValue(3, frame())
	v := Lift(tr, "+", []*Value{a, b}, frame())
	require.True(t, v.Concrete)
	require.Equal(t, 5, v.Payload)
}

func TestLiftWithOpaqueOperandDefers(t *testing.T) {
	tr := NewTrace()
	a := tr.NewOpaque()
	b := NewConcreteValue(3, frame())
	v := Lift(tr, "+", []*Value{a, b}, frame())
	require.False(t, v.Concrete, "expected a deferred result when an operand is opaque")
	d, ok := v.Payload.(deferredExpr)
	require.True(t, ok)
	require.Equal(t, "+", d.Op)
}

func TestLiftDivisionByZeroDefersRatherThanPanics(t *testing.T) {
	tr := NewTrace()
	a := NewConcreteValue(10, frame())
	b := NewConcreteValue(0, frame())
	v := Lift(tr, "/", []*Value{a, b}, frame())
	require.False(t, v.Concrete, "expected division by zero to fall back to a deferred value")
}

func TestLiftComparisonOperators(t *testing.T) {
	tr := NewTrace()
	cases := []struct {
		op   string
		a, b int
		want int
	}{
		{"==", 3, 3, 1},
		{"!=", 3, 3, 0},
		{"<", 2, 3, 1},
		{">=", 2, 3, 0},
	}
	for _, c := range cases {
		v := Lift(tr, c.op, []*Value{NewConcreteValue(c.a, frame()), NewConcreteValue(c.b, frame())}, frame())
		require.Equal(t, c.want, v.Payload, "%d %s %d", c.a, c.op, c.b)
	}
}

func TestLiftPointerArithmeticShiftsSibling(t *testing.T) {
	tr := NewTrace()
	base := tr.AllocateTopLevelChild()
	baseVal := NewMemrefValue(base, frame())
	shift := NewConcreteValue(2, frame())
	v := Lift(tr, "+", []*Value{baseVal, shift}, frame())
	mem, ok := v.Payload.(*Memref)
	require.True(t, ok, "expected a Memref payload, got %T", v.Payload)
	require.Equal(t, base.trailing()+2, mem.trailing())
}

func TestLiftPointerEqualityComparesAddress(t *testing.T) {
	tr := NewTrace()
	a := tr.AllocateTopLevelChild()
	va := NewMemrefValue(a, frame())
	vb := NewMemrefValue(a, frame())
	v := Lift(tr, "==", []*Value{va, vb}, frame())
	require.Equal(t, 1, v.Payload, "expected equal pointers to the same memref to compare equal")
}

func TestValueStringRendersEachPayloadKind(t *testing.T) {
	require.Equal(t, "5", NewConcreteValue(5, frame()).String())
	require.Equal(t, "opaque(3)", NewOpaqueValue(3, frame()).String())
}
