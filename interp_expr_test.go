package ssi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func evalSource(t *testing.T, expr string) *Value {
	t.Helper()
	in, err := NewInterpreterFromSource(expr)
	require.NoError(t, err)
	n, ok := in.parseExpr(in.Stream.All())
	require.True(t, ok, "failed to parse expression %q", expr)
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	return v.Find()
}

func TestEvalLiteralNumber(t *testing.T) {
	require.Equal(t, 42, evalSource(t, "42").Payload)
}

func TestEvalHexAndOctalLiterals(t *testing.T) {
	require.Equal(t, 31, evalSource(t, "0x1F").Payload)
	require.Equal(t, 8, evalSource(t, "010").Payload, "expected octal 010 to be 8")
}

func TestEvalArithmeticPrecedence(t *testing.T) {
	require.Equal(t, 14, evalSource(t, "2 + 3 * 4").Payload)
	require.Equal(t, 20, evalSource(t, "(2 + 3) * 4").Payload)
}

func TestEvalComparisonAndLogic(t *testing.T) {
	require.Equal(t, 1, evalSource(t, "1 < 2 && 3 > 2").Payload)
	require.Equal(t, 1, evalSource(t, "1 == 2 || 3 == 3").Payload)
}

func TestEvalShortCircuitAndSkipsRHS(t *testing.T) {
	// division by zero in the RHS must never be evaluated
	require.Equal(t, 0, evalSource(t, "0 && (1 / 0)").Payload)
}

func TestEvalShortCircuitOrSkipsRHS(t *testing.T) {
	require.Equal(t, 1, evalSource(t, "1 || (1 / 0)").Payload)
}

func TestEvalTernary(t *testing.T) {
	require.Equal(t, 10, evalSource(t, "1 ? 10 : 20").Payload)
	require.Equal(t, 20, evalSource(t, "0 ? 10 : 20").Payload)
}

func TestEvalUnaryOperators(t *testing.T) {
	require.Equal(t, -5, evalSource(t, "-5").Payload)
	require.Equal(t, 1, evalSource(t, "!0").Payload)
	require.Equal(t, -1, evalSource(t, "~0").Payload)
}

func TestEvalCommaYieldsLastValue(t *testing.T) {
	require.Equal(t, 3, evalSource(t, "1, 2, 3").Payload)
}

func TestEvalStringAndCharLiterals(t *testing.T) {
	require.Equal(t, "hi", evalSource(t, `"hi"`).Payload)
	require.Equal(t, int('a'), evalSource(t, "'a'").Payload)
}

func TestAssignToPlainIdentifierDeclaresAndStores(t *testing.T) {
	in, err := NewInterpreterFromSource("x = 5;")
	require.NoError(t, err)
	toks := in.Stream.All()
	n, ok := in.parseExpr(toks[:len(toks)-1]) // drop trailing ';'
	require.True(t, ok, "failed to parse assignment")
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	require.Equal(t, 5, v.Find().Payload)

	bound, ok := in.Trace.Scope.Lookup("x")
	require.True(t, ok)
	dv, err := in.deref(bound)
	require.NoError(t, err)
	require.Equal(t, 5, dv.Find().Payload)
}

func TestCompoundAssignReadsCurrentValue(t *testing.T) {
	in, err := NewInterpreterFromSource("x += 3;")
	require.NoError(t, err)
	_, err = in.storeToName("x", NewConcreteValue(10, frame()))
	require.NoError(t, err)
	toks := in.Stream.All()
	n, ok := in.parseExpr(toks[:len(toks)-1])
	require.True(t, ok, "failed to parse compound assignment")
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	require.Equal(t, 13, v.Find().Payload)
}

func TestPostIncrementReturnsOldValue(t *testing.T) {
	in, err := NewInterpreterFromSource("x++;")
	require.NoError(t, err)
	_, err = in.storeToName("x", NewConcreteValue(4, frame()))
	require.NoError(t, err)
	toks := in.Stream.All()
	n, ok := in.parseExpr(toks[:len(toks)-1])
	require.True(t, ok, "failed to parse post-increment")
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	require.Equal(t, 4, v.Find().Payload, "expected post-increment to return the old value")

	bound, _ := in.Trace.Scope.Lookup("x")
	dv, err := in.deref(bound)
	require.NoError(t, err)
	require.Equal(t, 5, dv.Find().Payload, "expected x to be incremented to 5")
}

func TestIndexIntoArrayInitializer(t *testing.T) {
	in, err := NewInterpreterFromSource("a[1];")
	require.NoError(t, err)
	in.Trace.Scope.Bind("a", evalSource(t, "{10, 20, 30}"))
	toks := in.Stream.All()
	n, ok := in.parseExpr(toks[:len(toks)-1])
	require.True(t, ok, "failed to parse index expression")
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	require.Equal(t, 20, v.Find().Payload)
}

func TestChainedIndexingPeelsRightmostBracket(t *testing.T) {
	in, err := NewInterpreterFromSource("m[0][1];")
	require.NoError(t, err)
	row0 := evalSource(t, "{1, 2}")
	row1 := evalSource(t, "{3, 4}")
	mem0, err := in.Trace.ConcretizeMemref(row0)
	require.NoError(t, err)
	mem1, err := in.Trace.ConcretizeMemref(row1)
	require.NoError(t, err)
	outer := in.Trace.AllocateTopLevelChild()
	outer.ChildAt(in.Trace, 0).SetValue(in.Trace, mem0.GetValue(in.Trace))
	outer.ChildAt(in.Trace, 1).SetValue(in.Trace, mem1.GetValue(in.Trace))
	in.Trace.Scope.Bind("m", NewMemrefValue(outer, in.Trace.CurrentExplanation()))

	toks := in.Stream.All()
	n, ok := in.parseExpr(toks[:len(toks)-1])
	require.True(t, ok, "failed to parse chained index expression")
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	require.Equal(t, 2, v.Find().Payload)
}

func TestMemberAccessReadsField(t *testing.T) {
	in, err := NewInterpreterFromSource("p.x;")
	require.NoError(t, err)
	obj := in.Trace.AllocateTopLevelChild()
	field := in.Trace.Field(obj, "x")
	field.SetValue(in.Trace, NewConcreteValue(7, in.Trace.CurrentExplanation()))
	in.Trace.Scope.Bind("p", NewMemrefValue(obj, in.Trace.CurrentExplanation()))

	toks := in.Stream.All()
	n, ok := in.parseExpr(toks[:len(toks)-1])
	require.True(t, ok, "failed to parse member access")
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	require.Equal(t, 7, v.Find().Payload)
}

func TestChainedMemberAccessPeelsRightmostDot(t *testing.T) {
	in, err := NewInterpreterFromSource("p.a.b;")
	require.NoError(t, err)
	obj := in.Trace.AllocateTopLevelChild()
	inner := in.Trace.Field(obj, "a")
	field := in.Trace.Field(inner, "b")
	field.SetValue(in.Trace, NewConcreteValue(9, in.Trace.CurrentExplanation()))
	in.Trace.Scope.Bind("p", NewMemrefValue(obj, in.Trace.CurrentExplanation()))

	toks := in.Stream.All()
	n, ok := in.parseExpr(toks[:len(toks)-1])
	require.True(t, ok, "failed to parse chained member access")
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	require.Equal(t, 9, v.Find().Payload)
}

func TestDerefMemberAccessReadsField(t *testing.T) {
	in, err := NewInterpreterFromSource("p->x;")
	require.NoError(t, err)
	obj := in.Trace.AllocateTopLevelChild()
	field := in.Trace.Field(obj, "x")
	field.SetValue(in.Trace, NewConcreteValue(3, in.Trace.CurrentExplanation()))
	in.Trace.Scope.Bind("p", NewMemrefValue(obj, in.Trace.CurrentExplanation()))

	toks := in.Stream.All()
	n, ok := in.parseExpr(toks[:len(toks)-1])
	require.True(t, ok, "failed to parse deref-member access")
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	require.Equal(t, 3, v.Find().Payload)
}

func TestFnCallDispatchesToRegisteredHandler(t *testing.T) {
	in, err := NewInterpreterFromSource("add(2, 3);")
	require.NoError(t, err)
	in.RegisterFn("add", func(tr *Trace, args []*Value) (*Value, error) {
		a := args[0].Find().Payload.(int)
		b := args[1].Find().Payload.(int)
		return NewConcreteValue(a+b, tr.CurrentExplanation()), nil
	})
	toks := in.Stream.All()
	n, ok := in.parseExpr(toks[:len(toks)-1])
	require.True(t, ok, "failed to parse call expression")
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	require.Equal(t, 5, v.Find().Payload)
}

func TestFnCallFallsBackToOpaqueWhenUnregistered(t *testing.T) {
	in, err := NewInterpreterFromSource("mystery(1);")
	require.NoError(t, err)
	toks := in.Stream.All()
	n, ok := in.parseExpr(toks[:len(toks)-1])
	require.True(t, ok, "failed to parse call expression")
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	require.False(t, v.Find().Concrete, "expected an unregistered call with no default handler to be opaque")
}

func TestInitListAllocatesSequentialChildren(t *testing.T) {
	in, err := NewInterpreterFromSource("{1, 2, 3};")
	require.NoError(t, err)
	toks := in.Stream.All()
	n, ok := in.parseExpr(toks[:len(toks)-1])
	require.True(t, ok, "failed to parse init list")
	v, err := in.EvalExpr(n)
	require.NoError(t, err)
	mem, err := in.Trace.ConcretizeMemref(v)
	require.NoError(t, err)
	for i, want := range []int{1, 2, 3} {
		require.Equal(t, want, mem.ChildAt(in.Trace, i).GetValue(in.Trace).Find().Payload, "child %d", i)
	}
}
