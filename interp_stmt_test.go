package ssi

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// runVoidFn single-steps name's body to completion at the interpreter's
// current scope depth, the same way a driver stepping through main() does
// via SetToLine/Step (no frame is pushed) - unlike a C-level call through
// evalFnCall/callUserFunction, which always isolates its locals in a fresh
// frame. Mirroring that distinction matters here: it is what lets a bare
// top-level assignment like "x = 1;" persist in the caller's own frame
// instead of vanishing with a popped call frame.
func runVoidFn(t *testing.T, in *Interpreter, name string) {
	t.Helper()
	fnVal, ok := in.Trace.Scope.Lookup(name)
	require.True(t, ok, "function %q was not registered by GlobalsPass", name)
	meta, ok := fnVal.Find().Payload.(fnMeta)
	require.True(t, ok, "%q is not a function", name)
	in.Head = meta.BodyOpen
	for {
		_, err := in.Step()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
	}
}

func globalInt(t *testing.T, in *Interpreter, name string) int {
	t.Helper()
	v, ok := in.Trace.Scope.Lookup(name)
	require.True(t, ok, "expected global %q to be bound", name)
	dv, err := in.deref(v)
	require.NoError(t, err)
	i, ok := dv.Find().Payload.(int)
	require.True(t, ok, "expected global %q to hold an int, got %v", name, dv.Find().Payload)
	return i
}

func newGlobalsInterp(t *testing.T, src string) *Interpreter {
	t.Helper()
	in, err := NewInterpreterFromSource(src)
	require.NoError(t, err)
	require.NoError(t, in.GlobalsPass())
	return in
}

func TestIfStmtLoweringTakesThenBranch(t *testing.T) {
	in := newGlobalsInterp(t, `
int x;
void test() {
	if (1) {
		x = 10;
	} else {
		x = 20;
	}
}
`)
	runVoidFn(t, in, "test")
	require.Equal(t, 10, globalInt(t, in, "x"))
}

func TestIfStmtLoweringTakesElseBranch(t *testing.T) {
	in := newGlobalsInterp(t, `
int x;
void test() {
	if (0) {
		x = 10;
	} else {
		x = 20;
	}
}
`)
	runVoidFn(t, in, "test")
	require.Equal(t, 20, globalInt(t, in, "x"))
}

func TestWhileLoopAccumulates(t *testing.T) {
	in := newGlobalsInterp(t, `
int i;
int sum;
void test() {
	i = 0;
	sum = 0;
	while (i < 3) {
		sum = sum + i;
		i = i + 1;
	}
}
`)
	runVoidFn(t, in, "test")
	require.Equal(t, 3, globalInt(t, in, "sum"), "expected sum == 0+1+2 == 3")
	require.Equal(t, 3, globalInt(t, in, "i"))
}

func TestDoWhileRunsBodyAtLeastOnce(t *testing.T) {
	in := newGlobalsInterp(t, `
int count;
void test() {
	count = 0;
	do {
		count = count + 1;
	} while (0);
}
`)
	runVoidFn(t, in, "test")
	require.Equal(t, 1, globalInt(t, in, "count"), "expected a do-while with a false condition to still run once")
}

func TestForLoopBreak(t *testing.T) {
	in := newGlobalsInterp(t, `
int i;
int sum;
void test() {
	sum = 0;
	for (i = 0; i < 5; i = i + 1) {
		if (i == 3) {
			break;
		}
		sum = sum + i;
	}
}
`)
	runVoidFn(t, in, "test")
	require.Equal(t, 3, globalInt(t, in, "sum"), "expected break at i==3 to leave sum==0+1+2==3")
	require.Equal(t, 3, globalInt(t, in, "i"), "expected i == 3 at break")
}

func TestForLoopContinue(t *testing.T) {
	in := newGlobalsInterp(t, `
int i;
int sum;
void test() {
	sum = 0;
	for (i = 0; i < 5; i = i + 1) {
		if (i == 2) {
			continue;
		}
		sum = sum + i;
	}
}
`)
	runVoidFn(t, in, "test")
	require.Equal(t, 8, globalInt(t, in, "sum"), "expected continue to skip i==2, sum==0+1+3+4==8")
	require.Equal(t, 5, globalInt(t, in, "i"), "expected the loop to run to completion, i==5")
}

func TestSwitchDispatchesToMatchingCase(t *testing.T) {
	in := newGlobalsInterp(t, `
int x;
int y;
void test() {
	x = 2;
	switch (x) {
	case 1:
		y = 100;
		break;
	case 2:
		y = 200;
		break;
	default:
		y = 999;
	}
}
`)
	runVoidFn(t, in, "test")
	require.Equal(t, 200, globalInt(t, in, "y"), "expected case 2 to fire, y==200")
}

func TestSwitchFallsBackToDefault(t *testing.T) {
	in := newGlobalsInterp(t, `
int x;
int y;
void test() {
	x = 7;
	switch (x) {
	case 1:
		y = 100;
		break;
	case 2:
		y = 200;
		break;
	default:
		y = 999;
	}
}
`)
	runVoidFn(t, in, "test")
	require.Equal(t, 999, globalInt(t, in, "y"), "expected no case to match and default to fire, y==999")
}

func TestNestedLoopBreakOnlyExitsInnermost(t *testing.T) {
	in := newGlobalsInterp(t, `
int i;
int j;
int count;
void test() {
	count = 0;
	for (i = 0; i < 2; i = i + 1) {
		for (j = 0; j < 5; j = j + 1) {
			if (j == 1) {
				break;
			}
			count = count + 1;
		}
	}
}
`)
	runVoidFn(t, in, "test")
	require.Equal(t, 2, globalInt(t, in, "count"), "expected inner break to fire once per outer iteration, count==2")
	require.Equal(t, 2, globalInt(t, in, "i"), "expected the outer loop to run to completion, i==2")
}

func TestFunctionReturnValueIsVisibleThroughCall(t *testing.T) {
	in := newGlobalsInterp(t, `
int add(int a, int b) {
	return a + b;
}
void test() {
	result = add(2, 3);
}
`)
	runVoidFn(t, in, "test")
	require.Equal(t, 5, globalInt(t, in, "result"), "expected add(2,3) called from another function to yield 5")
}
