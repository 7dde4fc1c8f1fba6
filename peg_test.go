package ssi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, text string) []Lexeme {
	t.Helper()
	s, err := NewLexemeStream(text, DefaultCRules())
	require.NoError(t, err)
	return s.All()
}

func TestStrMatchesSurface(t *testing.T) {
	toks := lexAll(t, "int x;")
	n, rest, ok := Str("int")(toks, nil)
	require.True(t, ok)
	require.Equal(t, "int", n.Lex.Surface())
	require.Len(t, rest, 2)
}

func TestStrFailsOnMismatch(t *testing.T) {
	toks := lexAll(t, "int x;")
	_, rest, ok := Str("float")(toks, nil)
	require.False(t, ok)
	require.Equal(t, toks, rest, "a failed Str must not consume input")
}

func TestKindMatchesTokenKind(t *testing.T) {
	toks := lexAll(t, "42")
	n, _, ok := Kind(KindNumLit)(toks, nil)
	require.True(t, ok)
	require.Equal(t, "42", n.Lex.Surface())
}

func TestOptSucceedsEvenOnFailure(t *testing.T) {
	toks := lexAll(t, "x")
	_, rest, ok := Opt(Str("y"))(toks, nil)
	require.True(t, ok, "Opt must always succeed")
	require.Equal(t, toks, rest, "a failed Opt branch must not consume input")
}

func TestChoicePicksFirstMatch(t *testing.T) {
	toks := lexAll(t, "int")
	e := Choice(Str("float"), Str("int"), Str("char"))
	n, _, ok := e(toks, nil)
	require.True(t, ok)
	require.Equal(t, "int", n.Lex.Surface())
}

func TestSeqConsumesAllOrNothing(t *testing.T) {
	toks := lexAll(t, "int x ;")
	e := Seq(Str("int"), Kind(KindIdent), Str(";"))
	n, rest, ok := e(toks, nil)
	require.True(t, ok)
	require.Empty(t, rest)
	require.Len(t, n.Children, 3)
}

func TestSeqFailsAtomically(t *testing.T) {
	toks := lexAll(t, "int ;")
	e := Seq(Str("int"), Kind(KindIdent), Str(";"))
	_, rest, ok := e(toks, nil)
	require.False(t, ok, "expected sequence to fail when a middle element doesn't match")
	require.Equal(t, toks, rest, "a failed Seq must not consume any input")
}

func TestAndIsZeroWidthLookahead(t *testing.T) {
	toks := lexAll(t, "int x;")
	_, rest, ok := And(Str("int"))(toks, nil)
	require.True(t, ok)
	require.Equal(t, toks, rest, "And must not consume input")
}

func TestNotFailsWhenInnerMatches(t *testing.T) {
	toks := lexAll(t, "int x;")
	_, _, ok := Not(Str("int"))(toks, nil)
	require.False(t, ok, "expected negative lookahead to fail when the inner expr matches")
}

func TestBalancedMatchesNestedParens(t *testing.T) {
	toks := lexAll(t, "(a (b) c) rest")
	n, rest, ok := Balanced("(", ")")(toks, nil)
	require.True(t, ok)
	require.Equal(t, "bal", n.Label)
	require.Len(t, n.Children, 3)
	require.Equal(t, []string{"rest"}, surfaces(rest))
}

func TestBalancedFailsWithoutOpeningDelimiter(t *testing.T) {
	toks := lexAll(t, "a) b")
	_, _, ok := Balanced("(", ")")(toks, nil)
	require.False(t, ok, "expected balanced to fail when head isn't the opener")
}

func TestSkiptoSkipsBalancedGroupsAsUnits(t *testing.T) {
	toks := lexAll(t, "foo(a, b), bar")
	n, rest, ok := Skipto(Str(","))(toks, nil)
	require.True(t, ok)
	require.Equal(t, "skipto", n.Label)
	skipped := n.Children[0].Leaves()
	require.NotEmpty(t, skipped)
	require.Equal(t, ")", skipped[len(skipped)-1].Surface())
	require.Equal(t, []string{"bar"}, surfaces(rest))
}

func TestSkiptoFailsWhenTargetNeverAppears(t *testing.T) {
	toks := lexAll(t, "a b c")
	_, _, ok := Skipto(Str(";"))(toks, nil)
	require.False(t, ok, "expected skipto to fail when the terminator never appears")
}

func TestZeroOrMoreExprCollectsAllMatches(t *testing.T) {
	toks := lexAll(t, "a a a b")
	n, rest, ok := ZeroOrMoreExpr(Str("a"))(toks, nil)
	require.True(t, ok, "ZeroOrMoreExpr must always succeed")
	require.Len(t, n.Children, 3)
	require.Equal(t, []string{"b"}, surfaces(rest))
}

func TestZeroOrMoreExprSucceedsWithNoMatches(t *testing.T) {
	toks := lexAll(t, "b")
	n, rest, ok := ZeroOrMoreExpr(Str("a"))(toks, nil)
	require.True(t, ok)
	require.Empty(t, n.Children)
	require.Equal(t, []string{"b"}, surfaces(rest))
}

func TestGrammarRefResolvesNamedRule(t *testing.T) {
	g := NewGrammar()
	g.Define("Digit", Kind(KindNumLit))
	toks := lexAll(t, "7")
	n, _, ok := Ref("Digit")(toks, g)
	require.True(t, ok)
	require.Equal(t, "7", n.Lex.Surface())
}

func TestNodeTextReassemblesSurface(t *testing.T) {
	toks := lexAll(t, "int x ;")
	e := Seq(Str("int"), Kind(KindIdent), Str(";"))
	n, _, ok := e(toks, nil)
	require.True(t, ok)
	require.Equal(t, "intx;", n.Text())
}

func TestTrailingAnchorsOnRightmostMarker(t *testing.T) {
	toks := lexAll(t, "a ++ ++")
	n, rest, ok := Trailing(Str("++"))(toks, nil)
	require.True(t, ok)
	require.Empty(t, rest)
	require.Equal(t, "trailing", n.Label)
	base, marker := n.Children[0], n.Children[1]
	require.Equal(t, []string{"a", "++"}, surfaces(base.Leaves()))
	require.Equal(t, "++", marker.Lex.Surface())
}

func TestTrailingFailsWhenMarkerNeverAccountsForTheTail(t *testing.T) {
	toks := lexAll(t, "a b c")
	_, _, ok := Trailing(Str("++"))(toks, nil)
	require.False(t, ok)
}
