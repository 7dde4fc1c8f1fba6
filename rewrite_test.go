package ssi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteReplacesRangeWithLiteralPattern(t *testing.T) {
	s, err := NewLexemeStream("x = 1 + 2;", DefaultCRules())
	require.NoError(t, err)
	// replace "1 + 2" (indices 2..5) with "3"
	require.NoError(t, Rewrite(s, 2, 5, "3", nil, false))
	require.Equal(t, []string{"x", "=", "3", ";"}, surfaces(s.All()))
}

func TestRewriteSubstitutesNamedLexemeSlice(t *testing.T) {
	s, err := NewLexemeStream("foo(a);", DefaultCRules())
	require.NoError(t, err)
	// locate "a" to splice verbatim back via a substitution
	aTok := []Lexeme{s.At(2)}
	require.NoError(t, Rewrite(s, 0, 1, "bar({arg})", map[string]any{"arg": aTok}, false))
	require.Equal(t, "bar", surfaces(s.All())[0])
}

func TestRewriteEscapesDoubleBraces(t *testing.T) {
	s, err := NewLexemeStream("x;", DefaultCRules())
	require.NoError(t, err)
	require.NoError(t, Prepend(s, 0, "{{ {{1}} }}", nil))
	require.Equal(t, "{", surfaces(s.All())[0])
}

func TestPrependInsertsWithoutRemoving(t *testing.T) {
	s, err := NewLexemeStream("b;", DefaultCRules())
	require.NoError(t, err)
	require.NoError(t, Prepend(s, 0, "a;", nil))
	require.Equal(t, []string{"a", ";", "b", ";"}, surfaces(s.All()))
}

func TestRewriteListMixesLiteralsAndLexemeSlices(t *testing.T) {
	s, err := NewLexemeStream("x = old;", DefaultCRules())
	require.NoError(t, err)
	replacement := []Lexeme{s.At(0)} // reuse "x" as the replacement value
	elems := []any{"y", " = ", replacement}
	require.NoError(t, RewriteList(s, 0, 3, elems, false))
	require.Equal(t, []string{"y", "=", "x", ";"}, surfaces(s.All()))
}

func TestGenLabelProducesMonotoneUniqueNames(t *testing.T) {
	a := GenLabel()
	b := GenLabel()
	require.NotEqual(t, a, b)
	require.Equal(t, "___l", a[:4])
	require.Equal(t, "___l", b[:4])
}
