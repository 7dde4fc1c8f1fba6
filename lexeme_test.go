package ssi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexemeLineNumbering(t *testing.T) {
	s, err := NewLexemeStream("int x;\nint y;\n", DefaultCRules())
	require.NoError(t, err)
	require.Equal(t, 1, s.At(0).Line())

	var secondLine int
	for i := 0; i < s.Len(); i++ {
		if s.At(i).Surface() == "y" {
			secondLine = s.At(i).Line()
		}
	}
	require.Equal(t, 2, secondLine)
}

func TestLexemeIsMatchesSurface(t *testing.T) {
	s, err := NewLexemeStream("x += 1;", DefaultCRules())
	require.NoError(t, err)
	require.True(t, s.At(1).Is("+="))
	require.False(t, s.At(1).Is("-="))
}

func TestPseudoLexemeCarriesOwnSurface(t *testing.T) {
	s, err := NewLexemeStream("x;", DefaultCRules())
	require.NoError(t, err)
	lx := NewPseudoLexeme(s, KindIdent, "___l1", s.At(0).Start())
	require.True(t, lx.IsPseudo())
	require.Equal(t, "___l1", lx.Surface())
}

func TestStreamSpliceReplacesRange(t *testing.T) {
	s, err := NewLexemeStream("a + b;", DefaultCRules())
	require.NoError(t, err)
	replacement := []Lexeme{NewPseudoLexeme(s, KindIdent, "c", s.At(0).Start())}
	s.Splice(0, 1, replacement)
	require.Equal(t, "c", s.At(0).Surface())
	require.Equal(t, "+", s.At(1).Surface())
}

func TestStreamIndexOfFindsIdentityMatch(t *testing.T) {
	s, err := NewLexemeStream("a + b;", DefaultCRules())
	require.NoError(t, err)
	lx := s.At(2)
	require.Equal(t, 2, s.IndexOf(lx))
}
