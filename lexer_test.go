package ssi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func surfaces(toks []Lexeme) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Surface()
	}
	return out
}

func mustLex(t *testing.T, text string) []Lexeme {
	t.Helper()
	s, err := NewLexemeStream(text, DefaultCRules())
	require.NoError(t, err)
	return s.All()
}

func TestLexBasicTokens(t *testing.T) {
	toks := mustLex(t, "int x = 1 + 2;")
	want := []string{"int", "x", "=", "1", "+", "2", ";"}
	require.Equal(t, want, surfaces(toks))
}

func TestLexMultiCharOperatorsBeforeSingle(t *testing.T) {
	toks := mustLex(t, "a <<= b; c->d; e++; f <= g;")
	got := surfaces(toks)
	for _, w := range []string{"<<=", "->", "++", "<="} {
		require.Contains(t, got, w)
	}
}

func TestLexStringAndCharLiterals(t *testing.T) {
	toks := mustLex(t, `"hi\n" 'a'`)
	require.Len(t, toks, 2)
	require.Equal(t, KindStrLit, toks[0].Kind)
	require.Equal(t, `"hi\n"`, toks[0].Surface())
	require.Equal(t, KindChrLit, toks[1].Kind)
	require.Equal(t, `'a'`, toks[1].Surface())
}

func TestLexNumericLiterals(t *testing.T) {
	toks := mustLex(t, "0x1F 10 3.14 100u")
	want := []string{"0x1F", "10", "3.14", "100u"}
	require.Equal(t, want, surfaces(toks))
	for i := range want {
		require.Equal(t, KindNumLit, toks[i].Kind, "token %d", i)
	}
}

func TestLexCommentsAndWhitespaceSkipped(t *testing.T) {
	toks := mustLex(t, "a // comment\n  /* block\n comment */ b")
	require.Equal(t, []string{"a", "b"}, surfaces(toks))
}

func TestLexPreprocLineWithContinuation(t *testing.T) {
	toks := mustLex(t, "#define FOO \\\n  1\nint x;")
	require.NotEmpty(t, toks)
	require.Equal(t, KindPreproc, toks[0].Kind)
}

func TestLexStrifyAndPasteify(t *testing.T) {
	toks := mustLex(t, "##concat #stringify")
	require.Len(t, toks, 2)
	require.Equal(t, KindPasteify, toks[0].Kind)
	require.Equal(t, KindStrify, toks[1].Kind)
}

func TestLexUnmatchedByteReportsError(t *testing.T) {
	_, err := NewLexemeStream("int x = 1 @ 2;", DefaultCRules())
	require.Error(t, err)
}
