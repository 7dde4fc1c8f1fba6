package ssi

import (
	"strconv"
	"strings"
)

// renderMacroPattern renders m.Pattern against the lexeme slices bound to
// each of its arguments (nil for an object-like macro), returning a {name}
// pattern and substitution map ready for Rewrite: "arg" elements splice the
// caller's tokens verbatim, "strify" stringifies the caller's surface text,
// "pasteify" glues its literal prefix directly onto the caller's surface
// text so re-lexing fuses them into one token.
func renderMacroPattern(m Macro, args [][]Lexeme) (string, map[string]any) {
	var pat strings.Builder
	subs := map[string]any{}
	n := 0
	for _, elem := range m.Pattern {
		switch elem.Kind {
		case "lit":
			pat.WriteString(escapeBraces(elem.Literal))
			pat.WriteByte(' ')
		case "arg":
			name := "a" + strconv.Itoa(n)
			n++
			pat.WriteString("{" + name + "} ")
			subs[name] = argOrEmpty(args, elem.ArgIdx)
		case "strify":
			text := lexemesSurface(argOrEmpty(args, elem.ArgIdx))
			pat.WriteString(escapeBraces(strconv.Quote(text)))
			pat.WriteByte(' ')
		case "pasteify":
			text := elem.Literal + lexemesSurface(argOrEmpty(args, elem.ArgIdx))
			pat.WriteString(escapeBraces(text))
			pat.WriteByte(' ')
		}
	}
	return pat.String(), subs
}

func argOrEmpty(args [][]Lexeme, i int) []Lexeme {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

func lexemesSurface(toks []Lexeme) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.Surface()
	}
	return strings.Join(parts, " ")
}

func escapeBraces(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "{", "{{"), "}", "}}")
}

// ExpandObjectMacro replaces the single-lexeme occurrence at idx (an
// identifier matching m.Name) with m's pattern expanded with no arguments.
func ExpandObjectMacro(s *LexemeStream, idx int, m Macro) error {
	pattern, subs := renderMacroPattern(m, nil)
	return Rewrite(s, idx, idx, pattern, subs, true)
}

// ExpandFunctionMacro expects idx to be the index of a function-like
// macro's name lexeme, immediately followed by a balanced "(args)" call
// site. It splits the call's argument list by top-level commas (respecting
// nested balanced groups), renders m's pattern against them, and replaces
// the whole "name(args)" span in place. It returns idx, the index where the
// replacement begins.
func ExpandFunctionMacro(s *LexemeStream, idx int, m Macro) (int, error) {
	toks := s.Slice(idx+1, s.Len())
	if len(toks) == 0 || !toks[0].Is("(") {
		return 0, NewInvariantError("function-like macro %s not followed by (", m.Name)
	}
	depth := 1
	j := 1
	for j < len(toks) && depth > 0 {
		switch {
		case toks[j].Is("("):
			depth++
		case toks[j].Is(")"):
			depth--
		}
		j++
	}
	if depth != 0 {
		return 0, NewInvariantError("unbalanced call to macro %s", m.Name)
	}
	argToks := toks[1 : j-1]
	args := splitArgLexemes(argToks)
	pattern, subs := renderMacroPattern(m, args)
	last := idx + j // index, within the whole stream, of the closing ")"
	if err := Rewrite(s, idx, last, pattern, subs, true); err != nil {
		return 0, err
	}
	return idx, nil
}

// splitArgLexemes splits toks on top-level commas, skipping over nested
// (), {}, [] groups.
func splitArgLexemes(toks []Lexeme) [][]Lexeme {
	if len(toks) == 0 {
		return nil
	}
	var out [][]Lexeme
	depth := 0
	start := 0
	for i, t := range toks {
		switch t.Surface() {
		case "(", "{", "[":
			depth++
		case ")", "}", "]":
			depth--
		case ",":
			if depth == 0 {
				out = append(out, toks[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, toks[start:])
	return out
}
