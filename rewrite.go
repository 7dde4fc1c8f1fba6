package ssi

import (
	"strconv"
	"strings"
)

// Rewrite replaces stream[fromIdx:toIdx] (or [fromIdx:toIdx] inclusive of
// toIdx when inclusive is true) with the lexemes produced by expanding
// pattern against substitutions.
//
// Pattern syntax:
//   - literal text is re-lexed with the stream's own rules and inserted as
//     pseudo lexemes anchored at the replaced range's start byte
//   - {name} is replaced by the named substitution: a string is inlined
//     into the text before re-lexing, a []Lexeme is spliced verbatim
//   - {{ and }} escape literal braces
func Rewrite(s *LexemeStream, fromIdx, toIdx int, pattern string, substitutions map[string]any, inclusive bool) error {
	if inclusive {
		toIdx++
	}
	anchor := fromIdx
	at := 0
	if anchor < len(s.toks) {
		at = s.toks[anchor].start
	} else if len(s.toks) > 0 {
		at = s.toks[len(s.toks)-1].End()
	}
	repl, err := expandPattern(s, pattern, substitutions, at)
	if err != nil {
		return err
	}
	s.Splice(fromIdx, toIdx, repl)
	return nil
}

// Prepend inserts the lexemes produced by expanding pattern just before
// stream index at, without removing anything.
func Prepend(s *LexemeStream, at int, pattern string, substitutions map[string]any) error {
	anchor := 0
	if at < len(s.toks) {
		anchor = s.toks[at].start
	} else if len(s.toks) > 0 {
		anchor = s.toks[len(s.toks)-1].End()
	}
	repl, err := expandPattern(s, pattern, substitutions, anchor)
	if err != nil {
		return err
	}
	s.Splice(at, at, repl)
	return nil
}

// expandPattern walks pattern, substituting {name} forms and re-lexing the
// literal-text segments in between, all anchored at byte offset anchor so
// the resulting pseudo lexemes sort just before the lexeme they replace.
func expandPattern(s *LexemeStream, pattern string, subs map[string]any, anchor int) ([]Lexeme, error) {
	var out []Lexeme
	var lit strings.Builder

	flush := func() error {
		if lit.Len() == 0 {
			return nil
		}
		toks, err := Lex(lit.String(), s.rules, s)
		if err != nil {
			return err
		}
		for i := range toks {
			toks[i] = NewPseudoLexeme(s, toks[i].Kind, toks[i].Surface(), anchor)
		}
		out = append(out, toks...)
		lit.Reset()
		return nil
	}

	i := 0
	for i < len(pattern) {
		switch {
		case strings.HasPrefix(pattern[i:], "{{"):
			lit.WriteByte('{')
			i += 2
		case strings.HasPrefix(pattern[i:], "}}"):
			lit.WriteByte('}')
			i += 2
		case pattern[i] == '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				lit.WriteByte(pattern[i])
				i++
				continue
			}
			name := pattern[i+1 : i+end]
			if err := flush(); err != nil {
				return nil, err
			}
			switch v := subs[name].(type) {
			case string:
				toks, err := Lex(v, s.rules, s)
				if err != nil {
					return nil, err
				}
				for _, t := range toks {
					out = append(out, NewPseudoLexeme(s, t.Kind, t.Surface(), anchor))
				}
			case []Lexeme:
				out = append(out, v...)
			}
			i += end + 1
		default:
			lit.WriteByte(pattern[i])
			i++
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// RewriteList is the polymorphic list form of Rewrite: each element is
// either a literal string (appended, with { and } escaped) or a []Lexeme
// (spliced verbatim, turned into an auto-numbered {n} substitution).
func RewriteList(s *LexemeStream, fromIdx, toIdx int, elems []any, inclusive bool) error {
	var pat strings.Builder
	subs := map[string]any{}
	n := 0
	for _, e := range elems {
		switch v := e.(type) {
		case string:
			pat.WriteString(strings.ReplaceAll(strings.ReplaceAll(v, "{", "{{"), "}", "}}"))
		case []Lexeme:
			name := strconv.Itoa(n)
			pat.WriteString("{" + name + "}")
			subs[name] = v
			n++
		}
	}
	return Rewrite(s, fromIdx, toIdx, pat.String(), subs, inclusive)
}

// labelCounter backs GenLabel's monotone id source; opaque-symbol ids
// come from a separate per-Trace counter (Trace.NextID).
var labelCounter int

// GenLabel returns a fresh identifier of the shape fancy_rewrite uses for
// synthesised control-flow labels: ___l{n}.
func GenLabel() string {
	labelCounter++
	return "___l" + strconv.Itoa(labelCounter)
}

// FancyRewrite extracts holes from an already-parsed subtree by walking its
// leaves while consuming the terminal lexemes of patternBefore; wherever
// patternBefore has "...", the piece captured is the leaf run up to the
// next literal terminal. Occurrences of [name] in patternAfter become fresh
// GenLabel identifiers. It returns a substitution map (both [name] labels
// and positional piece indices, stringified, map to their expansions) and
// replaces the subtree's whole span with patternAfter expanded against that
// map.
func FancyRewrite(s *LexemeStream, subtree Node, patternBefore string, patternAfter string) (map[string]any, error) {
	leaves := subtree.Leaves()
	pieces := map[string]any{}
	labels := map[string]string{}

	terms := strings.Fields(patternBefore)
	li := 0
	pieceN := 0
	for ti, term := range terms {
		if term == "..." {
			var piece []Lexeme
			// consume leaves until the next literal terminal (or end)
			nextLit := ""
			// find the next non-"..." term to know where to stop
			for k := ti + 1; k < len(terms); k++ {
				if terms[k] != "..." {
					nextLit = terms[k]
					break
				}
			}
			for li < len(leaves) {
				if nextLit != "" && leaves[li].Is(nextLit) {
					break
				}
				piece = append(piece, leaves[li])
				li++
			}
			pieces[strconv.Itoa(pieceN)] = piece
			pieceN++
			continue
		}
		if li < len(leaves) && leaves[li].Is(term) {
			li++
		}
	}

	// collect [name] occurrences in patternAfter and mint fresh labels
	out := patternAfter
	for {
		start := strings.IndexByte(out, '[')
		if start < 0 {
			break
		}
		end := strings.IndexByte(out[start:], ']')
		if end < 0 {
			break
		}
		name := out[start+1 : start+end]
		label, ok := labels[name]
		if !ok {
			label = GenLabel()
			labels[name] = label
			pieces[name] = label
		}
		out = out[:start] + label + out[start+end+1:]
	}

	first := s.IndexOf(leaves[0])
	last := s.IndexOf(leaves[len(leaves)-1])
	if first < 0 || last < 0 {
		return nil, NewInvariantError("FancyRewrite: subtree leaves not found in stream")
	}
	// build a pattern from `out` where {name}/{n} reference pieces already
	// computed above, substituting lexeme-slice pieces verbatim
	subs := map[string]any{}
	for k, v := range pieces {
		switch vv := v.(type) {
		case []Lexeme:
			subs[k] = vv
		case string:
			subs[k] = vv
		}
	}
	if err := Rewrite(s, first, last, bracesForPieces(out, pieces), subs, true); err != nil {
		return nil, err
	}
	return pieces, nil
}

func indexOfTerm(terms []string, term string) int {
	for i, t := range terms {
		if t == term {
			return i
		}
	}
	return -1
}

// bracesForPieces turns the already-label-substituted pattern text into a
// {name} pattern understood by expandPattern: labels were already inlined
// literally above (they're plain identifiers, safe as text), so this is an
// identity pass reserved for symmetry with Rewrite's {name} convention.
func bracesForPieces(out string, pieces map[string]any) string {
	return out
}
