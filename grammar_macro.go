package ssi

import "strings"

// MacroPatternElem is one element of a parsed macro's replacement pattern:
// a literal string, an arg-index substitution, a strify/pasteify operator
// applied to an arg, or a pre-pasted string literal.
type MacroPatternElem struct {
	Kind    string // "lit", "arg", "strify", "pasteify", "pasteify-str"
	Literal string
	ArgIdx  int
}

// Macro is the parsed shape of a "#define ..." directive: object-like
// macros have Args == nil, function-like macros carry their parameter
// names in Args.
type Macro struct {
	Name    string
	Args    []string
	Pattern []MacroPatternElem
}

// ParseMacro parses a preproc lexeme's surface text (the whole "#define
// ..." line, backslash continuations already folded into it by the lexer)
// into a Macro. Returns ok=false if the line isn't a #define at all (e.g.
// #include, #ifdef - passed through untouched by the caller).
func ParseMacro(directive string, rules *LexerRules) (Macro, bool) {
	body := strings.TrimSpace(strings.TrimPrefix(directive, "#"))
	if !strings.HasPrefix(body, "define") {
		return Macro{}, false
	}
	body = strings.TrimSpace(strings.TrimPrefix(body, "define"))
	if body == "" {
		return Macro{}, false
	}

	name := body
	rest := ""
	for i, c := range body {
		if !isIdentByte(c) {
			name = body[:i]
			rest = body[i:]
			break
		}
	}
	if rest == "" {
		rest = ""
	}

	var args []string
	if strings.HasPrefix(rest, "(") {
		close := strings.IndexByte(rest, ')')
		if close < 0 {
			return Macro{}, false
		}
		argList := rest[1:close]
		rest = rest[close+1:]
		args = []string{}
		for _, a := range splitCSV(argList) {
			a = strings.TrimSpace(a)
			if a != "" {
				args = append(args, a)
			}
		}
	}
	pattern := parseMacroPattern(strings.TrimSpace(rest), args, rules)
	return Macro{Name: name, Args: args, Pattern: pattern}, true
}

func isIdentByte(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// argIndex returns i, true if name is one of args.
func argIndex(args []string, name string) (int, bool) {
	for i, a := range args {
		if a == name {
			return i, true
		}
	}
	return 0, false
}

// parseMacroPattern lexes body with rules and folds the resulting lexemes
// into pattern elements: a bare identifier matching an arg name becomes an
// "arg" substitution, "#name" becomes "strify", "##name" becomes
// "pasteify" fused onto the immediately preceding literal piece, and
// everything else is literal surface text joined by single spaces.
func parseMacroPattern(body string, args []string, rules *LexerRules) []MacroPatternElem {
	if body == "" {
		return nil
	}
	toks, err := Lex(body, rules, nil)
	if err != nil {
		return []MacroPatternElem{{Kind: "lit", Literal: body}}
	}
	var out []MacroPatternElem
	for _, t := range toks {
		switch t.Kind {
		case KindStrify:
			name := strings.TrimPrefix(t.Surface(), "#")
			if idx, ok := argIndex(args, name); ok {
				out = append(out, MacroPatternElem{Kind: "strify", ArgIdx: idx})
				continue
			}
			out = append(out, MacroPatternElem{Kind: "lit", Literal: t.Surface()})
		case KindPasteify:
			name := strings.TrimPrefix(t.Surface(), "##")
			if idx, ok := argIndex(args, name); ok && len(out) > 0 && out[len(out)-1].Kind == "lit" {
				prefix := out[len(out)-1].Literal
				out = out[:len(out)-1]
				out = append(out, MacroPatternElem{Kind: "pasteify", ArgIdx: idx, Literal: prefix})
				continue
			}
			out = append(out, MacroPatternElem{Kind: "lit", Literal: t.Surface()})
		case KindIdent:
			if idx, ok := argIndex(args, t.Surface()); ok {
				out = append(out, MacroPatternElem{Kind: "arg", ArgIdx: idx})
				continue
			}
			out = appendLit(out, t.Surface())
		default:
			out = appendLit(out, t.Surface())
		}
	}
	return out
}

func appendLit(out []MacroPatternElem, s string) []MacroPatternElem {
	if len(out) > 0 && out[len(out)-1].Kind == "lit" {
		out[len(out)-1].Literal += " " + s
		return out
	}
	return append(out, MacroPatternElem{Kind: "lit", Literal: s})
}

// splitCSV splits s on top-level commas, treating any (), {}, [] nesting
// as opaque so e.g. a default-argument call inside a macro arg list isn't
// split in the middle.
func splitCSV(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}
