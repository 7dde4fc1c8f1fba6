package ssi

import (
	"regexp"

	"github.com/pkg/errors"
)

// LexRule is one entry of the ordered rule table the lexer tries in order
// at each position, taking the first that matches. A rule whose Name
// starts with "_" is whitespace/comment: it is matched and skipped, never
// producing a Lexeme.
type LexRule struct {
	Name string
	Kind TokenKind
	re   *regexp.Regexp
}

// LexerRules is the ordered table handed to Lex and retained on the stream
// so rewritten fragments can be re-lexed with identical rules.
type LexerRules struct {
	order []LexRule
}

func mustRule(name string, kind TokenKind, pattern string) LexRule {
	return LexRule{Name: name, Kind: kind, re: regexp.MustCompile(`\A(?:` + pattern + `)`)}
}

// DefaultCRules is the C-ish rule table: preproc
// lines (a "#" followed by a directive name, with backslash continuation),
// multi-char operators before single punctuation, identifiers,
// string/char/numeric literals, and the strify/pasteify macro-operator
// tokens (any other #name / ##name).
func DefaultCRules() *LexerRules {
	return &LexerRules{order: []LexRule{
		mustRule("_ws", "", `[ \t\r\n]+`),
		mustRule("_linecomment", "", `//[^\n]*`),
		mustRule("_blockcomment", "", `/\*[\s\S]*?\*/`),
		mustRule("preproc", KindPreproc, `#[ \t]*(?:define|undef|include|if|ifdef|ifndef|elif|else|endif|pragma|error|warning|line)\b[^\n]*(?:\\\n[^\n]*)*`),
		mustRule("strlit", KindStrLit, `"(?:\\.|[^"\\])*"`),
		mustRule("chrlit", KindChrLit, `'(?:\\.|[^'\\])*'`),
		mustRule("numlit", KindNumLit, `0[xX][0-9a-fA-F]+|[0-9]+\.[0-9]+[fF]?|[0-9]+[uUlL]*`),
		mustRule("pasteify", KindPasteify, `##[A-Za-z_][A-Za-z0-9_]*`),
		mustRule("strify", KindStrify, `#[A-Za-z_][A-Za-z0-9_]*`),
		mustRule("ident", KindIdent, `[A-Za-z_][A-Za-z0-9_]*`),
		mustRule("op3", KindOp, `<<=|>>=|\.\.\.`),
		mustRule("op2", KindOp, `->|\+\+|--|<<|>>|<=|>=|==|!=|&&|\|\||\+=|-=|\*=|/=|%=|&=|\|=|\^=`),
		mustRule("op1", KindOp, `[-+*/%=<>!&|^~?:;,.(){}\[\]]`),
	}}
}

// Lex tokenizes text against rules, attaching each produced Lexeme to
// owner: at each cursor position every rule is tried in table order and
// the first to match wins, with no longest-match comparison between rules
// (the table is ordered so that, e.g., op3/op2 precede op1's
// single-punctuation fallback).
func Lex(text string, rules *LexerRules, owner *LexemeStream) ([]Lexeme, error) {
	var out []Lexeme
	cursor := 0
	for cursor < len(text) {
		matched := false
		for _, rule := range rules.order {
			loc := rule.re.FindStringIndex(text[cursor:])
			if loc == nil || loc[0] != 0 {
				continue
			}
			length := loc[1]
			if length == 0 {
				continue
			}
			if rule.Name[0] != '_' {
				out = append(out, NewLexeme(owner, rule.Kind, cursor, length))
			}
			cursor += length
			matched = true
			break
		}
		if !matched {
			return nil, errors.Errorf("lexer: no rule matches at byte %d (%q)", cursor, snippet(text, cursor))
		}
	}
	return out, nil
}

func snippet(text string, at int) string {
	end := at + 16
	if end > len(text) {
		end = len(text)
	}
	return text[at:end]
}
