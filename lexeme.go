package ssi

import "fmt"

// TokenKind is the classification a Lexeme carries. Rule names starting
// with "_" in the lexer's rule table are whitespace/comment and are
// discarded before reaching the stream.
type TokenKind string

const (
	KindPreproc  TokenKind = "preproc"
	KindOp       TokenKind = "op"
	KindIdent    TokenKind = "ident"
	KindStrify   TokenKind = "strify"
	KindPasteify TokenKind = "pasteify"
	KindNumLit   TokenKind = "numlit"
	KindStrLit   TokenKind = "strlit"
	KindChrLit   TokenKind = "chrlit"
)

// Lexeme is an immutable record referencing a (stream, kind, byte start,
// byte length) with a derived surface string. A lexeme
// synthesised by a rewrite is "pseudo": it carries its surface explicitly
// and occupies a zero-width position just before the lexeme it replaced, so
// original byte offsets stay monotone-ish for line numbering.
type Lexeme struct {
	stream  *LexemeStream
	Kind    TokenKind
	start   int
	length  int
	pseudo  bool
	surface string // only meaningful when pseudo
}

// NewLexeme builds an original (non-pseudo) lexeme anchored in stream.
func NewLexeme(stream *LexemeStream, kind TokenKind, start, length int) Lexeme {
	return Lexeme{stream: stream, Kind: kind, start: start, length: length}
}

// NewPseudoLexeme builds a synthesised lexeme carrying its own surface
// text, anchored at a zero-width position just before original offset at.
func NewPseudoLexeme(stream *LexemeStream, kind TokenKind, surface string, at int) Lexeme {
	return Lexeme{stream: stream, Kind: kind, start: at, length: 0, pseudo: true, surface: surface}
}

// Surface returns the lexeme's source text: a slice of the stream's
// original text for original lexemes, or the carried string for pseudo
// ones.
func (l Lexeme) Surface() string {
	if l.pseudo {
		return l.surface
	}
	return l.stream.text[l.start : l.start+l.length]
}

func (l Lexeme) IsPseudo() bool { return l.pseudo }
func (l Lexeme) Start() int     { return l.start }
func (l Lexeme) End() int       { return l.start + l.length }
func (l Lexeme) Stream() *LexemeStream { return l.stream }

func (l Lexeme) Span() Span {
	if l.pseudo {
		return l.stream.lines.span(l.start, l.start)
	}
	return l.stream.lines.span(l.start, l.start+l.length)
}

func (l Lexeme) Line() int { return l.Span().Start.Line }

func (l Lexeme) String() string {
	return fmt.Sprintf("%s(%q)@%s", l.Kind, l.Surface(), l.Span())
}

// Is reports whether the lexeme's surface equals s, the (str s) PEG
// primitive's test.
func (l Lexeme) Is(s string) bool { return l.Surface() == s }

// LexemeStream is a mutable, order-preserving sequence of lexemes plus the
// underlying text and lexer rules needed to re-lex rewritten fragments.
// Invariants maintained by every mutator in rewrite.go:
//   - every lexeme in toks back-references this stream
//   - byte offsets of *original* lexemes are strictly increasing
//   - after any rewrite the stream remains re-parsable by the PEG engine
type LexemeStream struct {
	text  string
	rules *LexerRules
	toks  []Lexeme
	lines *lineIndex
}

// NewLexemeStream lexes text with rules and returns the resulting stream.
func NewLexemeStream(text string, rules *LexerRules) (*LexemeStream, error) {
	s := &LexemeStream{text: text, rules: rules, lines: newLineIndex(text)}
	toks, err := Lex(text, rules, s)
	if err != nil {
		return nil, err
	}
	s.toks = toks
	return s, nil
}

func (s *LexemeStream) Text() string        { return s.text }
func (s *LexemeStream) Rules() *LexerRules  { return s.rules }
func (s *LexemeStream) Len() int            { return len(s.toks) }
func (s *LexemeStream) At(i int) Lexeme     { return s.toks[i] }
func (s *LexemeStream) All() []Lexeme       { return s.toks }

// Slice returns the half-open range [from, to) of the stream's lexemes.
func (s *LexemeStream) Slice(from, to int) []Lexeme {
	if from < 0 {
		from = 0
	}
	if to > len(s.toks) {
		to = len(s.toks)
	}
	if from >= to {
		return nil
	}
	return s.toks[from:to]
}

// IndexOf returns the position of the first lexeme in the stream whose
// start, pseudo flag, kind and surface all equal lx's, or -1 — used by the
// rewriter to locate the range it is about to replace. Pseudo lexemes
// inserted by one rewrite can share all four, in which case the earliest
// is returned.
func (s *LexemeStream) IndexOf(lx Lexeme) int {
	for i, t := range s.toks {
		if t.start == lx.start && t.pseudo == lx.pseudo && t.Kind == lx.Kind && t.surface == lx.surface {
			return i
		}
	}
	return -1
}

// Splice replaces stream[from:to] with replacement in place, the sole
// mutator every rewrite in rewrite.go funnels through.
func (s *LexemeStream) Splice(from, to int, replacement []Lexeme) {
	if from < 0 {
		from = 0
	}
	if to > len(s.toks) {
		to = len(s.toks)
	}
	tail := append([]Lexeme{}, s.toks[to:]...)
	head := append([]Lexeme{}, s.toks[:from]...)
	head = append(head, replacement...)
	s.toks = append(head, tail...)
}
