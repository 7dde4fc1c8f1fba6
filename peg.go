package ssi

// Expr is one grammar expression: given the lexemes remaining to parse and
// the enclosing Grammar (for (: name) lookups), it returns the tree it
// built, the unconsumed remainder, and whether it matched at all. Failure
// is reported with the third return rather than Go's usual (zero, error)
// shape because a failed optional/choice branch is not an error: an empty
// tree and a failure both need to be representable and distinguishable,
// and a third bool gives us that directly.
type Expr func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool)

// Grammar is a named set of productions, enough to resolve (: name).
type Grammar struct {
	rules map[string]Expr
}

func NewGrammar() *Grammar { return &Grammar{rules: map[string]Expr{}} }

func (g *Grammar) Define(name string, e Expr) { g.rules[name] = e }

// Parse evaluates the production named start against toks.
func (g *Grammar) Parse(start string, toks []Lexeme) (Node, []Lexeme, bool) {
	e, ok := g.rules[start]
	if !ok {
		return Node{}, toks, false
	}
	return e(toks, g)
}

// Str is (str s): the head lexeme's surface must equal s.
func Str(s string) Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		if len(toks) == 0 || !toks[0].Is(s) {
			return Node{}, toks, false
		}
		return leafNode(toks[0]), toks[1:], true
	}
}

// Kind is (:: lbl): the head lexeme's kind must equal k.
func Kind(k TokenKind) Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		if len(toks) == 0 || toks[0].Kind != k {
			return Node{}, toks, false
		}
		return leafNode(toks[0]), toks[1:], true
	}
}

// Any is (.): matches any one lexeme.
func Any() Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		if len(toks) == 0 {
			return Node{}, toks, false
		}
		return leafNode(toks[0]), toks[1:], true
	}
}

// Opt is (? e...): an optional sequence. On failure it produces an empty
// node and consumes nothing.
func Opt(es ...Expr) Expr {
	seq := Seq(es...)
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		if n, rest, ok := seq(toks, g); ok {
			return n, rest, true
		}
		return emptyNode(), toks, true
	}
}

// Choice is (/ e...): ordered choice, first success wins. Greedy,
// left-first, no backtracking across a committed alternative once this
// call returns (the committed-rule semantics live one level up, in how
// callers treat a Choice's result).
func Choice(es ...Expr) Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		for _, e := range es {
			if n, rest, ok := e(toks, g); ok {
				return n, rest, true
			}
		}
		return Node{}, toks, false
	}
}

// StrAny is (strany a b ...): sugar for (/ (str a) (str b) ...).
func StrAny(alts ...string) Expr {
	es := make([]Expr, len(alts))
	for i, a := range alts {
		es[i] = Str(a)
	}
	return Choice(es...)
}

// Seq is (seq e...): all must match in order.
func Seq(es ...Expr) Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		var children []Node
		rest := toks
		for _, e := range es {
			n, next, ok := e(rest, g)
			if !ok {
				return Node{}, toks, false
			}
			children = append(children, n)
			rest = next
		}
		return seqNode(children...), rest, true
	}
}

// Ref is (: name): expand to the rule bound to name.
func Ref(name string) Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		return g.Parse(name, toks)
	}
}

// And is (& e): positive lookahead. Consumes nothing.
func And(e Expr) Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		if _, _, ok := e(toks, g); ok {
			return emptyNode(), toks, true
		}
		return Node{}, toks, false
	}
}

// Not is (! e): negative lookahead. Consumes nothing.
func Not(e Expr) Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		if _, _, ok := e(toks, g); ok {
			return Node{}, toks, false
		}
		return emptyNode(), toks, true
	}
}

// isOpener/closeFor describe the three bracket kinds Skipto treats as
// single units.
func closeFor(open string) (string, bool) {
	switch open {
	case "(":
		return ")", true
	case "{":
		return "}", true
	case "[":
		return "]", true
	case ")":
		return "(", true // reverse scanning, for a "balanced rev" usage
	}
	return "", false
}

// Balanced is (balanced [open close]): head must equal open; it produces
// ["bal", open, inner, close] spanning up to the matching close, scanning
// forward and tracking nesting depth of the same open/close pair. With no
// arguments it defaults to "(" / ")".
func Balanced(openClose ...string) Expr {
	open, close := "(", ")"
	if len(openClose) == 2 {
		open, close = openClose[0], openClose[1]
	}
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		if len(toks) == 0 || !toks[0].Is(open) {
			return Node{}, toks, false
		}
		depth := 1
		i := 1
		for i < len(toks) {
			switch {
			case toks[i].Is(open):
				depth++
			case toks[i].Is(close):
				depth--
				if depth == 0 {
					inner := seqNode(leafNodes(toks[1:i])...)
					bal := Node{Label: "bal", Children: []Node{leafNode(toks[0]), inner, leafNode(toks[i])}}
					return bal, toks[i+1:], true
				}
			}
			i++
		}
		return Node{}, toks, false
	}
}

func leafNodes(toks []Lexeme) []Node {
	out := make([]Node, len(toks))
	for i, t := range toks {
		out[i] = leafNode(t)
	}
	return out
}

// Skipto is (skipto e): scan forward skipping over balanced (), {}, []
// groups as single units, returning at the first position where e
// succeeds. Fails if no such position exists before the stream runs out.
func Skipto(e Expr) Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		i := 0
		for i <= len(toks) {
			if n, rest, ok := e(toks[i:], g); ok {
				skipped := seqNode(leafNodes(toks[:i])...)
				return Node{Label: "skipto", Children: []Node{skipped, n}}, rest, true
			}
			if i == len(toks) {
				break
			}
			if open := toks[i].Surface(); isOpener(open) {
				cl, _ := closeFor(open)
				depth := 1
				j := i + 1
				for j < len(toks) && depth > 0 {
					if toks[j].Is(open) {
						depth++
					} else if toks[j].Is(cl) {
						depth--
					}
					j++
				}
				i = j
				continue
			}
			i++
		}
		return Node{}, toks, false
	}
}

func isOpener(s string) bool { return s == "(" || s == "{" || s == "[" }

// Trailing matches a run of arbitrary leading tokens followed by e, anchored
// so e accounts for every token through the end of the input: it tries e at
// successive split points starting from the rightmost (largest prefix
// first) and takes the first split where e both matches and consumes
// exactly to the end. This is what postfix constructs need — a[i], x.f,
// x->f, x++ — where the construct sits at the tail of an arbitrarily long
// base expression and a left-to-right ZeroOrMoreExpr(Any()) would only ever
// overrun it (Any() cannot tell the marker tokens apart from any other
// token, so a left-greedy repetition consumes the marker itself and always
// fails). Scanning from the right instead finds the *last* top-level
// occurrence of the marker, which is exactly the one a chain like a[i][j]
// or x.a.b needs: this call peels off the outermost/rightmost construct and
// leaves the rest of the chain in the base for the caller to re-parse.
func Trailing(e Expr) Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		for i := len(toks); i >= 0; i-- {
			n, rest, ok := e(toks[i:], g)
			if ok && len(rest) == 0 {
				base := seqNode(leafNodes(toks[:i])...)
				return Node{Label: "trailing", Children: []Node{base, n}}, nil, true
			}
		}
		return Node{}, toks, false
	}
}

// ZeroOrMoreExpr repeats e until it fails, collecting successes into a
// "seq" node. Every PEG needs a Kleene star to express e.g. a block's
// statement list; this is the natural generalization of a repetition
// combinator over a generic rune parser to one over a lexeme grammar.
func ZeroOrMoreExpr(e Expr) Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		var children []Node
		rest := toks
		for {
			n, next, ok := e(rest, g)
			if !ok {
				break
			}
			if len(next) == len(rest) {
				break // e matched without consuming; avoid looping forever
			}
			children = append(children, n)
			rest = next
		}
		return seqNode(children...), rest, true
	}
}
