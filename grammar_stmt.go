package ssi

// BuildCGrammar registers the Statement grammar as an ordered alternative
// list: IfStmt, DoWhile, While, For, Switch, Case, Label, Goto, GotoITE,
// Break, Continue, Return, Function, Block, EndBlock, Preproc, Line.
// Because ordered choice is greedy and non-backtracking across a committed
// alternative, a Statement reference inside a nested body (If's then/else,
// loop bodies, function bodies) recurses through the very same production,
// which is how this grammar computes the full extent of a control-flow
// construct for the rewriter without a bespoke "statement extent" walker:
// it is intentionally re-descended per use rather than cached.
func BuildCGrammar() *Grammar {
	g := NewGrammar()
	BuildExpressionGrammar(g)

	ifStmt := func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		n, rest, ok := Seq(
			Str("if"), Balanced(), Ref("Statement"),
			Opt(Str("else"), Ref("Statement")),
		)(toks, g)
		if !ok {
			return n, rest, false
		}
		return Node{Label: "IfStmt", Children: n.Children}, rest, true
	}
	g.Define("IfStmt", ifStmt)

	g.Define("DoWhile", label("DoWhile", Seq(
		Str("do"), Ref("Statement"), Str("while"), Balanced(), Str(";"),
	)))
	g.Define("While", label("While", Seq(
		Str("while"), Balanced(), Ref("Statement"),
	)))
	g.Define("For", label("For", Seq(
		Str("for"), Balanced(), Ref("Statement"),
	)))
	g.Define("Switch", label("Switch", Seq(
		Str("switch"), Balanced(), Ref("Statement"),
	)))
	g.Define("Case", label("Case", Choice(
		Seq(Str("case"), Skipto(Str(":"))),
		Seq(Str("default"), Str(":")),
	)))
	g.Define("Label", label("Label", Seq(Kind(KindIdent), Str(":"))))
	g.Define("Goto", label("Goto", Seq(Str("goto"), Kind(KindIdent), Str(";"))))
	g.Define("GotoITE", label("GotoITE", Seq(
		Str("goto_ite"), Balanced(), Kind(KindIdent), Kind(KindIdent), Str(";"),
	)))
	g.Define("Break", label("Break", Seq(Str("break"), Str(";"))))
	g.Define("Continue", label("Continue", Seq(Str("continue"), Str(";"))))
	g.Define("Return", label("Return", Seq(Str("return"), Skipto(Str(";")))))
	function := label("Function", Seq(
		Not(StrAny("if", "while", "for", "switch", "do")),
		Skipto(Seq(Balanced(), Not(Str(";")), Balanced("{", "}"))),
	))
	// The header before the parameter list never spans a ";", a brace or a
	// preprocessor line, so a later body-bearing construct is not claimed as
	// the end of an earlier statement.
	g.Define("Function", func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		n, rest, ok := function(toks, g)
		if !ok {
			return n, rest, false
		}
		for _, lx := range n.Children[1].Children[0].Leaves() {
			if lx.Is(";") || lx.Is("{") || lx.Is("}") || lx.Kind == KindPreproc {
				return Node{}, toks, false
			}
		}
		return n, rest, true
	})
	// A block's statement list stops at its own closing "}", which the
	// EndBlock alternative would otherwise consume as a stray brace.
	blockStmt := func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		if len(toks) > 0 && toks[0].Is("}") {
			return Node{}, toks, false
		}
		return g.Parse("Statement", toks)
	}
	g.Define("Block", label("Block", Seq(
		Str("{"), ZeroOrMoreExpr(blockStmt), Str("}"),
	)))
	g.Define("EndBlock", label("EndBlock", Str("}")))
	g.Define("Preproc", label("Preproc", Kind(KindPreproc)))
	g.Define("Line", label("Line", Skipto(Str(";"))))

	g.Define("Statement", Choice(
		Ref("IfStmt"), Ref("DoWhile"), Ref("While"), Ref("For"), Ref("Switch"),
		Ref("Case"), Ref("Label"), Ref("Goto"), Ref("GotoITE"),
		Ref("Break"), Ref("Continue"), Ref("Return"), Ref("Function"),
		Ref("Block"), Ref("EndBlock"), Ref("Preproc"), Ref("Line"),
	))
	return g
}

// label wraps e so a successful match is tagged with name, preserving e's
// children (the Seq/Choice shape underneath stays inspectable).
func label(name string, e Expr) Expr {
	return func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
		n, rest, ok := e(toks, g)
		if !ok {
			return n, rest, false
		}
		children := n.Children
		if n.IsLeaf() {
			children = []Node{n}
		}
		return Node{Label: name, Children: children}, rest, true
	}
}

// ParseOneStatement parses the single smallest statement starting at toks,
// returning its label, the Node, and how many lexemes it consumed.
func ParseOneStatement(g *Grammar, toks []Lexeme) (string, Node, int, bool) {
	n, rest, ok := g.Parse("Statement", toks)
	if !ok {
		return "", Node{}, 0, false
	}
	return n.Label, n, len(toks) - len(rest), true
}
