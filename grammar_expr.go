package ssi

// BuildExpressionGrammar registers the Expression grammar into g: a
// strictly ordered cascade from lowest to highest precedence. Each
// delimiter-scanning alternative (Comma, Assign, Cond, the binary-operator
// tiers) consumes everything after the delimiter too, via
// ZeroOrMoreExpr(Any()), so the match always spans the whole given lexeme
// run rather than stopping at the operator - a partial match at a tighter
// tier never gets the chance to silently steal a looser-binding split
// point. The postfix-construct rules (Nth, Member, DerefMember,
// PostIncDec) instead use Trailing, which anchors on the rightmost
// occurrence of their marker rather than scanning left-to-right, since
// their base expression comes before the marker rather than after a
// delimiter. Every rule is wrapped in label() so the Node returned by a
// successful Expression parse names which alternative actually fired,
// which is how interp_expr.go's dispatch works. Grounded in the same
// ordered-choice discipline as the Statement grammar in grammar_stmt.go.
func BuildExpressionGrammar(g *Grammar) {
	end := Not(Any())

	// ParensOnly: a fully parenthesised expression with nothing outside it,
	// or (falling through every other alternative first) a parenthesised
	// group followed by more tokens - the closest this symbolic engine
	// comes to modeling a C cast, since it tracks no type information to
	// disambiguate the two shapes up front.
	g.Define("ParensOnly", label("ParensOnly", Seq(Balanced(), ZeroOrMoreExpr(Any()))))

	// Lits: a single literal or identifier, nothing more.
	g.Define("Lits", label("Lits", Seq(Choice(
		Kind(KindNumLit), Kind(KindStrLit), Kind(KindChrLit), Kind(KindIdent),
	), end)))

	// Comma: a, b, c - split on the first top-level comma (commas inside
	// any balanced group are skipped over, not split on); the rest may
	// itself contain further top-level commas, resolved by recursing on it.
	g.Define("Comma", label("Comma", Seq(Skipto(Str(",")), ZeroOrMoreExpr(Any()))))

	// Assign: lhs = rhs and its compound forms (+=, -=, ...).
	g.Define("Assign", label("Assign", Seq(
		Skipto(StrAny("=", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<=", ">>=")),
		ZeroOrMoreExpr(Any()),
	)))

	// Cond: cond ? then : else.
	g.Define("Cond", label("Cond", Seq(Skipto(Str("?")), ZeroOrMoreExpr(Any()))))

	for _, ops := range binaryPrecedence {
		name := binaryRuleName(ops)
		split := Seq(Skipto(StrAny(ops...)), ZeroOrMoreExpr(Any()))
		leading := StrAny(ops...)
		// An operator in first position is a prefix of the left operand, not
		// a split point: -a + b splits at "+", and a lone -x, *p or &x finds
		// no split here and falls through to Unary.
		g.Define(name, label(name, func(toks []Lexeme, g *Grammar) (Node, []Lexeme, bool) {
			if _, _, ok := leading(toks, g); !ok {
				return split(toks, g)
			}
			n, rest, ok := split(toks[1:], g)
			if !ok {
				return Node{}, toks, false
			}
			lhs := n.Children[0].Children[0]
			n.Children[0].Children[0] = seqNode(leafNodes(toks[:1+len(lhs.Leaves())])...)
			return n, rest, true
		}))
	}

	// Sizeof: sizeof(type) or sizeof expr.
	g.Define("Sizeof", label("Sizeof", Seq(Str("sizeof"), Any(), ZeroOrMoreExpr(Any()))))

	// Nth: base[index]. Trailing anchors on the rightmost [...] group so a
	// chain like a[i][j] peels off the last index and leaves "a[i]" in the
	// base for a recursive Nth parse, rather than a left-to-right scan that
	// would have nothing left to match the bracket against (see Trailing's
	// doc comment in peg.go).
	g.Define("Nth", label("Nth", Trailing(Balanced("[", "]"))))

	// Member: base.field.
	g.Define("Member", label("Member", Trailing(Seq(Str("."), Kind(KindIdent)))))

	// DerefMember: base->field.
	g.Define("DerefMember", label("DerefMember", Trailing(Seq(Str("->"), Kind(KindIdent)))))

	// post ++/--: x++ / x--.
	g.Define("PostIncDec", label("PostIncDec", Trailing(StrAny("++", "--"))))

	// FnCall: name(args).
	g.Define("FnCall", label("FnCall", Seq(Kind(KindIdent), Balanced(), end)))

	// Unary prefixes: !x, ~x, -x, +x, *x, &x, ++x, --x.
	g.Define("Unary", label("Unary", Seq(
		StrAny("!", "~", "-", "+", "*", "&", "++", "--"), Any(), ZeroOrMoreExpr(Any()), end,
	)))

	// StructDecl / EnumDecl: struct/enum tag { ... } or struct/enum tag.
	g.Define("StructDecl", label("StructDecl", Seq(
		Str("struct"), Opt(Kind(KindIdent)), Opt(Balanced("{", "}")),
	)))
	g.Define("EnumDecl", label("EnumDecl", Seq(
		Str("enum"), Opt(Kind(KindIdent)), Opt(Balanced("{", "}")),
	)))

	// InitList: { a, b, c }.
	g.Define("InitList", label("InitList", Seq(Balanced("{", "}"), end)))

	g.Define("Expression", Choice(
		Ref("Lits"), Ref("Comma"), Ref("Assign"), Ref("Cond"),
		Ref(binaryRuleName(orOps)), Ref(binaryRuleName(andOps)), Ref(binaryRuleName(bitOrOps)),
		Ref(binaryRuleName(bitXorOps)), Ref(binaryRuleName(bitAndOps)), Ref(binaryRuleName(eqOps)),
		Ref(binaryRuleName(relOps)), Ref(binaryRuleName(shiftOps)), Ref(binaryRuleName(addOps)),
		Ref(binaryRuleName(mulOps)),
		Ref("Sizeof"), Ref("Nth"), Ref("Member"), Ref("DerefMember"), Ref("PostIncDec"),
		Ref("FnCall"), Ref("Unary"), Ref("StructDecl"), Ref("EnumDecl"), Ref("InitList"),
		Ref("ParensOnly"),
	))
}

// binaryPrecedence lists each C binary-operator tier from loosest to
// tightest binding, outermost first so Skipto's left-to-right scan finds
// the correct (loosest, leftmost-not-nested) split point for that tier.
var (
	orOps     = []string{"||"}
	andOps    = []string{"&&"}
	bitOrOps  = []string{"|"}
	bitXorOps = []string{"^"}
	bitAndOps = []string{"&"}
	eqOps     = []string{"==", "!="}
	relOps    = []string{"<=", ">=", "<", ">"}
	shiftOps  = []string{"<<", ">>"}
	addOps    = []string{"+", "-"}
	mulOps    = []string{"*", "/", "%"}
)

var binaryPrecedence = [][]string{
	orOps, andOps, bitOrOps, bitXorOps, bitAndOps, eqOps, relOps, shiftOps, addOps, mulOps,
}

func binaryRuleName(ops []string) string {
	switch ops[0] {
	case "||":
		return "LogOr"
	case "&&":
		return "LogAnd"
	case "|":
		return "BitOr"
	case "^":
		return "BitXor"
	case "&":
		return "BitAnd"
	case "==":
		return "Eq"
	case "<=":
		return "Rel"
	case "<<":
		return "Shift"
	case "+":
		return "Add"
	case "*":
		return "Mul"
	}
	return "Bin"
}
