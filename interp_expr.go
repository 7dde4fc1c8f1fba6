package ssi

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseExpr parses toks fully as a single Expression, requiring every
// lexeme to be consumed; a leftover remainder or an outright failure both
// report false rather than a partial parse.
func (in *Interpreter) parseExpr(toks []Lexeme) (Node, bool) {
	n, rest, ok := in.Grammar.Parse("Expression", toks)
	if !ok || len(rest) != 0 {
		return Node{}, false
	}
	return n, true
}

// evalLeaves parses and evaluates leaves as a standalone expression, the
// building block every sub-expression dispatch below composes with.
func (in *Interpreter) evalLeaves(leaves []Lexeme) (*Value, error) {
	n, ok := in.parseExpr(leaves)
	if !ok {
		return nil, NewInvariantError("cannot parse expression %q", lexemesSurface(leaves))
	}
	return in.EvalExpr(n)
}

// EvalExpr dispatches n (an Expression grammar Node, as labelled by
// grammar_expr.go) to a Value.
func (in *Interpreter) EvalExpr(n Node) (*Value, error) {
	frame := in.Trace.CurrentExplanation()

	switch n.Label {
	case "Lits":
		return in.evalLit(n.Children[0], frame)

	case "Comma":
		skip, rest := n.Children[0], n.Children[1]
		if lhs := skip.Children[0].Leaves(); len(lhs) > 0 {
			if lhsNode, ok := in.parseExpr(lhs); ok {
				if _, err := in.EvalExpr(lhsNode); err != nil {
					return nil, err
				}
			}
		}
		return in.evalLeaves(rest.Leaves())

	case "Assign":
		skip, rest := n.Children[0], n.Children[1]
		lhsLeaves := skip.Children[0].Leaves()
		op := skip.Children[1].Lex.Surface()
		return in.evalAssign(lhsLeaves, op, rest.Leaves())

	case "Cond":
		skip, rest := n.Children[0], n.Children[1]
		condLeaves := skip.Children[0].Leaves()
		parts := splitLexemesByTopLevel(rest.Leaves(), ":")
		if len(parts) != 2 {
			return nil, NewUnimplementedError("nested or malformed ternary expression")
		}
		condEval, err := in.evalLeaves(condLeaves)
		if err != nil {
			return nil, err
		}
		condVal, err := in.deref(condEval)
		if err != nil {
			return nil, err
		}
		canon := condVal.Find()
		truthy, ok := canon.Payload.(int)
		if !ok {
			return nil, NewUnimplementedError("ternary on a non-concrete condition")
		}
		if truthy != 0 {
			return in.evalLeaves(parts[0])
		}
		return in.evalLeaves(parts[1])

	case "LogOr", "LogAnd", "BitOr", "BitXor", "BitAnd", "Eq", "Rel", "Shift", "Add", "Mul":
		skip, rest := n.Children[0], n.Children[1]
		lhsLeaves := skip.Children[0].Leaves()
		op := skip.Children[1].Lex.Surface()
		rhsLeaves := rest.Leaves()
		lhsEval, err := in.evalLeaves(lhsLeaves)
		if err != nil {
			return nil, err
		}
		lhsVal, err := in.deref(lhsEval)
		if err != nil {
			return nil, err
		}
		if op == "&&" || op == "||" {
			if c := lhsVal.Find(); c.Concrete {
				if iv, ok := c.Payload.(int); ok {
					if op == "&&" && iv == 0 {
						return NewConcreteValue(0, frame), nil
					}
					if op == "||" && iv != 0 {
						return NewConcreteValue(1, frame), nil
					}
				}
			}
		}
		rhsEval, err := in.evalLeaves(rhsLeaves)
		if err != nil {
			return nil, err
		}
		rhsVal, err := in.deref(rhsEval)
		if err != nil {
			return nil, err
		}
		return Lift(in.Trace, op, []*Value{lhsVal, rhsVal}, frame), nil

	case "Sizeof":
		// This engine carries no type information to size against; every
		// sizeof expression reports a nominal single-word size.
		return NewConcreteValue(4, frame), nil

	case "Nth":
		base, marker := n.Children[0], n.Children[1]
		idxLeaves := marker.Children[1].Leaves()
		mem, err := in.resolveNth(base.Leaves(), idxLeaves)
		if err != nil {
			return nil, err
		}
		return mem.GetValue(in.Trace), nil

	case "Member":
		base, marker := n.Children[0], n.Children[1]
		field := marker.Children[1].Lex.Surface()
		mem, err := in.resolveField(base.Leaves(), field)
		if err != nil {
			return nil, err
		}
		return mem.GetValue(in.Trace), nil

	case "DerefMember":
		base, marker := n.Children[0], n.Children[1]
		field := marker.Children[1].Lex.Surface()
		mem, err := in.resolveField(base.Leaves(), field)
		if err != nil {
			return nil, err
		}
		return mem.GetValue(in.Trace), nil

	case "PostIncDec":
		base, marker := n.Children[0], n.Children[1]
		op := marker.Lex.Surface()
		mem, err := in.resolveLValue(base.Leaves())
		if err != nil {
			return nil, err
		}
		cur := mem.GetValue(in.Trace)
		mem.SetValue(in.Trace, Lift(in.Trace, "+", []*Value{cur, incDelta(op, frame)}, frame))
		return cur, nil

	case "FnCall":
		return in.evalFnCall(n, frame)

	case "Unary":
		return in.evalUnary(n, frame)

	case "StructDecl", "EnumDecl":
		return NewConcreteValue(0, frame), nil

	case "InitList":
		return in.evalInitList(n, frame)

	case "ParensOnly":
		bal, rest := n.Children[0], n.Children[1]
		if restLeaves := rest.Leaves(); len(restLeaves) > 0 {
			// A parenthesised group followed by more tokens: the nearest
			// this engine comes to a cast, since it carries no type
			// information to size or truncate against - the operand's
			// value passes through unchanged.
			return in.evalLeaves(restLeaves)
		}
		return in.evalLeaves(bal.Children[1].Leaves())

	default:
		return nil, NewUnimplementedError("expression label %s", n.Label)
	}
}

func combineLeaves(a, b Node) []Lexeme {
	return append(append([]Lexeme{}, a.Leaves()...), b.Leaves()...)
}

func incDelta(op string, frame explainFrame) *Value {
	if op == "--" {
		return NewConcreteValue(-1, frame)
	}
	return NewConcreteValue(1, frame)
}

func (in *Interpreter) evalLit(lit Node, frame explainFrame) (*Value, error) {
	lx := *lit.Lex
	switch lx.Kind {
	case KindIdent:
		return in.Trace.Scope.Local(in.Trace, lx.Surface()), nil
	case KindNumLit:
		v, err := parseNumLit(lx.Surface())
		if err != nil {
			return nil, err
		}
		return NewConcreteValue(v, frame), nil
	case KindStrLit:
		return NewConcreteValue(decodeStrLit(lx.Surface()), frame), nil
	case KindChrLit:
		return NewConcreteValue(decodeChrLit(lx.Surface()), frame), nil
	}
	return nil, NewInvariantError("lits: unexpected lexeme kind %s", lx.Kind)
}

func parseNumLit(s string) (int, error) {
	s = strings.TrimRight(s, "uUlL")
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseInt(s[2:], 16, 64)
		return int(n), err
	}
	if len(s) > 1 && s[0] == '0' {
		n, err := strconv.ParseInt(s, 8, 64)
		if err == nil {
			return int(n), nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return int(n), err
}

func decodeStrLit(s string) string {
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	return unescapeC(s)
}

func decodeChrLit(s string) int {
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	s = unescapeC(s)
	if len(s) == 0 {
		return 0
	}
	return int(s[0])
}

func unescapeC(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// resolveLValue resolves any addressable expression shape - a bare
// identifier, *p, base[index], base.field, base->field - to the Memref
// backing it.
func (in *Interpreter) resolveLValue(leaves []Lexeme) (*Memref, error) {
	if len(leaves) == 0 {
		return nil, NewInvariantError("lvalue: empty expression")
	}
	if len(leaves) == 1 && leaves[0].Kind == KindIdent {
		v := in.Trace.Scope.Local(in.Trace, leaves[0].Surface())
		return in.Trace.ConcretizeMemref(v)
	}
	if leaves[0].Is("*") {
		// Evaluate the whole "*p" expression (not just "p"): evalUnary's
		// "*" case applies the one dereference that lands on p's pointee,
		// which is what an lvalue store through *p must target.
		v, err := in.evalLeaves(leaves)
		if err != nil {
			return nil, err
		}
		return in.Trace.ConcretizeMemref(v)
	}
	last := leaves[len(leaves)-1]
	if last.Is("]") {
		open := matchingOpenBracket(leaves)
		if open < 0 {
			return nil, NewInvariantError("lvalue: unbalanced [ ]")
		}
		return in.resolveNth(leaves[:open], leaves[open+1:len(leaves)-1])
	}
	if last.Kind == KindIdent && len(leaves) >= 2 {
		if sep := leaves[len(leaves)-2]; sep.Is(".") || sep.Is("->") {
			return in.resolveField(leaves[:len(leaves)-2], last.Surface())
		}
	}
	return nil, NewUnimplementedError("lvalue shape not recognised: %s", lexemesSurface(leaves))
}

func (in *Interpreter) resolveNth(baseLeaves, idxLeaves []Lexeme) (*Memref, error) {
	// A base that is itself an index expression (a[i] in a[i][j]) names a
	// nested memory node: it resolves to that node rather than being loaded.
	var baseMem *Memref
	var err error
	if n := len(baseLeaves); n > 0 && baseLeaves[n-1].Is("]") {
		baseMem, err = in.resolveLValue(baseLeaves)
	} else {
		var baseVal *Value
		if baseVal, err = in.evalLeaves(baseLeaves); err == nil {
			baseMem, err = in.Trace.ConcretizeMemref(baseVal)
		}
	}
	if err != nil {
		return nil, err
	}
	idxEval, err := in.evalLeaves(idxLeaves)
	if err != nil {
		return nil, err
	}
	idxVal, err := in.deref(idxEval)
	if err != nil {
		return nil, err
	}
	idx, ok := idxVal.Find().Payload.(int)
	if !ok {
		return nil, NewUnimplementedError("indexing with a non-concrete subscript")
	}
	return baseMem.ChildAt(in.Trace, idx), nil
}

func (in *Interpreter) resolveField(baseLeaves []Lexeme, field string) (*Memref, error) {
	// A base that is itself a member access (p.a in p.a.b) names a nested
	// memory node: it resolves to that node rather than being loaded.
	var baseMem *Memref
	var err error
	if n := len(baseLeaves); n >= 2 && baseLeaves[n-1].Kind == KindIdent &&
		(baseLeaves[n-2].Is(".") || baseLeaves[n-2].Is("->")) {
		baseMem, err = in.resolveLValue(baseLeaves)
	} else {
		var baseVal *Value
		if baseVal, err = in.evalLeaves(baseLeaves); err == nil {
			baseMem, err = in.Trace.ConcretizeMemref(baseVal)
		}
	}
	if err != nil {
		return nil, err
	}
	return in.Trace.Field(baseMem, field), nil
}

func matchingOpenBracket(leaves []Lexeme) int {
	depth := 0
	for i := len(leaves) - 1; i >= 0; i-- {
		switch leaves[i].Surface() {
		case "]":
			depth++
		case "[":
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// evalAssign resolves lhsLeaves per its shape - plain name (reassign or
// declare), *p (deref store), name[index] (array store, or a declaration
// that allocates its backing block), base.field/base->field (member
// store), or TYPE ... name (a declaration whose type prefix is discarded) -
// then stores the (optionally compound-combined) right-hand value there.
func (in *Interpreter) evalAssign(lhsLeaves []Lexeme, op string, rhsLeaves []Lexeme) (*Value, error) {
	frame := in.Trace.CurrentExplanation()
	rhsEval, err := in.evalLeaves(rhsLeaves)
	if err != nil {
		return nil, err
	}
	rhsVal, err := in.deref(rhsEval)
	if err != nil {
		return nil, err
	}
	baseOp := strings.TrimSuffix(op, "=")
	last := lhsLeaves[len(lhsLeaves)-1]

	if last.Kind == KindIdent && len(lhsLeaves) == 1 {
		name := last.Surface()
		if baseOp != "" {
			cur, err := in.deref(in.Trace.Scope.Local(in.Trace, name))
			if err != nil {
				return nil, err
			}
			rhsVal = Lift(in.Trace, baseOp, []*Value{cur, rhsVal}, frame)
		}
		return in.storeToName(name, rhsVal)
	}

	if len(lhsLeaves) == 2 && lhsLeaves[0].Is("*") && last.Kind == KindIdent {
		mem, err := in.resolveLValue(lhsLeaves)
		if err != nil {
			return nil, err
		}
		return in.storeCompound(mem, baseOp, rhsVal, frame), nil
	}

	if last.Kind == KindIdent && len(lhsLeaves) >= 2 {
		if sep := lhsLeaves[len(lhsLeaves)-2]; sep.Is(".") || sep.Is("->") {
			mem, err := in.resolveField(lhsLeaves[:len(lhsLeaves)-2], last.Surface())
			if err != nil {
				return nil, err
			}
			return in.storeCompound(mem, baseOp, rhsVal, frame), nil
		}
	}

	if last.Is("]") {
		open := matchingOpenBracket(lhsLeaves)
		if open < 0 {
			return nil, NewInvariantError("assign: unbalanced [ ]")
		}
		base := lhsLeaves[:open]
		idxLeaves := lhsLeaves[open+1 : len(lhsLeaves)-1]
		var baseVal *Value
		if len(base) > 0 && base[len(base)-1].Kind == KindIdent && !isBareNameDeclared(in, base) {
			// TYPE name[size]: an array declaration - allocate the block
			// and bind the name to its base address.
			name := base[len(base)-1].Surface()
			cell := in.Trace.AllocateTopLevelChild()
			baseVal = NewMemrefValue(cell, frame)
			in.Trace.Scope.Bind(name, baseVal)
		} else {
			v, err := in.evalLeaves(base)
			if err != nil {
				return nil, err
			}
			baseVal = v
		}
		baseMem, err := in.Trace.ConcretizeMemref(baseVal)
		if err != nil {
			return nil, err
		}
		idxEval, err := in.evalLeaves(idxLeaves)
		if err != nil {
			return nil, err
		}
		idxVal, err := in.deref(idxEval)
		if err != nil {
			return nil, err
		}
		idx, ok := idxVal.Find().Payload.(int)
		if !ok {
			return nil, NewUnimplementedError("array store with a non-concrete subscript")
		}
		cell := baseMem.ChildAt(in.Trace, idx)
		return in.storeCompound(cell, baseOp, rhsVal, frame), nil
	}

	if last.Kind == KindIdent {
		// A type prefix precedes the declared name; discard it and bind.
		return in.storeToName(last.Surface(), rhsVal)
	}

	return nil, NewUnimplementedError("assign: left-hand shape not recognised: %s", lexemesSurface(lhsLeaves))
}

// storeToName forces name's scope binding to a memory cell in place and
// stores v through it, mirroring the IR's (upd v local(name)) op: the scope
// slot itself is never rebound, so every other Value already holding a
// reference to name's binding observes the new content through it.
func (in *Interpreter) storeToName(name string, v *Value) (*Value, error) {
	dst := in.Trace.Scope.Local(in.Trace, name)
	mem, err := in.Trace.ConcretizeMemref(dst)
	if err != nil {
		return nil, err
	}
	mem.SetValue(in.Trace, v)
	return v, nil
}

func (in *Interpreter) storeCompound(mem *Memref, baseOp string, rhsVal *Value, frame explainFrame) *Value {
	if baseOp != "" {
		rhsVal = Lift(in.Trace, baseOp, []*Value{mem.GetValue(in.Trace), rhsVal}, frame)
	}
	mem.SetValue(in.Trace, rhsVal)
	return rhsVal
}

// isBareNameDeclared reports whether base is exactly one identifier already
// bound in scope, the heuristic that tells "a[i] = x" (store into an
// existing array) apart from "int a[10] = x" (a fresh declaration).
func isBareNameDeclared(in *Interpreter, base []Lexeme) bool {
	if len(base) != 1 || base[0].Kind != KindIdent {
		return false
	}
	_, ok := in.Trace.Scope.Lookup(base[0].Surface())
	return ok
}

func (in *Interpreter) evalUnary(n Node, frame explainFrame) (*Value, error) {
	op := n.Children[0].Lex.Surface()
	operandLeaves := combineLeaves(n.Children[1], n.Children[2])

	switch op {
	case "!":
		eval, err := in.evalLeaves(operandLeaves)
		if err != nil {
			return nil, err
		}
		v, err := in.deref(eval)
		if err != nil {
			return nil, err
		}
		return Lift(in.Trace, "==", []*Value{v, NewConcreteValue(0, frame)}, frame), nil
	case "-", "~":
		eval, err := in.evalLeaves(operandLeaves)
		if err != nil {
			return nil, err
		}
		v, err := in.deref(eval)
		if err != nil {
			return nil, err
		}
		return Lift(in.Trace, op, []*Value{v}, frame), nil
	case "+":
		return in.evalLeaves(operandLeaves)
	case "*":
		v, err := in.evalLeaves(operandLeaves)
		if err != nil {
			return nil, err
		}
		mem, err := in.Trace.ConcretizeMemref(v)
		if err != nil {
			return nil, err
		}
		return mem.GetValue(in.Trace), nil
	case "&":
		// Address-of evaluates the operand as a plain r-value (never as an
		// lvalue) and stores a copy of it into a fresh cell; the cell's
		// address is what "&x" denotes, matching (str e{inner}) rather than
		// reusing x's own storage.
		v, err := in.evalLeaves(operandLeaves)
		if err != nil {
			return nil, err
		}
		return NewMemrefValue(in.Trace.StoreFresh(v), frame), nil
	case "++", "--":
		mem, err := in.resolveLValue(operandLeaves)
		if err != nil {
			return nil, err
		}
		cur := mem.GetValue(in.Trace)
		updated := Lift(in.Trace, "+", []*Value{cur, incDelta(op, frame)}, frame)
		mem.SetValue(in.Trace, updated)
		return updated, nil
	}
	return nil, NewUnimplementedError("unary operator %s", op)
}

func (in *Interpreter) evalInitList(n Node, frame explainFrame) (*Value, error) {
	bal := n.Children[0]
	groups := splitArgLexemes(bal.Children[1].Leaves())
	node0 := in.Trace.AllocateTopLevelChild()
	for i, g := range groups {
		if len(g) == 0 {
			continue
		}
		v, err := in.evalLeaves(g)
		if err != nil {
			return nil, err
		}
		node0.ChildAt(in.Trace, i).SetValue(in.Trace, v)
	}
	return NewMemrefValue(node0, frame), nil
}

func (in *Interpreter) evalFnCall(n Node, frame explainFrame) (*Value, error) {
	name := n.Children[0].Lex.Surface()
	balNode := n.Children[1]
	groups := splitArgLexemes(balNode.Children[1].Leaves())
	var args []*Value
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		v, err := in.evalLeaves(g)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	if in.inGlobalsPass {
		return in.Trace.NewOpaque(), nil
	}

	if name == "___ifconcr" {
		if len(args) < 2 {
			return nil, NewInvariantError("___ifconcr: expected 2 arguments")
		}
		a, err := in.deref(args[0])
		if err != nil {
			return nil, err
		}
		if a.Find().Concrete {
			return a, nil
		}
		return in.deref(args[1])
	}

	in.reportVerbose(name, args)

	if h, ok := in.Handlers[name]; ok {
		return h(in.Trace, args)
	}
	if meta, ok := in.lookupFunction(name); ok {
		return in.callUserFunction(meta, args)
	}
	if in.DefaultHandler != nil {
		return in.DefaultHandler(in.Trace, args)
	}
	return in.Trace.NewOpaque(), nil
}

func (in *Interpreter) lookupFunction(name string) (fnMeta, bool) {
	v, ok := in.Trace.Scope.Lookup(name)
	if !ok {
		return fnMeta{}, false
	}
	meta, ok := v.Find().Payload.(fnMeta)
	return meta, ok
}

func (in *Interpreter) reportVerbose(name string, args []*Value) {
	fmts, ok := in.VerboseFns[name]
	if !ok {
		return
	}
	parts := make([]string, len(args))
	for i, a := range args {
		f := "%v"
		if i < len(fmts) {
			f = fmts[i]
		}
		parts[i] = fmt.Sprintf(f, displayValue(a))
	}
	fmt.Printf("%s(%s)\n", name, strings.Join(parts, ", "))
}

func displayValue(v *Value) any {
	canon := v.Find()
	if canon.Concrete {
		return canon.Payload
	}
	return canon.String()
}

// callUserFunction runs the body opened at meta.BodyOpen to completion in a
// fresh scope frame bound to args, mirroring ExecC's save/restore and
// single-step-to-return mechanic in interp.go.
func (in *Interpreter) callUserFunction(meta fnMeta, args []*Value) (*Value, error) {
	if err := in.ReturnifyFn(meta.BodyOpen); err != nil {
		return nil, err
	}
	savedHead := in.Head
	savedLoopStack := in.loopStack
	in.loopStack = nil

	copied := make([]*Value, len(args))
	for i, a := range args {
		d, err := in.deref(a)
		if err != nil {
			return nil, err
		}
		copied[i] = NewMemrefValue(in.Trace.StoreFresh(d), in.Trace.CurrentExplanation())
	}

	in.Trace.Scope.Push(meta.Params, copied)
	in.Head = meta.BodyOpen + 1
	var result *Value
	for {
		res, err := in.Step()
		if err == io.EOF {
			break
		}
		if err != nil {
			in.Trace.Scope.Pop()
			in.Head = savedHead
			in.loopStack = savedLoopStack
			return nil, err
		}
		if res != nil {
			result = res.Value
			break
		}
	}
	in.Trace.Scope.Pop()
	in.Head = savedHead
	in.loopStack = savedLoopStack
	if result == nil {
		result = NewConcreteValue(0, in.Trace.CurrentExplanation())
	}
	return result, nil
}
