package ssi

import (
	"fmt"
	"io"
	"strings"
)

// Step parses and executes exactly one statement at the execution head,
// lowering control-flow constructs (If/While/For/DoWhile/Switch/Goto) into
// goto_ite-and-label form the first time it encounters them, then falling
// through to re-parse and execute the lowered form on the very next call.
// Returns io.EOF once the head reaches the end of the stream.
func (in *Interpreter) Step() (*StepResult, error) {
	if in.Head >= in.Stream.Len() {
		return nil, io.EOF
	}
	head := in.Stream.At(in.Head)
	if !head.IsPseudo() {
		if h, ok := in.BreakLines[head.Line()]; ok {
			h(in)
		}
	}

	toks := in.Stream.Slice(in.Head, in.Stream.Len())
	label, node, n, ok := ParseOneStatement(in.Grammar, toks)
	if !ok {
		return nil, ParsingError{Message: "no statement matches at head", Span: head.Span()}
	}

	leaves := node.Leaves()
	var span Span
	pseudo := false
	if len(leaves) > 0 {
		span = spanOverLeaves(leaves)
		pseudo = leaves[0].IsPseudo()
	}
	in.Trace.PushExplanation(span, pseudo)
	defer in.Trace.PopExplanation()

	switch label {
	case "Function":
		name, params, bodyOpen, err := in.functionSignature(node)
		if err != nil {
			return nil, err
		}
		fnVal := NewConcreteValue(fnMeta{Name: name, Params: params, BodyOpen: bodyOpen}, in.Trace.CurrentExplanation())
		in.Trace.Scope.Bind(name, fnVal)
		in.Head += n
		return nil, nil

	case "Preproc":
		return nil, in.stepPreproc(node)

	case "Label", "Case":
		in.Head += n
		return nil, nil

	case "Return":
		skip := node.Children[1]
		exprLeaves := skip.Children[0].Leaves()
		var val *Value
		if len(exprLeaves) > 0 {
			exprNode, ok := in.parseExpr(exprLeaves)
			if !ok {
				return nil, NewInvariantError("return: cannot parse expression")
			}
			v, err := in.EvalExpr(exprNode)
			if err != nil {
				return nil, err
			}
			val = v
		}
		in.Head += n
		return &StepResult{Value: val}, nil

	case "GotoITE":
		condLeaves := node.Children[1].Children[1].Leaves()
		condNode, ok := in.parseExpr(condLeaves)
		if !ok {
			return nil, NewInvariantError("goto_ite: cannot parse condition")
		}
		v, err := in.EvalExpr(condNode)
		if err != nil {
			return nil, err
		}
		dv, err := in.deref(v)
		if err != nil {
			return nil, err
		}
		in.Trace.RecordAssert(dv)
		ifLabel := node.Children[2].Lex.Surface()
		elseLabel := node.Children[3].Lex.Surface()
		if cond, ok := dv.Find().Payload.(int); ok {
			if cond != 0 {
				return nil, in.gotoLabel(ifLabel)
			}
			return nil, in.gotoLabel(elseLabel)
		}
		// A symbolic condition can't be resolved one way or the other: take
		// the true branch and leave the recorded assertion as the record of
		// the assumption, matching the single-path semantics for opaque
		// branch conditions (no sound path exploration).
		return nil, in.gotoLabel(ifLabel)

	case "Goto":
		name := node.Children[1].Lex.Surface()
		if err := in.spliceNode(node, []any{"goto_ite (1) " + name + " " + name + ";"}); err != nil {
			return nil, err
		}
		return nil, nil

	case "Break":
		if len(in.loopStack) == 0 {
			return nil, NewInvariantError("break outside a loop or switch")
		}
		return nil, in.gotoLabel(in.loopStack[len(in.loopStack)-1].breakLabel)

	case "Continue":
		for i := len(in.loopStack) - 1; i >= 0; i-- {
			if in.loopStack[i].continueLabel != "" {
				return nil, in.gotoLabel(in.loopStack[i].continueLabel)
			}
		}
		return nil, NewInvariantError("continue outside a loop")

	case "IfStmt":
		return nil, in.lowerIf(node)
	case "While":
		return nil, in.lowerWhile(node)
	case "For":
		return nil, in.lowerFor(node)
	case "DoWhile":
		return nil, in.lowerDoWhile(node)
	case "Switch":
		return nil, in.lowerSwitch(node)

	case "Block":
		if ctx, ok := in.loopBodies[in.Head]; ok {
			end, err := in.matchingClose(in.Head)
			if err != nil {
				return nil, err
			}
			ctx.endBraceIdx = end
			in.loopStack = append(in.loopStack, ctx)
			delete(in.loopBodies, in.Head)
		}
		in.Head++
		return nil, nil

	case "EndBlock":
		if len(in.loopStack) > 0 && in.loopStack[len(in.loopStack)-1].endBraceIdx == in.Head {
			in.loopStack = in.loopStack[:len(in.loopStack)-1]
		}
		in.Head++
		return nil, nil

	case "Line":
		exprLeaves := node.Children[0].Leaves()
		if len(exprLeaves) > 0 {
			in.scanModuleHooks(exprLeaves)
			if !in.inGlobalsPass {
				exprNode, ok := in.parseExpr(exprLeaves)
				if ok {
					if _, err := in.EvalExpr(exprNode); err != nil {
						return nil, err
					}
				}
			}
		}
		in.Head += n
		return nil, nil

	default:
		return nil, NewUnimplementedError("statement label %s", label)
	}
}

// fnMeta is the payload bound to a function's name by the Function
// statement case: enough to single-step its body from a fresh scope.
type fnMeta struct {
	Name     string
	Params   []string
	BodyOpen int
}

// functionSignature extracts a Function node's name, parameter names (type
// prefixes stripped, trailing identifier kept), and the stream index of its
// body's opening brace.
func (in *Interpreter) functionSignature(node Node) (string, []string, int, error) {
	skipto := node.Children[1]
	skipped := skipto.Children[0].Leaves()
	if len(skipped) == 0 || skipped[len(skipped)-1].Kind != KindIdent {
		return "", nil, 0, NewInvariantError("function: cannot find a name before its parameter list")
	}
	name := skipped[len(skipped)-1].Surface()

	inner := skipto.Children[1]
	paramsBal := inner.Children[0]
	bodyBal := inner.Children[2]
	paramLeaves := paramsBal.Children[1].Leaves()

	var params []string
	for _, p := range splitArgLexemes(paramLeaves) {
		if len(p) == 0 {
			continue
		}
		last := p[len(p)-1]
		if last.Kind == KindIdent && last.Surface() != "void" {
			params = append(params, last.Surface())
		}
	}

	bodyOpenLeaf := *bodyBal.Children[0].Lex
	idx := in.Stream.IndexOf(bodyOpenLeaf)
	if idx < 0 {
		return "", nil, 0, NewInvariantError("function: body open brace not found in stream")
	}
	return name, params, idx, nil
}

// scanModuleHooks records calls shaped like module_init(name)/module_exit(name)
// seen as a bare expression-statement, without evaluating anything.
func (in *Interpreter) scanModuleHooks(leaves []Lexeme) {
	if len(leaves) < 4 || leaves[0].Kind != KindIdent || !leaves[1].Is("(") {
		return
	}
	callee := leaves[0].Surface()
	if callee != "module_init" && callee != "module_exit" {
		return
	}
	inner := leaves[2 : len(leaves)-1]
	if len(inner) != 1 || inner[0].Kind != KindIdent {
		return
	}
	if callee == "module_init" {
		in.hooks.Init = inner[0].Surface()
	} else {
		in.hooks.Exit = inner[0].Surface()
	}
}

// stepPreproc applies a #define directive: it parses the macro, deletes the
// directive, and expands every later occurrence of its name in the stream.
// Directives that aren't #define (#include, #ifdef, ...) are simply
// deleted - this engine doesn't model a preprocessor beyond macros.
func (in *Interpreter) stepPreproc(node Node) error {
	text := node.Children[0].Lex.Surface()
	start := in.Head
	if err := in.spliceNode(node, nil); err != nil {
		return err
	}
	m, isDefine := ParseMacro(text, in.Stream.Rules())
	if !isDefine {
		return nil
	}
	i := start
	for i < in.Stream.Len() {
		lx := in.Stream.At(i)
		if lx.Kind == KindIdent && lx.Surface() == m.Name {
			if len(m.Args) > 0 {
				next, err := ExpandFunctionMacro(in.Stream, i, m)
				if err != nil {
					return err
				}
				i = next + 1
				continue
			}
			if err := ExpandObjectMacro(in.Stream, i, m); err != nil {
				return err
			}
			i++
			continue
		}
		i++
	}
	return nil
}

// spliceNode replaces node's whole span (located by its first/last leaf) in
// the stream with elems, a RewriteList-style literal/[]Lexeme mix. A nil
// elems deletes the span outright.
func (in *Interpreter) spliceNode(node Node, elems []any) error {
	leaves := node.Leaves()
	if len(leaves) == 0 {
		return NewInvariantError("spliceNode: node has no leaves to locate")
	}
	// A node's leaves are one contiguous run of the stream, so its end is
	// counted from its first leaf rather than looked up separately.
	first := in.Stream.IndexOf(leaves[0])
	if first < 0 {
		return NewInvariantError("spliceNode: original lexemes not found in stream")
	}
	last := first + len(leaves) - 1
	if elems == nil {
		in.Stream.Splice(first, last+1, nil)
		return nil
	}
	return RewriteList(in.Stream, first, last, elems, true)
}

// elemTokCount returns how many lexemes e (a string or []Lexeme RewriteList
// element) contributes once expanded, used to locate a marker token
// (always the last token of some literal piece) inside a lowered
// construct without re-scanning the spliced stream.
func (in *Interpreter) elemTokCount(e any) int {
	switch v := e.(type) {
	case string:
		toks, err := Lex(v, in.Stream.Rules(), nil)
		if err != nil {
			return 0
		}
		return len(toks)
	case []Lexeme:
		return len(v)
	}
	return 0
}

func (in *Interpreter) cumulativeTokens(elems []any, uptoExclusive int) int {
	sum := 0
	for i := 0; i < uptoExclusive; i++ {
		sum += in.elemTokCount(elems[i])
	}
	return sum
}

// lowerIf rewrites "if (cond) then [else other]" into goto_ite-and-label
// form. No loop context is pushed: break/continue inside a then/else body
// still target whatever loop or switch lexically encloses the if.
func (in *Interpreter) lowerIf(node Node) error {
	condLeaves := node.Children[1].Children[1].Leaves()
	thenLeaves := node.Children[2].Leaves()
	optElse := node.Children[3]

	lif, lelse := GenLabel(), GenLabel()
	if optElse.Label == "seq" && len(optElse.Children) == 2 {
		elseLeaves := optElse.Children[1].Leaves()
		lend := GenLabel()
		elems := []any{
			"goto_ite (", condLeaves, ") " + lif + " " + lelse + "; " + lif + ": {",
			thenLeaves, "} goto " + lend + "; " + lelse + ": {",
			elseLeaves, "} " + lend + ": 0;",
		}
		return in.spliceNode(node, elems)
	}
	elems := []any{
		"goto_ite (", condLeaves, ") " + lif + " " + lelse + "; " + lif + ": {",
		thenLeaves, "} " + lelse + ": 0;",
	}
	return in.spliceNode(node, elems)
}

// lowerWhile rewrites "while (cond) body" into a labelled goto_ite loop,
// registering a loopCtx (break -> lend, continue -> lchk) for the body's
// open brace so Step's Block/EndBlock cases push/pop it at the right time.
func (in *Interpreter) lowerWhile(node Node) error {
	condLeaves := node.Children[1].Children[1].Leaves()
	bodyLeaves := node.Children[2].Leaves()
	lchk, lend := GenLabel(), GenLabel()

	elems := []any{
		lchk + ": goto_ite (", condLeaves, ") ___lwbody" + lchk + " " + lend + "; ___lwbody" + lchk + ": {",
		bodyLeaves, "} goto " + lchk + "; " + lend + ": 0;",
	}
	bodyOpenOffset := in.cumulativeTokens(elems, 3) - 1
	return in.spliceLoweredLoop(node, elems, loopCtx{breakLabel: lend, continueLabel: lchk}, bodyOpenOffset)
}

// lowerDoWhile rewrites "do body while (cond);" so the body always runs at
// least once: continue targets the condition check, break the end.
func (in *Interpreter) lowerDoWhile(node Node) error {
	bodyLeaves := node.Children[1].Leaves()
	condLeaves := node.Children[3].Children[1].Leaves()
	lloop, lchk, lend := GenLabel(), GenLabel(), GenLabel()

	elems := []any{
		lloop + ": {",
		bodyLeaves, "} " + lchk + ": goto_ite (", condLeaves, ") " + lloop + " " + lend + "; " + lend + ": 0;",
	}
	bodyOpenOffset := in.cumulativeTokens(elems, 1) - 1
	return in.spliceLoweredLoop(node, elems, loopCtx{breakLabel: lend, continueLabel: lchk}, bodyOpenOffset)
}

// lowerFor rewrites "for (init; cond; update) body": continue targets the
// update step (so it still runs before the next condition check), break
// targets the end.
func (in *Interpreter) lowerFor(node Node) error {
	innerLeaves := node.Children[1].Children[1].Leaves()
	parts := splitLexemesByTopLevel(innerLeaves, ";")
	for len(parts) < 3 {
		parts = append(parts, nil)
	}
	initLeaves, condLeaves, updateLeaves := parts[0], parts[1], parts[2]
	bodyLeaves := node.Children[2].Leaves()
	lchk, lloop, lupd, lend := GenLabel(), GenLabel(), GenLabel(), GenLabel()

	condText := "1"
	elems := []any{
		initLeaves, "; " + lchk + ": goto_ite (",
	}
	if len(condLeaves) > 0 {
		elems = append(elems, condLeaves)
	} else {
		elems = append(elems, condText)
	}
	elems = append(elems,
		") "+lloop+" "+lend+"; "+lloop+": {",
		bodyLeaves, "} "+lupd+": ", updateLeaves, "; goto "+lchk+"; "+lend+": 0;",
	)
	bodyOpenOffset := in.cumulativeTokens(elems, 4) - 1
	return in.spliceLoweredLoop(node, elems, loopCtx{breakLabel: lend, continueLabel: lupd}, bodyOpenOffset)
}

// caseBranch is one case/default clause discovered while lowering a switch.
type caseBranch struct {
	label     string
	valueText string
	isDefault bool
}

// lowerSwitch rewrites "switch (expr) { ...cases... }" into: an auto-bound
// temporary holding expr's value, a chain of goto_ite comparisons dispatching
// to a fresh label planted just before each case/default clause, and the
// body re-emitted with those labels inserted. continue does not target a
// switch (continueLabel is left empty), so a continue lexically inside a
// switch but inside an enclosing loop still reaches that loop, per how
// Continue walks the loop stack from the innermost frame outward.
func (in *Interpreter) lowerSwitch(node Node) error {
	exprLeaves := node.Children[1].Children[1].Leaves()
	bodyNode := node.Children[2]

	var stmts []Node
	if bodyNode.Label == "Block" {
		stmts = bodyNode.Children[1].Children
	} else {
		stmts = []Node{bodyNode}
	}

	caseLabels := map[int]caseBranch{}
	for i, st := range stmts {
		if st.Label != "Case" {
			continue
		}
		lbl := GenLabel()
		if st.Children[0].Lex.Surface() == "default" {
			caseLabels[i] = caseBranch{label: lbl, isDefault: true}
		} else {
			valLeaves := st.Children[1].Children[0].Leaves()
			caseLabels[i] = caseBranch{label: lbl, valueText: lexemesSurface(valLeaves)}
		}
	}

	valVar := GenLabel()
	lend := GenLabel()

	var chain strings.Builder
	var defaultLabel string
	var ordered []caseBranch
	for i := 0; i < len(stmts); i++ {
		if cb, ok := caseLabels[i]; ok {
			if cb.isDefault {
				defaultLabel = cb.label
			} else {
				ordered = append(ordered, cb)
			}
		}
	}
	fallback := defaultLabel
	if fallback == "" {
		fallback = lend
	}
	for i, cb := range ordered {
		next := fallback
		if i < len(ordered)-1 {
			next = GenLabel()
		}
		fmt.Fprintf(&chain, "goto_ite ((%s) == (%s)) %s %s; ", valVar, cb.valueText, cb.label, next)
		if next != fallback {
			fmt.Fprintf(&chain, "%s: ", next)
		}
	}
	if len(ordered) == 0 {
		fmt.Fprintf(&chain, "goto %s; ", fallback)
	}

	var body strings.Builder
	for i, st := range stmts {
		if cb, ok := caseLabels[i]; ok {
			body.WriteString(cb.label + ": ")
		}
		body.WriteString(lexemesSurface(st.Leaves()))
		body.WriteString(" ")
	}

	// The dispatch chain sits just inside the body's "{", so that brace is
	// stepped over (pushing the switch's break target) before any jump to a
	// case label.
	prefix := "auto " + valVar + " = ("
	suffix := "); {"
	elems := []any{prefix, exprLeaves, suffix, chain.String() + body.String(), "} " + lend + ": 0;"}
	bodyOpenOffset := in.cumulativeTokens(elems, 3) - 1
	return in.spliceLoweredLoop(node, elems, loopCtx{breakLabel: lend, continueLabel: ""}, bodyOpenOffset)
}

// spliceLoweredLoop registers ctx under the stream position the lowered
// body's own "{" will land at (first + bodyOpenOffset, computed against the
// elems about to be spliced in, before the splice shifts anything after
// first), then performs the splice.
func (in *Interpreter) spliceLoweredLoop(node Node, elems []any, ctx loopCtx, bodyOpenOffset int) error {
	leaves := node.Leaves()
	if len(leaves) == 0 {
		return NewInvariantError("spliceLoweredLoop: node has no leaves")
	}
	first := in.Stream.IndexOf(leaves[0])
	last := in.Stream.IndexOf(leaves[len(leaves)-1])
	if first < 0 || last < 0 {
		return NewInvariantError("spliceLoweredLoop: original lexemes not found in stream")
	}
	in.loopBodies[first+bodyOpenOffset] = ctx
	return RewriteList(in.Stream, first, last, elems, true)
}

// splitLexemesByTopLevel splits toks on every top-level occurrence of sep,
// skipping over balanced (), {}, [] groups.
func splitLexemesByTopLevel(toks []Lexeme, sep string) [][]Lexeme {
	var out [][]Lexeme
	depth := 0
	start := 0
	for i, t := range toks {
		switch t.Surface() {
		case "(", "{", "[":
			depth++
		case ")", "}", "]":
			depth--
		default:
			if depth == 0 && t.Is(sep) {
				out = append(out, toks[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, toks[start:])
	return out
}

// spanOverLeaves returns the Span covering the full run from leaves[0]'s
// start to the last leaf's end.
func spanOverLeaves(leaves []Lexeme) Span {
	first, last := leaves[0], leaves[len(leaves)-1]
	return Span{Start: first.Span().Start, End: last.Span().End}
}
