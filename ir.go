package ssi

import (
	"regexp"
	"strconv"
	"strings"
)

// IR is the mini intermediate dialect: a nested
// []any whose head is an operator string and whose tail is either literal
// values or nested IR forms.

var exprRefRe = regexp.MustCompile(`^e\{(\d+)\}$`)
var spliceRefRe = regexp.MustCompile(`^\{(\d+)\}$`)

// parseSexpr tokenizes and parses a mini-IR template into a tree of
// strings (atoms) and []any (lists), e.g. "(upd (* e{0}) {1})" becomes
// []any{"upd", []any{"*", "e{0}"}, "{1}"}.
func parseSexpr(src string) any {
	toks := tokenizeSexpr(src)
	node, _ := parseSexprToks(toks, 0)
	return node
}

func tokenizeSexpr(src string) []string {
	var toks []string
	i := 0
	for i < len(src) {
		switch c := src[i]; {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(' || c == ')':
			toks = append(toks, string(c))
			i++
		case c == '"':
			j := i + 1
			for j < len(src) && src[j] != '"' {
				j++
			}
			toks = append(toks, src[i:j+1])
			i = j + 1
		default:
			j := i
			for j < len(src) && !strings.ContainsRune(" \t\n()", rune(src[j])) {
				j++
			}
			toks = append(toks, src[i:j])
			i = j
		}
	}
	return toks
}

func parseSexprToks(toks []string, i int) (any, int) {
	if i >= len(toks) {
		return "", i
	}
	if toks[i] == "(" {
		var list []any
		i++
		for i < len(toks) && toks[i] != ")" {
			var node any
			node, i = parseSexprToks(toks, i)
			list = append(list, node)
		}
		if i < len(toks) {
			i++ // consume ")"
		}
		return list, i
	}
	return toks[i], i + 1
}

// EvalExprFn evaluates an expression AST Node produced by the C expression
// grammar (component H) to a Value; it is supplied by Interpreter so ir.go
// does not need to depend on interp_expr.go's dispatch directly.
type EvalExprFn func(Node) (*Value, error)

// Emit parses pattern as a mini-IR template, resolves every e{i} (evaluate
// args[i], an expression Node, via evalExpr) and {i} (splice args[i]
// verbatim) placeholder, and evaluates the resulting IR against tr.
func (tr *Trace) Emit(evalExpr EvalExprFn, pattern string, args ...any) (*Value, error) {
	tmpl := parseSexpr(pattern)
	ir, err := instantiate(tmpl, args, evalExpr)
	if err != nil {
		return nil, err
	}
	return tr.EvalIR(ir)
}

func instantiate(node any, args []any, evalExpr EvalExprFn) (any, error) {
	switch t := node.(type) {
	case string:
		if m := exprRefRe.FindStringSubmatch(t); m != nil {
			idx, _ := strconv.Atoi(m[1])
			if idx >= len(args) {
				return nil, NewInvariantError("emit: e{%d} out of range (%d args)", idx, len(args))
			}
			n, ok := args[idx].(Node)
			if !ok {
				return nil, NewInvariantError("emit: e{%d} arg is not an expression Node", idx)
			}
			return evalExpr(n)
		}
		if m := spliceRefRe.FindStringSubmatch(t); m != nil {
			idx, _ := strconv.Atoi(m[1])
			if idx >= len(args) {
				return nil, NewInvariantError("emit: {%d} out of range (%d args)", idx, len(args))
			}
			return args[idx], nil
		}
		if strings.HasPrefix(t, `"`) && strings.HasSuffix(t, `"`) && len(t) >= 2 {
			return t[1 : len(t)-1], nil
		}
		if n, err := strconv.Atoi(t); err == nil {
			return n, nil
		}
		return t, nil
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			v, err := instantiate(c, args, evalExpr)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return node, nil
	}
}

// EvalIR dispatches a single IR form to the symbolic engine.
func (tr *Trace) EvalIR(form any) (*Value, error) {
	if v, ok := form.(*Value); ok {
		return v, nil
	}
	list, ok := form.([]any)
	if !ok || len(list) == 0 {
		return nil, NewInvariantError("EvalIR: malformed IR form %#v", form)
	}
	op, ok := list[0].(string)
	if !ok {
		return nil, NewInvariantError("EvalIR: IR head is not an operator string: %#v", list[0])
	}
	args := list[1:]
	frame := tr.CurrentExplanation()

	evalArg := func(i int) (*Value, error) { return tr.EvalIR(args[i]) }

	switch op {
	case "imm":
		return NewConcreteValue(args[0], frame), nil
	case "*":
		cell, err := evalArg(0)
		if err != nil {
			return nil, err
		}
		mem, err := tr.ConcretizeMemref(cell)
		if err != nil {
			return nil, err
		}
		return mem.GetValue(tr), nil
	case "str":
		val, err := evalArg(0)
		if err != nil {
			return nil, err
		}
		node := tr.AllocateTopLevelChild()
		node.SetValue(tr, val)
		return NewMemrefValue(node, frame), nil
	case "upd":
		src, err := evalArg(0)
		if err != nil {
			return nil, err
		}
		dst, err := evalArg(1)
		if err != nil {
			return nil, err
		}
		mem, err := tr.ConcretizeMemref(dst)
		if err != nil {
			return nil, err
		}
		mem.SetValue(tr, src)
		return src, nil
	case "opaque":
		return tr.NewOpaque(), nil
	case "field":
		head, err := evalArg(0)
		if err != nil {
			return nil, err
		}
		nameVal, err := evalArg(1)
		if err != nil {
			return nil, err
		}
		name, ok := nameVal.Find().Payload.(string)
		if !ok {
			return nil, NewInvariantError("field: name operand is not a string")
		}
		mem, err := tr.ConcretizeMemref(head)
		if err != nil {
			return nil, err
		}
		return NewMemrefValue(tr.Field(mem, name), frame), nil
	case "assert":
		p, err := evalArg(0)
		if err != nil {
			return nil, err
		}
		tr.RecordAssert(p)
		return p, nil
	default:
		if strings.HasPrefix(op, "bin_") || isLiftOp(op) {
			vs := make([]*Value, len(args))
			for i := range args {
				v, err := evalArg(i)
				if err != nil {
					return nil, err
				}
				vs[i] = v
			}
			realOp := strings.TrimPrefix(op, "bin_")
			return Lift(tr, realOp, vs, frame), nil
		}
		return nil, NewUnimplementedError("IR op %s", op)
	}
}

func isLiftOp(op string) bool {
	switch op {
	case "+", "-", "*", "/", "%", "==", "!=", "<", "<=", ">", ">=",
		"&&", "||", "&", "|", "^", "<<", ">>", "~":
		return true
	}
	return false
}
