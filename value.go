package ssi

import "fmt"

// opaqueSymbol is a symbolic unknown with a unique id: no concrete value is
// known for it yet, only that it exists.
type opaqueSymbol struct{ ID int }

// deferredExpr is a Value whose payload is [op, argVal, ...], each argVal
// itself a Value; at least one is not yet concrete, or op failed on the
// concrete ones (e.g. division by zero).
type deferredExpr struct {
	Op   string
	Args []*Value
}

// memSummary is the synthesised payload GetValue produces when a Memref
// has children: a concrete Value wrapping [self, (coord, child)...].
type memSummary struct {
	Self     *Value
	Children []memChildEntry
}

type memChildEntry struct {
	Coord int
	Value *Value
}

// explainFrame is one entry of the interpreter's explanation stack: the
// source span of the currently-executing construct, plus whether that span
// came from a pseudo (rewrite-synthesised) lexeme. OpaqueReason uses the
// Pseudo flag to walk past useless synthesized spans.
type explainFrame struct {
	Span   Span
	Pseudo bool
}

// Value is an equivalence-class element: concrete scalar, a memory-node
// handle, an opaque symbol, or a deferred expression.
// Values are never destroyed; canonical is a union-find forwarding pointer
// that collapses to a fresh concrete Value on first concretization.
type Value struct {
	Payload      any
	Concrete     bool
	RecursiveMem bool
	Explanation  Span
	explainFrom  explainFrame
	canonical    *Value
}

func newValue(payload any, concrete bool, frame explainFrame) *Value {
	return &Value{Payload: payload, Concrete: concrete, Explanation: frame.Span, explainFrom: frame}
}

// NewConcreteValue wraps a concrete scalar payload (int, string, etc.).
func NewConcreteValue(payload any, frame explainFrame) *Value {
	return newValue(payload, true, frame)
}

// NewOpaqueValue creates a new opaque(id) Value.
func NewOpaqueValue(id int, frame explainFrame) *Value {
	return newValue(opaqueSymbol{ID: id}, false, frame)
}

// NewDeferredValue creates a Value whose payload is [op, args...], not yet
// concrete because at least one canonical argument wasn't or because op
// could not be applied to them.
func NewDeferredValue(op string, args []*Value, frame explainFrame) *Value {
	return newValue(deferredExpr{Op: op, Args: args}, false, frame)
}

// NewMemrefValue wraps a concrete pointer to memory.
func NewMemrefValue(m *Memref, frame explainFrame) *Value {
	return newValue(m, true, frame)
}

// Find returns v's canonical representative, compressing the chain to a
// single hop as it goes.
func (v *Value) Find() *Value {
	if v.canonical == nil {
		return v
	}
	root := v.canonical.Find()
	v.canonical = root
	return root
}

// rewriteCanonical overwrites v's canonical with a freshly concretized
// Value, the mechanic every concretization path (ConcretizeMemref, Lift)
// uses.
func (v *Value) rewriteCanonical(fresh *Value) {
	v.canonical = fresh
}

func (v *Value) String() string {
	c := v.Find()
	switch p := c.Payload.(type) {
	case opaqueSymbol:
		return fmt.Sprintf("opaque(%d)", p.ID)
	case deferredExpr:
		s := "(" + p.Op
		for _, a := range p.Args {
			s += " " + a.String()
		}
		return s + ")"
	case *Memref:
		return fmt.Sprintf("&%v", p.Address)
	case memSummary:
		return "<mem-summary>"
	default:
		return fmt.Sprintf("%v", p)
	}
}

// applyScalarOp computes the host operator over fully concrete scalar
// payloads.
func applyScalarOp(op string, args []any) (any, error) {
	toInt := func(a any) (int, bool) {
		i, ok := a.(int)
		return i, ok
	}
	if len(args) == 1 {
		a, ok := toInt(args[0])
		if !ok {
			return nil, NewInvariantError("unary op %s on non-scalar %v", op, args[0])
		}
		switch op {
		case "-":
			return -a, nil
		case "~":
			return ^a, nil
		}
		return nil, NewUnimplementedError("unary op %s", op)
	}
	a, aok := toInt(args[0])
	b, bok := toInt(args[1])
	if !aok || !bok {
		return boolOrStringOp(op, args[0], args[1])
	}
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, NewInvariantError("division by zero")
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return nil, NewInvariantError("modulo by zero")
		}
		return a % b, nil
	case "==":
		return boolToInt(a == b), nil
	case "!=":
		return boolToInt(a != b), nil
	case "<":
		return boolToInt(a < b), nil
	case "<=":
		return boolToInt(a <= b), nil
	case ">":
		return boolToInt(a > b), nil
	case ">=":
		return boolToInt(a >= b), nil
	case "&&":
		return boolToInt(a != 0 && b != 0), nil
	case "||":
		return boolToInt(a != 0 || b != 0), nil
	case "&":
		return a & b, nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "<<":
		return a << uint(b), nil
	case ">>":
		return a >> uint(b), nil
	}
	return nil, NewUnimplementedError("binary op %s", op)
}

func boolOrStringOp(op string, a, b any) (any, error) {
	switch op {
	case "==":
		return boolToInt(a == b), nil
	case "!=":
		return boolToInt(a != b), nil
	}
	return nil, NewUnimplementedError("op %s on non-integer operands %v, %v", op, a, b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Lift applies op to vs, producing a concrete Value if every canonical
// input is concrete and op succeeds on them, or a deferred Value otherwise
// (including a scalar op that fails, such as division by zero).
//
// A reference-identity shortcut runs first for == and !=: two operands that
// canonicalize to the exact same Value are equal regardless of whether
// either has concretized yet, so e.g. `*&x == x` on an undeclared x holds
// without forcing x to a scalar.
func Lift(tr *Trace, op string, vs []*Value, frame explainFrame) *Value {
	canon := make([]*Value, len(vs))
	allConcrete := true
	payloads := make([]any, len(vs))
	for i, v := range vs {
		canon[i] = v.Find()
		if !canon[i].Concrete {
			allConcrete = false
		}
		payloads[i] = canon[i].Payload
	}
	if (op == "==" || op == "!=") && len(canon) == 2 && canon[0] == canon[1] {
		return NewConcreteValue(boolToInt(op == "=="), frame)
	}
	if allConcrete {
		if _, isMemref := payloads[0].(*Memref); isMemref {
			return liftMemrefOp(tr, op, canon, frame)
		}
		result, err := applyScalarOp(op, payloads)
		if err != nil {
			return NewDeferredValue(op, canon, frame)
		}
		return NewConcreteValue(result, frame)
	}
	return NewDeferredValue(op, canon, frame)
}

// liftMemrefOp implements pointer arithmetic: ptr + n is the sibling at the
// same parent with the trailing address coordinate shifted by n.
func liftMemrefOp(tr *Trace, op string, canon []*Value, frame explainFrame) *Value {
	lhs := canon[0].Payload.(*Memref)
	if op == "+" || op == "-" {
		if rhs, ok := canon[1].Payload.(int); ok {
			n := rhs
			if op == "-" {
				n = -n
			}
			return NewMemrefValue(lhs.Sibling(tr, n), frame)
		}
	}
	if op == "==" || op == "!=" {
		rhs, ok := canon[1].Payload.(*Memref)
		eq := ok && sameAddress(lhs.Address, rhs.Address)
		if op == "!=" {
			eq = !eq
		}
		return NewConcreteValue(boolToInt(eq), frame)
	}
	return NewDeferredValue(op, canon, frame)
}

func sameAddress(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
