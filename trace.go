package ssi

// Trace is the symbolic execution engine's state: the tree memory, the
// scope stack, the process-wide field-name→offset table, unique-id
// counters, and the explanation stack.
type Trace struct {
	Memory      *Memref
	Scope       *Scope
	Offsets     map[string]int
	nextOffset  int
	idCounter   int
	explainStk  []explainFrame
	freeze      int
	Asserts     []*Value
}

func NewTrace() *Trace {
	tr := &Trace{
		Memory:  newRootMemref(),
		Scope:   newScope(),
		Offsets: map[string]int{},
	}
	tr.Memory.Value = NewConcreteValue(0, explainFrame{})
	return tr
}

// NewOpaque mints a fresh opaque Value carrying the current explanation.
func (tr *Trace) NewOpaque() *Value {
	tr.idCounter++
	return NewOpaqueValue(tr.idCounter, tr.CurrentExplanation())
}

// NextID returns the next value of the monotone counter backing opaque ids
// (generated labels use GenLabel's own counter).
func (tr *Trace) NextID() int {
	tr.idCounter++
	return tr.idCounter
}

// Offset assigns name a stable small integer the first time it is seen.
func (tr *Trace) Offset(name string) int {
	if off, ok := tr.Offsets[name]; ok {
		return off
	}
	off := tr.nextOffset
	tr.nextOffset++
	tr.Offsets[name] = off
	return off
}

// Field returns the child of m at name's offset, allocating it on first
// sight.
func (tr *Trace) Field(m *Memref, name string) *Memref {
	return m.ChildAt(tr, tr.Offset(name))
}

// ConcretizeMemref forces v to a Memref:
//   - already a concrete Memref: return it
//   - opaque: lazily allocate a fresh top-level node, take its 0-child so
//     pointer arithmetic ptr+0 is meaningful, rewrite canonical, return it
//   - deferred: recursively concretize operands, apply the operator to the
//     resulting Memrefs, rewrite canonical to the concrete result
func (tr *Trace) ConcretizeMemref(v *Value) (*Memref, error) {
	canon := v.Find()
	switch p := canon.Payload.(type) {
	case *Memref:
		return p, nil
	case opaqueSymbol:
		node := tr.AllocateTopLevelChild()
		cell := node.ChildAt(tr, 0)
		fresh := NewMemrefValue(cell, canon.explainFrom)
		canon.rewriteCanonical(fresh)
		return cell, nil
	case deferredExpr:
		result, err := tr.concretizeDeferredMemref(p)
		if err != nil {
			return nil, err
		}
		fresh := NewMemrefValue(result, canon.explainFrom)
		canon.rewriteCanonical(fresh)
		return result, nil
	default:
		return nil, NewInvariantError("cannot concretize %v to a memory reference", canon.Payload)
	}
}

// concretizeDeferredMemref resolves a deferred [op, args...] expression to
// a concrete Memref. Pointer+integer shifts (the common case) are resolved
// directly via Memref.Sibling without forcing the integer operand through
// concretization; anything else is not currently handled.
func (tr *Trace) concretizeDeferredMemref(p deferredExpr) (*Memref, error) {
	if (p.Op == "+" || p.Op == "-") && len(p.Args) == 2 {
		lhs, rhs := p.Args[0].Find(), p.Args[1].Find()
		if n, ok := rhs.Payload.(int); ok {
			base, err := tr.ConcretizeMemref(p.Args[0])
			if err != nil {
				return nil, err
			}
			shift := n
			if p.Op == "-" {
				shift = -n
			}
			return base.Sibling(tr, shift), nil
		}
		if n, ok := lhs.Payload.(int); ok && p.Op == "+" {
			base, err := tr.ConcretizeMemref(p.Args[1])
			if err != nil {
				return nil, err
			}
			return base.Sibling(tr, n), nil
		}
	}
	return nil, NewUnimplementedError("deferred memref op %s over non pointer+integer operands", p.Op)
}

// StoreFresh allocates a fresh two-level cell (a new top-level node plus its
// 0-child, so the cell's own address is meaningful as a pointer target) and
// stores v into it, returning the cell. This is the memref side of the IR's
// (str v) op: every literal, address-of, and computed intermediate result
// goes through a fresh cell like this so later code can uniformly dereference
// it.
func (tr *Trace) StoreFresh(v *Value) *Memref {
	node := tr.AllocateTopLevelChild()
	cell := node.ChildAt(tr, 0)
	cell.SetValue(tr, v)
	return cell
}

// PushExplanation pushes span (and whether it originates in a pseudo
// lexeme) onto the explanation stack, unless a freeze is active: a freeze
// counter suppresses further push/pop while running synthesised code.
func (tr *Trace) PushExplanation(span Span, pseudo bool) {
	if tr.freeze > 0 {
		return
	}
	tr.explainStk = append(tr.explainStk, explainFrame{Span: span, Pseudo: pseudo})
}

// PopExplanation balances a PushExplanation call.
func (tr *Trace) PopExplanation() {
	if tr.freeze > 0 {
		return
	}
	if len(tr.explainStk) == 0 {
		return
	}
	tr.explainStk = tr.explainStk[:len(tr.explainStk)-1]
}

// Freeze suppresses further explanation push/pop, used while running
// rewritten/synthesised code whose spans would only confuse diagnostics.
func (tr *Trace) Freeze()   { tr.freeze++ }
func (tr *Trace) Unfreeze() { tr.freeze-- }

// CurrentExplanation returns the top of the explanation stack.
func (tr *Trace) CurrentExplanation() explainFrame {
	if len(tr.explainStk) == 0 {
		return explainFrame{}
	}
	return tr.explainStk[len(tr.explainStk)-1]
}

// RecordAssert appends p to the assertion log. Asserting has no effect on
// the current single-path execution; it exists purely so a future
// path-exploration engine has something to wire a constraint store to.
func (tr *Trace) RecordAssert(p *Value) { tr.Asserts = append(tr.Asserts, p) }

// OpaqueReason returns a source span for v's opacity: v's own span when it
// did not come from a pseudo lexeme; otherwise the first non-empty span found
// by recursing into a deferred expression's operands left to right, which
// may itself be a pseudo span; and failing that, v's own span. It does not
// look past a non-pseudo span for a deeper one.
func (tr *Trace) OpaqueReason(v *Value) Span {
	canon := v.Find()
	if !canon.explainFrom.Pseudo {
		return canon.Explanation
	}
	if d, ok := canon.Payload.(deferredExpr); ok {
		for _, arg := range d.Args {
			s := tr.OpaqueReason(arg)
			if s != (Span{}) {
				return s
			}
		}
	}
	return canon.Explanation
}
