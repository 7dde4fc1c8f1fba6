package ssi

import (
	"sort"
	"strconv"
)

// Memref is a node in the tree-of-cells memory model. The root's
// address is the empty slice; a child's address is its parent's plus one
// trailing integer; siblings are kept sorted by that trailing coordinate.
type Memref struct {
	Parent   *Memref
	Address  []int
	Children []*Memref
	Value    *Value
}

func newRootMemref() *Memref {
	return &Memref{Address: []int{}}
}

// ChildAt returns the child at trailing coordinate coord, materializing it
// with an opaque value if it is missing ("allocation-on-read").
func (m *Memref) ChildAt(tr *Trace, coord int) *Memref {
	i := sort.Search(len(m.Children), func(i int) bool {
		return m.Children[i].trailing() >= coord
	})
	if i < len(m.Children) && m.Children[i].trailing() == coord {
		return m.Children[i]
	}
	child := &Memref{
		Parent:  m,
		Address: append(append([]int{}, m.Address...), coord),
	}
	child.Value = tr.NewOpaque()
	m.Children = append(m.Children, nil)
	copy(m.Children[i+1:], m.Children[i:])
	m.Children[i] = child
	return child
}

func (m *Memref) trailing() int {
	if len(m.Address) == 0 {
		return 0
	}
	return m.Address[len(m.Address)-1]
}

// Sibling returns the node at the same parent with the trailing coordinate
// shifted by n. The root has no parent and cannot be shifted.
func (m *Memref) Sibling(tr *Trace, n int) *Memref {
	if m.Parent == nil {
		panic(NewInvariantError("pointer arithmetic on the root memory node"))
	}
	return m.Parent.ChildAt(tr, m.trailing()+n)
}

// AllocateTopLevelChild appends a new child beneath root, the lazy
// allocation mechanic for dereferencing an unknown pointer.
func (tr *Trace) AllocateTopLevelChild() *Memref {
	coord := 0
	if n := len(tr.Memory.Children); n > 0 {
		coord = tr.Memory.Children[n-1].trailing() + 1
	}
	return tr.Memory.ChildAt(tr, coord)
}

// GetValue loads m's value: if m has children, synthesise a recursive-mem
// summary Value; otherwise return m's own scalar value.
func (m *Memref) GetValue(tr *Trace) *Value {
	if len(m.Children) == 0 {
		return m.Value
	}
	entries := make([]memChildEntry, len(m.Children))
	for i, c := range m.Children {
		entries[i] = memChildEntry{Coord: c.trailing(), Value: c.GetValue(tr)}
	}
	return &Value{
		Payload:      memSummary{Self: m.Value, Children: entries},
		Concrete:     true,
		RecursiveMem: true,
		Explanation:  tr.CurrentExplanation().Span,
	}
}

// SetValue stores v into m: a recursive-mem Value is deconstructed into its
// head and per-child pieces (children materialized as needed); any other
// Value is stored opaquely verbatim.
func (m *Memref) SetValue(tr *Trace, v *Value) {
	if v.RecursiveMem {
		sum, ok := v.Payload.(memSummary)
		if !ok {
			panic(NewInvariantError("SetValue: RecursiveMem Value without a memSummary payload"))
		}
		m.Value = sum.Self
		for _, entry := range sum.Children {
			child := m.ChildAt(tr, entry.Coord)
			child.SetValue(tr, entry.Value)
		}
		return
	}
	m.Value = v
}

// Dump renders m and its descendants as an indented tree, used by
// Trace.PrintPyify's sibling for ad-hoc debugging.
func (m *Memref) Dump(indent string) string {
	out := indent + addrString(m.Address) + " = " + m.Value.String() + "\n"
	for _, c := range m.Children {
		out += c.Dump(indent + "  ")
	}
	return out
}

func addrString(addr []int) string {
	s := "@"
	for _, a := range addr {
		s += "." + strconv.Itoa(a)
	}
	return s
}
