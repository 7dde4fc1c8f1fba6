package ssi

import (
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"gopkg.in/yaml.v3"
)

// Pyify converts the memory tree to a nested scalar structure: a leaf
// node becomes its scalar/opaque/
// pointer description, an internal node becomes a map keyed by child
// coordinate (plus "_self" for the node's own value).
func (tr *Trace) Pyify() any { return pyifyNode(tr.Memory) }

func pyifyNode(m *Memref) any {
	if len(m.Children) == 0 {
		return pyifyValue(m.Value)
	}
	out := map[string]any{"_self": pyifyValue(m.Value)}
	for _, c := range m.Children {
		out[strconv.Itoa(c.trailing())] = pyifyNode(c)
	}
	return out
}

func pyifyValue(v *Value) any {
	if v == nil {
		return nil
	}
	canon := v.Find()
	switch p := canon.Payload.(type) {
	case *Memref:
		return map[string]any{"ptr": append([]int{}, p.Address...)}
	case opaqueSymbol:
		return map[string]any{"opaque": p.ID}
	case deferredExpr:
		args := make([]any, len(p.Args))
		for i, a := range p.Args {
			args[i] = pyifyValue(a)
		}
		return map[string]any{"deferred": p.Op, "args": args}
	case memSummary:
		return pyifySummary(p)
	default:
		return p
	}
}

func pyifySummary(sum memSummary) any {
	out := map[string]any{"_self": pyifyValue(sum.Self)}
	for _, c := range sum.Children {
		out[strconv.Itoa(c.Coord)] = pyifyValue(c.Value)
	}
	return out
}

// PrintPyify marshals Pyify()'s nested structure to YAML for a readable
// trace dump.
func (tr *Trace) PrintPyify() (string, error) {
	out, err := yaml.Marshal(tr.Pyify())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Explain renders a pretty multi-line tree of v's deferred-expression
// structure (or a single line for concrete/opaque values). Deferred trees
// are dumped with spew so nested operand
// structure stays legible without a bespoke pretty-printer.
func (v *Value) Explain() string {
	canon := v.Find()
	if d, ok := canon.Payload.(deferredExpr); ok {
		return spew.Sdump(explainTree(d))
	}
	return canon.String() + " @ " + canon.Explanation.String()
}

type explainNode struct {
	Op   string
	Args []any
}

func explainTree(d deferredExpr) explainNode {
	args := make([]any, len(d.Args))
	for i, a := range d.Args {
		c := a.Find()
		if sub, ok := c.Payload.(deferredExpr); ok {
			args[i] = explainTree(sub)
		} else {
			args[i] = c.String()
		}
	}
	return explainNode{Op: d.Op, Args: args}
}
