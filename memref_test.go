package ssi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChildAtAllocatesOnFirstRead(t *testing.T) {
	tr := NewTrace()
	root := tr.Memory
	c := root.ChildAt(tr, 3)
	require.Equal(t, root, c.Parent)
	require.Equal(t, 3, c.trailing())
	require.NotNil(t, c.Value)
	require.False(t, c.Value.Concrete, "expected a freshly allocated child to hold an opaque value")
}

func TestChildAtIsIdempotent(t *testing.T) {
	tr := NewTrace()
	root := tr.Memory
	a := root.ChildAt(tr, 1)
	b := root.ChildAt(tr, 1)
	require.Same(t, a, b, "expected repeated ChildAt calls at the same coordinate to return the same node")
}

func TestChildrenStaySortedByCoordinate(t *testing.T) {
	tr := NewTrace()
	root := tr.Memory
	root.ChildAt(tr, 5)
	root.ChildAt(tr, 1)
	root.ChildAt(tr, 3)
	var coords []int
	for _, c := range root.Children {
		coords = append(coords, c.trailing())
	}
	require.Equal(t, []int{1, 3, 5}, coords)
}

func TestSiblingShiftsWithinParent(t *testing.T) {
	tr := NewTrace()
	root := tr.Memory
	mid := root.ChildAt(tr, 5)
	right := mid.Sibling(tr, 2)
	require.Equal(t, 7, right.trailing())
	require.Equal(t, root, right.Parent)
}

func TestSiblingOnRootPanics(t *testing.T) {
	tr := NewTrace()
	require.Panics(t, func() { tr.Memory.Sibling(tr, 1) })
}

func TestGetValueOnLeafReturnsStoredValue(t *testing.T) {
	tr := NewTrace()
	cell := tr.AllocateTopLevelChild()
	cell.SetValue(tr, NewConcreteValue(42, frame()))
	require.Equal(t, 42, cell.GetValue(tr).Payload)
}

func TestGetValueOnInternalNodeSynthesizesSummary(t *testing.T) {
	tr := NewTrace()
	node := tr.AllocateTopLevelChild()
	node.ChildAt(tr, 0).SetValue(tr, NewConcreteValue(1, frame()))
	node.ChildAt(tr, 1).SetValue(tr, NewConcreteValue(2, frame()))
	v := node.GetValue(tr)
	require.True(t, v.RecursiveMem, "expected a recursive-mem summary for a node with children")
	sum, ok := v.Payload.(memSummary)
	require.True(t, ok)
	require.Len(t, sum.Children, 2)
}

func TestSetValueDeconstructsRecursiveMem(t *testing.T) {
	tr := NewTrace()
	src := tr.AllocateTopLevelChild()
	src.ChildAt(tr, 0).SetValue(tr, NewConcreteValue(11, frame()))
	src.ChildAt(tr, 1).SetValue(tr, NewConcreteValue(22, frame()))
	summary := src.GetValue(tr)

	dst := tr.AllocateTopLevelChild()
	dst.SetValue(tr, summary)

	require.Equal(t, 11, dst.ChildAt(tr, 0).GetValue(tr).Payload)
	require.Equal(t, 22, dst.ChildAt(tr, 1).GetValue(tr).Payload)
}
