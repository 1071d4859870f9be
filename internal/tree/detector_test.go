package tree

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasStructuralChanges(t *testing.T) {
	edges := [][2]string{
		{"", "A"}, {"A", "A1"}, {"A", "A2"}, {"", "B"}, {"B", "B1"},
	}

	tests := []struct {
		name   string
		mutate func(t *testing.T, root *Node, n map[string]*Node)
		want   bool
	}{
		{
			name:   "no edits",
			mutate: func(*testing.T, *Node, map[string]*Node) {},
			want:   false,
		},
		{
			name: "content only",
			mutate: func(_ *testing.T, _ *Node, n map[string]*Node) {
				n["A1"].Edit("new body")
			},
			want: false,
		},
		{
			name: "title only",
			mutate: func(_ *testing.T, _ *Node, n map[string]*Node) {
				n["B"].Title = "Renamed"
			},
			want: false,
		},
		{
			name: "sibling swap",
			mutate: func(t *testing.T, _ *Node, n map[string]*Node) {
				require.True(t, n["A2"].MoveUp())
			},
			want: true,
		},
		{
			name: "reparent",
			mutate: func(t *testing.T, _ *Node, n map[string]*Node) {
				require.True(t, n["B"].MoveRight())
			},
			want: true,
		},
		{
			name: "added node",
			mutate: func(t *testing.T, _ *Node, n map[string]*Node) {
				require.NotNil(t, Editor{}.AddChild(n["B1"], "new", ""))
			},
			want: true,
		},
		{
			name: "deleted node",
			mutate: func(_ *testing.T, _ *Node, n map[string]*Node) {
				n["A2"].DeleteIncludeChild()
			},
			want: true,
		},
		{
			name: "same count different ids",
			mutate: func(_ *testing.T, _ *Node, n map[string]*Node) {
				n["B1"].Guid = uuid.New()
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, n := buildTree(t, edges...)
			previous := DeepClone(root)
			tt.mutate(t, root, n)
			assert.Equal(t, tt.want, HasStructuralChanges(root, previous))
		})
	}
}

func TestDeepClone(t *testing.T) {
	root, n := buildTree(t, [2]string{"", "A"}, [2]string{"A", "A1"})
	n["A1"].Edit("body")

	clone := DeepClone(root)
	require.True(t, Equal(root, clone))
	assert.NotSame(t, root, clone)
	assert.Nil(t, clone.Parent)

	cloneA1 := Find(clone, n["A1"].Guid)
	require.NotNil(t, cloneA1)
	assert.NotSame(t, n["A1"], cloneA1)
	assert.Equal(t, n["A"].Guid, cloneA1.Parent.Guid)

	cloneA1.Edit("changed in clone")
	assert.Equal(t, "body", n["A1"].Content)
	assert.False(t, Equal(root, clone))

	undone, ok := cloneA1.Undo()
	assert.True(t, ok)
	assert.Equal(t, "body", undone)
}

func TestEqualDetectsParentLinkage(t *testing.T) {
	a, na := buildTree(t, [2]string{"", "X"}, [2]string{"", "Y"})
	b := DeepClone(a)
	require.True(t, Equal(a, b))

	require.True(t, na["Y"].MoveRight())
	assert.False(t, Equal(a, b))
	assert.False(t, Equal(a, nil))
	assert.True(t, Equal(nil, nil))
}
