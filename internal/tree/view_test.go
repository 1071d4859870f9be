package tree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToView(t *testing.T) {
	root, nodes := buildTree(t, [2]string{"", "a"}, [2]string{"", "b"}, [2]string{"a", "a1"})
	nodes["a"].Edit("changed")
	SetCurrent(root, nodes["a1"].Guid)

	v := ToView(root)
	require.Len(t, v.Children, 2)
	assert.Equal(t, "a", v.Children[0].Title)
	assert.Equal(t, "b", v.Children[1].Title)
	assert.True(t, v.Children[0].CanUndo)
	assert.True(t, v.Children[0].IsExpanded)
	assert.True(t, v.Children[0].Children[0].IsCurrent)
	assert.NotNil(t, v.Children[1].Children, "leaves encode an empty list")

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"children":[]`)

	assert.Nil(t, ToView(nil))
}
