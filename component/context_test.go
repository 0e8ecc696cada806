package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInheritSharesWrites(t *testing.T) {
	root := NewRootExecutionContext(Global())
	child := root.Child(Session("s1"), Inherit)

	child.SharedSet(Global(), "k", "v")
	v, ok := root.SharedGet(Global(), "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestIsolateHidesWrites(t *testing.T) {
	root := NewRootExecutionContext(Global())
	root.SharedSet(Global(), "k", "parent")

	child := root.Child(Session("s1"), Isolate)
	_, ok := child.SharedGet(Global(), "k")
	assert.False(t, ok)

	child.SharedSet(Global(), "k2", "child-only")
	_, ok = root.SharedGet(Global(), "k2")
	assert.False(t, ok)
}

func TestCopyOnWriteSnapshotsThenDiverges(t *testing.T) {
	root := NewRootExecutionContext(Global())
	root.SharedSet(Global(), "k", "parent-v1")

	child := root.Child(Session("s1"), CopyOnWrite)
	v, ok := child.SharedGet(Global(), "k")
	assert.True(t, ok)
	assert.Equal(t, "parent-v1", v)

	child.SharedSet(Global(), "k", "child-v2")
	parentV, _ := root.SharedGet(Global(), "k")
	assert.Equal(t, "parent-v1", parentV)
}
