package trie

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrie(t *testing.T) {
	t.Run("get on an empty trie is absent", func(t *testing.T) {
		var empty Trie
		_, ok := Get[int](empty, "anything")
		assert.False(t, ok)
	})

	t.Run("put then get round-trips the value", func(t *testing.T) {
		tr := Put(Trie{}, "hello", 42)
		v, ok := Get[int](tr, "hello")
		assert.True(t, ok)
		assert.Equal(t, 42, v)
	})

	t.Run("get with a mismatched type tag is absent", func(t *testing.T) {
		tr := Put(Trie{}, "hello", 42)
		_, ok := Get[string](tr, "hello")
		assert.False(t, ok)
	})

	t.Run("put replaces an existing value-bearing key", func(t *testing.T) {
		tr := Put(Trie{}, "k", 1)
		tr = Put(tr, "k", 2)
		v, ok := Get[int](tr, "k")
		assert.True(t, ok)
		assert.Equal(t, 2, v)
	})

	t.Run("S5: sibling inserts share untouched subtrees", func(t *testing.T) {
		t0 := Trie{}
		t1 := Put(t0, "ab", 1)
		t2 := Put(t1, "ac", 2)

		_, ok := Get[int](t1, "ac")
		assert.False(t, ok, "t1 must not see a key inserted into t2")

		v, ok := Get[int](t2, "ab")
		require := assert.New(t)
		require.True(ok)
		require.Equal(1, v)

		v, ok = Get[int](t2, "ac")
		require.True(ok)
		require.Equal(2, v)

		aInT1 := t1.root.children['a']
		aInT2 := t2.root.children['a']
		assert.NotSame(t, aInT1, aInT2, "the path to the new key must be cloned")
		assert.Same(t, aInT1.children['b'], aInT2.children['b'], "the untouched 'b' subtree must be shared")
	})

	t.Run("testable property: put does not mutate the original trie", func(t *testing.T) {
		t1 := Put(Trie{}, "k", 1)
		before, _ := Get[int](t1, "k")

		t2 := Put(t1, "k", 99)

		after, _ := Get[int](t1, "k")
		assert.Equal(t, before, after)

		v, _ := Get[int](t2, "k")
		assert.Equal(t, 99, v)
	})

	t.Run("remove clears the value and prunes empty nodes", func(t *testing.T) {
		tr := Put(Trie{}, "ab", 1)
		tr = Remove(tr, "ab")

		_, ok := Get[int](tr, "ab")
		assert.False(t, ok)
		assert.Nil(t, tr.root)
	})

	t.Run("remove keeps a node alive if it still has children", func(t *testing.T) {
		tr := Put(Trie{}, "ab", 1)
		tr = Put(tr, "ac", 2)
		tr = Remove(tr, "ab")

		_, ok := Get[int](tr, "ab")
		assert.False(t, ok)
		v, ok := Get[int](tr, "ac")
		assert.True(t, ok)
		assert.Equal(t, 2, v)
	})

	t.Run("remove of an absent key is a no-op", func(t *testing.T) {
		tr := Put(Trie{}, "ab", 1)
		same := Remove(tr, "zz")
		v, ok := Get[int](same, "ab")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
	})
}
