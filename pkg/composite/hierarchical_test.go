package composite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scidata/dstore/pkg/dstore"
)

func newTieredStore(t *testing.T) (*HierarchicalStore, *memStore, *memStore) {
	fast, slow := newMemStore(), newMemStore()
	store, err := NewHierarchical(testLogger(), []Backend{
		{ID: "fast", Store: fast},
		{ID: "slow", Store: slow},
	})
	require.NoError(t, err)
	return store, fast, slow
}

func TestHierarchicalRequiresBackends(t *testing.T) {
	_, err := NewHierarchical(testLogger(), nil)
	assert.Error(t, err)
}

func TestHierarchicalCreateLandsOnFirstTier(t *testing.T) {
	store, fast, slow := newTieredStore(t)

	obj := &dstore.Dataset{NumericID: 42}
	require.NoError(t, store.Create(obj, dstore.PathSpec{}))
	assert.True(t, fast.has(42))
	assert.False(t, slow.has(42))
}

func TestHierarchicalReadsFallThrough(t *testing.T) {
	store, fast, slow := newTieredStore(t)

	// archived on the slow tier only
	slow.put(42, "archived")

	ok, err := store.Exists(&dstore.Dataset{NumericID: 42}, dstore.PathSpec{})
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.Data(&dstore.Dataset{NumericID: 42}, dstore.PathSpec{}, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "archived", string(data))

	// once the fast tier holds a copy, it shadows the archive
	fast.put(42, "fresh")
	data, err = store.Data(&dstore.Dataset{NumericID: 42}, dstore.PathSpec{}, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestHierarchicalMissingObjectSemantics(t *testing.T) {
	store, _, _ := newTieredStore(t)

	obj := &dstore.Dataset{NumericID: 7}
	spec := dstore.PathSpec{}

	ok, err := store.Exists(obj, spec)
	require.NoError(t, err)
	assert.False(t, ok)

	size, err := store.Size(obj, spec)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)

	_, err = store.Empty(obj, spec)
	assert.True(t, dstore.IsNotFound(err))

	_, err = store.Filename(obj, spec)
	assert.True(t, dstore.IsNotFound(err))

	assert.False(t, store.Delete(obj, spec))
}

// Structurally unsafe input fails as invalid through the chain, it
// never reads as a missing object.
func TestHierarchicalInvalidSpecSurfaces(t *testing.T) {
	store, _, _ := newTieredStore(t)

	obj := &dstore.Dataset{NumericID: 42}
	spec := dstore.PathSpec{ExtraDir: "../evil"}

	_, err := store.Exists(obj, spec)
	require.Error(t, err)
	assert.True(t, dstore.IsInvalid(err))

	_, err = store.Filename(obj, spec)
	require.Error(t, err)
	assert.True(t, dstore.IsInvalid(err))
	assert.False(t, dstore.IsNotFound(err))

	_, err = store.Size(obj, spec)
	assert.True(t, dstore.IsInvalid(err))

	err = store.Create(obj, spec)
	assert.True(t, dstore.IsInvalid(err))

	err = store.UpdateFromFile(obj, spec, "/tmp/input", true)
	assert.True(t, dstore.IsInvalid(err))

	assert.False(t, store.Delete(obj, spec))
	assert.False(t, store.FileReady(obj, spec))
	assert.Equal(t, "", store.ObjectURL(obj, spec))
}

func TestHierarchicalUpdateFromFile(t *testing.T) {
	store, fast, slow := newTieredStore(t)

	obj := &dstore.Dataset{NumericID: 42}
	err := store.UpdateFromFile(obj, dstore.PathSpec{}, "/tmp/input", false)
	assert.True(t, dstore.IsNotFound(err))

	// create-on-write lands on the first tier
	require.NoError(t, store.UpdateFromFile(obj, dstore.PathSpec{}, "/tmp/input", true))
	assert.True(t, fast.has(42))

	// an object already on the slow tier is updated in place
	slow.put(7, "old")
	require.NoError(t, store.UpdateFromFile(&dstore.Dataset{NumericID: 7}, dstore.PathSpec{}, "/tmp/new", false))
	data, err := slow.Data(&dstore.Dataset{NumericID: 7}, dstore.PathSpec{}, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "from /tmp/new", string(data))
}
