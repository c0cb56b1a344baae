package remote

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scidata/dstore/pkg/dstore"
)

// memDriver is an in-memory Driver standing in for a real remote store.
type memDriver struct {
	mu      sync.Mutex
	objects map[string][]byte
	urlBase string
}

func newMemDriver() *memDriver {
	return &memDriver{objects: make(map[string][]byte)}
}

func (d *memDriver) Exists(key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.objects[key]
	return ok, nil
}

func (d *memDriver) Size(key string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.objects[key]
	if !ok {
		return 0, errors.Errorf("no object %s", key)
	}
	return int64(len(data)), nil
}

func (d *memDriver) Open(key string) (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.objects[key]
	if !ok {
		return nil, errors.Errorf("no object %s", key)
	}
	return ioutil.NopCloser(bytes.NewReader(data)), nil
}

func (d *memDriver) Put(key string, r io.Reader, size int64) error {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[key] = data
	return nil
}

func (d *memDriver) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, key)
	return nil
}

func (d *memDriver) Keys(prefix string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var keys []string
	for k := range d.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (d *memDriver) URL(key string) string {
	if d.urlBase == "" {
		return ""
	}
	return d.urlBase + "/" + key
}

func (d *memDriver) set(key, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[key] = []byte(content)
}

func (d *memDriver) get(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.objects[key]
	return string(data), ok
}

func testLogger() dstore.Logger {
	log := logrus.New()
	log.SetOutput(ioutil.Discard)
	return log
}

func newTestStore(t *testing.T, cache CacheTarget) (*CachingStore, *memDriver, func()) {
	dir, err := ioutil.TempDir("", "remote-cache")
	require.NoError(t, err)
	cache.Path = dir
	driver := newMemDriver()
	store, err := NewCachingStore(testLogger(), driver, cache, dstore.ByID)
	require.NoError(t, err)
	return store, driver, func() { os.RemoveAll(dir) }
}

func TestCreatePushesEmptyObject(t *testing.T) {
	store, driver, cleanup := newTestStore(t, CacheTarget{})
	defer cleanup()

	obj := &dstore.Dataset{NumericID: 42}
	require.NoError(t, store.Create(obj, dstore.PathSpec{}))

	content, ok := driver.get("000/dataset_42.dat")
	assert.True(t, ok)
	assert.Equal(t, "", content)

	empty, err := store.Empty(obj, dstore.PathSpec{})
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestUpdatePushesToRemote(t *testing.T) {
	store, driver, cleanup := newTestStore(t, CacheTarget{})
	defer cleanup()

	dir, err := ioutil.TempDir("", "remote-src")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	src := filepath.Join(dir, "input.dat")
	require.NoError(t, ioutil.WriteFile(src, []byte("payload"), 0600))

	obj := &dstore.Dataset{NumericID: 42}
	require.NoError(t, store.UpdateFromFile(obj, dstore.PathSpec{}, src, true))

	content, ok := driver.get("000/dataset_42.dat")
	assert.True(t, ok)
	assert.Equal(t, "payload", content)

	// the cache copy belongs to the store, not the source file's owner
	path, err := store.Filename(obj, dstore.PathSpec{})
	require.NoError(t, err)
	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), stat.Mode().Perm())
}

func TestFilenamePullsIntoCache(t *testing.T) {
	store, driver, cleanup := newTestStore(t, CacheTarget{})
	defer cleanup()

	driver.set("000/dataset_42.dat", "remote bytes")

	obj := &dstore.Dataset{NumericID: 42}
	path, err := store.Filename(obj, dstore.PathSpec{})
	require.NoError(t, err)

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "remote bytes", string(data))

	assert.True(t, store.FileReady(obj, dstore.PathSpec{}))

	// a second call serves the cache copy without another pull
	again, err := store.Filename(obj, dstore.PathSpec{})
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestDataReadsRange(t *testing.T) {
	store, driver, cleanup := newTestStore(t, CacheTarget{})
	defer cleanup()

	driver.set("000/dataset_42.dat", "0123456789")

	obj := &dstore.Dataset{NumericID: 42}
	data, err := store.Data(obj, dstore.PathSpec{}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "234", string(data))
}

// A cache copy with no remote counterpart is an interrupted upload.
// Exists repairs it by re-pushing before answering.
func TestExistsRepushesOrphanedCacheCopy(t *testing.T) {
	store, driver, cleanup := newTestStore(t, CacheTarget{})
	defer cleanup()

	_, cachePath, err := store.Resolve(&dstore.Dataset{NumericID: 42}, dstore.PathSpec{})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(cachePath), 0755))
	require.NoError(t, ioutil.WriteFile(cachePath, []byte("orphan"), 0644))

	ok, err := store.Exists(&dstore.Dataset{NumericID: 42}, dstore.PathSpec{})
	require.NoError(t, err)
	assert.True(t, ok)

	content, found := driver.get("000/dataset_42.dat")
	assert.True(t, found)
	assert.Equal(t, "orphan", content)
}

func TestMissingObjectSemantics(t *testing.T) {
	store, _, cleanup := newTestStore(t, CacheTarget{})
	defer cleanup()

	obj := &dstore.Dataset{NumericID: 42}
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

	err = store.UpdateFromFile(obj, spec, "", false)
	assert.True(t, dstore.IsNotFound(err))
}

func TestDeleteRemovesCacheAndRemote(t *testing.T) {
	store, driver, cleanup := newTestStore(t, CacheTarget{})
	defer cleanup()

	obj := &dstore.Dataset{NumericID: 42}
	require.NoError(t, store.Create(obj, dstore.PathSpec{}))

	assert.True(t, store.Delete(obj, dstore.PathSpec{}))
	_, found := driver.get("000/dataset_42.dat")
	assert.False(t, found)

	ok, err := store.Exists(obj, dstore.PathSpec{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteEntireDirRemovesPrefix(t *testing.T) {
	store, driver, cleanup := newTestStore(t, CacheTarget{})
	defer cleanup()

	obj := &dstore.Dataset{NumericID: 42}
	spec := dstore.PathSpec{ObjDir: true}
	require.NoError(t, store.Create(obj, spec))
	driver.set("000/42/sidecar.txt", "x")

	spec.EntireDir = true
	assert.True(t, store.Delete(obj, spec))

	keys, err := driver.Keys("000/42/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// A pull that would blow the cache capacity is refused and leaves no
// partial file behind.
func TestPullRespectsCacheCapacity(t *testing.T) {
	store, driver, cleanup := newTestStore(t, CacheTarget{Size: 100, Limit: 0.9})
	defer cleanup()

	driver.set("000/dataset_42.dat", strings.Repeat("x", 200))

	obj := &dstore.Dataset{NumericID: 42}
	_, err := store.Filename(obj, dstore.PathSpec{})
	require.Error(t, err)

	_, cachePath, err := store.Resolve(obj, dstore.PathSpec{})
	require.NoError(t, err)
	assert.False(t, dstore.FileExists(cachePath))

	// small objects still fit
	driver.set("000/dataset_43.dat", "small")
	_, err = store.Filename(&dstore.Dataset{NumericID: 43}, dstore.PathSpec{})
	assert.NoError(t, err)
}

func TestDirOnly(t *testing.T) {
	store, driver, cleanup := newTestStore(t, CacheTarget{})
	defer cleanup()

	obj := &dstore.Dataset{NumericID: 42}
	spec := dstore.PathSpec{DirOnly: true, ObjDir: true}
	require.NoError(t, store.Create(obj, spec))

	// directory markers carry a trailing slash remotely
	_, found := driver.get("000/42/")
	assert.True(t, found)

	path, err := store.Filename(obj, spec)
	require.NoError(t, err)
	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
}

func TestObjectURL(t *testing.T) {
	store, driver, cleanup := newTestStore(t, CacheTarget{})
	defer cleanup()

	obj := &dstore.Dataset{NumericID: 42}
	assert.Equal(t, "", store.ObjectURL(obj, dstore.PathSpec{}))

	driver.urlBase = "https://remote.example.com"
	assert.Equal(t, "https://remote.example.com/000/dataset_42.dat",
		store.ObjectURL(obj, dstore.PathSpec{}))
}

func TestFileReadyDetectsPartialTransfer(t *testing.T) {
	store, driver, cleanup := newTestStore(t, CacheTarget{})
	defer cleanup()

	driver.set("000/dataset_42.dat", "full remote content")

	obj := &dstore.Dataset{NumericID: 42}
	_, cachePath, err := store.Resolve(obj, dstore.PathSpec{})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(cachePath), 0755))
	require.NoError(t, ioutil.WriteFile(cachePath, []byte("full"), 0644))

	assert.False(t, store.FileReady(obj, dstore.PathSpec{}))

	require.NoError(t, ioutil.WriteFile(cachePath, []byte("full remote content"), 0644))
	assert.True(t, store.FileReady(obj, dstore.PathSpec{}))
}

func TestCacheTargetPolicy(t *testing.T) {
	dir, err := ioutil.TempDir("", "cache-target")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "a"), make([]byte, 40), 0644))

	c := CacheTarget{Path: dir, Size: 100, Limit: 0.9}
	assert.Equal(t, int64(40), c.Usage())
	assert.True(t, c.FitsInCache(40))  // 80 < 90
	assert.False(t, c.FitsInCache(60)) // 100 >= 90
	assert.InDelta(t, 40.0, c.UsagePercent(), 0.01)

	unbounded := CacheTarget{Path: dir}
	assert.True(t, unbounded.FitsInCache(1<<40))
	assert.Equal(t, 0.0, unbounded.UsagePercent())
}
