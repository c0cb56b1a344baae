package remote

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/pkg/errors"

	"github.com/scidata/dstore/pkg/dstore"
)

// Driver is the slice of a remote store that actually differs between
// providers: key-level transport plus credentials and bucket handling,
// wired up by the provider package's constructor. Everything else
// (caching, path layout, the Store operation contract) lives in
// CachingStore.
//
// Keys use forward slashes. Directory markers carry a trailing slash;
// real object stores have no directories, so that convention is all a
// "directory" is remotely.
type Driver interface {
	// Exists reports whether key is present remotely.
	Exists(key string) (bool, error)

	// Size returns the remote-reported size of key, or an error if it is
	// absent or unreachable.
	Size(key string) (int64, error)

	// Open streams the remote content of key.
	Open(key string) (io.ReadCloser, error)

	// Put stores size bytes from r under key, replacing any previous
	// content. size is advisory (multipart chunking); drivers may ignore
	// it.
	Put(key string, r io.Reader, size int64) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Keys lists every key under prefix. Used for entire-dir deletes,
	// which have no native recursive form remotely.
	Keys(prefix string) ([]string, error)

	// URL returns a direct-access URL for key, or "" if the provider has
	// none.
	URL(key string) string
}

// CachingStore implements dstore.Store for any Driver. The authoritative
// copy is remote; reads pull into the cache first, writes land in the
// cache and are pushed out.
type CachingStore struct {
	driver Driver
	cache  CacheTarget
	layout dstore.Layout
	log    dstore.Logger
}

func NewCachingStore(logger dstore.Logger, driver Driver, cache CacheTarget, by dstore.StoreBy) (*CachingStore, error) {
	if cache.Path == "" {
		return nil, errors.New("remote-backed store requires a cache path")
	}
	if by == "" {
		by = dstore.ByID
	}
	if by != dstore.ByID && by != dstore.ByUUID {
		return nil, errors.Errorf("unrecognized store_by value %q", by)
	}
	if err := os.MkdirAll(cache.Path, 0755); err != nil {
		return nil, errors.Wrap(err, "creating cache directory")
	}
	return &CachingStore{
		driver: driver,
		cache:  cache,
		layout: dstore.Layout{By: by},
		log:    logger,
	}, nil
}

// resolve computes the remote key and local cache path for obj.
func (s *CachingStore) resolve(obj dstore.Object, spec dstore.PathSpec) (key, cachePath string, err error) {
	rel, err := s.layout.RelPath(obj, spec)
	if err != nil {
		return "", "", err
	}
	key = filepath.ToSlash(rel)
	if spec.DirOnly {
		key += "/"
	}
	cachePath = filepath.Join(s.cache.Path, rel)
	if !dstore.Within(s.cache.Path, cachePath) {
		return "", "", &dstore.InvalidError{Reason: "path escapes cache root: " + rel}
	}
	return key, cachePath, nil
}

func (s *CachingStore) Exists(obj dstore.Object, spec dstore.PathSpec) (bool, error) {
	key, cachePath, err := s.resolve(obj, spec)
	if err != nil {
		return false, err
	}

	if dstore.FileExists(cachePath) {
		if !spec.DirOnly {
			// Lazy repair of interrupted uploads: a cache copy with no
			// remote counterpart gets re-pushed before we answer.
			inRemote, err := s.driver.Exists(key)
			if err != nil {
				s.log.Errorf("exists: checking %s remotely: %v", key, err)
			} else if !inRemote {
				if err := s.push(cachePath, key); err != nil {
					s.log.Errorf("exists: re-pushing %s: %v", key, err)
				}
			}
		}
		return true, nil
	}

	inRemote, err := s.driver.Exists(key)
	if err != nil {
		s.log.Errorf("exists: checking %s remotely: %v", key, err)
		return false, nil
	}
	return inRemote, nil
}

func (s *CachingStore) Create(obj dstore.Object, spec dstore.PathSpec) error {
	exists, err := s.Exists(obj, spec)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	key, cachePath, err := s.resolve(obj, spec)
	if err != nil {
		return err
	}

	if spec.DirOnly {
		if err := os.MkdirAll(cachePath, 0755); err != nil {
			return errors.Wrap(err, "creating cache directory")
		}
		// empty marker object for the remote "directory"
		return s.driver.Put(key, bytes.NewReader(nil), 0)
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return errors.Wrap(err, "creating cache directory")
	}
	f, err := os.OpenFile(cachePath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "creating cache placeholder")
	}
	if err := f.Close(); err != nil {
		return err
	}
	return s.push(cachePath, key)
}

func (s *CachingStore) Empty(obj dstore.Object, spec dstore.PathSpec) (bool, error) {
	exists, err := s.Exists(obj, spec)
	if err != nil {
		return false, err
	}
	if !exists {
		key, _, _ := s.resolve(obj, spec)
		return false, &dstore.NotFoundError{What: key}
	}
	size, err := s.Size(obj, spec)
	if err != nil {
		return false, err
	}
	return size == 0, nil
}

func (s *CachingStore) Size(obj dstore.Object, spec dstore.PathSpec) (int64, error) {
	key, cachePath, err := s.resolve(obj, spec)
	if err != nil {
		return 0, err
	}
	if dstore.FileExists(cachePath) {
		return dstore.FileSize(cachePath), nil
	}
	size, err := s.driver.Size(key)
	if err != nil {
		return 0, nil
	}
	return size, nil
}

func (s *CachingStore) Delete(obj dstore.Object, spec dstore.PathSpec) bool {
	key, cachePath, err := s.resolve(obj, spec)
	if err != nil {
		s.log.Errorf("delete: %v", err)
		return false
	}

	if spec.EntireDir {
		return s.deletePrefix(key, cachePath, spec)
	}

	if err := os.Remove(cachePath); err != nil && !os.IsNotExist(err) {
		s.log.Errorf("delete: removing cache copy %s: %v", cachePath, err)
		return false
	}
	inRemote, err := s.driver.Exists(key)
	if err != nil {
		s.log.Errorf("delete: checking %s remotely: %v", key, err)
		return false
	}
	if inRemote {
		if err := s.driver.Delete(key); err != nil {
			s.log.Errorf("delete: removing %s remotely: %v", key, err)
			return false
		}
	}
	return true
}

// deletePrefix removes a whole "directory": every remote key under the
// prefix, one by one, plus the cache subtree.
func (s *CachingStore) deletePrefix(key, cachePath string, spec dstore.PathSpec) bool {
	dir := cachePath
	prefix := key
	if !spec.DirOnly {
		dir = filepath.Dir(cachePath)
		prefix = filepath.ToSlash(filepath.Dir(key)) + "/"
	}

	keys, err := s.driver.Keys(prefix)
	if err != nil {
		s.log.Errorf("delete: listing prefix %s: %v", prefix, err)
		return false
	}
	ok := true
	for _, k := range keys {
		if err := s.driver.Delete(k); err != nil {
			s.log.Errorf("delete: removing %s remotely: %v", k, err)
			ok = false
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		s.log.Errorf("delete: removing cache subtree %s: %v", dir, err)
		ok = false
	}
	return ok
}

func (s *CachingStore) Data(obj dstore.Object, spec dstore.PathSpec, start, count int64) ([]byte, error) {
	path, err := s.Filename(obj, spec)
	if err != nil {
		return nil, err
	}
	data, err := dstore.ReadRange(path, start, count)
	if err != nil && !dstore.IsNotFound(err) {
		return nil, errors.Wrap(err, "reading object data")
	}
	return data, err
}

func (s *CachingStore) Filename(obj dstore.Object, spec dstore.PathSpec) (string, error) {
	key, cachePath, err := s.resolve(obj, spec)
	if err != nil {
		return "", err
	}

	if spec.DirOnly {
		if err := os.MkdirAll(cachePath, 0755); err != nil {
			return "", errors.Wrap(err, "creating cache directory")
		}
		return cachePath, nil
	}

	if dstore.FileExists(cachePath) {
		return cachePath, nil
	}
	inRemote, err := s.driver.Exists(key)
	if err != nil {
		s.log.Errorf("filename: checking %s remotely: %v", key, err)
	}
	if !inRemote {
		return "", &dstore.NotFoundError{What: key}
	}
	if err := s.pull(key, cachePath); err != nil {
		return "", err
	}
	return cachePath, nil
}

func (s *CachingStore) UpdateFromFile(obj dstore.Object, spec dstore.PathSpec, src string, create bool) error {
	if create {
		if err := s.Create(obj, spec); err != nil {
			return err
		}
	}
	exists, err := s.Exists(obj, spec)
	if err != nil {
		return err
	}
	key, cachePath, err := s.resolve(obj, spec)
	if err != nil {
		return err
	}
	if !exists {
		return &dstore.NotFoundError{What: key}
	}

	if src != "" && src != cachePath {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
			return errors.Wrap(err, "creating cache directory")
		}
		if err := dstore.CopyFile(src, cachePath); err != nil {
			return errors.Wrap(err, "copying into cache")
		}
		// the store owns the cache copy now, not the source file's owner
		if err := os.Chmod(cachePath, 0644); err != nil {
			s.log.Warnf("update: fixing permissions on %s: %v", cachePath, err)
		}
	}
	return s.push(cachePath, key)
}

func (s *CachingStore) ObjectURL(obj dstore.Object, spec dstore.PathSpec) string {
	key, _, err := s.resolve(obj, spec)
	if err != nil {
		return ""
	}
	return s.driver.URL(key)
}

// FileReady reports whether the cache copy has caught up with the
// remote-reported size. Callers poll it to detect a transfer still in
// flight.
func (s *CachingStore) FileReady(obj dstore.Object, spec dstore.PathSpec) bool {
	key, cachePath, err := s.resolve(obj, spec)
	if err != nil {
		return false
	}
	if !dstore.FileExists(cachePath) {
		return false
	}
	size, err := s.driver.Size(key)
	if err != nil {
		return false
	}
	return dstore.FileSize(cachePath) == size
}

func (s *CachingStore) UsagePercent() float64 {
	// remote capacity is unknowable from here; only the cache is measurable
	return 0
}

func (s *CachingStore) StoreBy() dstore.StoreBy {
	return s.layout.By
}

// Cache exposes the cache target, mainly for provider packages that need
// the cache root (e.g. register-only symlinking).
func (s *CachingStore) Cache() CacheTarget {
	return s.cache
}

// Resolve exposes key and cache path computation to provider packages
// that extend the base behavior.
func (s *CachingStore) Resolve(obj dstore.Object, spec dstore.PathSpec) (key, cachePath string, err error) {
	return s.resolve(obj, spec)
}

// Push uploads an existing cache file to the remote key.
func (s *CachingStore) Push(cachePath, key string) error {
	return s.push(cachePath, key)
}

func (s *CachingStore) push(cachePath, key string) error {
	f, err := os.Open(cachePath)
	if err != nil {
		return errors.Wrap(err, "opening cache copy for push")
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "measuring cache copy for push")
	}
	return errors.Wrapf(s.driver.Put(key, f, stat.Size()), "pushing %s", key)
}

// pull downloads key into the cache, refusing objects that would blow the
// cache's capacity policy. The download lands in a temp file and is
// renamed into place, so a failed or interrupted pull leaves no partial
// file behind.
func (s *CachingStore) pull(key, cachePath string) error {
	size, err := s.driver.Size(key)
	if err != nil {
		return errors.Wrapf(err, "sizing %s for pull", key)
	}
	if !s.cache.FitsInCache(size) {
		s.log.Errorf("pull: %s (%d bytes) exceeds cache capacity at %s", key, size, s.cache.Path)
		return errors.Errorf("object %s (%d bytes) does not fit in cache", key, size)
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return errors.Wrap(err, "creating cache directory")
	}
	pending, err := renameio.TempFile("", cachePath)
	if err != nil {
		return errors.Wrap(err, "staging cache download")
	}
	defer pending.Cleanup()

	rc, err := s.driver.Open(key)
	if err != nil {
		return errors.Wrapf(err, "opening %s remotely", key)
	}
	defer rc.Close()

	if _, err := io.Copy(pending, rc); err != nil {
		return errors.Wrapf(err, "downloading %s", key)
	}
	return errors.Wrap(pending.CloseAtomicallyReplace(), "finalizing cache download")
}
