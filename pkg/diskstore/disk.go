// Direct filesystem backend. Implements the dstore.Store interface and is
// the reference implementation for the path layout: the remote-caching
// backends reuse the same relative layout for their cache directories, so
// an object's cache path and its would-be disk path always agree.
package diskstore

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"

	"github.com/scidata/dstore/pkg/dstore"
)

type Config struct {
	// FilesDir is the default root for object files.
	FilesDir string

	// ExtraDirs maps base_dir names (e.g. "job_work", "temp") onto
	// alternate roots used when a PathSpec carries that name.
	ExtraDirs map[string]string

	StoreBy dstore.StoreBy

	// LegacyPaths makes path resolution check the pre-migration flat
	// location (<root>/dataset_<id>.dat) before the hashed one. A file
	// found there wins; installations with pre-migration data depend on
	// this.
	LegacyPaths bool
}

type DiskStore struct {
	root      string
	extraDirs map[string]string
	layout    dstore.Layout
	legacy    bool
	log       dstore.Logger
}

func New(logger dstore.Logger, cfg Config) (*DiskStore, error) {
	if cfg.FilesDir == "" {
		return nil, errors.New("disk store requires a files_dir")
	}
	root, err := homedir.Expand(cfg.FilesDir)
	if err != nil {
		return nil, errors.Wrap(err, "bad files_dir")
	}

	by := cfg.StoreBy
	if by == "" {
		by = dstore.ByID
	}
	if by != dstore.ByID && by != dstore.ByUUID {
		return nil, errors.Errorf("unrecognized store_by value %q", by)
	}

	extra := make(map[string]string, len(cfg.ExtraDirs))
	for name, dir := range cfg.ExtraDirs {
		expanded, err := homedir.Expand(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "bad extra_dir %q", name)
		}
		extra[name] = expanded
	}

	return &DiskStore{
		root:      root,
		extraDirs: extra,
		layout:    dstore.Layout{By: by},
		legacy:    cfg.LegacyPaths,
		log:       logger,
	}, nil
}

// baseFor resolves the root directory a spec operates under. A BaseDir
// name that was never configured is a caller error, not a miss.
func (s *DiskStore) baseFor(spec dstore.PathSpec) (string, error) {
	if spec.BaseDir == "" {
		return s.root, nil
	}
	base, ok := s.extraDirs[spec.BaseDir]
	if !ok {
		return "", &dstore.InvalidError{Reason: "no base directory named " + spec.BaseDir}
	}
	return base, nil
}

// path constructs the absolute path for obj. When legacy compatibility is
// on and the flat pre-hash location holds a file, that location wins over
// the hashed one.
func (s *DiskStore) path(obj dstore.Object, spec dstore.PathSpec) (string, error) {
	base, err := s.baseFor(spec)
	if err != nil {
		return "", err
	}

	rel, err := s.layout.RelPath(obj, spec)
	if err != nil {
		return "", err
	}

	if s.legacy {
		legacyRel, err := s.layout.LegacyRelPath(obj, spec)
		if err != nil {
			return "", err
		}
		legacyAbs := filepath.Join(base, legacyRel)
		if dstore.Within(base, legacyAbs) && dstore.FileExists(legacyAbs) {
			return legacyAbs, nil
		}
	}

	abs := filepath.Join(base, rel)
	if !dstore.Within(base, abs) {
		return "", &dstore.InvalidError{Reason: "path escapes store root: " + rel}
	}
	return abs, nil
}

func (s *DiskStore) Exists(obj dstore.Object, spec dstore.PathSpec) (bool, error) {
	path, err := s.path(obj, spec)
	if err != nil {
		return false, err
	}
	return dstore.FileExists(path), nil
}

func (s *DiskStore) Create(obj dstore.Object, spec dstore.PathSpec) error {
	path, err := s.path(obj, spec)
	if err != nil {
		return err
	}
	if dstore.FileExists(path) {
		return nil
	}

	dir := path
	if !spec.DirOnly {
		dir = filepath.Dir(path)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating object directory")
	}
	if spec.DirOnly {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "creating object file")
	}
	return f.Close()
}

func (s *DiskStore) Empty(obj dstore.Object, spec dstore.PathSpec) (bool, error) {
	path, err := s.path(obj, spec)
	if err != nil {
		return false, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return false, &dstore.NotFoundError{What: path}
	}
	return stat.Size() == 0, nil
}

func (s *DiskStore) Size(obj dstore.Object, spec dstore.PathSpec) (int64, error) {
	path, err := s.path(obj, spec)
	if err != nil {
		return 0, err
	}
	return dstore.FileSize(path), nil
}

func (s *DiskStore) Delete(obj dstore.Object, spec dstore.PathSpec) bool {
	path, err := s.path(obj, spec)
	if err != nil {
		s.log.Errorf("delete: %v", err)
		return false
	}

	if spec.EntireDir {
		dir := path
		if !spec.DirOnly {
			dir = filepath.Dir(path)
		}
		if err := os.RemoveAll(dir); err != nil {
			s.log.Errorf("delete: removing %s: %v", dir, err)
			return false
		}
		return true
	}

	if err := os.Remove(path); err != nil {
		s.log.Errorf("delete: removing %s: %v", path, err)
		return false
	}
	return true
}

func (s *DiskStore) Data(obj dstore.Object, spec dstore.PathSpec, start, count int64) ([]byte, error) {
	path, err := s.path(obj, spec)
	if err != nil {
		return nil, err
	}
	data, err := dstore.ReadRange(path, start, count)
	if err != nil && !dstore.IsNotFound(err) {
		return nil, errors.Wrap(err, "reading object data")
	}
	return data, err
}

func (s *DiskStore) Filename(obj dstore.Object, spec dstore.PathSpec) (string, error) {
	path, err := s.path(obj, spec)
	if err != nil {
		return "", err
	}
	if !dstore.FileExists(path) {
		return "", &dstore.NotFoundError{What: path}
	}
	return path, nil
}

func (s *DiskStore) UpdateFromFile(obj dstore.Object, spec dstore.PathSpec, src string, create bool) error {
	if create {
		if err := s.Create(obj, spec); err != nil {
			return err
		}
	}
	path, err := s.path(obj, spec)
	if err != nil {
		return err
	}
	if !dstore.FileExists(path) {
		return &dstore.NotFoundError{What: path}
	}
	if src == "" || src == path {
		// bytes are already in place
		return nil
	}
	return errors.Wrap(dstore.CopyFile(src, path), "updating object from file")
}

func (s *DiskStore) ObjectURL(obj dstore.Object, spec dstore.PathSpec) string {
	return ""
}

func (s *DiskStore) FileReady(obj dstore.Object, spec dstore.PathSpec) bool {
	ok, err := s.Exists(obj, spec)
	return err == nil && ok
}

func (s *DiskStore) StoreBy() dstore.StoreBy {
	return s.layout.By
}

func (s *DiskStore) UsagePercent() float64 {
	return usagePercent(s.root)
}
