package dstore

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Layout turns an object reference plus a PathSpec into a relative
// storage path. Every backend shares one Layout so that a disk store, the
// cache directory of a remote store, and the remote key space all agree
// on where an object lives.
type Layout struct {
	By StoreBy
}

// EffectiveID returns the token paths are keyed on: the decimal database
// id for ByID, the dash-stripped uuid for ByUUID. Operations that need a
// concrete path call this first, so an object without the relevant field
// assigned fails up front with an InvalidIdentifierError.
func (l Layout) EffectiveID(obj Object) (string, error) {
	switch l.By {
	case ByUUID:
		u, err := uuid.Parse(obj.UUID())
		if err != nil {
			return "", &InvalidIdentifierError{ID: obj.UUID()}
		}
		return strings.Replace(u.String(), "-", "", -1), nil
	default:
		id := obj.ID()
		if id <= 0 {
			return "", &InvalidIdentifierError{ID: strconv.FormatInt(id, 10)}
		}
		return strconv.FormatInt(id, 10), nil
	}
}

// RelPath computes the hashed relative path for obj:
// [extra_dir_at_root] hashed-segments [extra_dir] [obj_dir] [file name].
// Structurally unsafe specs fail with an InvalidError before any path is
// produced.
func (l Layout) RelPath(obj Object, spec PathSpec) (string, error) {
	id, err := l.EffectiveID(obj)
	if err != nil {
		return "", err
	}
	if err := validSpec(spec); err != nil {
		return "", err
	}

	segments, err := HashID(id, l.By)
	if err != nil {
		return "", err
	}

	var parts []string
	if spec.ExtraDir != "" && spec.ExtraDirAtRoot {
		parts = append(parts, spec.ExtraDir)
	}
	parts = append(parts, segments...)
	if spec.ExtraDir != "" && !spec.ExtraDirAtRoot {
		parts = append(parts, spec.ExtraDir)
	}
	if spec.ObjDir {
		parts = append(parts, id)
	}
	if !spec.DirOnly {
		parts = append(parts, l.fileName(id, spec))
	}
	return filepath.Join(parts...), nil
}

// LegacyRelPath computes the pre-migration flat path (no hashed
// segments). Live installations may hold data there; the disk backend
// checks it first when legacy compatibility is enabled.
func (l Layout) LegacyRelPath(obj Object, spec PathSpec) (string, error) {
	id, err := l.EffectiveID(obj)
	if err != nil {
		return "", err
	}
	if err := validSpec(spec); err != nil {
		return "", err
	}

	var parts []string
	if spec.ExtraDir != "" {
		parts = append(parts, spec.ExtraDir)
	}
	if spec.ObjDir {
		parts = append(parts, id)
	}
	if !spec.DirOnly {
		parts = append(parts, l.fileName(id, spec))
	}
	return filepath.Join(parts...), nil
}

func (l Layout) fileName(id string, spec PathSpec) string {
	if spec.AltName != "" {
		return spec.AltName
	}
	return "dataset_" + id + ".dat"
}

// validSpec rejects path specs that could traverse outside the computed
// directory. Violations are a fatal input error, never sanitized.
func validSpec(spec PathSpec) error {
	if spec.ExtraDir != "" {
		if err := safeRelDir(spec.ExtraDir); err != nil {
			return err
		}
	}
	if spec.AltName != "" {
		if spec.AltName != filepath.Base(spec.AltName) || spec.AltName == ".." || spec.AltName == "." {
			return &InvalidError{Reason: "unsafe alternate file name " + strconv.Quote(spec.AltName)}
		}
	}
	if spec.EntireDir && spec.ExtraDir == "" && !spec.ObjDir {
		return &InvalidError{Reason: "entire_dir deletion requires extra_dir or obj_dir"}
	}
	return nil
}

// safeRelDir requires dir to equal its own normalized form and to stay
// inside the directory it extends.
func safeRelDir(dir string) error {
	if filepath.IsAbs(dir) || dir != filepath.Clean(dir) {
		return &InvalidError{Reason: "unsafe extra directory " + strconv.Quote(dir)}
	}
	for _, part := range strings.Split(dir, string(os.PathSeparator)) {
		if part == ".." || part == "." || part == "" {
			return &InvalidError{Reason: "unsafe extra directory " + strconv.Quote(dir)}
		}
	}
	return nil
}

// Within reports whether path resolves inside base. Backends double-check
// every absolute path they construct against their root with this before
// touching the filesystem.
func Within(base, path string) bool {
	base = filepath.Clean(base)
	path = filepath.Clean(path)
	return path == base || strings.HasPrefix(path, base+string(os.PathSeparator))
}
