// Standard interfaces and datatypes for the dstore project.
// Terms:
//   "backend" : A Store bound to exactly one physical storage medium
//     (local disk, an S3 bucket, a cloud blob container, a data broker)
//   "composite" : A Store that owns one or more nested Stores and routes
//     every operation to the right one
package dstore

import (
	"github.com/sirupsen/logrus"
)

// StoreBy selects which field of an object is used to compute its storage
// path. It is a backend-level configuration choice, not a per-object one.
type StoreBy string

const (
	// ByID uses the object's numeric database id.
	ByID StoreBy = "id"
	// ByUUID uses the object's uuid.
	ByUUID StoreBy = "uuid"
)

// Object is the minimal capability the object store needs from any
// caller-supplied entity. The caller's persistence layer assigns the id
// and uuid; the store only ever writes the store id (and only composite
// stores do that).
type Object interface {
	// ID returns the numeric database id, or 0 if none has been assigned
	// yet.
	ID() int64

	// UUID returns the object's uuid, or "" if none has been assigned.
	UUID() string

	// StoreID names the backend within a composite store that holds this
	// object's bytes. "" means no backend has been chosen yet.
	StoreID() string
	SetStoreID(id string)
}

// PathSpec carries the optional path modifiers accepted by every store
// operation. The zero value requests the default layout:
// <root>/<hashed id segments>/dataset_<id>.dat
type PathSpec struct {
	// BaseDir names an alternate root (e.g. "job_work", "temp") configured
	// on the backend, instead of the default files directory.
	BaseDir string

	// DirOnly makes the operation target the containing directory rather
	// than a specific file.
	DirOnly bool

	// ExtraDir inserts an additional path segment after the hashed id
	// segments, or before them when ExtraDirAtRoot is set.
	ExtraDir       string
	ExtraDirAtRoot bool

	// AltName overrides the default file name. Must be a plain file name;
	// anything that could escape the computed directory is rejected.
	AltName string

	// ObjDir inserts a directory level named exactly the effective id.
	ObjDir bool

	// EntireDir makes Delete remove the whole containing directory
	// subtree. Only valid in combination with ExtraDir or ObjDir.
	EntireDir bool
}

// Store is the uniform operation set presented by every backend, concrete
// or composite.
//
// Failure semantics are deliberately asymmetric and must be preserved:
// existence-style queries never fail for a missing object, content-access
// operations fail with a NotFoundError, and Delete reports any failure as
// false rather than an error. Size returns 0 for a missing object while
// Empty reports NotFoundError for the same object; callers depend on that
// quirk.
type Store interface {
	// Exists reports whether the object has a representation in this
	// store. The error is only ever an InvalidError for a structurally
	// unsafe PathSpec, never "not found".
	Exists(obj Object, spec PathSpec) (bool, error)

	// Create idempotently allocates backing storage for the object. An
	// object that already exists is left untouched.
	Create(obj Object, spec PathSpec) error

	// Empty reports whether the object holds zero bytes. Fails with
	// NotFoundError if the object does not exist.
	Empty(obj Object, spec PathSpec) (bool, error)

	// Size returns the object's size in bytes, or 0 if it does not exist.
	Size(obj Object, spec PathSpec) (int64, error)

	// Delete removes the object (or, with spec.EntireDir, its whole
	// directory subtree). Any failure yields false, never an error.
	Delete(obj Object, spec PathSpec) bool

	// Data reads up to count bytes starting at start. count < 0 reads to
	// the end. Fails with NotFoundError if the object is absent.
	Data(obj Object, spec PathSpec, start, count int64) ([]byte, error)

	// Filename returns a local filesystem path usable for direct I/O.
	// Remote-backed stores pull the object into their cache first. Fails
	// with NotFoundError if the object does not exist anywhere.
	Filename(obj Object, spec PathSpec) (string, error)

	// UpdateFromFile copies src into the backend, creating the object
	// first when create is set. src == "" re-pushes the existing local
	// copy (remote-backed stores push cache to remote).
	UpdateFromFile(obj Object, spec PathSpec, src string, create bool) error

	// ObjectURL returns a direct-access URL when the backend supports one
	// (e.g. a signed S3 URL valid for 24 hours), else "".
	ObjectURL(obj Object, spec PathSpec) string

	// FileReady reports whether the local copy of the object is complete.
	// Remote-backed stores compare cache size against the remote-reported
	// size; a transfer still in flight yields false, not an error.
	FileReady(obj Object, spec PathSpec) bool

	// UsagePercent reports how full the backend is, 0-100. Backends that
	// cannot measure themselves report 0.
	UsagePercent() float64

	// StoreBy reports which object field this store keys paths on.
	StoreBy() StoreBy
}

// Logger is the logging interface used throughout dstore. Both
// logrus.Logger and logrus.Entry satisfy it, so backends can be handed a
// pre-tagged entry (logger.WithField("module", "store.disk")).
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) *logrus.Entry
}

// Dataset is a minimal Object implementation used by the command line
// tool and tests. Applications normally adapt their own entities to the
// Object interface instead.
type Dataset struct {
	NumericID int64
	UID       string
	Backend   string
}

func (d *Dataset) ID() int64            { return d.NumericID }
func (d *Dataset) UUID() string         { return d.UID }
func (d *Dataset) StoreID() string      { return d.Backend }
func (d *Dataset) SetStoreID(id string) { d.Backend = id }
