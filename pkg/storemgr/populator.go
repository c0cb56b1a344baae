package storemgr

import (
	"github.com/pkg/errors"

	"github.com/scidata/dstore/pkg/dstore"
)

// Populator pins every output of one unit of work (typically one job) to
// the backend chosen for the first output, so that all of a job's files
// end up side by side. The first Create with no preference captures the
// backend the store picked; every later object gets that id pre-set
// before its own Create.
type Populator struct {
	store     dstore.Store
	backendID string
}

func NewPopulator(store dstore.Store) *Populator {
	return &Populator{store: store}
}

// SetBackendID forces the sticky backend up front, e.g. when resuming a
// job whose earlier outputs already landed somewhere.
func (p *Populator) SetBackendID(id string) {
	p.backendID = id
}

// BackendID returns the backend this populator is pinned to, or "" if no
// object has been created yet.
func (p *Populator) BackendID() string {
	return p.backendID
}

// CreateObject creates obj in the pinned backend (pinning it on the
// first call). Backend capacity exhaustion mid-job surfaces as a
// creation error wrapping the store's InvalidError.
func (p *Populator) CreateObject(obj dstore.Object, spec dstore.PathSpec) error {
	if p.backendID != "" {
		obj.SetStoreID(p.backendID)
	}
	if err := p.store.Create(obj, spec); err != nil {
		if dstore.IsInvalid(err) {
			return errors.Wrap(err, "unable to create output dataset: is storage full?")
		}
		return err
	}
	if p.backendID == "" {
		p.backendID = obj.StoreID()
	}
	return nil
}
