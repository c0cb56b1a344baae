package composite

import (
	"github.com/pkg/errors"

	"github.com/scidata/dstore/pkg/dstore"
)

// HierarchicalStore is an ordered fallback chain: reads search the
// backends in declared order and the first one holding the object wins;
// creates always land on the first backend. Typical use is a fast
// primary tier in front of slower archival tiers.
type HierarchicalStore struct {
	stores []dstore.Store
	log    dstore.Logger
}

func NewHierarchical(logger dstore.Logger, backends []Backend) (*HierarchicalStore, error) {
	if len(backends) == 0 {
		return nil, errors.New("hierarchical store requires at least one backend")
	}
	s := &HierarchicalStore{log: logger}
	for _, b := range backends {
		s.stores = append(s.stores, b.Store)
	}
	return s, nil
}

func (s *HierarchicalStore) Exists(obj dstore.Object, spec dstore.PathSpec) (bool, error) {
	b, err := firstExisting(s.stores, obj, spec)
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

func (s *HierarchicalStore) Create(obj dstore.Object, spec dstore.PathSpec) error {
	return s.stores[0].Create(obj, spec)
}

func (s *HierarchicalStore) Empty(obj dstore.Object, spec dstore.PathSpec) (bool, error) {
	b, err := firstExisting(s.stores, obj, spec)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, &dstore.NotFoundError{What: "no backend holds the object"}
	}
	return b.Empty(obj, spec)
}

func (s *HierarchicalStore) Size(obj dstore.Object, spec dstore.PathSpec) (int64, error) {
	b, err := firstExisting(s.stores, obj, spec)
	if err != nil {
		return 0, err
	}
	if b == nil {
		return 0, nil
	}
	return b.Size(obj, spec)
}

func (s *HierarchicalStore) Delete(obj dstore.Object, spec dstore.PathSpec) bool {
	b, err := firstExisting(s.stores, obj, spec)
	if err != nil {
		s.log.Errorf("delete: %v", err)
		return false
	}
	if b == nil {
		return false
	}
	return b.Delete(obj, spec)
}

func (s *HierarchicalStore) Data(obj dstore.Object, spec dstore.PathSpec, start, count int64) ([]byte, error) {
	b, err := firstExisting(s.stores, obj, spec)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &dstore.NotFoundError{What: "no backend holds the object"}
	}
	return b.Data(obj, spec, start, count)
}

func (s *HierarchicalStore) Filename(obj dstore.Object, spec dstore.PathSpec) (string, error) {
	b, err := firstExisting(s.stores, obj, spec)
	if err != nil {
		return "", err
	}
	if b == nil {
		return "", &dstore.NotFoundError{What: "no backend holds the object"}
	}
	return b.Filename(obj, spec)
}

func (s *HierarchicalStore) UpdateFromFile(obj dstore.Object, spec dstore.PathSpec, src string, create bool) error {
	b, err := firstExisting(s.stores, obj, spec)
	if err != nil {
		return err
	}
	if b != nil {
		return b.UpdateFromFile(obj, spec, src, create)
	}
	if !create {
		return &dstore.NotFoundError{What: "no backend holds the object"}
	}
	return s.stores[0].UpdateFromFile(obj, spec, src, true)
}

func (s *HierarchicalStore) ObjectURL(obj dstore.Object, spec dstore.PathSpec) string {
	b, err := firstExisting(s.stores, obj, spec)
	if err != nil || b == nil {
		return ""
	}
	return b.ObjectURL(obj, spec)
}

func (s *HierarchicalStore) FileReady(obj dstore.Object, spec dstore.PathSpec) bool {
	b, err := firstExisting(s.stores, obj, spec)
	if err != nil || b == nil {
		return false
	}
	return b.FileReady(obj, spec)
}

func (s *HierarchicalStore) UsagePercent() float64 {
	var total float64
	for _, b := range s.stores {
		total += b.UsagePercent()
	}
	return total / float64(len(s.stores))
}

func (s *HierarchicalStore) StoreBy() dstore.StoreBy {
	return s.stores[0].StoreBy()
}
