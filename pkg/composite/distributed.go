package composite

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/scidata/dstore/pkg/dstore"
)

// DefaultMonitorInterval is how often backend fill levels are re-sampled
// when a usage monitor is running.
const DefaultMonitorInterval = 120 * time.Second

type DistributedOptions struct {
	// SearchForMissing makes read operations probe every backend when an
	// object's store id is absent or stale, and repair the id on the
	// object when the probe finds it. Used when migrating from a
	// non-distributed setup or recovering from corrupted placement data.
	SearchForMissing bool

	// GlobalMaxPercentFull applies to every backend that does not carry
	// its own threshold.
	GlobalMaxPercentFull float64

	// MonitorInterval overrides DefaultMonitorInterval. < 0 disables the
	// monitor even when thresholds are configured.
	MonitorInterval time.Duration
}

// DistributedStore routes creates to a weighted random backend and finds
// existing objects by their sticky store id.
type DistributedStore struct {
	backends map[string]dstore.Store
	order    []string
	weights  map[string]int
	maxFull  map[string]float64
	search   bool
	by       dstore.StoreBy
	log      dstore.Logger

	// rnd draws placements. It is seeded per store so restarted
	// processes do not replay the same placement sequence, and guarded
	// because rand.Rand sources are not safe for concurrent use.
	rndMu sync.Mutex
	rnd   *rand.Rand

	// pool holds the current flattened weighted selection list (weight 3
	// = three entries). The monitor swaps in fresh snapshots; foreground
	// creates only ever read.
	pool    atomic.Value // []string
	monitor *usageMonitor
}

func NewDistributed(logger dstore.Logger, backends []Backend, opts DistributedOptions) (*DistributedStore, error) {
	if len(backends) == 0 {
		return nil, errors.New("distributed store requires at least one backend")
	}

	s := &DistributedStore{
		backends: make(map[string]dstore.Store, len(backends)),
		weights:  make(map[string]int, len(backends)),
		maxFull:  make(map[string]float64, len(backends)),
		search:   opts.SearchForMissing,
		by:       backends[0].Store.StoreBy(),
		log:      logger,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	thresholds := false
	for _, b := range backends {
		if b.ID == "" {
			return nil, errors.New("distributed backends require ids")
		}
		if _, dup := s.backends[b.ID]; dup {
			return nil, errors.Errorf("duplicate backend id %q", b.ID)
		}
		if b.Weight < 0 {
			return nil, errors.Errorf("backend %q has negative weight %d", b.ID, b.Weight)
		}
		limit := b.MaxPercentFull
		if limit == 0 {
			limit = opts.GlobalMaxPercentFull
		}
		if limit > 0 {
			thresholds = true
		}
		s.backends[b.ID] = b.Store
		s.order = append(s.order, b.ID)
		s.weights[b.ID] = b.Weight
		s.maxFull[b.ID] = limit
	}

	s.refreshPool()

	interval := opts.MonitorInterval
	if interval == 0 {
		interval = DefaultMonitorInterval
	}
	if thresholds && interval > 0 {
		s.monitor = startUsageMonitor(interval, s.refreshPool)
	}
	return s, nil
}

// Shutdown wakes and stops the usage monitor, if one is running.
func (s *DistributedStore) Shutdown() {
	if s.monitor != nil {
		s.monitor.stop()
	}
}

// refreshPool rebuilds the weighted selection pool from current backend
// fill levels and swaps it in atomically. Weight-0 backends never enter
// the pool; they serve reads only.
func (s *DistributedStore) refreshPool() {
	var pool []string
	for _, id := range s.order {
		if limit := s.maxFull[id]; limit > 0 {
			if pct := s.backends[id].UsagePercent(); pct >= limit {
				s.log.Warnf("backend %s is %.1f%% full (limit %.1f%%), removed from selection", id, pct, limit)
				continue
			}
		}
		for i := 0; i < s.weights[id]; i++ {
			pool = append(pool, id)
		}
	}
	s.pool.Store(pool)
}

// Create is the only operation allowed to assign a store id to an object
// that has none. An object with a valid id keeps it (sticky placement);
// otherwise a backend is drawn from the weighted pool.
func (s *DistributedStore) Create(obj dstore.Object, spec dstore.PathSpec) error {
	if _, err := (dstore.Layout{By: s.by}).RelPath(obj, spec); err != nil {
		return err
	}

	if id := obj.StoreID(); id != "" {
		if b, ok := s.backends[id]; ok {
			return b.Create(obj, spec)
		}
		s.log.Warnf("object claims unknown backend %q, reassigning", id)
	}

	pool := s.pool.Load().([]string)
	if len(pool) == 0 {
		return &dstore.InvalidError{Reason: "no backend has room for new objects"}
	}
	s.rndMu.Lock()
	id := pool[s.rnd.Intn(len(pool))]
	s.rndMu.Unlock()
	obj.SetStoreID(id)
	return s.backends[id].Create(obj, spec)
}

// resolve returns the backend holding obj; nil with a nil error means no
// backend is known to hold it. Structurally invalid input fails here, up
// front, so it can never masquerade as absence. With search-for-missing
// enabled, a stale or absent store id triggers a linear probe of every
// backend and the discovered id is written back to the object as a side
// effect.
func (s *DistributedStore) resolve(obj dstore.Object, spec dstore.PathSpec) (dstore.Store, error) {
	if _, err := (dstore.Layout{By: s.by}).RelPath(obj, spec); err != nil {
		return nil, err
	}

	if id := obj.StoreID(); id != "" {
		if b, ok := s.backends[id]; ok {
			if !s.search {
				return b, nil
			}
			found, err := b.Exists(obj, spec)
			if err != nil {
				return nil, err
			}
			if found {
				return b, nil
			}
			// stale id, fall through to the probe
		}
	}
	if !s.search {
		return nil, nil
	}
	for _, id := range s.order {
		found, err := s.backends[id].Exists(obj, spec)
		if err != nil {
			return nil, err
		}
		if found {
			s.log.Infof("object found on backend %s, repairing its store id", id)
			obj.SetStoreID(id)
			return s.backends[id], nil
		}
	}
	return nil, nil
}

func (s *DistributedStore) Exists(obj dstore.Object, spec dstore.PathSpec) (bool, error) {
	b, err := s.resolve(obj, spec)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, nil
	}
	return b.Exists(obj, spec)
}

func (s *DistributedStore) Empty(obj dstore.Object, spec dstore.PathSpec) (bool, error) {
	b, err := s.resolve(obj, spec)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, &dstore.NotFoundError{What: "no backend holds the object"}
	}
	return b.Empty(obj, spec)
}

func (s *DistributedStore) Size(obj dstore.Object, spec dstore.PathSpec) (int64, error) {
	b, err := s.resolve(obj, spec)
	if err != nil {
		return 0, err
	}
	if b == nil {
		return 0, nil
	}
	return b.Size(obj, spec)
}

func (s *DistributedStore) Delete(obj dstore.Object, spec dstore.PathSpec) bool {
	b, err := s.resolve(obj, spec)
	if err != nil {
		s.log.Errorf("delete: %v", err)
		return false
	}
	if b == nil {
		return false
	}
	return b.Delete(obj, spec)
}

func (s *DistributedStore) Data(obj dstore.Object, spec dstore.PathSpec, start, count int64) ([]byte, error) {
	b, err := s.resolve(obj, spec)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &dstore.NotFoundError{What: "no backend holds the object"}
	}
	return b.Data(obj, spec, start, count)
}

func (s *DistributedStore) Filename(obj dstore.Object, spec dstore.PathSpec) (string, error) {
	b, err := s.resolve(obj, spec)
	if err != nil {
		return "", err
	}
	if b == nil {
		return "", &dstore.NotFoundError{What: "no backend holds the object"}
	}
	return b.Filename(obj, spec)
}

func (s *DistributedStore) UpdateFromFile(obj dstore.Object, spec dstore.PathSpec, src string, create bool) error {
	b, err := s.resolve(obj, spec)
	if err != nil {
		return err
	}
	if b != nil {
		return b.UpdateFromFile(obj, spec, src, create)
	}
	if !create {
		return &dstore.NotFoundError{What: "no backend holds the object"}
	}
	if err := s.Create(obj, spec); err != nil {
		return err
	}
	return s.backends[obj.StoreID()].UpdateFromFile(obj, spec, src, false)
}

func (s *DistributedStore) ObjectURL(obj dstore.Object, spec dstore.PathSpec) string {
	b, err := s.resolve(obj, spec)
	if err != nil || b == nil {
		return ""
	}
	return b.ObjectURL(obj, spec)
}

func (s *DistributedStore) FileReady(obj dstore.Object, spec dstore.PathSpec) bool {
	b, err := s.resolve(obj, spec)
	if err != nil || b == nil {
		return false
	}
	return b.FileReady(obj, spec)
}

func (s *DistributedStore) UsagePercent() float64 {
	var total float64
	for _, id := range s.order {
		total += s.backends[id].UsagePercent()
	}
	return total / float64(len(s.order))
}

func (s *DistributedStore) StoreBy() dstore.StoreBy {
	return s.by
}
