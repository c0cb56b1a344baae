package composite

import (
	"io/ioutil"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/scidata/dstore/pkg/dstore"
)

// memStore is an in-memory backend used to exercise the composites
// without touching a filesystem.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	usage   float64
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) key(obj dstore.Object) string {
	return strconv.FormatInt(obj.ID(), 10)
}

func (s *memStore) setUsage(pct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = pct
}

func (s *memStore) has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[strconv.FormatInt(id, 10)]
	return ok
}

func (s *memStore) put(id int64, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[strconv.FormatInt(id, 10)] = []byte(content)
}

func (s *memStore) Exists(obj dstore.Object, spec dstore.PathSpec) (bool, error) {
	if _, err := (dstore.Layout{By: dstore.ByID}).RelPath(obj, spec); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[s.key(obj)]
	return ok, nil
}

func (s *memStore) Create(obj dstore.Object, spec dstore.PathSpec) error {
	if _, err := (dstore.Layout{By: dstore.ByID}).RelPath(obj, spec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[s.key(obj)]; !ok {
		s.objects[s.key(obj)] = nil
	}
	return nil
}

func (s *memStore) Empty(obj dstore.Object, spec dstore.PathSpec) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[s.key(obj)]
	if !ok {
		return false, &dstore.NotFoundError{What: s.key(obj)}
	}
	return len(data) == 0, nil
}

func (s *memStore) Size(obj dstore.Object, spec dstore.PathSpec) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.objects[s.key(obj)])), nil
}

func (s *memStore) Delete(obj dstore.Object, spec dstore.PathSpec) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[s.key(obj)]; !ok {
		return false
	}
	delete(s.objects, s.key(obj))
	return true
}

func (s *memStore) Data(obj dstore.Object, spec dstore.PathSpec, start, count int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[s.key(obj)]
	if !ok {
		return nil, &dstore.NotFoundError{What: s.key(obj)}
	}
	if count < 0 || start+count > int64(len(data)) {
		count = int64(len(data)) - start
	}
	return data[start : start+count], nil
}

func (s *memStore) Filename(obj dstore.Object, spec dstore.PathSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[s.key(obj)]; !ok {
		return "", &dstore.NotFoundError{What: s.key(obj)}
	}
	return "/mem/" + s.key(obj), nil
}

func (s *memStore) UpdateFromFile(obj dstore.Object, spec dstore.PathSpec, src string, create bool) error {
	if create {
		if err := s.Create(obj, spec); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[s.key(obj)]; !ok {
		return &dstore.NotFoundError{What: s.key(obj)}
	}
	s.objects[s.key(obj)] = []byte("from " + src)
	return nil
}

func (s *memStore) ObjectURL(obj dstore.Object, spec dstore.PathSpec) string {
	return "mem://" + s.key(obj)
}

func (s *memStore) FileReady(obj dstore.Object, spec dstore.PathSpec) bool {
	ok, _ := s.Exists(obj, spec)
	return ok
}

func (s *memStore) UsagePercent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

func (s *memStore) StoreBy() dstore.StoreBy {
	return dstore.ByID
}

func testLogger() dstore.Logger {
	log := logrus.New()
	log.SetOutput(ioutil.Discard)
	return log
}
