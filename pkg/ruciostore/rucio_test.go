package ruciostore

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scidata/dstore/pkg/dstore"
	"github.com/scidata/dstore/pkg/remote"
)

// fakeGateway implements the rucio gateway protocol over an in-memory
// replica table.
type fakeGateway struct {
	mu       sync.Mutex
	objects  map[string][]byte
	registry map[string]string // key -> pfn
	// downloadRSEs records the rse of every /download attempt, in order
	downloadRSEs []string
	failRSE      string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		objects:  make(map[string][]byte),
		registry: make(map[string]string),
	}
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/meta", g.meta)
	mux.HandleFunc("/download", g.download)
	mux.HandleFunc("/upload", g.upload)
	mux.HandleFunc("/register", g.register)
	mux.HandleFunc("/delete", g.delete)
	mux.HandleFunc("/list", g.list)
	return mux
}

func (g *fakeGateway) decode(w http.ResponseWriter, r *http.Request) (gatewayRequest, bool) {
	var req gatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return req, false
	}
	if req.Scope == "" {
		http.Error(w, "missing scope", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (g *fakeGateway) meta(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r)
	if !ok {
		return
	}
	g.mu.Lock()
	data, exists := g.objects[req.Key]
	g.mu.Unlock()
	json.NewEncoder(w).Encode(gatewayMeta{Exists: exists, Size: int64(len(data))})
}

func (g *fakeGateway) download(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r)
	if !ok {
		return
	}
	g.mu.Lock()
	g.downloadRSEs = append(g.downloadRSEs, req.RSE)
	data, exists := g.objects[req.Key]
	fail := g.failRSE != "" && req.RSE == g.failRSE
	g.mu.Unlock()
	if fail {
		http.Error(w, "rse unavailable", http.StatusBadGateway)
		return
	}
	if !exists {
		http.NotFound(w, r)
		return
	}
	w.Write(data)
}

func (g *fakeGateway) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.FormValue("rse") == "" {
		http.Error(w, "missing rse", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := ioutil.ReadAll(file)
	if err != nil {
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	g.mu.Lock()
	g.objects[r.FormValue("key")] = data
	g.mu.Unlock()
}

func (g *fakeGateway) register(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r)
	if !ok {
		return
	}
	if req.PFN == "" || req.RSE == "" {
		http.Error(w, "register needs pfn and rse", http.StatusBadRequest)
		return
	}
	g.mu.Lock()
	g.registry[req.Key] = req.PFN
	g.objects[req.Key] = make([]byte, req.Size)
	g.mu.Unlock()
}

func (g *fakeGateway) delete(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r)
	if !ok {
		return
	}
	g.mu.Lock()
	delete(g.objects, req.Key)
	delete(g.registry, req.Key)
	g.mu.Unlock()
}

func (g *fakeGateway) list(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r)
	if !ok {
		return
	}
	keys := []string{}
	g.mu.Lock()
	for k := range g.objects {
		if len(k) >= len(req.Key) && k[:len(req.Key)] == req.Key {
			keys = append(keys, k)
		}
	}
	g.mu.Unlock()
	json.NewEncoder(w).Encode(struct {
		Keys []string `json:"keys"`
	}{Keys: keys})
}

func testLogger() dstore.Logger {
	log := logrus.New()
	log.SetOutput(ioutil.Discard)
	return log
}

func newTestStore(t *testing.T, gw *fakeGateway, mutate func(*Config)) (*Store, func()) {
	server := httptest.NewServer(gw.handler())
	cacheDir, err := ioutil.TempDir("", "rucio-cache")
	require.NoError(t, err)

	cfg := Config{
		GatewayURL:   server.URL,
		Scope:        "prod",
		WriteRSEName: "RSE_MAIN",
		Cache:        remote.CacheTarget{Path: cacheDir},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	store, err := New(testLogger(), cfg)
	require.NoError(t, err)
	return store, func() {
		server.Close()
		os.RemoveAll(cacheDir)
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(testLogger(), Config{Scope: "prod", WriteRSEName: "RSE"})
	assert.Error(t, err)

	_, err = New(testLogger(), Config{GatewayURL: "http://gw", WriteRSEName: "RSE"})
	assert.Error(t, err)

	// a write RSE is mandatory outside register-only mode
	_, err = New(testLogger(), Config{GatewayURL: "http://gw", Scope: "prod"})
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("RUCIO_WRITE_RSE_NAME", "RSE_OVERRIDE")
	os.Setenv("RUCIO_REGISTER_ONLY", "true")
	defer os.Unsetenv("RUCIO_WRITE_RSE_NAME")
	defer os.Unsetenv("RUCIO_REGISTER_ONLY")

	cfg := Config{WriteRSEName: "RSE_CONFIGURED"}
	cfg.applyEnv()
	assert.Equal(t, "RSE_OVERRIDE", cfg.WriteRSEName)
	assert.True(t, cfg.RegisterOnly)
}

func TestRoundTripThroughGateway(t *testing.T) {
	gw := newFakeGateway()
	store, cleanup := newTestStore(t, gw, nil)
	defer cleanup()

	srcDir, err := ioutil.TempDir("", "rucio-src")
	require.NoError(t, err)
	defer os.RemoveAll(srcDir)
	src := filepath.Join(srcDir, "input.dat")
	require.NoError(t, ioutil.WriteFile(src, []byte("replica bytes"), 0644))

	obj := &dstore.Dataset{NumericID: 42}
	require.NoError(t, store.UpdateFromFile(obj, dstore.PathSpec{}, src, true))

	gw.mu.Lock()
	data := gw.objects["000/dataset_42.dat"]
	gw.mu.Unlock()
	assert.Equal(t, "replica bytes", string(data))

	// wipe the cache and pull back through the gateway
	require.NoError(t, os.RemoveAll(filepath.Join(store.Cache().Path, "000")))
	got, err := store.Data(obj, dstore.PathSpec{}, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "replica bytes", string(got))
}

// The configured download schemes are tried in order until one of them
// produces the replica.
func TestDownloadSchemeFallback(t *testing.T) {
	gw := newFakeGateway()
	gw.failRSE = "RSE_TAPE"
	store, cleanup := newTestStore(t, gw, func(cfg *Config) {
		cfg.DownloadSchemes = []DownloadScheme{
			{RSE: "RSE_TAPE", Scheme: "root"},
			{RSE: "RSE_DISK", Scheme: "https"},
		}
	})
	defer cleanup()

	gw.mu.Lock()
	gw.objects["000/dataset_42.dat"] = []byte("replica bytes")
	gw.mu.Unlock()

	obj := &dstore.Dataset{NumericID: 42}
	_, err := store.Filename(obj, dstore.PathSpec{})
	require.NoError(t, err)

	gw.mu.Lock()
	attempts := append([]string(nil), gw.downloadRSEs...)
	gw.mu.Unlock()
	assert.Equal(t, []string{"RSE_TAPE", "RSE_DISK"}, attempts)
}

// Register-only mode moves no bytes: the source file is symlinked into
// the cache and registered with the gateway by its file:// reference.
func TestRegisterOnly(t *testing.T) {
	gw := newFakeGateway()
	store, cleanup := newTestStore(t, gw, func(cfg *Config) {
		cfg.RegisterOnly = true
	})
	defer cleanup()

	srcDir, err := ioutil.TempDir("", "rucio-src")
	require.NoError(t, err)
	defer os.RemoveAll(srcDir)
	src := filepath.Join(srcDir, "external.dat")
	require.NoError(t, ioutil.WriteFile(src, []byte("externally placed"), 0644))

	obj := &dstore.Dataset{NumericID: 42}
	require.NoError(t, store.UpdateFromFile(obj, dstore.PathSpec{}, src, true))

	abs, err := filepath.Abs(src)
	require.NoError(t, err)
	gw.mu.Lock()
	pfn := gw.registry["000/dataset_42.dat"]
	gw.mu.Unlock()
	assert.Equal(t, "file://"+abs, pfn)

	// the cache entry is a link to the source, not a copy
	_, cachePath, err := store.Resolve(obj, dstore.PathSpec{})
	require.NoError(t, err)
	target, err := os.Readlink(cachePath)
	require.NoError(t, err)
	assert.Equal(t, abs, target)

	err = store.UpdateFromFile(obj, dstore.PathSpec{}, "", false)
	assert.Error(t, err)
}
