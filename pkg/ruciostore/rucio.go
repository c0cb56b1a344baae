// Rucio-managed backend. Bytes move through a rucio gateway that mediates
// upload/download/exists/size/delete against the configured RSEs (rucio
// storage elements), so like the rdb backend this package never talks to
// a storage SDK directly. It adds two rucio-specific behaviors: download
// scheme preferences per RSE, and a register-only mode where no bytes are
// copied at all and an externally placed file is registered by reference.
package ruciostore

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/scidata/dstore/pkg/dstore"
	"github.com/scidata/dstore/pkg/remote"
)

// DownloadScheme is one entry of the ordered download preference list.
type DownloadScheme struct {
	RSE            string
	Scheme         string
	IgnoreChecksum bool
}

type Config struct {
	// GatewayURL is the rucio gateway's base URL.
	GatewayURL string

	// WriteRSEName/WriteRSEScheme select where and how uploads land.
	WriteRSEName   string
	WriteRSEScheme string

	// Scope namespaces every object name in rucio.
	Scope string

	// RegisterOnly skips byte transfer on writes: the externally resident
	// source file is registered by reference instead.
	RegisterOnly bool

	// DownloadSchemes are tried in order when pulling.
	DownloadSchemes []DownloadScheme

	// OIDCProvider is the token issuer used to authenticate against the
	// gateway. Empty means AuthToken (or an unauthenticated gateway).
	OIDCProvider string
	AuthToken    string

	Cache   remote.CacheTarget
	StoreBy dstore.StoreBy
}

// applyEnv lets the runtime environment override the write target and
// register-only flag, matching how deployments are switched between RSEs
// without touching the config file.
func (cfg *Config) applyEnv() {
	if v := os.Getenv("RUCIO_WRITE_RSE_NAME"); v != "" {
		cfg.WriteRSEName = v
	}
	if v := os.Getenv("RUCIO_WRITE_RSE_SCHEME"); v != "" {
		cfg.WriteRSEScheme = v
	}
	if v := os.Getenv("RUCIO_REGISTER_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RegisterOnly = b
		}
	}
}

// Store is a rucio-backed object store with a local cache.
type Store struct {
	*remote.CachingStore
	client       *gatewayClient
	registerOnly bool
	writeRSE     string
	log          dstore.Logger
}

func New(logger dstore.Logger, cfg Config) (*Store, error) {
	cfg.applyEnv()
	if cfg.GatewayURL == "" {
		return nil, errors.New("rucio store requires a gateway url")
	}
	if cfg.Scope == "" {
		return nil, errors.New("rucio store requires a scope")
	}
	if cfg.WriteRSEName == "" && !cfg.RegisterOnly {
		return nil, errors.New("rucio store requires a write RSE unless register-only")
	}

	client, err := newGatewayClient(cfg)
	if err != nil {
		return nil, err
	}

	driver := &rucioDriver{client: client, cfg: cfg}
	base, err := remote.NewCachingStore(logger, driver, cfg.Cache, cfg.StoreBy)
	if err != nil {
		return nil, err
	}
	return &Store{
		CachingStore: base,
		client:       client,
		registerOnly: cfg.RegisterOnly,
		writeRSE:     cfg.WriteRSEName,
		log:          logger,
	}, nil
}

// Create skips the remote push in register-only mode: the object's bytes
// are expected to already live on an RSE, placed by an external agent.
func (s *Store) Create(obj dstore.Object, spec dstore.PathSpec) error {
	if !s.registerOnly {
		return s.CachingStore.Create(obj, spec)
	}

	_, cachePath, err := s.Resolve(obj, spec)
	if err != nil {
		return err
	}
	dir := cachePath
	if !spec.DirOnly {
		dir = filepath.Dir(cachePath)
	}
	return errors.Wrap(os.MkdirAll(dir, 0755), "creating cache directory")
}

// UpdateFromFile in register-only mode does not copy bytes: the source
// file is symlinked into the cache and registered with rucio by its
// file:// reference.
func (s *Store) UpdateFromFile(obj dstore.Object, spec dstore.PathSpec, src string, create bool) error {
	if !s.registerOnly {
		return s.CachingStore.UpdateFromFile(obj, spec, src, create)
	}

	if src == "" {
		return errors.New("register-only mode requires a source file")
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return errors.Wrap(err, "resolving source file")
	}
	if !dstore.FileExists(abs) {
		return &dstore.NotFoundError{What: abs}
	}

	if create {
		if err := s.Create(obj, spec); err != nil {
			return err
		}
	}
	key, cachePath, err := s.Resolve(obj, spec)
	if err != nil {
		return err
	}

	if cachePath != abs {
		if err := os.Remove(cachePath); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "replacing cache copy")
		}
		if err := os.Symlink(abs, cachePath); err != nil {
			return errors.Wrap(err, "linking source into cache")
		}
	}
	if err := s.client.Register(key, "file://"+abs, s.writeRSE, dstore.FileSize(abs)); err != nil {
		return err
	}
	s.log.Infof("registered %s by reference from %s", key, abs)
	return nil
}

// rucioDriver adapts the gateway client to the remote.Driver contract.
type rucioDriver struct {
	client *gatewayClient
	cfg    Config
}

func (d *rucioDriver) Exists(key string) (bool, error) {
	meta, err := d.client.Meta(key)
	if err != nil {
		return false, err
	}
	return meta.Exists, nil
}

func (d *rucioDriver) Size(key string) (int64, error) {
	meta, err := d.client.Meta(key)
	if err != nil {
		return 0, err
	}
	if !meta.Exists {
		return 0, errors.Errorf("rucio has no replica of %s", key)
	}
	return meta.Size, nil
}

// Open tries each configured download scheme in order; the first RSE that
// can produce the replica wins.
func (d *rucioDriver) Open(key string) (io.ReadCloser, error) {
	schemes := d.cfg.DownloadSchemes
	if len(schemes) == 0 {
		schemes = []DownloadScheme{{}}
	}
	var lastErr error
	for _, scheme := range schemes {
		rc, err := d.client.Download(key, scheme)
		if err == nil {
			return rc, nil
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "no download scheme could produce %s", key)
}

func (d *rucioDriver) Put(key string, r io.Reader, size int64) error {
	return d.client.Upload(key, r, d.cfg.WriteRSEName, d.cfg.WriteRSEScheme)
}

func (d *rucioDriver) Delete(key string) error {
	return d.client.Delete(key)
}

func (d *rucioDriver) Keys(prefix string) ([]string, error) {
	return d.client.List(prefix)
}

func (d *rucioDriver) URL(key string) string {
	// replicas are reachable only through the gateway
	return ""
}
