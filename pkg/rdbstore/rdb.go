package rdbstore

import (
	"io"

	"github.com/pkg/errors"

	"github.com/scidata/dstore/pkg/dstore"
	"github.com/scidata/dstore/pkg/remote"
)

type Config struct {
	// BrokerURL is the remote data broker's base URL.
	BrokerURL string

	// Token authenticates every broker request.
	Token string

	Cache   remote.CacheTarget
	StoreBy dstore.StoreBy
}

// Store is a broker-backed object store with a local cache.
type Store struct {
	*remote.CachingStore
}

func New(logger dstore.Logger, cfg Config) (*Store, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("rdb store requires a remote_data_broker_url")
	}
	driver := &brokerDriver{client: NewClient(cfg.BrokerURL, cfg.Token)}
	base, err := remote.NewCachingStore(logger, driver, cfg.Cache, cfg.StoreBy)
	if err != nil {
		return nil, err
	}
	return &Store{CachingStore: base}, nil
}

// brokerDriver adapts the broker client to the remote.Driver contract.
type brokerDriver struct {
	client *Client
}

func (d *brokerDriver) Exists(key string) (bool, error) {
	meta, err := d.client.Meta(key)
	if err != nil {
		return false, err
	}
	return meta.Exists, nil
}

func (d *brokerDriver) Size(key string) (int64, error) {
	meta, err := d.client.Meta(key)
	if err != nil {
		return 0, err
	}
	if !meta.Exists {
		return 0, errors.Errorf("broker has no object %s", key)
	}
	return meta.Size, nil
}

func (d *brokerDriver) Open(key string) (io.ReadCloser, error) {
	return d.client.Download(key)
}

func (d *brokerDriver) Put(key string, r io.Reader, size int64) error {
	return d.client.Upload(key, r)
}

func (d *brokerDriver) Delete(key string) error {
	return d.client.Delete(key)
}

func (d *brokerDriver) Keys(prefix string) ([]string, error) {
	return d.client.List(prefix)
}

func (d *brokerDriver) URL(key string) string {
	// the broker exposes no direct-access URLs
	return ""
}
