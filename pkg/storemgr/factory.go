package storemgr

import (
	"github.com/pkg/errors"

	"github.com/scidata/dstore/pkg/cloudstore"
	"github.com/scidata/dstore/pkg/composite"
	"github.com/scidata/dstore/pkg/diskstore"
	"github.com/scidata/dstore/pkg/dstore"
	"github.com/scidata/dstore/pkg/rdbstore"
	"github.com/scidata/dstore/pkg/remote"
	"github.com/scidata/dstore/pkg/ruciostore"
	"github.com/scidata/dstore/pkg/s3store"
)

const bytesPerGB = 1024 * 1024 * 1024

// Context carries the process-wide collaborators every backend is
// constructed with. It is threaded explicitly through the factory; there
// are no package-level singletons.
type Context struct {
	Logger dstore.Logger

	// LegacyPaths makes disk backends check pre-migration flat paths
	// before hashed ones.
	LegacyPaths bool
}

// New builds the Store tree described by cfg, recursing into nested
// backend configs for the composite types.
func New(ctx Context, cfg *BackendConfig) (dstore.Store, error) {
	if ctx.Logger == nil {
		return nil, errors.New("store factory requires a logger")
	}
	log := ctx.Logger.WithField("module", "store."+cfg.Type)

	switch cfg.Type {
	case "disk":
		extra, err := extraDirMap(cfg.ExtraDirs)
		if err != nil {
			return nil, err
		}
		return diskstore.New(log, diskstore.Config{
			FilesDir:    cfg.FilesDir,
			ExtraDirs:   extra,
			StoreBy:     dstore.StoreBy(cfg.StoreBy),
			LegacyPaths: ctx.LegacyPaths,
		})

	case "s3", "generic_s3", "swift":
		s3cfg := s3store.Config{
			AccessKey:            cfg.Auth.AccessKey,
			SecretKey:            cfg.Auth.SecretKey,
			Region:               cfg.Connection.Region,
			Bucket:               cfg.Bucket.Name,
			UseReducedRedundancy: cfg.Bucket.UseReducedRedundancy,
			MaxChunkSize:         cfg.Bucket.MaxChunkSize,
			Multipart:            cfg.Connection.Multipart,
			Host:                 cfg.Connection.Host,
			Port:                 cfg.Connection.Port,
			ConnPath:             cfg.Connection.ConnPath,
			IsSecure:             cfg.Connection.IsSecure,
			Cache:                cacheTarget(cfg.Cache),
			StoreBy:              dstore.StoreBy(cfg.StoreBy),
		}
		switch cfg.Type {
		case "generic_s3":
			return s3store.NewGeneric(log, s3cfg)
		case "swift":
			return s3store.NewSwift(log, s3cfg)
		}
		return s3store.New(log, s3cfg)

	case "cloud":
		return cloudstore.New(log, cloudstore.Config{
			Provider:        cfg.Provider,
			Bucket:          cfg.Bucket.Name,
			AccessKey:       cfg.Auth.AccessKey,
			SecretKey:       cfg.Auth.SecretKey,
			Region:          cfg.Connection.Region,
			AccountName:     cfg.Auth.AccountName,
			AccountKey:      cfg.Auth.AccountKey,
			CredentialsFile: cfg.Auth.CredentialsFile,
			Cache:           cacheTarget(cfg.Cache),
			StoreBy:         dstore.StoreBy(cfg.StoreBy),
		})

	case "rdb":
		return rdbstore.New(log, rdbstore.Config{
			BrokerURL: cfg.RemoteDataBrokerURL,
			Token:     cfg.RemoteDataBrokerToken,
			Cache:     cacheTarget(cfg.Cache),
			StoreBy:   dstore.StoreBy(cfg.StoreBy),
		})

	case "rucio":
		var schemes []ruciostore.DownloadScheme
		for _, s := range cfg.RucioDownloadSchemes {
			schemes = append(schemes, ruciostore.DownloadScheme{
				RSE:            s.RSE,
				Scheme:         s.Scheme,
				IgnoreChecksum: s.IgnoreChecksum,
			})
		}
		return ruciostore.New(log, ruciostore.Config{
			GatewayURL:      cfg.RucioGatewayURL,
			WriteRSEName:    cfg.RucioWriteRSEName,
			WriteRSEScheme:  cfg.RucioWriteRSEScheme,
			Scope:           cfg.RucioScope,
			RegisterOnly:    cfg.RucioRegisterOnly,
			DownloadSchemes: schemes,
			OIDCProvider:    cfg.OIDCProvider,
			Cache:           cacheTarget(cfg.Cache),
			StoreBy:         dstore.StoreBy(cfg.StoreBy),
		})

	case "distributed":
		backends, err := nestedBackends(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return composite.NewDistributed(log, backends, composite.DistributedOptions{
			SearchForMissing:     cfg.SearchForMissing,
			GlobalMaxPercentFull: cfg.GlobalMaxPercentFull,
		})

	case "hierarchical":
		backends, err := nestedBackends(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return composite.NewHierarchical(log, backends)

	default:
		return nil, errors.Errorf("unrecognized object store type %q", cfg.Type)
	}
}

func nestedBackends(ctx Context, cfg *BackendConfig) ([]composite.Backend, error) {
	backends := make([]composite.Backend, 0, len(cfg.Backends))
	for i := range cfg.Backends {
		nested := cfg.Backends[i]
		store, err := New(ctx, &nested)
		if err != nil {
			return nil, errors.Wrapf(err, "building nested backend %q", nested.ID)
		}
		weight := 1
		if nested.Weight != nil {
			weight = *nested.Weight
		}
		backends = append(backends, composite.Backend{
			ID:             nested.ID,
			Store:          store,
			Weight:         weight,
			MaxPercentFull: nested.MaxPercentFull,
		})
	}
	return backends, nil
}

func cacheTarget(cfg CacheConfig) remote.CacheTarget {
	return remote.CacheTarget{
		Path: cfg.Path,
		Size: int64(cfg.Size * bytesPerGB),
	}
}
