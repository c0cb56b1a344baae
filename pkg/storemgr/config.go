// Store construction: configuration normalization, the recursive
// factory, the per-job populator, and a manager tying them together the
// way applications consume this module.
package storemgr

import (
	"encoding/xml"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// BackendConfig is the normalized configuration for one store, concrete
// or composite. It is a discriminated union on Type; each store type
// reads only the fields it needs. Both configuration sources (the YAML
// shape and the legacy per-product XML tree) are normalized into this
// struct, and backend constructors never see the raw sources.
type BackendConfig struct {
	Type    string `mapstructure:"type"`
	ID      string `mapstructure:"id"`
	StoreBy string `mapstructure:"store_by"`

	// disk
	FilesDir  string           `mapstructure:"files_dir"`
	ExtraDirs []ExtraDirConfig `mapstructure:"extra_dirs"`

	// s3 family
	Auth       AuthConfig       `mapstructure:"auth"`
	Bucket     BucketConfig     `mapstructure:"bucket"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Cache      CacheConfig      `mapstructure:"cache"`

	// cloud
	Provider string `mapstructure:"provider"`

	// rdb
	RemoteDataBrokerURL   string `mapstructure:"remote_data_broker_url"`
	RemoteDataBrokerToken string `mapstructure:"remote_data_broker_token"`

	// rucio
	RucioGatewayURL      string              `mapstructure:"rucio_gateway_url"`
	RucioWriteRSEName    string              `mapstructure:"rucio_write_rse_name"`
	RucioWriteRSEScheme  string              `mapstructure:"rucio_write_rse_scheme"`
	RucioScope           string              `mapstructure:"rucio_scope"`
	RucioRegisterOnly    bool                `mapstructure:"rucio_register_only"`
	RucioDownloadSchemes []RucioSchemeConfig `mapstructure:"rucio_download_schemes"`
	OIDCProvider         string              `mapstructure:"oidc_provider"`

	// composites. Weight is a pointer so an explicit weight of 0 (drain
	// the backend: keep it readable, stop placing on it) survives
	// parsing as distinct from an unset weight, which defaults to 1.
	Backends             []BackendConfig `mapstructure:"backends"`
	Weight               *int            `mapstructure:"weight"`
	MaxPercentFull       float64         `mapstructure:"max_percent_full"`
	GlobalMaxPercentFull float64         `mapstructure:"global_max_percent_full"`
	SearchForMissing     bool            `mapstructure:"search_for_missing"`
}

type ExtraDirConfig struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	// azure
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	// google
	CredentialsFile string `mapstructure:"credentials_file"`
}

type BucketConfig struct {
	Name                 string `mapstructure:"name"`
	UseReducedRedundancy bool   `mapstructure:"use_reduced_redundancy"`
	MaxChunkSize         int64  `mapstructure:"max_chunk_size"`
}

type ConnectionConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Multipart bool   `mapstructure:"multipart"`
	IsSecure  bool   `mapstructure:"is_secure"`
	ConnPath  string `mapstructure:"conn_path"`
	Region    string `mapstructure:"region"`
}

type CacheConfig struct {
	// Size is the cache capacity in gigabytes. <= 0 means unbounded.
	Size float64 `mapstructure:"size"`
	Path string  `mapstructure:"path"`
}

type RucioSchemeConfig struct {
	RSE            string `mapstructure:"rse"`
	Scheme         string `mapstructure:"scheme"`
	IgnoreChecksum bool   `mapstructure:"ignore_checksum"`
}

// LoadConfig reads a YAML (or JSON/TOML, anything viper handles)
// configuration file whose top-level "object_store" key holds the
// backend tree.
func LoadConfig(path string) (*BackendConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "reading object store configuration")
	}
	var cfg BackendConfig
	if err := v.UnmarshalKey("object_store", &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing object store configuration")
	}
	if cfg.Type == "" {
		return nil, errors.New("configuration has no object_store.type")
	}
	return &cfg, nil
}

// xmlStore mirrors the legacy per-product XML tree:
//
//   <object_store type="distributed" search_for_missing="true">
//     <backends global_max_percent_full="90">
//       <backend id="files1" type="disk" weight="2">
//         <files_dir path="/data/files1"/>
//         <extra_dir type="job_work" path="/data/files1/job_work"/>
//       </backend>
//     </backends>
//   </object_store>
type xmlStore struct {
	Type             string        `xml:"type,attr"`
	ID               string        `xml:"id,attr"`
	StoreBy          string        `xml:"store_by,attr"`
	Weight           *int          `xml:"weight,attr"`
	MaxPercentFull   float64       `xml:"max_percent_full,attr"`
	SearchForMissing bool          `xml:"search_for_missing,attr"`
	FilesDir         *xmlPathEntry `xml:"files_dir"`
	ExtraDirs        []xmlDirEntry `xml:"extra_dir"`
	Auth             *xmlAuth      `xml:"auth"`
	Bucket           *xmlBucket    `xml:"bucket"`
	Connection       *xmlConn      `xml:"connection"`
	Cache            *xmlCache     `xml:"cache"`
	Backends         *xmlBackends  `xml:"backends"`
}

type xmlPathEntry struct {
	Path string `xml:"path,attr"`
}

type xmlDirEntry struct {
	Type string `xml:"type,attr"`
	Path string `xml:"path,attr"`
}

type xmlAuth struct {
	AccessKey string `xml:"access_key,attr"`
	SecretKey string `xml:"secret_key,attr"`
}

type xmlBucket struct {
	Name                 string `xml:"name,attr"`
	UseReducedRedundancy bool   `xml:"use_reduced_redundancy,attr"`
	MaxChunkSize         int64  `xml:"max_chunk_size,attr"`
}

type xmlConn struct {
	Host      string `xml:"host,attr"`
	Port      int    `xml:"port,attr"`
	Multipart bool   `xml:"multipart,attr"`
	IsSecure  bool   `xml:"is_secure,attr"`
	ConnPath  string `xml:"conn_path,attr"`
	Region    string `xml:"region,attr"`
}

type xmlCache struct {
	Size float64 `xml:"size,attr"`
	Path string  `xml:"path,attr"`
}

type xmlBackends struct {
	GlobalMaxPercentFull float64    `xml:"global_max_percent_full,attr"`
	Backends             []xmlStore `xml:"backend"`
}

// ParseXML normalizes the legacy XML tree into the same BackendConfig
// shape the YAML loader produces.
func ParseXML(data []byte) (*BackendConfig, error) {
	var root xmlStore
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(err, "parsing object store XML")
	}
	cfg := fromXML(root)
	if cfg.Type == "" {
		return nil, errors.New("object store XML has no type attribute")
	}
	return &cfg, nil
}

func fromXML(x xmlStore) BackendConfig {
	cfg := BackendConfig{
		Type:             x.Type,
		ID:               x.ID,
		StoreBy:          x.StoreBy,
		Weight:           x.Weight,
		MaxPercentFull:   x.MaxPercentFull,
		SearchForMissing: x.SearchForMissing,
	}
	if x.FilesDir != nil {
		cfg.FilesDir = x.FilesDir.Path
	}
	for _, d := range x.ExtraDirs {
		cfg.ExtraDirs = append(cfg.ExtraDirs, ExtraDirConfig{Type: d.Type, Path: d.Path})
	}
	if x.Auth != nil {
		cfg.Auth.AccessKey = x.Auth.AccessKey
		cfg.Auth.SecretKey = x.Auth.SecretKey
	}
	if x.Bucket != nil {
		cfg.Bucket = BucketConfig(*x.Bucket)
	}
	if x.Connection != nil {
		cfg.Connection = ConnectionConfig(*x.Connection)
	}
	if x.Cache != nil {
		cfg.Cache = CacheConfig(*x.Cache)
	}
	if x.Backends != nil {
		cfg.GlobalMaxPercentFull = x.Backends.GlobalMaxPercentFull
		for _, b := range x.Backends.Backends {
			cfg.Backends = append(cfg.Backends, fromXML(b))
		}
	}
	return cfg
}

// extraDirMap indexes the configured extra dirs by their base_dir name.
func extraDirMap(dirs []ExtraDirConfig) (map[string]string, error) {
	if len(dirs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(dirs))
	for _, d := range dirs {
		if d.Type == "" || d.Path == "" {
			return nil, errors.Errorf("extra_dir entries need both type and path (got type=%s path=%s)",
				strconv.Quote(d.Type), strconv.Quote(d.Path))
		}
		m[d.Type] = d.Path
	}
	return m, nil
}
