package storemgr

import (
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/scidata/dstore/pkg/dstore"
)

// Manager owns a configured Store plus the config and logger it was
// built from. It is the entry point applications (and the dstore command
// line tool) use.
type Manager struct {
	Store  dstore.Store
	Logger dstore.Logger
	Cfg    *viper.Viper
}

// NewManager builds a Manager from user options. Recognized keys:
//   "config-file" (string): path to the configuration file
//   "logger" (dstore.Logger): custom logger, defaults to logrus.New()
func NewManager(userCfg map[string]interface{}) (*Manager, error) {
	mgr := &Manager{}

	if loggerRaw, ok := userCfg["logger"]; ok {
		if logger, ok := loggerRaw.(dstore.Logger); ok {
			mgr.Logger = logger
		} else {
			return nil, errors.New("option 'logger' must satisfy dstore.Logger")
		}
	} else {
		mgr.Logger = logrus.New()
	}

	var cfgPath *string
	if cfgPathRaw, ok := userCfg["config-file"]; ok {
		if p, ok := cfgPathRaw.(string); ok {
			cfgPath = &p
		} else {
			return nil, errors.New("option 'config-file' must be of type string")
		}
	}
	if err := mgr.initConfig(cfgPath); err != nil {
		return nil, err
	}

	var storeCfg BackendConfig
	if err := mgr.Cfg.UnmarshalKey("object_store", &storeCfg); err != nil {
		return nil, errors.Wrap(err, "parsing object_store configuration")
	}
	if storeCfg.Type == "" {
		return nil, errors.New("no object_store.type in configuration")
	}

	store, err := New(Context{
		Logger:      mgr.Logger,
		LegacyPaths: mgr.Cfg.GetBool("legacy_paths"),
	}, &storeCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize object store")
	}
	mgr.Store = store
	return mgr, nil
}

func (mgr *Manager) initConfig(cfgPath *string) error {
	mgr.Cfg = viper.New()
	if cfgPath != nil {
		mgr.Cfg.SetConfigFile(*cfgPath)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, "couldn't determine home directory")
		}
		mgr.Cfg.SetConfigName("dstore")
		mgr.Cfg.AddConfigPath("./configs")
		mgr.Cfg.AddConfigPath(home + "/.dstore")
	}
	if err := mgr.Cfg.ReadInConfig(); err != nil {
		return errors.Wrap(err, "reading configuration")
	}
	return nil
}

// Destroy releases everything the manager started, in particular any
// background usage monitors.
func (mgr *Manager) Destroy() {
	if s, ok := mgr.Store.(interface{ Shutdown() }); ok {
		s.Shutdown()
	}
}
