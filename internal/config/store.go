package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// StoreConfig holds shop settings that operators tune at runtime.
type StoreConfig struct {
	Name                 string  `mapstructure:"name"`
	Address              string  `mapstructure:"address"`
	Phone                string  `mapstructure:"phone"`
	GSTIN                string  `mapstructure:"gstin"`
	BillPrefix           string  `mapstructure:"billPrefix"`
	Currency             string  `mapstructure:"currency"`
	DefaultGSTPercentage float64 `mapstructure:"defaultGstPercentage"`
	LedgerMaxRetries     int     `mapstructure:"ledgerMaxRetries"`
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Name:                 "Aurum Jewellers",
		BillPrefix:           "BILL",
		Currency:             "INR",
		DefaultGSTPercentage: 3,
		LedgerMaxRetries:     5,
	}
}

type StoreConfigHolder struct {
	current atomic.Value // holds StoreConfig
}

// NewStaticStoreConfigHolder returns a holder that never reloads.
func NewStaticStoreConfigHolder(cfg StoreConfig) *StoreConfigHolder {
	holder := &StoreConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewStoreConfigHolder(appCfg Config, log *zap.Logger) (*StoreConfigHolder, error) {
	log = log.Named("store.config")
	v := viper.New()

	if appCfg.StoreConfigPath != "" {
		v.SetConfigFile(appCfg.StoreConfigPath)
	} else {
		v.SetConfigName("store")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/aurum")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AURUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if appCfg.StoreConfigPath != "" || !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
		log.Info("store config file not found, using defaults")
	}

	// keys missing from the file keep their defaults
	cfg := DefaultStoreConfig()
	if err := v.UnmarshalKey("store", &cfg); err != nil {
		return nil, err
	}
	if err := validateStoreConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticStoreConfigHolder(cfg)

	if found {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated := DefaultStoreConfig()
			if err := v.UnmarshalKey("store", &updated); err != nil {
				log.Warn("reload failed", zap.Error(err))
				return
			}
			if err := validateStoreConfig(updated); err != nil {
				log.Warn("invalid config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *StoreConfigHolder) Get() StoreConfig {
	return h.current.Load().(StoreConfig)
}

func validateStoreConfig(cfg StoreConfig) error {
	if strings.TrimSpace(cfg.BillPrefix) == "" {
		return errors.New("store.billPrefix cannot be empty")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("store.currency cannot be empty")
	}
	if cfg.DefaultGSTPercentage < 0 {
		return errors.New("store.defaultGstPercentage cannot be negative")
	}
	if cfg.LedgerMaxRetries < 1 {
		return errors.New("store.ledgerMaxRetries must be at least 1")
	}
	return nil
}
