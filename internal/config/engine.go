package config

import (
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EngineConfig carries commission engine policy. Operators tune it from a
// mounted config file without a rebuild; the zero-amount policy in
// particular materially affects record counts.
type EngineConfig struct {
	MaxGlobalDepth    int           `mapstructure:"maxGlobalDepth"`
	RecordZeroAmounts bool          `mapstructure:"recordZeroAmounts"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxGlobalDepth:    10,
		RecordZeroAmounts: true,
		Timeout:           30 * time.Second,
	}
}

type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

func NewEngineConfigHolder() (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("engine")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/referra/config") // Volume-mounted config
	v.AddConfigPath("/etc/referra")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("REFERRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	v.SetDefault("engine.maxGlobalDepth", defaults.MaxGlobalDepth)
	v.SetDefault("engine.recordZeroAmounts", defaults.RecordZeroAmounts)
	v.SetDefault("engine.timeout", defaults.Timeout)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	holder := &EngineConfigHolder{}
	if err := holder.reload(v); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := holder.reload(v); err != nil {
			log.Printf("config: engine config reload failed: %v", err)
		}
	})
	v.WatchConfig()

	return holder, nil
}

func (h *EngineConfigHolder) reload(v *viper.Viper) error {
	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return err
	}
	if cfg.MaxGlobalDepth <= 0 {
		cfg.MaxGlobalDepth = DefaultEngineConfig().MaxGlobalDepth
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEngineConfig().Timeout
	}
	h.current.Store(cfg)
	return nil
}

// StaticEngineConfigHolder pins a fixed config with no file watching.
func StaticEngineConfigHolder(cfg EngineConfig) *EngineConfigHolder {
	h := &EngineConfigHolder{}
	h.current.Store(cfg)
	return h
}

func (h *EngineConfigHolder) Get() EngineConfig {
	if cfg, ok := h.current.Load().(EngineConfig); ok {
		return cfg
	}
	return DefaultEngineConfig()
}
