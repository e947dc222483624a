package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type MaintenanceConfig struct {
	Popup        PopupConfig        `mapstructure:"popup"`
	DueCheck     DueCheckConfig     `mapstructure:"dueCheck"`
	PublicStatus PublicStatusConfig `mapstructure:"publicStatus"`
}

type PopupConfig struct {
	DismissCooldown time.Duration `mapstructure:"dismissCooldown"`
	PollInterval    time.Duration `mapstructure:"pollInterval"`
}

type DueCheckConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batchSize"`
}

type PublicStatusConfig struct {
	CacheTTL      time.Duration `mapstructure:"cacheTTL"`
	RatePerSecond float64       `mapstructure:"ratePerSecond"`
	Burst         int           `mapstructure:"burst"`
}

func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		Popup: PopupConfig{
			DismissCooldown: time.Hour,
			PollInterval:    30 * time.Second,
		},
		DueCheck: DueCheckConfig{
			Enabled:   true,
			Interval:  24 * time.Hour,
			BatchSize: 100,
		},
		PublicStatus: PublicStatusConfig{
			CacheTTL:      30 * time.Second,
			RatePerSecond: 5,
			Burst:         20,
		},
	}
}

type MaintenanceConfigHolder struct {
	current atomic.Value // holds MaintenanceConfig
}

// NewStaticMaintenanceConfigHolder returns a holder without file watching.
func NewStaticMaintenanceConfigHolder(cfg MaintenanceConfig) *MaintenanceConfigHolder {
	holder := &MaintenanceConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewMaintenanceConfigHolder() (*MaintenanceConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("maintenance")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/upkeep")
	v.AddConfigPath(".")

	v.SetEnvPrefix("UPKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMaintenanceConfig()
	v.SetDefault("maintenance.popup.dismissCooldown", defaults.Popup.DismissCooldown)
	v.SetDefault("maintenance.popup.pollInterval", defaults.Popup.PollInterval)
	v.SetDefault("maintenance.dueCheck.enabled", defaults.DueCheck.Enabled)
	v.SetDefault("maintenance.dueCheck.interval", defaults.DueCheck.Interval)
	v.SetDefault("maintenance.dueCheck.batchSize", defaults.DueCheck.BatchSize)
	v.SetDefault("maintenance.publicStatus.cacheTTL", defaults.PublicStatus.CacheTTL)
	v.SetDefault("maintenance.publicStatus.ratePerSecond", defaults.PublicStatus.RatePerSecond)
	v.SetDefault("maintenance.publicStatus.burst", defaults.PublicStatus.Burst)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg MaintenanceConfig
	if err := v.UnmarshalKey("maintenance", &cfg); err != nil {
		return nil, err
	}
	if err := validateMaintenanceConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticMaintenanceConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MaintenanceConfig
		if err := v.UnmarshalKey("maintenance", &updated); err != nil {
			log.Printf("[maintenance-config] reload failed: %v", err)
			return
		}
		if err := validateMaintenanceConfig(updated); err != nil {
			log.Printf("[maintenance-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[maintenance-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *MaintenanceConfigHolder) Get() MaintenanceConfig {
	if h == nil {
		return DefaultMaintenanceConfig()
	}
	cfg, ok := h.current.Load().(MaintenanceConfig)
	if !ok {
		return DefaultMaintenanceConfig()
	}
	return cfg
}

func validateMaintenanceConfig(cfg MaintenanceConfig) error {
	if cfg.Popup.DismissCooldown <= 0 {
		return errors.New("maintenance.popup.dismissCooldown must be positive")
	}
	if cfg.Popup.PollInterval <= 0 {
		return errors.New("maintenance.popup.pollInterval must be positive")
	}
	if cfg.DueCheck.Interval <= 0 {
		return errors.New("maintenance.dueCheck.interval must be positive")
	}
	if cfg.DueCheck.BatchSize <= 0 {
		return errors.New("maintenance.dueCheck.batchSize must be positive")
	}
	if cfg.PublicStatus.CacheTTL < 0 {
		return errors.New("maintenance.publicStatus.cacheTTL cannot be negative")
	}
	if cfg.PublicStatus.RatePerSecond <= 0 || cfg.PublicStatus.Burst <= 0 {
		return errors.New("maintenance.publicStatus rate limit must be positive")
	}
	return nil
}
