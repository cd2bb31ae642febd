package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/smallbiznis/invoicing/internal/tax"
)

// BillingSettings is the per-scope billing configuration consumed by the tax
// engine and the aggregate recalculator. It is injected explicitly; nothing
// in the core reads ambient process-wide settings.
type BillingSettings struct {
	TaxMode         string   `mapstructure:"taxMode"`
	DisableTaxes    bool     `mapstructure:"disableTaxes"`
	DefaultCurrency string   `mapstructure:"defaultCurrency"`
	Units           []string `mapstructure:"units"`
}

// Mode returns the configured tax mode as a tax.Mode.
func (s BillingSettings) Mode() tax.Mode {
	return tax.Mode(s.TaxMode)
}

func DefaultBillingSettings() BillingSettings {
	return BillingSettings{
		TaxMode:         string(tax.ModeExclusive),
		DisableTaxes:    false,
		DefaultCurrency: "USD",
		Units:           []string{"hours", "days", "pieces"},
	}
}

// BillingSettingsHolder hot-reloads billing settings from billing.yml.
type BillingSettingsHolder struct {
	current atomic.Value // holds BillingSettings
}

func NewBillingSettingsHolder() (*BillingSettingsHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/invoicing/config") // Volume-mounted config
	v.AddConfigPath("/etc/invoicing")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("INVOICING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingSettings()
	v.SetDefault("billing.taxMode", defaults.TaxMode)
	v.SetDefault("billing.disableTaxes", defaults.DisableTaxes)
	v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("billing.units", defaults.Units)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingSettings
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingSettings(cfg); err != nil {
		return nil, err
	}

	holder := &BillingSettingsHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingSettings
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingSettings(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingSettingsHolder) Get() BillingSettings {
	return h.current.Load().(BillingSettings)
}

// NewStaticBillingSettingsHolder returns a holder pinned to the given
// settings, used by tests and by callers that manage configuration
// themselves.
func NewStaticBillingSettingsHolder(s BillingSettings) *BillingSettingsHolder {
	holder := &BillingSettingsHolder{}
	holder.current.Store(s)
	return holder
}

func validateBillingSettings(cfg BillingSettings) error {
	if !tax.Mode(cfg.TaxMode).Valid() {
		return errors.New("billing.taxMode must be exclusive or inclusive")
	}
	if cfg.DefaultCurrency == "" {
		return errors.New("billing.defaultCurrency cannot be empty")
	}
	return nil
}
