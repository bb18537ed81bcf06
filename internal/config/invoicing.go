package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// InvoicingConfig holds document numbering and payment term rules.
type InvoicingConfig struct {
	InvoicePrefix       string `mapstructure:"invoicePrefix"`
	QuotePrefix         string `mapstructure:"quotePrefix"`
	NumberPadding       int    `mapstructure:"numberPadding"`
	MaxNumberAttempts   int    `mapstructure:"maxNumberAttempts"`
	PaymentTermsDays    int    `mapstructure:"paymentTermsDays"`
	DefaultCurrency     string `mapstructure:"defaultCurrency"`
	DefaultInvoiceTerms string `mapstructure:"defaultInvoiceTerms"`
}

func DefaultInvoicingConfig() InvoicingConfig {
	return InvoicingConfig{
		InvoicePrefix:     "INV-",
		QuotePrefix:       "QUO-",
		NumberPadding:     6,
		MaxNumberAttempts: 5,
		PaymentTermsDays:  30,
		DefaultCurrency:   "GBP",
	}
}

type InvoicingConfigHolder struct {
	current atomic.Value // holds InvoicingConfig
}

// NewStaticInvoicingConfigHolder returns a holder that never reloads.
func NewStaticInvoicingConfigHolder(cfg InvoicingConfig) *InvoicingConfigHolder {
	holder := &InvoicingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewInvoicingConfigHolder(log *zap.Logger) (*InvoicingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("invoicing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/quoteflow")
	v.AddConfigPath(".")

	v.SetEnvPrefix("QUOTEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultInvoicingConfig()
	v.SetDefault("invoicing.invoicePrefix", defaults.InvoicePrefix)
	v.SetDefault("invoicing.quotePrefix", defaults.QuotePrefix)
	v.SetDefault("invoicing.numberPadding", defaults.NumberPadding)
	v.SetDefault("invoicing.maxNumberAttempts", defaults.MaxNumberAttempts)
	v.SetDefault("invoicing.paymentTermsDays", defaults.PaymentTermsDays)
	v.SetDefault("invoicing.defaultCurrency", defaults.DefaultCurrency)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg InvoicingConfig
	if err := v.UnmarshalKey("invoicing", &cfg); err != nil {
		return nil, err
	}
	if err := validateInvoicingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticInvoicingConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	log = log.Named("config.invoicing")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated InvoicingConfig
		if err := v.UnmarshalKey("invoicing", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateInvoicingConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *InvoicingConfigHolder) Get() InvoicingConfig {
	return h.current.Load().(InvoicingConfig)
}

func validateInvoicingConfig(cfg InvoicingConfig) error {
	if strings.TrimSpace(cfg.InvoicePrefix) == "" {
		return errors.New("invoicing.invoicePrefix cannot be empty")
	}
	if strings.TrimSpace(cfg.QuotePrefix) == "" {
		return errors.New("invoicing.quotePrefix cannot be empty")
	}
	if cfg.NumberPadding < 1 || cfg.NumberPadding > 12 {
		return fmt.Errorf("invoicing.numberPadding out of range: %d", cfg.NumberPadding)
	}
	if cfg.MaxNumberAttempts < 1 {
		return errors.New("invoicing.maxNumberAttempts must be positive")
	}
	if cfg.PaymentTermsDays < 0 {
		return errors.New("invoicing.paymentTermsDays cannot be negative")
	}
	if len(strings.TrimSpace(cfg.DefaultCurrency)) != 3 {
		return errors.New("invoicing.defaultCurrency must be an ISO 4217 code")
	}
	return nil
}
