package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultInvoicingConfigIsValid(t *testing.T) {
	require.NoError(t, validateInvoicingConfig(DefaultInvoicingConfig()))
}

func TestValidateInvoicingConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*InvoicingConfig){
		"empty invoice prefix": func(c *InvoicingConfig) { c.InvoicePrefix = " " },
		"zero padding":         func(c *InvoicingConfig) { c.NumberPadding = 0 },
		"zero attempts":        func(c *InvoicingConfig) { c.MaxNumberAttempts = 0 },
		"negative terms":       func(c *InvoicingConfig) { c.PaymentTermsDays = -1 },
		"bad currency":         func(c *InvoicingConfig) { c.DefaultCurrency = "POUND" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultInvoicingConfig()
			mutate(&cfg)
			require.Error(t, validateInvoicingConfig(cfg))
		})
	}
}

func TestStaticHolderReturnsStoredConfig(t *testing.T) {
	cfg := DefaultInvoicingConfig()
	cfg.InvoicePrefix = "BILL-"
	holder := NewStaticInvoicingConfigHolder(cfg)
	require.Equal(t, "BILL-", holder.Get().InvoicePrefix)
}
