package guard

import (
	"testing"
	"time"

	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
)

func TestEnsureInvoiceCanBecomeOverdue(t *testing.T) {
	today := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, EnsureInvoiceCanBecomeOverdue(invoicedomain.InvoiceStatusSent, due, true, today))
	assert.ErrorIs(t, EnsureInvoiceCanBecomeOverdue(invoicedomain.InvoiceStatusDraft, due, true, today), ErrInvoiceNotSent)
	assert.ErrorIs(t, EnsureInvoiceCanBecomeOverdue(invoicedomain.InvoiceStatusSent, due, false, today), ErrInvoiceSettled)
	assert.ErrorIs(t, EnsureInvoiceCanBecomeOverdue(invoicedomain.InvoiceStatusSent, today, true, today), ErrInvoiceNotDueYet)
}
