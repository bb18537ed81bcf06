package guard

import (
	"errors"
	"time"

	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
)

var (
	ErrInvoiceNotSent   = errors.New("invoice_not_sent")
	ErrInvoiceNotDueYet = errors.New("invoice_not_due_yet")
	ErrInvoiceSettled   = errors.New("invoice_settled")
)

// EnsureInvoiceCanBecomeOverdue accepts sent invoices with an unpaid balance
// whose due date is strictly before today.
func EnsureInvoiceCanBecomeOverdue(status invoicedomain.InvoiceStatus, dueDate time.Time, balanceDuePositive bool, today time.Time) error {
	if status != invoicedomain.InvoiceStatusSent {
		return ErrInvoiceNotSent
	}
	if !balanceDuePositive {
		return ErrInvoiceSettled
	}
	if !dueDate.Before(today) {
		return ErrInvoiceNotDueYet
	}
	return nil
}
