package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidClient         = errors.New("invalid_client")
	ErrInvalidQuote          = errors.New("invalid_quote")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidDate           = errors.New("invalid_date")
	ErrDueBeforeIssue        = errors.New("due_date_before_issue_date")
	ErrInvalidVATRate        = errors.New("invalid_vat_rate")
	ErrInvalidInvoiceNumber  = errors.New("invalid_invoice_number")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrInvalidPageToken      = errors.New("invalid_page_token")
	ErrNotFound              = errors.New("invoice_not_found")
	ErrEmptyInvoice          = errors.New("empty_invoice")
	ErrInvalidState          = errors.New("invalid_invoice_state")
	ErrStatusChangeViaUpdate = errors.New("status_change_via_update")
	ErrInvoiceNumberTaken    = errors.New("invoice_number_taken")
	ErrPersistenceFailed     = errors.New("persistence_failed")
)

// StateError reports an operation attempted from the wrong invoice status.
type StateError struct {
	Op     string
	Status InvoiceStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s: invoice is %s", e.Op, e.Status)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}
