package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidClient   = errors.New("invalid_client")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidVATRate  = errors.New("invalid_vat_rate")
	ErrNotFound        = errors.New("quote_not_found")
	ErrEmptyQuote      = errors.New("quote_has_no_items")
	ErrNoSnapshotFound = errors.New("no_snapshot_found")
	ErrInvalidState    = errors.New("invalid_quote_state")
	ErrAlreadyInvoiced = errors.New("quote_already_invoiced")
)

// StateError reports an operation attempted from the wrong quote status.
// Reason overrides the default "quote is <status>" wording.
type StateError struct {
	Op     string
	Status QuoteStatus
	Reason string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("cannot %s: quote is %s", e.Op, e.Status)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}
