// Package totals computes line and document money totals with decimal
// arithmetic. Every line value is rounded half-up to the currency's minor
// unit before it is summed, so document totals always equal the sum of the
// rounded line values that are persisted.
package totals

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidLineItem = errors.New("invalid_line_item")

const DefaultPlaces int32 = 2

var (
	one = decimal.NewFromInt(1)

	minorUnits = map[string]int32{
		"JPY": 0,
		"KRW": 0,
		"VND": 0,
		"BHD": 3,
		"JOD": 3,
		"KWD": 3,
		"OMR": 3,
		"TND": 3,
	}
)

// Line is the priced input of a single invoice or quote row.
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	VATRate   decimal.Decimal
	Discount  decimal.Decimal
}

type LineTotals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	VAT      decimal.Decimal
	Total    decimal.Decimal
}

type Totals struct {
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	VATTotal      decimal.Decimal
	Total         decimal.Decimal
	Lines         []LineTotals
}

// Places returns the number of minor-unit digits for an ISO 4217 code.
func Places(currency string) int32 {
	if places, ok := minorUnits[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return places
	}
	return DefaultPlaces
}

// Round rounds half away from zero, which is half-up for the non-negative
// amounts this package accepts.
func Round(value decimal.Decimal, places int32) decimal.Decimal {
	return value.Round(places)
}

// CalculateLine prices one line. VAT applies to the rounded, discounted
// line subtotal.
func CalculateLine(line Line, places int32) (LineTotals, error) {
	if err := validateLine(line); err != nil {
		return LineTotals{}, err
	}

	subtotal := Round(line.Quantity.Mul(line.UnitPrice), places)
	discount := Round(line.Discount, places)
	if discount.GreaterThan(subtotal) {
		return LineTotals{}, fmt.Errorf("%w: discount exceeds line subtotal", ErrInvalidLineItem)
	}
	vat := Round(subtotal.Sub(discount).Mul(line.VATRate), places)

	return LineTotals{
		Subtotal: subtotal,
		Discount: discount,
		VAT:      vat,
		Total:    subtotal.Sub(discount).Add(vat),
	}, nil
}

// Calculate prices every line and sums the rounded line values. An empty
// input yields zero totals.
func Calculate(lines []Line, places int32) (Totals, error) {
	out := Totals{
		Subtotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		VATTotal:      decimal.Zero,
		Total:         decimal.Zero,
		Lines:         make([]LineTotals, 0, len(lines)),
	}

	for i, line := range lines {
		lt, err := CalculateLine(line, places)
		if err != nil {
			return Totals{}, fmt.Errorf("line %d: %w", i, err)
		}
		out.Lines = append(out.Lines, lt)
		out.Subtotal = out.Subtotal.Add(lt.Subtotal)
		out.DiscountTotal = out.DiscountTotal.Add(lt.Discount)
		out.VATTotal = out.VATTotal.Add(lt.VAT)
	}
	out.Total = out.Subtotal.Sub(out.DiscountTotal).Add(out.VATTotal)

	return out, nil
}

func validateLine(line Line) error {
	switch {
	case line.Quantity.IsNegative():
		return fmt.Errorf("%w: negative quantity", ErrInvalidLineItem)
	case line.UnitPrice.IsNegative():
		return fmt.Errorf("%w: negative unit price", ErrInvalidLineItem)
	case line.Discount.IsNegative():
		return fmt.Errorf("%w: negative discount", ErrInvalidLineItem)
	case line.VATRate.IsNegative(), line.VATRate.GreaterThanOrEqual(one):
		return fmt.Errorf("%w: vat rate outside [0, 1)", ErrInvalidLineItem)
	}
	return nil
}
