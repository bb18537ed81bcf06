// Package lineitem defines the one billable line shape shared by quotes and
// invoices and validates it before any totals are computed.
package lineitem

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/totals"
)

type Type string

const (
	TypeMaterial Type = "material"
	TypeLabour   Type = "labour"
	TypeCustom   Type = "custom"
)

// Item is a caller supplied line. VATRate is optional and falls back to the
// document rate.
type Item struct {
	Type        Type             `json:"type" validate:"omitempty,oneof=material labour custom"`
	Description string           `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit" validate:"max=32"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	VATRate     *decimal.Decimal `json:"vat_rate,omitempty"`
	Discount    decimal.Decimal  `json:"discount"`
}

// ResolvedType defaults an empty type to custom.
func (i Item) ResolvedType() Type {
	if i.Type == "" {
		return TypeCustom
	}
	return i.Type
}

func (i Item) ResolvedVATRate(fallback decimal.Decimal) decimal.Decimal {
	if i.VATRate != nil {
		return *i.VATRate
	}
	return fallback
}

func (i Item) Line(fallbackVAT decimal.Decimal) totals.Line {
	return totals.Line{
		Quantity:  i.Quantity,
		UnitPrice: i.UnitPrice,
		VATRate:   i.ResolvedVATRate(fallbackVAT),
		Discount:  i.Discount,
	}
}

type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError lists every problem found across a set of items.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return totals.ErrInvalidLineItem.Error()
	}
	first := e.Issues[0]
	return fmt.Sprintf("%s: %s %s", totals.ErrInvalidLineItem.Error(), first.Field, first.Message)
}

func (e *ValidationError) Unwrap() error {
	return totals.ErrInvalidLineItem
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every item and returns a *ValidationError describing all
// issues, or nil.
func Validate(items []Item, fallbackVAT decimal.Decimal) error {
	var issues []Issue
	for idx, item := range items {
		prefix := fmt.Sprintf("items[%d]", idx)

		if err := validate.Struct(item); err != nil {
			if verrs, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range verrs {
					issues = append(issues, Issue{
						Field:   prefix + "." + fe.Field(),
						Code:    fe.Tag(),
						Message: describe(fe),
					})
				}
			} else {
				return err
			}
		}

		if item.Quantity.IsNegative() {
			issues = append(issues, Issue{Field: prefix + ".quantity", Code: "gte", Message: "must not be negative"})
		}
		if item.UnitPrice.IsNegative() {
			issues = append(issues, Issue{Field: prefix + ".unit_price", Code: "gte", Message: "must not be negative"})
		}
		if item.Discount.IsNegative() {
			issues = append(issues, Issue{Field: prefix + ".discount", Code: "gte", Message: "must not be negative"})
		}
		rate := item.ResolvedVATRate(fallbackVAT)
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			issues = append(issues, Issue{Field: prefix + ".vat_rate", Code: "range", Message: "must be in [0, 1)"})
		}
		if !item.Quantity.IsNegative() && !item.UnitPrice.IsNegative() &&
			item.Discount.GreaterThan(item.Quantity.Mul(item.UnitPrice)) {
			issues = append(issues, Issue{Field: prefix + ".discount", Code: "lte", Message: "must not exceed the line subtotal"})
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	default:
		return "is invalid"
	}
}
