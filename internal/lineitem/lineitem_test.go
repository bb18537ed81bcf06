package lineitem

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/totals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(desc string, qty, price string) Item {
	return Item{
		Type:        TypeMaterial,
		Description: desc,
		Quantity:    decimal.RequireFromString(qty),
		UnitPrice:   decimal.RequireFromString(price),
	}
}

func TestValidateAcceptsWellFormedItems(t *testing.T) {
	items := []Item{item("Paint", "2", "50"), item("Labour", "1", "100")}
	require.NoError(t, Validate(items, decimal.RequireFromString("0.2")))
}

func TestValidateCollectsEveryIssue(t *testing.T) {
	bad := item("", "-1", "-5")
	bad.Type = "plant"
	rate := decimal.NewFromInt(1)
	bad.VATRate = &rate

	err := Validate([]Item{item("ok", "1", "1"), bad}, decimal.Zero)
	require.Error(t, err)
	assert.True(t, errors.Is(err, totals.ErrInvalidLineItem))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	fields := make([]string, 0, len(verr.Issues))
	for _, issue := range verr.Issues {
		fields = append(fields, issue.Field)
	}
	assert.ElementsMatch(t, []string{
		"items[1].type",
		"items[1].description",
		"items[1].quantity",
		"items[1].unit_price",
		"items[1].vat_rate",
	}, fields)
}

func TestValidateRejectsDiscountAboveSubtotal(t *testing.T) {
	it := item("Tiles", "2", "10")
	it.Discount = decimal.NewFromInt(25)

	var verr *ValidationError
	require.ErrorAs(t, Validate([]Item{it}, decimal.Zero), &verr)
	assert.Equal(t, "items[0].discount", verr.Issues[0].Field)
}

func TestResolvedDefaults(t *testing.T) {
	it := item("Skip hire", "1", "250")
	it.Type = ""
	assert.Equal(t, TypeCustom, it.ResolvedType())
	assert.True(t, it.ResolvedVATRate(decimal.RequireFromString("0.2")).Equal(decimal.RequireFromString("0.2")))

	own := decimal.Zero
	it.VATRate = &own
	assert.True(t, it.ResolvedVATRate(decimal.RequireFromString("0.2")).IsZero())
}
