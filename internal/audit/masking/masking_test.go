package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSensitive(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"client_email":   "owner@example.com",
		"invoice_number": "INV-000001",
		"changes": map[string]any{
			"phone": "07700900123",
		},
		"": "dropped",
	})

	assert.Equal(t, "****.com", out["client_email"])
	assert.Equal(t, "INV-000001", out["invoice_number"])
	assert.Equal(t, "****0123", out["changes"].(map[string]any)["phone"])
	assert.NotContains(t, out, "")
}

func TestMaskValueShortInput(t *testing.T) {
	assert.Equal(t, "****", MaskValue("abc"))
	assert.Equal(t, "", MaskValue("  "))
}
