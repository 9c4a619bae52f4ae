package template

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_OrderConfirmationIncludesTotal(t *testing.T) {
	t.Parallel()

	msg := Build(OrderSnapshot{
		FirstName:    "Amina",
		TrackingCode: "CMD-1042",
		OrderTotal:   decimal.NewNullDecimal(decimal.RequireFromString("349.5")),
		Locale:       "ar",
	}, OrderConfirmation)

	assert.Equal(t, OrderConfirmation, msg.Name)
	assert.Equal(t, "ar", msg.Language)
	assert.Equal(t, []string{"Amina", "CMD-1042", "349.50"}, msg.Parameters)
}

func TestBuild_SimpleTemplateHasTwoParameters(t *testing.T) {
	t.Parallel()

	msg := Build(OrderSnapshot{
		FirstName:    "Youssef",
		TrackingCode: "CMD-7",
		OrderTotal:   decimal.NewNullDecimal(decimal.NewFromInt(100)),
	}, OrderConfirmationSimple)

	assert.Equal(t, []string{"Youssef", "CMD-7"}, msg.Parameters)
}

func TestBuild_UnknownTemplateUsesDefaultLayout(t *testing.T) {
	t.Parallel()

	msg := Build(OrderSnapshot{FirstName: "Sara", TrackingCode: "X1"}, "promo_followup")

	assert.Equal(t, "promo_followup", msg.Name)
	assert.Len(t, msg.Parameters, 2)
}

func TestBuild_FallsBackToSafeDefaults(t *testing.T) {
	t.Parallel()

	msg := Build(OrderSnapshot{FirstName: "  "}, OrderConfirmation)

	assert.Equal(t, []string{DefaultName, DefaultCode, "0.00"}, msg.Parameters)
	assert.Equal(t, FallbackLanguage, msg.Language)
}

func TestLanguage(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":      "fr",
		"fr":    "fr",
		"FR":    "fr",
		"ar_MA": "ar",
		"en-GB": "en",
		"es":    "fr",
		" ar ":  "ar",
	}
	for in, want := range cases {
		assert.Equal(t, want, Language(in), "locale %q", in)
	}
}

func TestMessagePayload_WireFormat(t *testing.T) {
	t.Parallel()

	msg := Message{Name: OrderConfirmationSimple, Language: "fr", Parameters: []string{"Amina", "CMD-1"}}

	b, err := json.Marshal(msg.Payload("+212612345678"))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"messaging_product": "whatsapp",
		"to": "+212612345678",
		"type": "template",
		"template": {
			"name": "order_confirmation_simple",
			"language": {"code": "fr"},
			"components": [{
				"type": "body",
				"parameters": [
					{"type": "text", "text": "Amina"},
					{"type": "text", "text": "CMD-1"}
				]
			}]
		}
	}`, string(b))
}
