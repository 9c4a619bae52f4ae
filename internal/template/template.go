// Package template builds WhatsApp template messages from order snapshots.
package template

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	OrderConfirmation       = "order_confirmation"
	OrderConfirmationSimple = "order_confirmation_simple"

	FallbackLanguage = "fr"
	DefaultName      = "Client"
	DefaultCode      = "-"
)

type Param int

const (
	ParamFirstName Param = iota
	ParamTrackingCode
	ParamOrderTotal
)

// layouts lists the ordered body parameters each approved template expects.
// The provider rejects a message whose count or order does not match.
var layouts = map[string][]Param{
	OrderConfirmation:       {ParamFirstName, ParamTrackingCode, ParamOrderTotal},
	OrderConfirmationSimple: {ParamFirstName, ParamTrackingCode},
}

var defaultLayout = []Param{ParamFirstName, ParamTrackingCode}

var languages = map[string]string{
	"fr": "fr",
	"ar": "ar",
	"en": "en",
}

type OrderSnapshot struct {
	FirstName    string
	TrackingCode string
	OrderTotal   decimal.NullDecimal
	Locale       string
}

type Message struct {
	Name       string
	Language   string
	Parameters []string
}

func Build(o OrderSnapshot, templateName string) Message {
	layout, ok := layouts[templateName]
	if !ok {
		layout = defaultLayout
	}

	params := make([]string, 0, len(layout))
	for _, p := range layout {
		params = append(params, value(o, p))
	}

	return Message{
		Name:       templateName,
		Language:   Language(o.Locale),
		Parameters: params,
	}
}

// Language maps an order locale such as "fr", "ar_MA" or "en-GB" to a
// provider language code.
func Language(locale string) string {
	l := strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(l, "-_"); i >= 0 {
		l = l[:i]
	}
	if code, ok := languages[l]; ok {
		return code
	}
	return FallbackLanguage
}

func value(o OrderSnapshot, p Param) string {
	switch p {
	case ParamFirstName:
		if n := strings.TrimSpace(o.FirstName); n != "" {
			return n
		}
		return DefaultName
	case ParamTrackingCode:
		if c := strings.TrimSpace(o.TrackingCode); c != "" {
			return c
		}
		return DefaultCode
	case ParamOrderTotal:
		if !o.OrderTotal.Valid {
			return decimal.Zero.StringFixed(2)
		}
		return o.OrderTotal.Decimal.StringFixed(2)
	}
	return ""
}

// Provider wire format.

type Payload struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Template         PayloadTemplate `json:"template"`
}

type PayloadTemplate struct {
	Name       string       `json:"name"`
	Language   LanguageCode `json:"language"`
	Components []Component  `json:"components"`
}

type LanguageCode struct {
	Code string `json:"code"`
}

type Component struct {
	Type       string      `json:"type"`
	Parameters []Parameter `json:"parameters"`
}

type Parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Payload renders m as the provider request body addressed to to.
func (m Message) Payload(to string) Payload {
	params := make([]Parameter, 0, len(m.Parameters))
	for _, p := range m.Parameters {
		params = append(params, Parameter{Type: "text", Text: p})
	}

	return Payload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: PayloadTemplate{
			Name:     m.Name,
			Language: LanguageCode{Code: m.Language},
			Components: []Component{
				{Type: "body", Parameters: params},
			},
		},
	}
}
