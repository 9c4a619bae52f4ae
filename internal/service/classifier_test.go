package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LeventeLantos/order-confirm/internal/model"
	"github.com/LeventeLantos/order-confirm/internal/service"
)

func textMsg(body string) service.InboundMessage {
	return service.InboundMessage{Type: "text", Text: &service.TextBody{Body: body}}
}

func TestClassifier_FreeText(t *testing.T) {
	c := service.DefaultClassifier()

	tests := []struct {
		text string
		want service.Action
	}{
		{"1", service.ActionConfirm},
		{" 2 ", service.ActionCancel},
		{"Je confirme", service.ActionConfirm},
		{"CONFIRMÉ", service.ActionConfirm},
		{"oui", service.ActionConfirm},
		{"Oui merci !", service.ActionConfirm},
		{"ok", service.ActionConfirm},
		{"yes please", service.ActionConfirm},
		{"wakha", service.ActionConfirm},
		{"نعم", service.ActionConfirm},
		{"تأكيد الطلب", service.ActionConfirm},
		{"d'accord", service.ActionConfirm},
		{"annuler", service.ActionCancel},
		{"Annulé svp", service.ActionCancel},
		{"please cancel", service.ActionCancel},
		{"non", service.ActionCancel},
		{"No.", service.ActionCancel},
		{"إلغاء", service.ActionCancel},
		{"الغاء الطلب", service.ActionCancel},
		{"non je ne confirme pas", service.ActionCancel},
		{"bonjour, ma commande est nouvelle ?", service.ActionNone},
		{"12", service.ActionNone},
		{"", service.ActionNone},
		{"   ", service.ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(textMsg(tt.text)))
		})
	}
}

func TestClassifier_Buttons(t *testing.T) {
	c := service.DefaultClassifier()

	assert.Equal(t, service.ActionConfirm, c.Classify(service.InboundMessage{
		Type:   "button",
		Button: &service.Button{Payload: "confirm_order", Text: "whatever"},
	}))
	assert.Equal(t, service.ActionCancel, c.Classify(service.InboundMessage{
		Type: "interactive",
		Interactive: &service.Interactive{
			Type:        "button_reply",
			ButtonReply: &service.Reply{ID: "CANCEL_ORDER", Title: "Annuler"},
		},
	}))

	// Unknown ids fall back to the visible label.
	assert.Equal(t, service.ActionCancel, c.Classify(service.InboundMessage{
		Type:   "button",
		Button: &service.Button{Payload: "btn-7", Text: "Annuler la commande"},
	}))
	assert.Equal(t, service.ActionConfirm, c.Classify(service.InboundMessage{
		Type: "interactive",
		Interactive: &service.Interactive{
			Type:      "list_reply",
			ListReply: &service.Reply{ID: "row-1", Title: "Oui"},
		},
	}))
}

func TestClassifier_CustomRules(t *testing.T) {
	c := service.NewClassifier(nil, []service.Rule{
		{Name: "stop", Match: service.Word("stop"), Action: service.ActionCancel},
	})

	assert.Equal(t, service.ActionCancel, c.Classify(textMsg("STOP")))
	assert.Equal(t, service.ActionNone, c.Classify(textMsg("stopper")))
	assert.Equal(t, service.ActionNone, c.Classify(textMsg("oui")))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "confirme", service.Fold("  Confirmé "))
	assert.Equal(t, "annulee", service.Fold("ANNULÉE"))
	assert.Equal(t, service.Fold("الغاء"), service.Fold("إلغاء"))
}

func TestAction_TargetStatus(t *testing.T) {
	s, ok := service.ActionConfirm.TargetStatus()
	assert.True(t, ok)
	assert.Equal(t, model.StatusConfirmed, s)

	s, ok = service.ActionCancel.TargetStatus()
	assert.True(t, ok)
	assert.Equal(t, model.StatusCanceled, s)

	_, ok = service.ActionNone.TargetStatus()
	assert.False(t, ok)
}
