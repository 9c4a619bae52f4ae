package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/LeventeLantos/order-confirm/internal/model"
)

type Action string

const (
	ActionNone    Action = ""
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
)

// TargetStatus is the order status a reply moves a new order to.
func (a Action) TargetStatus() (model.OrderStatus, bool) {
	switch a {
	case ActionConfirm:
		return model.StatusConfirmed, true
	case ActionCancel:
		return model.StatusCanceled, true
	}
	return "", false
}

// Matcher receives text that has already been folded by Fold.
type Matcher func(folded string) bool

type Rule struct {
	Name   string
	Match  Matcher
	Action Action
}

// Classifier maps a customer reply to an action. Quick-reply button ids are
// looked up first; free text is then tested against the rules in order and
// the first match wins.
type Classifier struct {
	buttons map[string]Action
	rules   []Rule
}

func NewClassifier(buttons map[string]Action, rules []Rule) *Classifier {
	b := make(map[string]Action, len(buttons))
	for id, a := range buttons {
		b[strings.ToUpper(strings.TrimSpace(id))] = a
	}
	return &Classifier{buttons: b, rules: rules}
}

var defaultButtons = map[string]Action{
	"CONFIRM_ORDER": ActionConfirm,
	"CONFIRM":       ActionConfirm,
	"CONFIRMER":     ActionConfirm,
	"YES":           ActionConfirm,
	"CANCEL_ORDER":  ActionCancel,
	"CANCEL":        ActionCancel,
	"ANNULER":       ActionCancel,
	"NO":            ActionCancel,
}

// DefaultClassifier understands French, English, Arabic and Darija replies.
// Cancel keywords are checked before confirm keywords, so a message carrying
// both cancels.
func DefaultClassifier() *Classifier {
	return NewClassifier(defaultButtons, []Rule{
		{Name: "shorthand-confirm", Match: Equals("1"), Action: ActionConfirm},
		{Name: "shorthand-cancel", Match: Equals("2"), Action: ActionCancel},
		{
			Name:   "cancel-keywords",
			Match:  Any(Contains("annul", "cancel", "إلغاء", "الغاء"), Word("non", "no", "لا")),
			Action: ActionCancel,
		},
		{
			Name: "confirm-keywords",
			Match: Any(
				Contains("confirm", "تأكيد", "أكد", "d'accord", "daccord"),
				Word("oui", "yes", "ok", "okay", "wakha", "نعم", "موافق"),
			),
			Action: ActionConfirm,
		},
	})
}

func (c *Classifier) Classify(m InboundMessage) Action {
	for _, id := range m.replyIDs() {
		if a, ok := c.buttons[strings.ToUpper(strings.TrimSpace(id))]; ok {
			return a
		}
	}

	text := Fold(m.ReplyText())
	if text == "" {
		return ActionNone
	}
	for _, r := range c.rules {
		if r.Match(text) {
			return r.Action
		}
	}
	return ActionNone
}

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips combining marks, so "Confirmé" and "confirme"
// compare equal. Arabic hamza carriers and harakat are folded the same way.
func Fold(s string) string {
	out, _, err := transform.String(foldChain, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

func foldAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, Fold(w))
	}
	return out
}

func Equals(values ...string) Matcher {
	values = foldAll(values)
	return func(text string) bool {
		for _, v := range values {
			if text == v {
				return true
			}
		}
		return false
	}
}

func Contains(subs ...string) Matcher {
	subs = foldAll(subs)
	return func(text string) bool {
		for _, s := range subs {
			if strings.Contains(text, s) {
				return true
			}
		}
		return false
	}
}

// Word matches whole words only, so "no" does not fire on "nouvelle".
func Word(words ...string) Matcher {
	set := make(map[string]struct{}, len(words))
	for _, w := range foldAll(words) {
		set[w] = struct{}{}
	}
	return func(text string) bool {
		for _, tok := range strings.FieldsFunc(text, notWordRune) {
			if _, ok := set[tok]; ok {
				return true
			}
		}
		return false
	}
}

func Any(ms ...Matcher) Matcher {
	return func(text string) bool {
		for _, m := range ms {
			if m(text) {
				return true
			}
		}
		return false
	}
}

func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
