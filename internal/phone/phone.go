// Package phone turns the free-form numbers customers type at checkout into
// the canonical international form used for matching and delivery.
package phone

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	CountryCode   = "212"
	countryPrefix = "+" + CountryCode
	trunkPrefix   = "0"
)

var ErrInvalid = errors.New("invalid phone number")

// +212 then nine subscriber digits; 5 is the fixed-line range, 6 and 7 mobile.
var canonicalRe = regexp.MustCompile(`^\+212[5-7][0-9]{8}$`)

var separators = strings.NewReplacer("-", "", ".", "", "(", "", ")", "")

// Normalize rewrites raw into international form. It never fails; use Valid
// or Canonical to reject numbers that cannot be delivered to.
func Normalize(raw string) string {
	s := strings.Join(strings.Fields(raw), "")
	s = separators.Replace(s)
	if s == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(s, countryPrefix):
		return s
	case strings.HasPrefix(s, "00"+CountryCode):
		return "+" + strings.TrimPrefix(s, "00")
	case strings.HasPrefix(s, CountryCode):
		return "+" + s
	case strings.HasPrefix(s, trunkPrefix):
		return countryPrefix + strings.TrimPrefix(s, trunkPrefix)
	default:
		return countryPrefix + strings.TrimPrefix(s, "+")
	}
}

func Valid(e164 string) bool {
	return canonicalRe.MatchString(e164)
}

// Canonical normalizes raw and returns ErrInvalid when the result does not
// match the national numbering plan.
func Canonical(raw string) (string, error) {
	n := Normalize(raw)
	if !Valid(n) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return n, nil
}

// DigitForms lists the digit-only spellings of e164 that Normalize maps back
// to it.
func DigitForms(e164 string) [4]string {
	national := strings.TrimPrefix(e164, countryPrefix)
	return [4]string{
		CountryCode + national,
		"00" + CountryCode + national,
		trunkPrefix + national,
		national,
	}
}
