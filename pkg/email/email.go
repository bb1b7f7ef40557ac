// Package email derives presentation values from email addresses.
package email

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const fallbackName = "Citizen"

var title = cases.Title(language.Und)

// DisplayName turns the local part of address into a human name:
// "asha.rao+aid@example.com" becomes "Asha Rao". Addresses with no usable
// local part yield "Citizen".
func DisplayName(address string) string {
	local := address
	if at := strings.LastIndexByte(address, '@'); at >= 0 {
		local = address[:at]
	}
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}
	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || (r >= '0' && r <= '9')
	})
	if len(words) == 0 {
		return fallbackName
	}
	return title.String(strings.Join(words, " "))
}
