package crm

import (
	"strings"
	"unicode"
)

// CanonicalPhone strips everything but digits.
func CanonicalPhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DisplayPhone renders a canonical North American number for people.
// Anything else is returned as is.
func DisplayPhone(digits string) string {
	switch {
	case len(digits) == 10:
		return "(" + digits[:3] + ") " + digits[3:6] + "-" + digits[6:]
	case len(digits) == 11 && digits[0] == '1':
		return "+1 " + DisplayPhone(digits[1:])
	default:
		return digits
	}
}

// Address is a postal address.
type Address struct {
	Street  string
	City    string
	State   string
	Zip     string
	Country string
}

// String formats "street, city, state zip, country", skipping empty parts.
func (a Address) String() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.City, strings.TrimSpace(a.State + " " + a.Zip), a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
