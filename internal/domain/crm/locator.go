package crm

import (
	"context"
	"strings"

	"advisorcrm/internal/core/apperror"
)

// Locator resolves a contact's timezone. GuessTimezone is a cheap in-process
// guess used in batch mode; LookupTimezone is the precise call used for
// single-instance commits.
type Locator interface {
	GuessTimezone(state, country string) string
	LookupTimezone(ctx context.Context, addr Address) (string, error)
}

// StaticLocator answers from built-in tables.
type StaticLocator struct {
	byState   map[string]string
	byCountry map[string]string
	// zip prefix (first three digits) overrides for states split across zones
	byZip map[string]string
}

// NewStaticLocator creates a locator covering common advisor markets.
func NewStaticLocator() *StaticLocator {
	return &StaticLocator{
		byState: map[string]string{
			"NY": "America/New_York", "NJ": "America/New_York", "MA": "America/New_York",
			"FL": "America/New_York", "GA": "America/New_York", "PA": "America/New_York",
			"IL": "America/Chicago", "TX": "America/Chicago", "MN": "America/Chicago",
			"CO": "America/Denver", "UT": "America/Denver", "AZ": "America/Phoenix",
			"CA": "America/Los_Angeles", "WA": "America/Los_Angeles", "OR": "America/Los_Angeles",
			"HI": "Pacific/Honolulu", "AK": "America/Anchorage",
		},
		byCountry: map[string]string{
			"US": "America/New_York", "CA": "America/Toronto", "GB": "Europe/London",
			"DE": "Europe/Berlin", "FR": "Europe/Paris", "CH": "Europe/Zurich",
			"SG": "Asia/Singapore", "AU": "Australia/Sydney", "JP": "Asia/Tokyo",
		},
		byZip: map[string]string{
			"797": "America/Denver",  // El Paso
			"324": "America/Chicago", // Florida panhandle
			"325": "America/Chicago",
		},
	}
}

// GuessTimezone implements Locator. The state wins over the country.
func (l *StaticLocator) GuessTimezone(state, country string) string {
	if tz, ok := l.byState[strings.ToUpper(state)]; ok && isUS(country) {
		return tz
	}
	return l.byCountry[countryCode(country)]
}

// LookupTimezone implements Locator.
func (l *StaticLocator) LookupTimezone(ctx context.Context, addr Address) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if isUS(addr.Country) && len(addr.Zip) >= 3 {
		if tz, ok := l.byZip[addr.Zip[:3]]; ok {
			return tz, nil
		}
	}
	if tz := l.GuessTimezone(addr.State, addr.Country); tz != "" {
		return tz, nil
	}
	return "", apperror.NewNotFound("timezone", addr.String())
}

func countryCode(country string) string {
	c := strings.ToUpper(strings.TrimSpace(country))
	switch c {
	case "USA", "UNITED STATES":
		return "US"
	case "UK", "UNITED KINGDOM":
		return "GB"
	}
	return c
}

func isUS(country string) bool {
	c := countryCode(country)
	return c == "" || c == "US"
}
