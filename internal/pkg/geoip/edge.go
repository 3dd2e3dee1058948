package geoip

import (
	"context"
	"net/url"
	"strings"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EdgeHeaders trusts the country and city headers set by the hosting edge.
type EdgeHeaders struct {
	countries *gountries.Query
}

func NewEdgeHeaders() *EdgeHeaders {
	return &EdgeHeaders{countries: gountries.New()}
}

func (e *EdgeHeaders) Name() string { return "edge" }

func (e *EdgeHeaders) Lookup(_ context.Context, req Request) (Location, error) {
	country := strings.TrimSpace(req.EdgeCountry)
	if isUnknown(country) {
		return Location{}, ErrNoLocation
	}

	return Location{
		Country: e.countryName(country),
		City:    e.cityName(req.EdgeCity),
	}, nil
}

// countryName expands ISO 3166 alpha-2/alpha-3 codes to the common name.
func (e *EdgeHeaders) countryName(value string) string {
	if len(value) != 2 && len(value) != 3 {
		return value
	}
	country, err := e.countries.FindCountryByAlpha(value)
	if err != nil {
		return cases.Upper(language.AmericanEnglish).String(value)
	}
	return country.Name.Common
}

// cityName decodes the URL-encoded header value. All-lowercase values are
// title-cased; anything else is left as sent.
func (e *EdgeHeaders) cityName(value string) string {
	city := strings.TrimSpace(value)
	if decoded, err := url.QueryUnescape(city); err == nil {
		city = strings.TrimSpace(decoded)
	}
	if isUnknown(city) {
		return Unknown
	}
	if city == strings.ToLower(city) {
		city = cases.Title(language.AmericanEnglish).String(city)
	}
	return city
}
