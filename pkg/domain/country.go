package domain

import (
	dErrors "stablegate/pkg/domain-errors"
)

// CountryCode is an ISO 3166-1 alpha-2 country code.
type CountryCode string

// supportedJurisdictions is the single source of truth for accepted
// jurisdictions: the EU-27 member states the issuer is licensed in.
var supportedJurisdictions = map[CountryCode]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"HU": true, "IE": true, "IT": true, "LV": true, "LT": true, "LU": true,
	"MT": true, "NL": true, "PL": true, "PT": true, "RO": true, "SK": true,
	"SI": true, "ES": true, "SE": true,
}

// ParseCountryCode validates the shape of a country code from external input.
// Shape validation is separate from jurisdiction acceptance: a well-formed
// but unsupported code parses fine and fails later at IsSupportedJurisdiction.
func ParseCountryCode(s string) (CountryCode, error) {
	if len(s) != 2 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "country code must be two letters")
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "country code must be uppercase letters")
		}
	}
	return CountryCode(s), nil
}

// IsSupportedJurisdiction reports whether the issuer accepts users from this
// country.
func (c CountryCode) IsSupportedJurisdiction() bool {
	return supportedJurisdictions[c]
}

// String returns the string representation of the country code.
func (c CountryCode) String() string {
	return string(c)
}
