package validation

import "strings"

// recognizedCurrencies is the accepted ISO 4217 subset. Codes outside this
// set raise a Major defect rather than failing the run.
var recognizedCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "CAD": {}, "AUD": {}, "NZD": {},
	"JPY": {}, "CNY": {}, "HKD": {}, "SGD": {}, "KRW": {}, "INR": {},
	"CHF": {}, "SEK": {}, "NOK": {}, "DKK": {}, "PLN": {}, "CZK": {},
	"HUF": {}, "RON": {}, "TRY": {}, "ILS": {}, "AED": {}, "SAR": {},
	"ZAR": {}, "NGN": {}, "KES": {}, "EGP": {}, "BRL": {}, "MXN": {},
	"ARS": {}, "CLP": {}, "COP": {}, "PEN": {}, "THB": {}, "VND": {},
	"PHP": {}, "IDR": {}, "MYR": {}, "TWD": {}, "RUB": {}, "UAH": {},
}

func knownCurrency(code string) bool {
	_, ok := recognizedCurrencies[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}
