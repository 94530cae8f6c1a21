package server

// defaultCurrencies applies when a country account has not configured any.
var defaultCurrencies = []string{"USD"}

// currenciesForTenant feeds the enum-flex currency fields; the flex kind
// keeps previously imported values valid after a configuration change.
func currenciesForTenant(t Tenant) []string {
	if len(t.Currencies) > 0 {
		return append([]string(nil), t.Currencies...)
	}
	return append([]string(nil), defaultCurrencies...)
}
