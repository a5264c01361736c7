package enums

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/craftstore-backend/pkg/money"
)

// Currency is a lowercase ISO 4217 code, the form Stripe expects on line items.
// The storefront only sells in USD.
type Currency string

const CurrencyUSD Currency = "usd"

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return c == CurrencyUSD }

// Display renders an amount in minor units of c, e.g. 2500 -> "$25.00".
func (c Currency) Display(minorUnits int64) string {
	return money.Format(minorUnits, string(c))
}

// ParseCurrency accepts any casing and surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToLower(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return c, nil
}
