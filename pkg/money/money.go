package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var symbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
}

// Format renders minor units as a display amount, e.g. 1050 usd -> "$10.50".
func Format(minorUnits int64, currency string) string {
	amount := decimal.New(minorUnits, -2).StringFixed(2)
	code := strings.ToLower(strings.TrimSpace(currency))
	if symbol, ok := symbols[code]; ok {
		if strings.HasPrefix(amount, "-") {
			return "-" + symbol + strings.TrimPrefix(amount, "-")
		}
		return symbol + amount
	}
	return fmt.Sprintf("%s %s", amount, strings.ToUpper(code))
}

// LineTotal multiplies a unit price by quantity in minor units.
func LineTotal(unitPrice int64, quantity int) int64 {
	return decimal.NewFromInt(unitPrice).Mul(decimal.NewFromInt(int64(quantity))).IntPart()
}
