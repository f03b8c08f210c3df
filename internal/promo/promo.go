package promo

import "strings"

// Resolver maps a promo code to a discount percentage. Unknown codes resolve to 0.
type Resolver interface {
	Resolve(code string) float64
}

type Table map[string]float64

// DefaultTable is the storefront's static promo table, in percent.
var DefaultTable = Table{
	"JEWEL10":   10,
	"SPARKLE15": 15,
	"GOLD20":    20,
	"BRIDAL25":  25,
	"DIAMOND30": 30,
}

func (t Table) Resolve(code string) float64 {
	code = Normalize(code)
	if code == "" {
		return 0
	}
	return t[code]
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
