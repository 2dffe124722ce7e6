package api

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/warp/ledger-engine/ledger"
)

var displayPrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatAmount renders an amount with two decimals and Indian digit
// grouping, e.g. 12,34,567.50.
func FormatAmount(d decimal.Decimal) string {
	return displayPrinter.Sprint(number.Decimal(ledger.Round2(d).InexactFloat64(), number.Scale(2)))
}

// FormatBalance renders a balance as its magnitude followed by DR or CR.
func FormatBalance(d decimal.Decimal) string {
	return FormatAmount(d.Abs()) + " " + string(ledger.BalanceTypeOf(d))
}
