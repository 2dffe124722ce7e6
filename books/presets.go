/*
presets.go - Built-in report definitions as JSON

These functions build the JSON for the reports the distributor runs every
day. They construct JSON directly so the factory package can parse them
without an import cycle.

USAGE:
  jsonStr := books.CashBookJSON("cashbook", "Cash Book")
  def, err := factory.NewReportFactory().ParseReport([]byte(jsonStr))
*/
package books

import (
	"encoding/json"
)

// CashBookJSON returns JSON for the cash book report. Cash entries without a
// series are left out, as the counter software has always done.
func CashBookJSON(id, name string) string {
	return marshalPreset(map[string]interface{}{
		"id":           id,
		"name":         name,
		"kind":         string(KindCashBook),
		"book":         BookCashBook,
		"blank_series": "exclude",
	})
}

// PartyLedgerJSON returns JSON for a party ledger over the mixed ledger book.
func PartyLedgerJSON(id, name string) string {
	return marshalPreset(map[string]interface{}{
		"id":           id,
		"name":         name,
		"kind":         string(KindPartyLedger),
		"book":         BookLedger,
		"blank_series": "include",
	})
}

// BalanceSlipJSON returns JSON for an invoice balance slip restricted to
// the given series.
func BalanceSlipJSON(id, name string, series ...string) string {
	return marshalPreset(map[string]interface{}{
		"id":           id,
		"name":         name,
		"kind":         string(KindBalanceSlip),
		"book":         BookInvoices,
		"series":       series,
		"blank_series": "exclude",
	})
}

// OutstandingJSON returns JSON for the per-subgroup outstanding report.
// Empty subgroups means every subgroup.
func OutstandingJSON(id, name string, subgroups ...string) string {
	return marshalPreset(map[string]interface{}{
		"id":           id,
		"name":         name,
		"kind":         string(KindOutstanding),
		"book":         BookLedger,
		"blank_series": "include",
		"group": map[string]interface{}{
			"prefix_len": 2,
			"prefixes":   subgroups,
		},
	})
}

func marshalPreset(pj map[string]interface{}) string {
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}
