/*
accumulate.go - Chronological sort and running balance

PURPOSE:
  Orders filtered transactions by day and walks them once, carrying the
  running balance forward from the caller's opening balance.

CRITICAL INVARIANTS:
  1. rows[0] is the synthetic opening row, balance == opening exactly
  2. rows[i].balance == round2(rows[i-1].balance + credit[i] - debit[i])
  3. Same-day rows keep their source order (stable sort)

ROUNDING:
  The balance is rounded to two places after every step, not once at the
  end. Totals are plain sums of the row amounts.
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CentPlaces is the currency precision of every running balance.
const CentPlaces = 2

// Round2 rounds an amount to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentPlaces)
}

// SortChronological returns a copy ordered by date ascending. Ties keep
// their input order.
func SortChronological(txs []Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// OpeningNarration is the narration of the synthetic first row.
const OpeningNarration = "Opening Balance"

// Accumulate emits the opening row followed by one row per transaction.
// The transactions must already be sorted.
func Accumulate(sorted []Transaction, opening decimal.Decimal, openingDate Date) []ReportRow {
	rows := make([]ReportRow, 0, len(sorted)+1)
	rows = append(rows, ReportRow{
		Date:             openingDate,
		Narration:        OpeningNarration,
		Credit:           decimal.Zero,
		Debit:            decimal.Zero,
		Balance:          opening,
		BalanceType:      BalanceTypeOf(opening),
		IsOpeningBalance: true,
	})

	balance := opening
	for _, tx := range sorted {
		balance = Round2(balance.Add(tx.Credit).Sub(tx.Debit))
		rows = append(rows, ReportRow{
			Date:        tx.Date,
			Narration:   tx.Narration,
			Credit:      tx.Credit,
			Debit:       tx.Debit,
			Balance:     balance,
			BalanceType: BalanceTypeOf(balance),
			PartyCode:   tx.PartyCode,
			Series:      tx.Series,
			BookCode:    tx.BookCode,
			Reference:   tx.Reference,
		})
	}
	return rows
}
