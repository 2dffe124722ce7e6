/*
Package ledger provides the running-balance ledger engine.

PURPOSE:
  This package turns loosely typed book records (cash book entries, invoice
  lines, party ledger postings) into a chronologically ordered report with a
  running balance. Every report type in the system is a configuration of the
  same pipeline; no report re-implements the arithmetic.

PIPELINE:
  raw JSON records -> Normalizer -> Filter -> SortChronological
                   -> Accumulate -> (optional) GroupBy -> Report

KEY CONCEPTS IN THIS FILE (types.go):
  - RawRecord:   One deserialized source object, schema varies per book
  - Transaction: The canonical record every stage works on
  - ReportRow:   One output line with its running balance
  - BalanceType: CR/DR classification of a balance

SIGN CONVENTION:
  balance[i] = balance[i-1] + credit[i] - debit[i]
  A positive balance is DR (amount owed to the business), anything else is CR.

DESIGN PRINCIPLES:
  1. Pure: no I/O, no clock reads, no state kept between calls
  2. Precision: decimal.Decimal amounts, rounded to cents at every step
  3. Forgiving input: bad records are skipped and counted, never fatal
  4. Strict collections: a missing source is an error, an empty one is not

SEE ALSO:
  - normalize.go: Raw record -> Transaction
  - filter.go:    Date range and code predicates
  - accumulate.go: Running balance
  - compute.go:   ComputeLedger, the public entry point
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUT
// =============================================================================

// RawRecord is a single source object as decoded from JSON.
type RawRecord map[string]any

// Transaction is the canonical shape of one posted financial event.
type Transaction struct {
	Date      Date
	Credit    decimal.Decimal
	Debit     decimal.Decimal
	Narration string
	PartyCode string
	Series    string
	BookCode  string // voucher prefix (VR)
	Reference string // bill or receipt number
	Deleted   bool

	// Seq is the position of the record in its source collection.
	Seq int
}

// Net returns credit minus debit.
func (t Transaction) Net() decimal.Decimal {
	return t.Credit.Sub(t.Debit)
}

// =============================================================================
// OUTPUT
// =============================================================================

type BalanceType string

const (
	BalanceCR BalanceType = "CR"
	BalanceDR BalanceType = "DR"
)

// BalanceTypeOf classifies a balance: DR when positive, CR otherwise.
func BalanceTypeOf(balance decimal.Decimal) BalanceType {
	if balance.IsPositive() {
		return BalanceDR
	}
	return BalanceCR
}

// ReportRow is one line of a produced ledger.
type ReportRow struct {
	Date             Date
	Narration        string
	Credit           decimal.Decimal
	Debit            decimal.Decimal
	Balance          decimal.Decimal
	BalanceType      BalanceType
	IsOpeningBalance bool

	PartyCode string
	Series    string
	BookCode  string
	Reference string
}

// Totals summarizes the emitted transaction rows (the opening row is excluded).
type Totals struct {
	Credit  decimal.Decimal
	Debit   decimal.Decimal
	Closing decimal.Decimal
}

// Diagnostics counts what happened to the input records.
type Diagnostics struct {
	Received int // records handed to the engine
	Skipped  int // rejected by the normalizer (bad date)
	Excluded int // parsed but filtered out (range, codes, deleted)
	Emitted  int // transaction rows in the report
}

// Report is the result of ComputeLedger.
type Report struct {
	Rows        []ReportRow
	Totals      Totals
	Groups      []Group[PartyBalance]
	Diagnostics Diagnostics
}

// OpeningRow returns the synthetic first row.
func (r *Report) OpeningRow() ReportRow {
	return r.Rows[0]
}

// TransactionRows returns every row after the opening row.
func (r *Report) TransactionRows() []ReportRow {
	return r.Rows[1:]
}
