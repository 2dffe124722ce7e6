package ledger_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !dec(want).Equal(got) {
		assert.Fail(t, fmt.Sprintf("amount mismatch: want %s, got %s", want, got.String()), msgAndArgs...)
	}
}

func april(day int) ledger.Date {
	return ledger.NewDate(2024, time.April, day)
}

func rangeOpts(from, to ledger.Date) ledger.Options {
	return ledger.Options{
		Criteria: ledger.Criteria{Range: ledger.DateRange{From: from, To: to}},
	}
}

func cashBookRecords() []ledger.RawRecord {
	return []ledger.RawRecord{
		{"date": "2024-04-01", "credit": 1000.0},
		{"date": "2024-04-03", "debit": 400.0},
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestComputeLedger_RunningBalance(t *testing.T) {
	// GIVEN: A credit of 1000 then a debit of 400, opening balance 0
	// WHEN: The range covers both
	// THEN: opening(0), 1000 DR, 600 DR

	report, err := ledger.ComputeLedger(cashBookRecords(), rangeOpts(april(1), april(30)))
	require.NoError(t, err)
	require.Len(t, report.Rows, 3)

	opening := report.Rows[0]
	assert.True(t, opening.IsOpeningBalance)
	assertAmount(t, "0", opening.Balance)
	assert.Equal(t, ledger.BalanceCR, opening.BalanceType)

	assertAmount(t, "1000", report.Rows[1].Balance)
	assert.Equal(t, ledger.BalanceDR, report.Rows[1].BalanceType)
	assertAmount(t, "600", report.Rows[2].Balance)
	assert.Equal(t, ledger.BalanceDR, report.Rows[2].BalanceType)

	assertAmount(t, "1000", report.Totals.Credit)
	assertAmount(t, "400", report.Totals.Debit)
	assertAmount(t, "600", report.Totals.Closing)
}

func TestComputeLedger_ToDateCutsOff(t *testing.T) {
	// GIVEN: The three cash book records
	// WHEN: to = 2024-04-01
	// THEN: opening row plus the first transaction only, total debit 0

	report, err := ledger.ComputeLedger(cashBookRecords(), rangeOpts(april(1), april(1)))
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)
	assert.True(t, report.Rows[0].IsOpeningBalance)
	assertAmount(t, "1000", report.Rows[1].Balance)
	assertAmount(t, "0", report.Totals.Debit)
	assert.Equal(t, 1, report.Diagnostics.Excluded)
}

func TestComputeLedger_InvalidCalendarDateDropped(t *testing.T) {
	// GIVEN: A record dated 31-02-2024
	// WHEN: Computing any report
	// THEN: No row, no error, the record counts as skipped

	raw := []ledger.RawRecord{
		{"date": "31-02-2024", "credit": 500.0},
		{"date": "2024-02-10", "credit": 100.0},
	}
	report, err := ledger.ComputeLedger(raw, rangeOpts(ledger.NewDate(2024, time.January, 1), ledger.NewDate(2024, time.December, 31)))
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)
	assertAmount(t, "100", report.Totals.Credit)
	assert.Equal(t, 1, report.Diagnostics.Skipped)
}

func TestGroupBy_PrefixGrouping(t *testing.T) {
	// GIVEN: Balances for SG001, SG002 and AA001
	// WHEN: Grouping by 2-char prefix restricted to {SG}
	// THEN: One SG group totalling 800; AA left out

	balances := []ledger.PartyBalance{
		{PartyCode: "SG001", Balance: dec("500")},
		{PartyCode: "SG002", Balance: dec("300")},
		{PartyCode: "AA001", Balance: dec("200")},
	}
	groups := ledger.GroupBy(balances, ledger.PrefixKey(2, ledger.NewCodeSet("SG")), ledger.PartyBalanceAmount)

	require.Len(t, groups, 1)
	assert.Equal(t, "SG", groups[0].Key)
	assertAmount(t, "800", groups[0].Total)
	require.Len(t, groups[0].Items, 2)
	assert.Equal(t, "SG001", groups[0].Items[0].PartyCode)
	assert.Equal(t, "SG002", groups[0].Items[1].PartyCode)
}

// =============================================================================
// INVARIANTS
// =============================================================================

func TestComputeLedger_RunningBalanceInvariant(t *testing.T) {
	raw := []ledger.RawRecord{
		{"date": "2024-04-05", "credit": "0.105"},
		{"date": "2024-04-02", "debit": "10.333"},
		{"date": "2024-04-02", "credit": "99.999"},
		{"date": "2024-04-09", "debit": 0.015},
		{"date": "2024-04-07", "credit": "1,250.50"},
	}
	opening := dec("-42.37")
	opts := rangeOpts(april(1), april(30))
	opts.OpeningBalance = opening

	report, err := ledger.ComputeLedger(raw, opts)
	require.NoError(t, err)
	require.Len(t, report.Rows, 6)

	assert.True(t, report.Rows[0].Balance.Equal(opening), "opening balance must be exact")
	for i := 1; i < len(report.Rows); i++ {
		prev, row := report.Rows[i-1], report.Rows[i]
		want := ledger.Round2(prev.Balance.Add(row.Credit).Sub(row.Debit))
		assert.True(t, want.Equal(row.Balance), "row %d: want %s got %s", i, want, row.Balance)
		assert.False(t, row.Date.Before(prev.Date), "row %d out of order", i)
		assert.False(t, row.IsOpeningBalance)
	}
}

func TestComputeLedger_OpeningRowSurvivesEmptyFilter(t *testing.T) {
	// GIVEN: Records all outside the range
	// THEN: Only the opening row, with the caller's balance

	opts := rangeOpts(ledger.NewDate(2023, time.January, 1), ledger.NewDate(2023, time.January, 31))
	opts.OpeningBalance = dec("1234.567")

	report, err := ledger.ComputeLedger(cashBookRecords(), opts)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.True(t, report.Rows[0].IsOpeningBalance)
	assertAmount(t, "1234.567", report.Rows[0].Balance)
	assertAmount(t, "1234.567", report.Totals.Closing)
	assert.Equal(t, ledger.NewDate(2023, time.January, 1), report.Rows[0].Date)
}

func TestComputeLedger_SameDayOrderIsStable(t *testing.T) {
	raw := []ledger.RawRecord{
		{"date": "2024-04-03", "narration": "late", "credit": 1.0},
		{"date": "2024-04-02", "narration": "first", "credit": 1.0},
		{"date": "02-04-2024", "narration": "second", "debit": 1.0},
		{"date": "2024-04-02T10:00:00", "narration": "third", "credit": 5.0},
	}
	report, err := ledger.ComputeLedger(raw, rangeOpts(april(1), april(30)))
	require.NoError(t, err)

	var narrations []string
	for _, r := range report.TransactionRows() {
		narrations = append(narrations, r.Narration)
	}
	assert.Equal(t, []string{"first", "second", "third", "late"}, narrations)
}

func TestComputeLedger_Idempotent(t *testing.T) {
	raw := []ledger.RawRecord{
		{"DATE": "01-04-2024", "CR": "1000", "C_CODE": "SG001", "SERIES": "A"},
		{"DATE": "2024-04-02", "DR": "250.75", "C_CODE": "SG002", "SERIES": "A"},
		{"DATE": "2024-04-02", "CR": "80", "C_CODE": "AA001", "SERIES": "B"},
	}
	opts := rangeOpts(april(1), april(30))
	opts.Group = &ledger.GroupOptions{}

	first, err := ledger.ComputeLedger(raw, opts)
	require.NoError(t, err)
	second, err := ledger.ComputeLedger(raw, opts)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestComputeLedger_DeletedRecordsNeverAppear(t *testing.T) {
	raw := []ledger.RawRecord{
		{"date": "2024-04-01", "credit": 100.0},
		{"date": "2024-04-02", "credit": 900.0, "DEL": "Y"},
		{"date": "2024-04-03", "debit": 50.0, "deletedFlag": true},
	}
	report, err := ledger.ComputeLedger(raw, rangeOpts(april(1), april(30)))
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)
	assertAmount(t, "100", report.Totals.Closing)
	assert.Equal(t, 2, report.Diagnostics.Excluded)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestComputeLedger_InvalidRangeRejected(t *testing.T) {
	_, err := ledger.ComputeLedger(cashBookRecords(), rangeOpts(april(10), april(1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInvalidRange)
	assert.True(t, ledger.IsClientError(err))

	var rangeErr *ledger.RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, april(10), rangeErr.From)
}

func TestComputeLedger_ToDateRequired(t *testing.T) {
	_, err := ledger.ComputeLedger(cashBookRecords(), ledger.Options{})
	assert.ErrorIs(t, err, ledger.ErrToDateRequired)
	assert.True(t, ledger.IsClientError(err))
}

func TestComputeLedger_NilSourceIsDistinctFromEmpty(t *testing.T) {
	_, err := ledger.ComputeLedger(nil, rangeOpts(april(1), april(30)))
	require.Error(t, err)
	assert.True(t, ledger.IsSourceUnavailable(err))
	assert.False(t, ledger.IsClientError(err))

	report, err := ledger.ComputeLedger([]ledger.RawRecord{}, rangeOpts(april(1), april(30)))
	require.NoError(t, err)
	assert.Len(t, report.Rows, 1)
}

func TestComputeLedger_OpenStartUsesFirstRowDate(t *testing.T) {
	report, err := ledger.ComputeLedger(cashBookRecords(), rangeOpts(ledger.Date{}, april(30)))
	require.NoError(t, err)
	assert.Equal(t, april(1), report.Rows[0].Date)
}

// =============================================================================
// GROUPING THROUGH COMPUTE
// =============================================================================

func TestComputeLedger_GroupsOutstandingBySubgroup(t *testing.T) {
	// GIVEN: Postings for three SG parties and one AA party
	// WHEN: Grouping is enabled for {SG} with a party opening balance
	// THEN: Only DR balances are grouped; SG003 is CR and left out

	raw := []ledger.RawRecord{
		{"date": "2024-04-01", "credit": 500.0, "partyCode": "sg001"},
		{"date": "2024-04-02", "credit": 300.0, "partyCode": "SG002"},
		{"date": "2024-04-02", "debit": 100.0, "partyCode": "SG003"},
		{"date": "2024-04-03", "credit": 200.0, "partyCode": "AA001"},
		{"date": "2024-04-04", "debit": 50.0, "partyCode": "SG001"},
	}
	opts := rangeOpts(april(1), april(30))
	opts.Group = &ledger.GroupOptions{
		Prefixes: ledger.NewCodeSet("SG"),
		Openings: map[string]decimal.Decimal{"SG002": dec("25")},
		Names:    map[string]string{"SG001": "Sharma General"},
	}

	report, err := ledger.ComputeLedger(raw, opts)
	require.NoError(t, err)
	require.Len(t, report.Groups, 1)

	sg := report.Groups[0]
	assert.Equal(t, "SG", sg.Key)
	assertAmount(t, "775", sg.Total)
	require.Len(t, sg.Items, 2)
	assert.Equal(t, "Sharma General", sg.Items[0].Name)
	assertAmount(t, "450", sg.Items[0].Balance)
	assertAmount(t, "325", sg.Items[1].Balance)
}

func TestComputeLedger_GroupBalancesAsOfToDate(t *testing.T) {
	// GIVEN: A party with postings before and inside the window
	raw := []ledger.RawRecord{
		{"date": "2024-03-15", "credit": 1000.0, "partyCode": "SG001"},
		{"date": "2024-04-02", "credit": 100.0, "partyCode": "SG001"},
		{"date": "2024-05-02", "credit": 7.0, "partyCode": "SG001"},
	}
	opts := rangeOpts(april(1), april(30))
	opts.Group = &ledger.GroupOptions{Openings: map[string]decimal.Decimal{"SG001": dec("50")}}

	// WHEN: Computing with a from date
	report, err := ledger.ComputeLedger(raw, opts)
	require.NoError(t, err)

	// THEN: The group holds everything up to the to date, the rows only the window
	require.Len(t, report.Groups, 1)
	assertAmount(t, "1150", report.Groups[0].Total)
	assert.Equal(t, 1, report.Diagnostics.Emitted)
}

func TestGroupBy_MembershipList(t *testing.T) {
	balances := []ledger.PartyBalance{
		{PartyCode: "X1", Balance: dec("10")},
		{PartyCode: "Y1", Balance: dec("20")},
		{PartyCode: "Z1", Balance: dec("40")},
	}
	groups := ledger.GroupBy(balances, ledger.MembershipKey(map[string]string{"x1": "north", "Z1": "north", "Y1": "south"}), ledger.PartyBalanceAmount)
	ledger.SortGroupsByTotalDesc(groups)

	require.Len(t, groups, 2)
	assert.Equal(t, "NORTH", groups[0].Key)
	assertAmount(t, "50", groups[0].Total)
	assert.Equal(t, "SOUTH", groups[1].Key)
	assertAmount(t, "70", ledger.GrandTotal(groups))
}
