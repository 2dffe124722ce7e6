package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// COMPUTE LEDGER - Public entry point
// =============================================================================

// GroupOptions enables the outstanding-balance grouping pass.
type GroupOptions struct {
	// PrefixLen is the subgroup code length (default 2).
	PrefixLen int
	// Prefixes restricts prefix grouping to these subgroups.
	Prefixes CodeSet
	// Members, when set, replaces prefix grouping with an explicit
	// party -> subgroup list.
	Members map[string]string
	// Openings seeds individual party balances.
	Openings map[string]decimal.Decimal
	// Names labels party balances.
	Names map[string]string
	// IncludeCredit keeps CR balances, which are dropped by default.
	IncludeCredit bool
}

func (g *GroupOptions) keyFunc() KeyFunc[PartyBalance] {
	if len(g.Members) > 0 {
		return MembershipKey(g.Members)
	}
	return PrefixKey(g.PrefixLen, g.Prefixes)
}

// Options parameterizes one report computation.
type Options struct {
	Normalizer     Normalizer
	Criteria       Criteria
	OpeningBalance decimal.Decimal
	Group          *GroupOptions
}

// ComputeLedger runs the whole pipeline over one collection of raw records.
//
// A nil collection means the source produced nothing and yields
// ErrSourceUnavailable. A non-nil empty collection, or one that filters to
// nothing, yields a report holding just the opening row.
func ComputeLedger(raw []RawRecord, opts Options) (*Report, error) {
	if raw == nil {
		return nil, &SourceError{Book: "input"}
	}
	if err := opts.Criteria.Validate(); err != nil {
		return nil, err
	}

	normalized, skipped := opts.Normalizer.NormalizeAll(raw)
	return computeNormalized(normalized, opts, Diagnostics{Received: len(raw), Skipped: skipped})
}

// ComputeTransactions runs the pipeline over already normalized transactions.
func ComputeTransactions(txs []Transaction, opts Options) (*Report, error) {
	if txs == nil {
		return nil, &SourceError{Book: "input"}
	}
	if err := opts.Criteria.Validate(); err != nil {
		return nil, err
	}
	return computeNormalized(txs, opts, Diagnostics{Received: len(txs)})
}

func computeNormalized(txs []Transaction, opts Options, diag Diagnostics) (*Report, error) {
	filtered := Filter(txs, opts.Criteria)
	sorted := SortChronological(filtered)

	openingDate := opts.Criteria.Range.From
	if openingDate.IsZero() && len(sorted) > 0 {
		openingDate = sorted[0].Date
	}

	rows := Accumulate(sorted, opts.OpeningBalance, openingDate)

	report := &Report{Rows: rows, Totals: totalsOf(rows)}
	diag.Emitted = len(sorted)
	diag.Excluded = len(txs) - len(filtered)
	report.Diagnostics = diag

	if opts.Group != nil {
		// Outstanding is a position as of To. Openings from the account
		// master predate every posting, so From does not apply here.
		asOf := opts.Criteria
		asOf.Range.From = Date{}
		balances := PartyBalances(SortChronological(Filter(txs, asOf)), opts.Group.Openings)
		for i := range balances {
			balances[i].Name = opts.Group.Names[balances[i].PartyCode]
		}
		if !opts.Group.IncludeCredit {
			balances = OutstandingOnly(balances)
		}
		report.Groups = GroupBy(balances, opts.Group.keyFunc(), PartyBalanceAmount)
	}
	return report, nil
}

func totalsOf(rows []ReportRow) Totals {
	t := Totals{Credit: decimal.Zero, Debit: decimal.Zero}
	for _, r := range rows {
		if r.IsOpeningBalance {
			continue
		}
		t.Credit = t.Credit.Add(r.Credit)
		t.Debit = t.Debit.Add(r.Debit)
	}
	t.Closing = rows[len(rows)-1].Balance
	return t
}
