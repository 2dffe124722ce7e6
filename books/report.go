/*
report.go - Report definitions and requests

PURPOSE:
  Every report the business runs is the same ledger pipeline with a
  different configuration. A Definition is that configuration, fixed per
  report (book, series, blank-series policy, grouping). A ReportRequest is
  what the user supplies per run (dates, opening balance, parties).

MERGE RULES:
  - Request series replace definition series when given
  - Request book prefixes replace definition prefixes when given
  - Request blank-series policy overrides the definition's when set
  - Request subgroups restrict the definition's grouping prefixes

SEE ALSO:
  - factory/report.go: Builds Definitions from JSON
  - service.go: Runs them against a ledger.Source
*/
package books

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// REPORT KINDS
// =============================================================================

// Kind identifies which report a Definition produces.
type Kind string

const (
	KindBook        Kind = "book" // plain running ledger of any book
	KindCashBook    Kind = "cashbook"
	KindPartyLedger Kind = "party_ledger"
	KindBalanceSlip Kind = "balance_slip"
	KindOutstanding Kind = "outstanding"
)

// Kinds lists every report kind.
func Kinds() []Kind {
	return []Kind{KindBook, KindCashBook, KindPartyLedger, KindBalanceSlip, KindOutstanding}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// DefaultBook is the book a kind reads when its definition names none.
func (k Kind) DefaultBook() string {
	switch k {
	case KindCashBook:
		return BookCashBook
	case KindBalanceSlip:
		return BookInvoices
	default:
		return BookLedger
	}
}

// RequiresParty reports whether a run of this kind needs at least one party.
func (k Kind) RequiresParty() bool {
	return k == KindPartyLedger || k == KindBalanceSlip
}

// =============================================================================
// DEFINITION
// =============================================================================

// GroupSpec configures the outstanding grouping pass.
type GroupSpec struct {
	PrefixLen int
	Prefixes  []string
	// Members is an explicit party -> subgroup list.
	Members map[string]string
	// ByAccountSubgroup takes the membership list from the account master.
	ByAccountSubgroup bool
	IncludeCredit     bool
}

// BookDefinition is the ad-hoc definition used to view a whole book.
func BookDefinition(book string) *Definition {
	return &Definition{ID: "book:" + book, Name: book, Kind: KindBook, Book: book}
}

// Definition is a named, reusable report configuration.
type Definition struct {
	ID           string
	Name         string
	Kind         Kind
	Book         string
	Series       []string
	BookPrefixes []string
	BlankSeries  ledger.BlankSeriesPolicy
	Group        *GroupSpec
}

// =============================================================================
// REQUEST
// =============================================================================

// ReportRequest holds the per-run parameters.
type ReportRequest struct {
	From         ledger.Date
	To           ledger.Date
	Opening      decimal.Decimal
	Parties      []string
	Series       []string
	BookPrefixes []string
	BlankSeries  *ledger.BlankSeriesPolicy
	Subgroups    []string
}

// Options merges a definition with a request into engine options.
func (d *Definition) Options(req ReportRequest, loc *time.Location) (ledger.Options, error) {
	schema, err := SchemaFor(d.Book)
	if err != nil {
		return ledger.Options{}, err
	}

	parties := ledger.NewCodeSet(req.Parties...)
	if d.Kind.RequiresParty() && parties.Empty() {
		return ledger.Options{}, fmt.Errorf("%w: %s report needs a party code", ledger.ErrInvalidCriteria, d.Kind)
	}

	series := d.Series
	if len(req.Series) > 0 {
		series = req.Series
	}
	prefixes := d.BookPrefixes
	if len(req.BookPrefixes) > 0 {
		prefixes = req.BookPrefixes
	}
	blank := d.BlankSeries
	if req.BlankSeries != nil {
		blank = *req.BlankSeries
	}

	opts := ledger.Options{
		Normalizer: ledger.NewNormalizer(schema, loc),
		Criteria: ledger.Criteria{
			Range:        ledger.DateRange{From: req.From, To: req.To},
			PartyCodes:   parties,
			SeriesCodes:  ledger.NewCodeSet(series...),
			BookPrefixes: ledger.NewCodeSet(prefixes...),
			BlankSeries:  blank,
		},
		OpeningBalance: req.Opening,
	}

	if d.Kind == KindOutstanding {
		opts.Group = d.groupOptions(req)
	}
	return opts, nil
}

func (d *Definition) groupOptions(req ReportRequest) *ledger.GroupOptions {
	spec := GroupSpec{PrefixLen: ledger.SubgroupPrefixLen}
	if d.Group != nil {
		spec = *d.Group
	}
	prefixes := spec.Prefixes
	if len(req.Subgroups) > 0 {
		prefixes = req.Subgroups
	}
	return &ledger.GroupOptions{
		PrefixLen:     spec.PrefixLen,
		Prefixes:      ledger.NewCodeSet(prefixes...),
		Members:       spec.Members,
		IncludeCredit: spec.IncludeCredit,
	}
}
