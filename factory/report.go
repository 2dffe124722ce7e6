/*
Package factory provides JSON to Go report definition conversion.

PURPOSE:
  Converts JSON report definitions into books.Definition values, so that
  the office can add a report (a new series slip, a subgroup list) by
  editing a file instead of shipping a build.

JSON SCHEMA:
  {
    "id": "slip-a",
    "name": "Balance Slip (A series)",
    "kind": "balance_slip",
    "book": "invoices",
    "series": ["A"],
    "book_prefixes": [],
    "blank_series": "exclude",
    "group": {
      "prefix_len": 2,
      "prefixes": ["SG"],
      "members": {"SG001": "NORTH"},
      "by_account_subgroup": false,
      "include_credit": false
    }
  }

DEFAULTS:
  - book: the kind's default book (cashbook, invoices or ledger)
  - blank_series: "exclude"
  - group.prefix_len: 2 (outstanding only)

USAGE:
  f := factory.NewReportFactory()
  def, err := f.ParseReport([]byte(books.CashBookJSON("cashbook", "Cash Book")))

SEE ALSO:
  - books/report.go: Definition type
  - books/presets.go: Built-in report JSON
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/warp/ledger-engine/books"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ReportJSON is the JSON representation of a report definition.
type ReportJSON struct {
	ID           string     `json:"id" validate:"required,max=64"`
	Name         string     `json:"name" validate:"required"`
	Kind         string     `json:"kind" validate:"required,oneof=book cashbook party_ledger balance_slip outstanding"`
	Book         string     `json:"book,omitempty" validate:"omitempty,oneof=cashbook invoices ledger"`
	Series       []string   `json:"series,omitempty" validate:"dive,max=8"`
	BookPrefixes []string   `json:"book_prefixes,omitempty" validate:"dive,max=8"`
	BlankSeries  string     `json:"blank_series,omitempty" validate:"omitempty,oneof=include exclude"`
	Group        *GroupJSON `json:"group,omitempty"`
}

// GroupJSON represents the outstanding grouping configuration.
type GroupJSON struct {
	PrefixLen         int               `json:"prefix_len,omitempty" validate:"gte=0,lte=8"`
	Prefixes          []string          `json:"prefixes,omitempty"`
	Members           map[string]string `json:"members,omitempty"`
	ByAccountSubgroup bool              `json:"by_account_subgroup,omitempty"`
	IncludeCredit     bool              `json:"include_credit,omitempty"`
}

// =============================================================================
// REPORT FACTORY
// =============================================================================

// ReportFactory converts JSON report definitions to books.Definition.
type ReportFactory struct {
	validate *validator.Validate
}

// NewReportFactory creates a new report factory.
func NewReportFactory() *ReportFactory {
	return &ReportFactory{validate: validator.New()}
}

// ParseReport parses one JSON report definition.
func (f *ReportFactory) ParseReport(data []byte) (*books.Definition, error) {
	var rj ReportJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return nil, fmt.Errorf("failed to parse report JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// ParseReports parses a JSON array of report definitions. IDs must be unique.
func (f *ReportFactory) ParseReports(data []byte) ([]*books.Definition, error) {
	var list []ReportJSON
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse report list JSON: %w", err)
	}

	seen := make(map[string]bool, len(list))
	defs := make([]*books.Definition, 0, len(list))
	for i, rj := range list {
		def, err := f.FromJSON(rj)
		if err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("report %d: duplicate id %q", i, def.ID)
		}
		seen[def.ID] = true
		defs = append(defs, def)
	}
	return defs, nil
}

// FromJSON validates a ReportJSON and converts it.
func (f *ReportFactory) FromJSON(rj ReportJSON) (*books.Definition, error) {
	if err := f.validate.Struct(rj); err != nil {
		return nil, &DefinitionError{ID: rj.ID, Fields: validationFields(err)}
	}

	kind := books.Kind(rj.Kind)
	def := &books.Definition{
		ID:           rj.ID,
		Name:         rj.Name,
		Kind:         kind,
		Book:         rj.Book,
		Series:       cleanCodes(rj.Series),
		BookPrefixes: cleanCodes(rj.BookPrefixes),
		BlankSeries:  ledger.BlankSeriesExclude,
	}
	if def.Book == "" {
		def.Book = kind.DefaultBook()
	}
	if rj.BlankSeries != "" {
		def.BlankSeries, _ = ledger.ParseBlankSeriesPolicy(rj.BlankSeries)
	}

	if kind == books.KindOutstanding {
		def.Group = parseGroup(rj.Group)
	} else if rj.Group != nil {
		return nil, &DefinitionError{ID: rj.ID, Fields: map[string]string{"Group": "outstanding_only"}}
	}
	return def, nil
}

func parseGroup(gj *GroupJSON) *books.GroupSpec {
	spec := &books.GroupSpec{PrefixLen: ledger.SubgroupPrefixLen}
	if gj == nil {
		return spec
	}
	if gj.PrefixLen > 0 {
		spec.PrefixLen = gj.PrefixLen
	}
	spec.Prefixes = cleanCodes(gj.Prefixes)
	spec.ByAccountSubgroup = gj.ByAccountSubgroup
	spec.IncludeCredit = gj.IncludeCredit
	if len(gj.Members) > 0 {
		spec.Members = make(map[string]string, len(gj.Members))
		for party, sg := range gj.Members {
			spec.Members[ledger.NormalizeCode(party)] = ledger.NormalizeCode(sg)
		}
	}
	return spec
}

func cleanCodes(codes []string) []string {
	var out []string
	for _, c := range codes {
		if c = ledger.NormalizeCode(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// LOADING
// =============================================================================

// Defaults returns the built-in report definitions.
func Defaults() []*books.Definition {
	f := NewReportFactory()
	presets := []string{
		books.CashBookJSON("cashbook", "Cash Book"),
		books.PartyLedgerJSON("party-ledger", "Party Ledger"),
		books.BalanceSlipJSON("balance-slip", "Balance Slip"),
		books.OutstandingJSON("outstanding", "Outstanding by Subgroup"),
	}
	defs := make([]*books.Definition, 0, len(presets))
	for _, p := range presets {
		def, err := f.ParseReport([]byte(p))
		if err != nil {
			panic(fmt.Sprintf("factory: invalid built-in report: %v", err))
		}
		defs = append(defs, def)
	}
	return defs
}

// LoadDefinitions reads a JSON array of definitions from path. Definitions
// in the file replace built-in ones with the same id; the rest of the
// built-ins are kept.
func LoadDefinitions(path string) ([]*books.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report definitions: %w", err)
	}
	loaded, err := NewReportFactory().ParseReports(data)
	if err != nil {
		return nil, err
	}

	overridden := make(map[string]bool, len(loaded))
	for _, d := range loaded {
		overridden[d.ID] = true
	}
	merged := loaded
	for _, d := range Defaults() {
		if !overridden[d.ID] {
			merged = append(merged, d)
		}
	}
	return merged, nil
}

// =============================================================================
// ERRORS
// =============================================================================

// DefinitionError reports an invalid report definition.
type DefinitionError struct {
	ID     string
	Fields map[string]string // field -> failed rule
}

func (e *DefinitionError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, field+":"+rule)
	}
	sort.Strings(parts)
	return fmt.Sprintf("invalid report definition %q: %s", e.ID, strings.Join(parts, ", "))
}

func validationFields(err error) map[string]string {
	out := make(map[string]string)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["_"] = err.Error()
		return out
	}
	for _, ve := range verrs {
		out[ve.Field()] = ve.Tag()
	}
	return out
}
