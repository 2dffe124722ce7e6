/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Amounts leave the
  engine as decimals and are sent as float64 plus a display string
  formatted the Indian way (12,34,567.00).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Query: Parsed query strings

TYPES:
  Reports:
    ReportDTO, RowDTO, TotalsDTO, GroupDTO, PartyBalanceDTO, DiagnosticsDTO

  Catalog:
    BookDTO, ReportDefinitionDTO

SEE ALSO:
  - handlers.go: Uses these types
  - query.go: Query parsing and validation
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/books"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// ReportDTO is one computed ledger report.
type ReportDTO struct {
	ReportID    string         `json:"report_id"`
	Kind        string         `json:"kind"`
	Book        string         `json:"book"`
	From        string         `json:"from,omitempty"`
	To          string         `json:"to"`
	Rows        []RowDTO       `json:"rows"`
	Totals      TotalsDTO      `json:"totals"`
	Groups      []GroupDTO     `json:"groups,omitempty"`
	Diagnostics DiagnosticsDTO `json:"diagnostics"`
}

// RowDTO is one report line.
type RowDTO struct {
	Date             string  `json:"date"`
	Narration        string  `json:"narration"`
	Credit           float64 `json:"credit"`
	Debit            float64 `json:"debit"`
	Balance          float64 `json:"balance"`
	BalanceType      string  `json:"balance_type"`
	BalanceDisplay   string  `json:"balance_display"`
	IsOpeningBalance bool    `json:"is_opening_balance"`
	PartyCode        string  `json:"party_code,omitempty"`
	Series           string  `json:"series,omitempty"`
	BookCode         string  `json:"book_code,omitempty"`
	Reference        string  `json:"reference,omitempty"`
}

// TotalsDTO holds the report totals.
type TotalsDTO struct {
	Credit         float64 `json:"credit"`
	Debit          float64 `json:"debit"`
	Closing        float64 `json:"closing"`
	ClosingType    string  `json:"closing_type"`
	ClosingDisplay string  `json:"closing_display"`
}

// GroupDTO is one subgroup of the outstanding view.
type GroupDTO struct {
	Subgroup     string            `json:"subgroup"`
	Total        float64           `json:"total"`
	TotalDisplay string            `json:"total_display"`
	Parties      []PartyBalanceDTO `json:"parties"`
}

// PartyBalanceDTO is one party's closing balance.
type PartyBalanceDTO struct {
	PartyCode      string  `json:"party_code"`
	Name           string  `json:"name,omitempty"`
	Balance        float64 `json:"balance"`
	BalanceType    string  `json:"balance_type"`
	BalanceDisplay string  `json:"balance_display"`
}

// DiagnosticsDTO reports what happened to the input records.
type DiagnosticsDTO struct {
	Received int `json:"received"`
	Skipped  int `json:"skipped"`
	Excluded int `json:"excluded"`
	Emitted  int `json:"emitted"`
}

// =============================================================================
// CATALOG TYPES
// =============================================================================

// BookDTO describes a stored book.
type BookDTO struct {
	Name       string `json:"name"`
	Reportable bool   `json:"reportable"`
}

// AccountDTO is one entry of the account master.
type AccountDTO struct {
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	Subgroup       string  `json:"subgroup,omitempty"`
	Opening        float64 `json:"opening"`
	OpeningDisplay string  `json:"opening_display"`
}

// ReportDefinitionDTO describes a configured report.
type ReportDefinitionDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Book         string   `json:"book"`
	Series       []string `json:"series,omitempty"`
	BookPrefixes []string `json:"book_prefixes,omitempty"`
	BlankSeries  string   `json:"blank_series"`
	NeedsParty   bool     `json:"needs_party"`
}

// AppendResponse is returned after records are stored.
type AppendResponse struct {
	Book     string `json:"book"`
	Appended int    `json:"appended"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func amount(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func toReportDTO(def *books.Definition, req books.ReportRequest, r *ledger.Report) ReportDTO {
	dto := ReportDTO{
		ReportID: def.ID,
		Kind:     string(def.Kind),
		Book:     def.Book,
		From:     req.From.String(),
		To:       req.To.String(),
		Rows:     make([]RowDTO, len(r.Rows)),
		Totals: TotalsDTO{
			Credit:         amount(r.Totals.Credit),
			Debit:          amount(r.Totals.Debit),
			Closing:        amount(r.Totals.Closing),
			ClosingType:    string(ledger.BalanceTypeOf(r.Totals.Closing)),
			ClosingDisplay: FormatBalance(r.Totals.Closing),
		},
		Diagnostics: DiagnosticsDTO{
			Received: r.Diagnostics.Received,
			Skipped:  r.Diagnostics.Skipped,
			Excluded: r.Diagnostics.Excluded,
			Emitted:  r.Diagnostics.Emitted,
		},
	}

	for i, row := range r.Rows {
		dto.Rows[i] = RowDTO{
			Date:             row.Date.String(),
			Narration:        row.Narration,
			Credit:           amount(row.Credit),
			Debit:            amount(row.Debit),
			Balance:          amount(row.Balance),
			BalanceType:      string(row.BalanceType),
			BalanceDisplay:   FormatBalance(row.Balance),
			IsOpeningBalance: row.IsOpeningBalance,
			PartyCode:        row.PartyCode,
			Series:           row.Series,
			BookCode:         row.BookCode,
			Reference:        row.Reference,
		}
	}

	for _, g := range r.Groups {
		gd := GroupDTO{
			Subgroup:     g.Key,
			Total:        amount(g.Total),
			TotalDisplay: FormatAmount(g.Total),
			Parties:      make([]PartyBalanceDTO, len(g.Items)),
		}
		for i, p := range g.Items {
			gd.Parties[i] = PartyBalanceDTO{
				PartyCode:      p.PartyCode,
				Name:           p.Name,
				Balance:        amount(p.Balance),
				BalanceType:    string(p.BalanceType()),
				BalanceDisplay: FormatBalance(p.Balance),
			}
		}
		dto.Groups = append(dto.Groups, gd)
	}
	return dto
}

func toDefinitionDTO(d *books.Definition) ReportDefinitionDTO {
	return ReportDefinitionDTO{
		ID:           d.ID,
		Name:         d.Name,
		Kind:         string(d.Kind),
		Book:         d.Book,
		Series:       d.Series,
		BookPrefixes: d.BookPrefixes,
		BlankSeries:  d.BlankSeries.String(),
		NeedsParty:   d.Kind.RequiresParty(),
	}
}
