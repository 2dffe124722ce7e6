package api

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/books"
	"github.com/warp/ledger-engine/ledger"
)

// ReportQuery is the query string shared by every report endpoint.
//
//	?from=2024-04-01&to=2024-04-30&opening=-1500.50
//	&party=SG001,SG002&series=A&prefix=CR&blank_series=exclude&subgroup=SG
//
// List parameters may be repeated or comma separated. The to date has no
// default; a missing to is reported by the engine.
type ReportQuery struct {
	From        string   `validate:"omitempty,datetime=2006-01-02"`
	To          string   `validate:"omitempty,datetime=2006-01-02"`
	Opening     string   `validate:"omitempty,numeric"`
	Parties     []string `validate:"dive,max=16"`
	Series      []string `validate:"dive,max=8"`
	Prefixes    []string `validate:"dive,max=8"`
	Subgroups   []string `validate:"dive,max=8"`
	BlankSeries string   `validate:"omitempty,oneof=include exclude"`
}

// QueryError reports query parameters that failed validation.
type QueryError struct {
	Fields map[string]string // parameter -> failed rule
}

func (e *QueryError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, field+":"+rule)
	}
	sort.Strings(parts)
	return "invalid query: " + strings.Join(parts, ", ")
}

func (e *QueryError) Unwrap() error { return ledger.ErrInvalidCriteria }

var queryFieldNames = map[string]string{
	"From":        "from",
	"To":          "to",
	"Opening":     "opening",
	"Parties":     "party",
	"Series":      "series",
	"Prefixes":    "prefix",
	"Subgroups":   "subgroup",
	"BlankSeries": "blank_series",
}

// parseReportQuery reads and validates the report query string.
func parseReportQuery(v *validator.Validate, values url.Values) (ReportQuery, error) {
	q := ReportQuery{
		From:        strings.TrimSpace(values.Get("from")),
		To:          strings.TrimSpace(values.Get("to")),
		Opening:     strings.ReplaceAll(strings.TrimSpace(values.Get("opening")), ",", ""),
		Parties:     splitList(values["party"]),
		Series:      splitList(values["series"]),
		Prefixes:    splitList(values["prefix"]),
		Subgroups:   splitList(values["subgroup"]),
		BlankSeries: strings.ToLower(strings.TrimSpace(values.Get("blank_series"))),
	}
	if err := v.Struct(q); err != nil {
		return q, queryError(err)
	}
	return q, nil
}

func queryError(err error) error {
	fields := make(map[string]string)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &QueryError{Fields: map[string]string{"query": err.Error()}}
	}
	for _, ve := range verrs {
		name := ve.StructField()
		if n, ok := queryFieldNames[name]; ok {
			name = n
		}
		fields[name] = ve.Tag()
	}
	return &QueryError{Fields: fields}
}

// Request converts a validated query into a report request.
func (q ReportQuery) Request() (books.ReportRequest, error) {
	var req books.ReportRequest
	var err error
	if q.From != "" {
		if req.From, err = ledger.ParseDate(q.From); err != nil {
			return req, &QueryError{Fields: map[string]string{"from": "datetime"}}
		}
	}
	if q.To != "" {
		if req.To, err = ledger.ParseDate(q.To); err != nil {
			return req, &QueryError{Fields: map[string]string{"to": "datetime"}}
		}
	}
	req.Opening = decimal.Zero
	if q.Opening != "" {
		if req.Opening, err = decimal.NewFromString(q.Opening); err != nil {
			return req, &QueryError{Fields: map[string]string{"opening": "numeric"}}
		}
	}
	req.Parties = q.Parties
	req.Series = q.Series
	req.BookPrefixes = q.Prefixes
	req.Subgroups = q.Subgroups
	if q.BlankSeries != "" {
		policy, _ := ledger.ParseBlankSeriesPolicy(q.BlankSeries)
		req.BlankSeries = &policy
	}
	return req, nil
}

// Fingerprint is a canonical form of the query, independent of parameter
// order, case and list ordering.
func (q ReportQuery) Fingerprint() string {
	norm := func(list []string) string {
		out := make([]string, 0, len(list))
		for _, s := range list {
			out = append(out, ledger.NormalizeCode(s))
		}
		sort.Strings(out)
		return strings.Join(out, ",")
	}
	return fmt.Sprintf("from=%s|to=%s|opening=%s|party=%s|series=%s|prefix=%s|subgroup=%s|blank=%s",
		q.From, q.To, q.Opening,
		norm(q.Parties), norm(q.Series), norm(q.Prefixes), norm(q.Subgroups), q.BlankSeries)
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
