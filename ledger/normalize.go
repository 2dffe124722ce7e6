/*
normalize.go - Record Normalizer

PURPOSE:
  Maps one loosely typed source record onto the canonical Transaction.
  Source files disagree on field names and casing (CR/cr/Credit, DATE/date,
  R_NO/BILL), so every book supplies a Schema listing the names to try.

DATE PARSING ORDER:
  1. ISO timestamp (RFC3339, with or without zone, T or space separated)
  2. DD-MM-YYYY (or DD/MM/YYYY)
  3. YYYY-MM-DD (or YYYY/MM/DD)
  4. Epoch number, milliseconds above 1e11, seconds otherwise

  Impossible calendar dates (31-02-2024) are rejected, not rolled over.
  A record whose date fails every format is dropped: Normalize returns false.

NUMBERS:
  parseFloat semantics. Thousands separators are stripped, the longest
  numeric prefix is used, anything else is zero. Absent and explicit zero
  are the same thing.
*/
package ledger

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// =============================================================================
// SCHEMA - Source field names per canonical field
// =============================================================================

// Schema lists, per canonical field, the source keys to try in order.
// Keys are matched case-insensitively.
type Schema struct {
	Date      []string
	Credit    []string
	Debit     []string
	Narration []string
	Party     []string
	Series    []string
	Book      []string
	Reference []string
	Deleted   []string
}

// DefaultSchema covers the common field names across the books.
var DefaultSchema = Schema{
	Date:      []string{"date", "DATE", "VDATE", "BILL_DATE"},
	Credit:    []string{"credit", "CR", "CR_AMT"},
	Debit:     []string{"debit", "DR", "DR_AMT"},
	Narration: []string{"narration", "NARRATION", "REMARK", "DESCRIPTION"},
	Party:     []string{"partyCode", "C_CODE", "PARTY", "PARTY_CODE"},
	Series:    []string{"series", "SERIES"},
	Book:      []string{"bookCode", "VR", "BOOK"},
	Reference: []string{"reference", "R_NO", "BILL", "VR_NO"},
	Deleted:   []string{"deleted", "deletedFlag", "DEL", "IS_DELETED"},
}

// =============================================================================
// NORMALIZER
// =============================================================================

// Normalizer converts raw records using a schema. The zero value uses
// DefaultSchema and UTC.
type Normalizer struct {
	Schema   Schema
	Location *time.Location
}

// NewNormalizer returns a normalizer for the schema in the given location.
func NewNormalizer(schema Schema, loc *time.Location) Normalizer {
	return Normalizer{Schema: schema, Location: loc}
}

func (n Normalizer) schema() Schema {
	if len(n.Schema.Date) == 0 {
		return DefaultSchema
	}
	return n.Schema
}

func (n Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.UTC
	}
	return n.Location
}

// Normalize converts a raw record. It returns false when the record must be
// skipped because no date could be parsed. Deleted records are returned with
// Deleted set; the filter stage drops them.
func (n Normalizer) Normalize(raw RawRecord) (Transaction, bool) {
	if raw == nil {
		return Transaction{}, false
	}
	s := n.schema()

	dateValue, ok := Field(raw, s.Date)
	if !ok {
		return Transaction{}, false
	}
	date, ok := ParseDateValue(dateValue, n.location())
	if !ok {
		return Transaction{}, false
	}

	tx := Transaction{Date: date}
	if v, ok := Field(raw, s.Credit); ok {
		tx.Credit = ParseAmount(v)
	}
	if v, ok := Field(raw, s.Debit); ok {
		tx.Debit = ParseAmount(v)
	}
	if v, ok := Field(raw, s.Narration); ok {
		tx.Narration = strings.TrimSpace(cast.ToString(v))
	}
	if v, ok := Field(raw, s.Party); ok {
		tx.PartyCode = NormalizeCode(cast.ToString(v))
	}
	if v, ok := Field(raw, s.Series); ok {
		tx.Series = NormalizeCode(cast.ToString(v))
	}
	if v, ok := Field(raw, s.Book); ok {
		tx.BookCode = NormalizeCode(cast.ToString(v))
	}
	if v, ok := Field(raw, s.Reference); ok {
		tx.Reference = strings.TrimSpace(cast.ToString(v))
	}
	if v, ok := Field(raw, s.Deleted); ok {
		tx.Deleted = parseDeleted(v)
	}
	return tx, true
}

// NormalizeAll converts a collection, preserving input order in Seq.
// It returns the transactions and the number of skipped records.
func (n Normalizer) NormalizeAll(raw []RawRecord) ([]Transaction, int) {
	txs := make([]Transaction, 0, len(raw))
	skipped := 0
	for i, r := range raw {
		tx, ok := n.Normalize(r)
		if !ok {
			skipped++
			continue
		}
		tx.Seq = i
		txs = append(txs, tx)
	}
	return txs, skipped
}

// NormalizeCode trims and upper-cases a classification code.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Field returns the first non-nil value among keys. Each key is tried as
// written first; failing that, the record's keys are scanned in sorted order
// for a case-insensitive match, so CR and cr in one record always resolve
// the same way.
func Field(raw RawRecord, keys []string) (any, bool) {
	var sorted []string
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
		if sorted == nil {
			sorted = make([]string, 0, len(raw))
			for rk := range raw {
				sorted = append(sorted, rk)
			}
			sort.Strings(sorted)
		}
		for _, rk := range sorted {
			if v := raw[rk]; v != nil && strings.EqualFold(rk, k) {
				return v, true
			}
		}
	}
	return nil, false
}

// =============================================================================
// DATES
// =============================================================================

var (
	isoLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	dayFirstPattern  = regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{4})$`)
	yearFirstPattern = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})$`)
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e11

// maxEpochMillis is the largest instant an ECMAScript date can hold.
const maxEpochMillis = 8.64e15

// ParseDateValue parses a date field of any supported shape.
func ParseDateValue(v any, loc *time.Location) (Date, bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch val := v.(type) {
	case Date:
		return val, !val.IsZero()
	case time.Time:
		if val.IsZero() {
			return Date{}, false
		}
		return DateOf(val.In(loc)), true
	case string:
		return parseDateString(val, loc)
	case json.Number:
		return parseDateString(val.String(), loc)
	case float64:
		return parseEpoch(val, loc)
	case float32:
		return parseEpoch(float64(val), loc)
	case int, int32, int64, uint, uint32, uint64:
		return parseEpoch(cast.ToFloat64(val), loc)
	default:
		return Date{}, false
	}
}

func parseDateString(s string, loc *time.Location) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return DateOf(t.In(loc)), true
		}
	}

	if m := dayFirstPattern.FindStringSubmatch(s); m != nil {
		return calendarDate(m[3], m[2], m[1])
	}
	if m := yearFirstPattern.FindStringSubmatch(s); m != nil {
		return calendarDate(m[1], m[2], m[3])
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return parseEpoch(f, loc)
	}
	return Date{}, false
}

func calendarDate(year, month, day string) (Date, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return Date{}, false
	}
	if m < 1 || m > 12 || d < 1 {
		return Date{}, false
	}
	date := NewDate(y, time.Month(m), d)
	if date.Time.Day() != d || date.Time.Month() != time.Month(m) {
		return Date{}, false
	}
	return date, true
}

func parseEpoch(f float64, loc *time.Location) (Date, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return Date{}, false
	}
	ms := f
	if f <= epochMillisThreshold {
		ms = f * 1000
	}
	if ms > maxEpochMillis {
		return Date{}, false
	}
	return DateOf(time.UnixMilli(int64(ms)).In(loc)), true
}

// =============================================================================
// AMOUNTS
// =============================================================================

var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseAmount converts a loosely typed amount, falling back to zero.
func ParseAmount(v any) decimal.Decimal {
	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(val)
	case float32:
		return ParseAmount(float64(val))
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case json.Number:
		return parseAmountString(val.String())
	case string:
		return parseAmountString(val)
	case bool:
		return decimal.Zero
	default:
		s, err := cast.ToStringE(val)
		if err != nil {
			return decimal.Zero
		}
		return parseAmountString(s)
	}
}

func parseAmountString(s string) decimal.Decimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	prefix := numericPrefix.FindString(s)
	if prefix == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(prefix)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// FLAGS
// =============================================================================

func parseDeleted(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch NormalizeCode(val) {
		case "Y", "YES", "D", "DEL", "DELETED", "*", "1", "T", "TRUE":
			return true
		}
		return false
	default:
		f, err := cast.ToFloat64E(val)
		return err == nil && f != 0
	}
}
