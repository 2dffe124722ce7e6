package ledger

import "strings"

// =============================================================================
// CODE SET - Membership tests for party/series/book codes
// =============================================================================

// CodeSet is a set of normalized codes. A nil or empty set means "no filter".
type CodeSet map[string]struct{}

// NewCodeSet builds a set from codes, normalizing and skipping blanks.
func NewCodeSet(codes ...string) CodeSet {
	set := make(CodeSet, len(codes))
	for _, c := range codes {
		if c = NormalizeCode(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

func (s CodeSet) Has(code string) bool {
	_, ok := s[NormalizeCode(code)]
	return ok
}

func (s CodeSet) Empty() bool { return len(s) == 0 }

// HasPrefixOf reports whether code starts with any member of the set.
func (s CodeSet) HasPrefixOf(code string) bool {
	code = NormalizeCode(code)
	for prefix := range s {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

// =============================================================================
// CRITERIA
// =============================================================================

// BlankSeriesPolicy decides what happens to records without a series when
// no series filter is given.
type BlankSeriesPolicy int

const (
	// BlankSeriesInclude keeps unlabeled records.
	BlankSeriesInclude BlankSeriesPolicy = iota
	// BlankSeriesExclude drops unlabeled records. The legacy cash book and
	// invoice reports ran this way; their definitions set it explicitly.
	BlankSeriesExclude
)

func (p BlankSeriesPolicy) String() string {
	if p == BlankSeriesExclude {
		return "exclude"
	}
	return "include"
}

// ParseBlankSeriesPolicy accepts "include" or "exclude". Empty means include.
func ParseBlankSeriesPolicy(s string) (BlankSeriesPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "include":
		return BlankSeriesInclude, true
	case "exclude":
		return BlankSeriesExclude, true
	}
	return BlankSeriesInclude, false
}

// Criteria selects which transactions a report covers.
type Criteria struct {
	Range        DateRange
	PartyCodes   CodeSet
	SeriesCodes  CodeSet
	BookPrefixes CodeSet
	BlankSeries  BlankSeriesPolicy
}

func (c Criteria) Validate() error {
	return c.Range.Validate()
}

// Match reports whether a single transaction passes every predicate.
func (c Criteria) Match(tx Transaction) bool {
	if tx.Deleted {
		return false
	}
	if !c.Range.Contains(tx.Date) {
		return false
	}
	if !c.PartyCodes.Empty() && !c.PartyCodes.Has(tx.PartyCode) {
		return false
	}
	if !c.SeriesCodes.Empty() {
		if tx.Series == "" || !c.SeriesCodes.Has(tx.Series) {
			return false
		}
	} else if tx.Series == "" && c.BlankSeries == BlankSeriesExclude {
		return false
	}
	if !c.BookPrefixes.Empty() && !c.BookPrefixes.HasPrefixOf(tx.BookCode) {
		return false
	}
	return true
}

// Filter returns the transactions matching the criteria in their input
// order. The input slice is not modified.
func Filter(txs []Transaction, c Criteria) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if c.Match(tx) {
			out = append(out, tx)
		}
	}
	return out
}
