/*
group.go - Aggregation and grouping

PURPOSE:
  Secondary pass used by the outstanding-balance views. Party balances are
  bucketed by subgroup (a 2-character party code prefix, or an explicit
  membership list) and totalled per bucket.

RULES:
  - Groups are independent: no carry-over between them
  - Groups come back in first-appearance order; the engine does not sort
    them (SortGroupsByTotalDesc is there for callers that want it)
  - Items whose key function declines them are left out entirely
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GENERIC GROUPING
// =============================================================================

// KeyFunc returns the group key for an item, or false to leave it out.
type KeyFunc[T any] func(T) (string, bool)

// Group is one bucket of items with the sum of their amounts.
type Group[T any] struct {
	Key   string
	Items []T
	Total decimal.Decimal
}

// GroupBy buckets items by key and totals them with amount.
func GroupBy[T any](items []T, key KeyFunc[T], amount func(T) decimal.Decimal) []Group[T] {
	index := make(map[string]int)
	var groups []Group[T]
	for _, item := range items {
		k, ok := key(item)
		if !ok {
			continue
		}
		i, seen := index[k]
		if !seen {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group[T]{Key: k, Total: decimal.Zero})
		}
		groups[i].Items = append(groups[i].Items, item)
		groups[i].Total = groups[i].Total.Add(amount(item))
	}
	return groups
}

// SortGroupsByTotalDesc orders groups by total, largest first. Equal totals
// are ordered by key.
func SortGroupsByTotalDesc[T any](groups []Group[T]) {
	sort.SliceStable(groups, func(i, j int) bool {
		if c := groups[i].Total.Cmp(groups[j].Total); c != 0 {
			return c > 0
		}
		return groups[i].Key < groups[j].Key
	})
}

// GrandTotal sums the totals of all groups.
func GrandTotal[T any](groups []Group[T]) decimal.Decimal {
	total := decimal.Zero
	for _, g := range groups {
		total = total.Add(g.Total)
	}
	return total
}

// =============================================================================
// PARTY BALANCES
// =============================================================================

// PartyBalance is the closing balance of one party.
type PartyBalance struct {
	PartyCode string
	Name      string
	Balance   decimal.Decimal
}

func (p PartyBalance) BalanceType() BalanceType { return BalanceTypeOf(p.Balance) }

// PartyBalanceAmount is the amount accessor used when grouping balances.
func PartyBalanceAmount(p PartyBalance) decimal.Decimal { return p.Balance }

// PartyBalances walks sorted transactions and returns each party's closing
// balance, in order of first appearance. Openings seed individual parties;
// parties that only have an opening balance are appended after the rest in
// code order. Transactions without a party code are ignored.
func PartyBalances(sorted []Transaction, openings map[string]decimal.Decimal) []PartyBalance {
	index := make(map[string]int)
	var out []PartyBalance
	for _, tx := range sorted {
		if tx.PartyCode == "" {
			continue
		}
		i, seen := index[tx.PartyCode]
		if !seen {
			i = len(out)
			index[tx.PartyCode] = i
			opening := decimal.Zero
			if o, ok := openings[tx.PartyCode]; ok {
				opening = o
			}
			out = append(out, PartyBalance{PartyCode: tx.PartyCode, Balance: opening})
		}
		out[i].Balance = Round2(out[i].Balance.Add(tx.Net()))
	}

	var rest []string
	for code := range openings {
		if _, seen := index[code]; !seen {
			rest = append(rest, code)
		}
	}
	sort.Strings(rest)
	for _, code := range rest {
		out = append(out, PartyBalance{PartyCode: code, Balance: openings[code]})
	}
	return out
}

// OutstandingOnly keeps DR (positive) balances.
func OutstandingOnly(balances []PartyBalance) []PartyBalance {
	out := make([]PartyBalance, 0, len(balances))
	for _, b := range balances {
		if b.Balance.IsPositive() {
			out = append(out, b)
		}
	}
	return out
}

// =============================================================================
// KEY FUNCTIONS
// =============================================================================

// SubgroupPrefixLen is the length of a subgroup code.
const SubgroupPrefixLen = 2

// PrefixKey groups parties by the first n characters of their code. When
// prefixes is non-empty only those subgroups are kept.
func PrefixKey(n int, prefixes CodeSet) KeyFunc[PartyBalance] {
	if n <= 0 {
		n = SubgroupPrefixLen
	}
	return func(p PartyBalance) (string, bool) {
		code := NormalizeCode(p.PartyCode)
		if len(code) < n {
			return "", false
		}
		key := code[:n]
		if !prefixes.Empty() && !prefixes.Has(key) {
			return "", false
		}
		return key, true
	}
}

// MembershipKey groups parties by an explicit party -> subgroup list.
// Parties not on the list are left out.
func MembershipKey(members map[string]string) KeyFunc[PartyBalance] {
	normalized := make(map[string]string, len(members))
	for party, subgroup := range members {
		normalized[NormalizeCode(party)] = NormalizeCode(subgroup)
	}
	return func(p PartyBalance) (string, bool) {
		key, ok := normalized[NormalizeCode(p.PartyCode)]
		return key, ok && key != ""
	}
}
