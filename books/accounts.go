package books

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// ACCOUNT MASTER
// =============================================================================

// Account is one party in the account master.
type Account struct {
	Code     string
	Name     string
	Subgroup string
	Opening  decimal.Decimal // signed, DR positive
}

var (
	accountCodeKeys     = []string{"C_CODE", "CODE", "code", "partyCode"}
	accountNameKeys     = []string{"C_NAME", "NAME", "name"}
	accountSubgroupKeys = []string{"SUBGROUP", "SG", "subgroup"}
	accountOpeningKeys  = []string{"OP_BAL", "OPENING", "openingBalance"}
	accountOpTypeKeys   = []string{"OP_TYPE", "BAL_TYPE"}
)

// ParseAccounts reads account master records. Records without a code are
// skipped and counted.
func ParseAccounts(raw []ledger.RawRecord) ([]Account, int) {
	accounts := make([]Account, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		code := ledger.NormalizeCode(cast.ToString(first(r, accountCodeKeys)))
		if code == "" {
			skipped++
			continue
		}
		acc := Account{
			Code:     code,
			Name:     strings.TrimSpace(cast.ToString(first(r, accountNameKeys))),
			Subgroup: ledger.NormalizeCode(cast.ToString(first(r, accountSubgroupKeys))),
			Opening:  ledger.ParseAmount(first(r, accountOpeningKeys)),
		}
		if ledger.NormalizeCode(cast.ToString(first(r, accountOpTypeKeys))) == string(ledger.BalanceCR) {
			acc.Opening = acc.Opening.Abs().Neg()
		}
		accounts = append(accounts, acc)
	}
	return accounts, skipped
}

// AccountIndex gives quick access to the account master.
type AccountIndex struct {
	Openings map[string]decimal.Decimal
	Names    map[string]string
	Members  map[string]string // party -> subgroup
}

// IndexAccounts builds the lookup maps used by the grouping pass.
func IndexAccounts(accounts []Account) AccountIndex {
	idx := AccountIndex{
		Openings: make(map[string]decimal.Decimal, len(accounts)),
		Names:    make(map[string]string, len(accounts)),
		Members:  make(map[string]string, len(accounts)),
	}
	for _, a := range accounts {
		if !a.Opening.IsZero() {
			idx.Openings[a.Code] = a.Opening
		}
		idx.Names[a.Code] = a.Name
		if a.Subgroup != "" {
			idx.Members[a.Code] = a.Subgroup
		}
	}
	return idx
}

func first(r ledger.RawRecord, keys []string) any {
	v, _ := ledger.Field(r, keys)
	return v
}
