// Package books adapts the distributor's source files to the ledger engine.
// Each book gets a schema isolating its field names, and each report the
// business runs (cash book, party ledger, balance slip, outstanding) is a
// configuration of the single ledger pipeline.
package books

import (
	"fmt"
	"sort"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// BOOK NAMES
// =============================================================================

const (
	BookCashBook = "cashbook" // cash receipts and payments
	BookInvoices = "invoices" // invoice detail lines
	BookLedger   = "ledger"   // party-wise mixed postings
	BookAccounts = "accounts" // account master
)

// =============================================================================
// SCHEMAS - One normalization adapter per source file type
// =============================================================================

// CashBookSchema reads the cash book: CR is money received, DR money paid.
var CashBookSchema = ledger.Schema{
	Date:      []string{"DATE", "VDATE", "date"},
	Credit:    []string{"CR", "CREDIT", "RECEIPT"},
	Debit:     []string{"DR", "DEBIT", "PAYMENT"},
	Narration: []string{"NARRATION", "REMARK", "PARTICULARS", "narration"},
	Party:     []string{"C_CODE", "PARTY", "partyCode"},
	Series:    []string{"SERIES", "series"},
	Book:      []string{"VR", "BOOK", "bookCode"},
	Reference: []string{"R_NO", "VR_NO", "RECEIPT_NO"},
	Deleted:   []string{"DEL", "DELETED", "deletedFlag"},
}

// InvoiceSchema reads invoice detail lines. The billed amount goes to the
// credit column and any amount received against the bill to the debit
// column, so a positive balance is still money owed to the business.
var InvoiceSchema = ledger.Schema{
	Date:      []string{"DATE", "BILL_DATE", "INV_DATE", "date"},
	Credit:    []string{"AMT", "NET_AMT", "BILL_AMT", "AMOUNT"},
	Debit:     []string{"RECD", "RECEIVED", "PAID"},
	Narration: []string{"NARRATION", "ITEM", "REMARK"},
	Party:     []string{"C_CODE", "PARTY", "partyCode"},
	Series:    []string{"SERIES", "series"},
	Book:      []string{"VR", "BOOK"},
	Reference: []string{"BILL", "BILL_NO", "INV_NO"},
	Deleted:   []string{"DEL", "CANCELLED", "deletedFlag"},
}

// PartyLedgerSchema reads the mixed party ledger.
var PartyLedgerSchema = ledger.Schema{
	Date:      []string{"DATE", "date", "VDATE"},
	Credit:    []string{"CR", "credit", "CR_AMT"},
	Debit:     []string{"DR", "debit", "DR_AMT"},
	Narration: []string{"NARRATION", "narration", "REMARK"},
	Party:     []string{"C_CODE", "partyCode", "PARTY"},
	Series:    []string{"SERIES", "series"},
	Book:      []string{"VR", "bookCode", "BOOK"},
	Reference: []string{"R_NO", "BILL", "VR_NO", "reference"},
	Deleted:   []string{"DEL", "deletedFlag", "deleted"},
}

var schemas = map[string]ledger.Schema{
	BookCashBook: CashBookSchema,
	BookInvoices: InvoiceSchema,
	BookLedger:   PartyLedgerSchema,
}

// SchemaFor returns the schema of a transaction book.
func SchemaFor(book string) (ledger.Schema, error) {
	s, ok := schemas[book]
	if !ok {
		return ledger.Schema{}, fmt.Errorf("%w: %q", ledger.ErrUnknownBook, book)
	}
	return s, nil
}

// TransactionBooks lists the books that carry transactions.
func TransactionBooks() []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
