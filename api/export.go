package api

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/warp/ledger-engine/ledger"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ledgerSheet     = "Ledger"
)

var ledgerHeaders = []string{"Date", "Narration", "Party", "Series", "Book", "Reference", "Credit", "Debit", "Balance", "Type"}

// WriteLedgerXLSX writes a report as a single-sheet workbook: a title row,
// the column headers, one row per report row and a totals row.
func WriteLedgerXLSX(w io.Writer, title string, r *ledger.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}

	f.SetCellValue(ledgerSheet, "A1", title)
	f.SetCellStyle(ledgerSheet, "A1", "A1", bold)

	for i, h := range ledgerHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(ledgerSheet, cell, h)
	}
	f.SetCellStyle(ledgerSheet, "A2", "J2", bold)

	row := 3
	for _, rr := range r.Rows {
		values := []interface{}{
			rr.Date.String(), rr.Narration, rr.PartyCode, rr.Series, rr.BookCode, rr.Reference,
			amount(rr.Credit), amount(rr.Debit), amount(rr.Balance.Abs()), string(rr.BalanceType),
		}
		if err := setRow(f, row, values); err != nil {
			return err
		}
		row++
	}

	totals := []interface{}{
		"", "Total", "", "", "", "",
		amount(r.Totals.Credit), amount(r.Totals.Debit), amount(r.Totals.Closing.Abs()),
		string(ledger.BalanceTypeOf(r.Totals.Closing)),
	}
	if err := setRow(f, row, totals); err != nil {
		return err
	}
	f.SetCellStyle(ledgerSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("J%d", row), bold)
	f.SetCellStyle(ledgerSheet, "G3", fmt.Sprintf("I%d", row), money)

	f.SetColWidth(ledgerSheet, "A", "A", 12)
	f.SetColWidth(ledgerSheet, "B", "B", 40)
	f.SetColWidth(ledgerSheet, "G", "I", 16)

	return f.Write(w)
}

func setRow(f *excelize.File, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(ledgerSheet, cell, &values)
}
