/*
Package export renders scan records to spreadsheet workbooks.

One sheet, fixed columns, one row per record. The column set and order
mirror what the receiving 3PL imports, so they must not change without
coordinating downstream.
*/
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/pinpoint/uid-ops/reconcile"
)

const sheetName = "UIDs"

var headers = []string{
	"Date",
	"Mobile Bin (BOX)",
	"SSCC Label (BOX)",
	"PO_Number",
	"SKU_Code",
	"UID",
	"Status",
	"Completed At",
}

var columnWidths = []float64{12, 16, 18, 14, 14, 22, 10, 22}

// Workbook builds an xlsx workbook from records, in the order given.
// The caller owns closing the returned file.
func Workbook(records []reconcile.Record) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	for i, w := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheetName, col, col, w); err != nil {
			return nil, err
		}
	}

	if err := writeRow(f, 1, headers); err != nil {
		return nil, err
	}

	for i, rec := range records {
		row := []string{
			rec.DateLocal,
			rec.MobileBin,
			rec.SSCCLabel,
			rec.PONumber,
			rec.SKUCode,
			rec.UID,
			string(rec.Status),
			rec.CompletedAt,
		}
		if err := writeRow(f, i+2, row); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func writeRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	if err := f.SetSheetRow(sheetName, cell, &vals); err != nil {
		return fmt.Errorf("failed to write row %d: %w", rowNum, err)
	}
	return nil
}
