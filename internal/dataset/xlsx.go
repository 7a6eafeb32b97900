// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"fmt"
	"io"

	"github.com/adiadia/salesflow/internal/domain"
	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "datos"

// WriteXLSX writes the snapshot as a single-sheet workbook. Ids and quantities
// are integer cells; prices and amounts are numeric cells.
func WriteXLSX(w io.Writer, snap Snapshot) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(domain.CanonicalColumns))
	for i, col := range domain.CanonicalColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(xlsxSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, rec := range snap.Records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			rec.CustomerID,
			rec.CustomerName,
			rec.ProductID,
			rec.ProductName,
			rec.UnitPrice.InexactFloat64(),
			rec.Quantity,
			rec.Amount.InexactFloat64(),
			rec.PaymentMethod,
			rec.RegisteredAt.UTC().Format(domain.TimestampLayout),
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(xlsxSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
