// Package export renders recurring series as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/xuri/excelize/v2"
)

const (
	SeriesSheet  = "Series"
	MembersSheet = "Members"

	dateLayout = "2006-01-02"

	// ContentType is the MIME type of the workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	seriesHeaders  = []string{"Series ID", "Description", "Amount", "Last Date", "Transactions", "Created At"}
	membersHeaders = []string{"Series ID", "Position", "Transaction ID", "External ID", "Account", "Date", "Description", "Amount"}
)

// WriteSeriesWorkbook writes an .xlsx workbook with one row per series on
// the Series sheet and one row per member, in append order, on the Members
// sheet.
func WriteSeriesWorkbook(w io.Writer, series []*domain.RecurringTransaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SeriesSheet); err != nil {
		return fmt.Errorf("WriteSeriesWorkbook: renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(MembersSheet); err != nil {
		return fmt.Errorf("WriteSeriesWorkbook: creating sheet: %w", err)
	}

	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00
	if err != nil {
		return fmt.Errorf("WriteSeriesWorkbook: creating style: %w", err)
	}

	if err := writeRow(f, SeriesSheet, 1, toCells(seriesHeaders)); err != nil {
		return err
	}
	if err := writeRow(f, MembersSheet, 1, toCells(membersHeaders)); err != nil {
		return err
	}

	seriesRow, memberRow := 2, 2
	for _, s := range series {
		lastDate := ""
		if !s.Date().IsZero() {
			lastDate = s.Date().Format(dateLayout)
		}
		if err := writeRow(f, SeriesSheet, seriesRow, []interface{}{
			s.ID,
			s.Description(),
			s.Amount().InexactFloat64(),
			lastDate,
			len(s.Members),
			s.CreatedAt.Format(dateLayout),
		}); err != nil {
			return err
		}
		seriesRow++

		for i, t := range s.Members {
			if err := writeRow(f, MembersSheet, memberRow, []interface{}{
				s.ID,
				i + 1,
				t.ID,
				t.ExternalID,
				t.AccountID,
				t.Date.Format(dateLayout),
				t.Description,
				t.Amount.InexactFloat64(),
			}); err != nil {
				return err
			}
			memberRow++
		}
	}

	// Amount columns: C on Series, H on Members
	if seriesRow > 2 {
		if err := f.SetCellStyle(SeriesSheet, "C2", fmt.Sprintf("C%d", seriesRow-1), amountStyle); err != nil {
			return fmt.Errorf("WriteSeriesWorkbook: styling amounts: %w", err)
		}
	}
	if memberRow > 2 {
		if err := f.SetCellStyle(MembersSheet, "H2", fmt.Sprintf("H%d", memberRow-1), amountStyle); err != nil {
			return fmt.Errorf("WriteSeriesWorkbook: styling amounts: %w", err)
		}
	}

	f.SetColWidth(SeriesSheet, "B", "B", 35)
	f.SetColWidth(SeriesSheet, "C", "F", 14)
	f.SetColWidth(MembersSheet, "D", "F", 14)
	f.SetColWidth(MembersSheet, "G", "G", 35)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("WriteSeriesWorkbook: writing workbook: %w", err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("writeRow: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writeRow: %s row %d: %w", sheet, row, err)
	}
	return nil
}
