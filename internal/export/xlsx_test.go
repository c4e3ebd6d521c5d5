package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestWriteSeriesWorkbook(t *testing.T) {
	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	netflix := &domain.RecurringTransaction{ID: 3, UserID: 1, CreatedAt: jan}
	netflix.Append(domain.Transaction{ID: 10, ExternalID: "a", AccountID: "acc", Description: "Netflix Subscription", Amount: decimal.RequireFromString("15.99"), Date: jan})
	netflix.Append(domain.Transaction{ID: 11, ExternalID: "b", AccountID: "acc", Description: "Netflix Subscrption", Amount: decimal.RequireFromString("15.99"), Date: jan.AddDate(0, 1, 0)})

	var buf bytes.Buffer
	if err := WriteSeriesWorkbook(&buf, []*domain.RecurringTransaction{netflix}); err != nil {
		t.Fatalf("WriteSeriesWorkbook() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	seriesRows, err := f.GetRows(SeriesSheet)
	if err != nil {
		t.Fatalf("GetRows(%s) error = %v", SeriesSheet, err)
	}
	if len(seriesRows) != 2 {
		t.Fatalf("got %d series rows, want header + 1", len(seriesRows))
	}
	if seriesRows[0][0] != "Series ID" {
		t.Errorf("header = %v", seriesRows[0])
	}
	row := seriesRows[1]
	if row[0] != "3" || row[1] != "Netflix Subscrption" || row[3] != "2024-02-15" || row[4] != "2" {
		t.Errorf("series row = %v", row)
	}

	amount, err := f.GetCellValue(SeriesSheet, "C2", excelize.Options{RawCellValue: true})
	if err != nil || amount != "15.99" {
		t.Errorf("amount cell = %q, %v, want 15.99", amount, err)
	}

	memberRows, err := f.GetRows(MembersSheet)
	if err != nil {
		t.Fatalf("GetRows(%s) error = %v", MembersSheet, err)
	}
	if len(memberRows) != 3 {
		t.Fatalf("got %d member rows, want header + 2", len(memberRows))
	}
	if memberRows[1][1] != "1" || memberRows[1][2] != "10" || memberRows[2][6] != "Netflix Subscrption" {
		t.Errorf("member rows = %v", memberRows[1:])
	}
}

func TestWriteSeriesWorkbook_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSeriesWorkbook(&buf, nil); err != nil {
		t.Fatalf("WriteSeriesWorkbook() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 2 || sheets[0] != SeriesSheet || sheets[1] != MembersSheet {
		t.Errorf("sheets = %v", sheets)
	}
	rows, _ := f.GetRows(SeriesSheet)
	if len(rows) != 1 {
		t.Errorf("empty export has %d rows, want header only", len(rows))
	}
}
