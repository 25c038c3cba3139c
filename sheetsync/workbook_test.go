package sheetsync_test

import (
	"bytes"
	"testing"

	"bitbucket.org/mmdatafocus/shopops_backend/sheetsync"
	"github.com/xuri/excelize/v2"
)

func TestReadWorkbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Đợt hàng 3 - 0925"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		t.Fatal(err)
	}
	cells := map[string]interface{}{
		"A1": "Khách hàng", "B1": "Mặt hàng", "C1": "Giá bán (VND)",
		"A2": "Chị Hoa", "B2": "kem chống nắng neutrogena", "C2": "420,000",
		"B3": "Tổng tiền", "C3": "420,000",
	}
	for ref, value := range cells {
		if err := f.SetCellValue(sheet, ref, value); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	sheets, err := sheetsync.ReadWorkbook(&buf)
	if err != nil {
		t.Fatalf("ReadWorkbook: %v", err)
	}
	if len(sheets) != 1 {
		t.Fatalf("sheets = %d, want 1", len(sheets))
	}
	if sheets[0].SheetName != sheet {
		t.Errorf("sheet name = %q", sheets[0].SheetName)
	}
	if len(sheets[0].Headers) != 3 || sheets[0].Headers[1] != "Mặt hàng" {
		t.Errorf("headers = %v", sheets[0].Headers)
	}
	if len(sheets[0].Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(sheets[0].Rows))
	}

	parsed := sheetsync.ParseSheetData(sheets[0].SheetName, sheets[0].Headers, sheets[0].Rows)
	if len(parsed.Records) != 1 {
		t.Fatalf("records = %d, want 1 (summary row dropped)", len(parsed.Records))
	}
	if parsed.Records[0].ProductName != "kem chống nắng neutrogena" {
		t.Errorf("product = %q", parsed.Records[0].ProductName)
	}
	if parsed.BatchNumber == nil || *parsed.BatchNumber != 3 {
		t.Errorf("batch number = %v, want 3", parsed.BatchNumber)
	}
}
