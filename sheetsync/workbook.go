package sheetsync

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadWorkbook converts an uploaded xlsx file into the same sheet payloads
// the webhook sends, so a manual file upload and a live spreadsheet push
// flow through one import path. The first row of each sheet is the header
// row; everything below it is the data region.
func ReadWorkbook(reader io.Reader) ([]SheetData, error) {
	workbook, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer workbook.Close()

	var sheets []SheetData
	for _, sheetName := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
		}
		if len(rows) == 0 {
			continue
		}

		data := SheetData{
			SheetName: sheetName,
			Headers:   rows[0],
		}
		for _, row := range rows[1:] {
			cells := make([]interface{}, len(row))
			for index, cell := range row {
				cells[index] = cell
			}
			data.Rows = append(data.Rows, cells)
		}
		sheets = append(sheets, data)
	}
	return sheets, nil
}
