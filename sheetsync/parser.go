package sheetsync

import (
	"fmt"
	"regexp"
	"strings"

	"bitbucket.org/mmdatafocus/shopops_backend/models"
	"github.com/shopspring/decimal"
)

// SaleRecord is one parsed data row, typed and cleaned but not yet persisted.
// Money fields are nil when the cell was empty or unparseable.
type SaleRecord struct {
	RowNumber     int
	CustomerName  string
	ProductName   string
	CostUsd       *decimal.Decimal
	CostVnd       *decimal.Decimal
	SalePrice     *decimal.Decimal
	Profit        *decimal.Decimal
	Weight        *decimal.Decimal
	ShippingCost  *decimal.Decimal
	PaymentStatus models.PaymentStatus
	Quantity      *decimal.Decimal
}

type ParsedSheet struct {
	SheetName   string
	BatchNumber *int
	BatchDate   *string
	Columns     map[Field]int
	Records     []SaleRecord
}

var (
	batchNumberRegex = regexp.MustCompile(`(?i)đợt\s*(?:hàng\s*)?(\d+)`)
	batchDateRegex   = regexp.MustCompile(`-\s*(\d{3,4})`)
)

// ParseSheetName extracts the batch number and short date from names like
// "Đợt hàng 11 - 1125" or "Đợt 124". Either part may be absent.
func ParseSheetName(sheetName string) (batchNumber *int, batchDate *string) {
	if m := batchNumberRegex.FindStringSubmatch(sheetName); m != nil {
		var n int
		if _, err := fmt.Sscanf(m[1], "%d", &n); err == nil {
			batchNumber = &n
		}
	}
	if m := batchDateRegex.FindStringSubmatch(sheetName); m != nil {
		d := m[1]
		batchDate = &d
	}
	return batchNumber, batchDate
}

var numericCleanupRegex = regexp.MustCompile(`(?i)[,\s]|[đ$₫]|vnd|usd`)

// ParseNumericCell turns a messy spreadsheet cell into a decimal. Numbers
// pass through; strings are stripped of thousands separators, currency
// symbols and currency words before parsing. Empty or unparseable cells
// yield nil rather than an error, since partially filled rows are normal.
func ParseNumericCell(value interface{}) *decimal.Decimal {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		d := decimal.NewFromFloat(v)
		return &d
	case int:
		d := decimal.NewFromInt(int64(v))
		return &d
	case int64:
		d := decimal.NewFromInt(v)
		return &d
	case string:
		cleaned := strings.TrimSpace(numericCleanupRegex.ReplaceAllString(v, ""))
		if cleaned == "" {
			return nil
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return nil
		}
		return &d
	default:
		return nil
	}
}

// ParsePaymentStatus reads free-text Vietnamese payment markers. The unpaid
// and deposit checks run before the paid check because "unpaid" contains
// "paid" as a substring.
func ParsePaymentStatus(status string) models.PaymentStatus {
	normalized := strings.ToLower(strings.TrimSpace(status))
	if normalized == "" {
		return models.PaymentStatusUnknown
	}
	switch {
	case strings.Contains(normalized, "chưa thanh toán"),
		strings.Contains(normalized, "unpaid"),
		strings.Contains(normalized, "chưa"):
		return models.PaymentStatusUnpaid
	case strings.Contains(normalized, "đã cọc"),
		strings.Contains(normalized, "cọc"),
		strings.Contains(normalized, "deposit"):
		return models.PaymentStatusDeposit
	case strings.Contains(normalized, "đã thanh toán"),
		strings.Contains(normalized, "paid"),
		strings.Contains(normalized, "done"),
		normalized == "ok",
		normalized == "x":
		return models.PaymentStatusPaid
	default:
		return models.PaymentStatusUnknown
	}
}

// Non-data sheets that appear in the workbooks alongside batch sheets.
var skipSheetPatterns = []string{
	"cách tính giá",
	"hướng dẫn",
	"template",
	"mẫu",
}

func ShouldSkipSheet(sheetName string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sheetName))
	for _, pattern := range skipSheetPatterns {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	return false
}

func IsInventorySheet(sheetName string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sheetName))
	return strings.Contains(normalized, "hàng tồn") || strings.Contains(normalized, "tồn kho")
}

// Footer/summary phrases that show up in the product-name column but are
// not sales: box weights, shipping fee lines, running profit totals,
// payment confirmations.
var skipRowPatterns = []string{
	"thùng hàng",
	"tổng cân",
	"tiền ship",
	"phí ship",
	"tiền công",
	"lãi cuối",
	"lãi trước",
	"lãi sau",
	"final profit",
	"tổng lãi",
	"tổng tiền",
	"total",
	"weight fee",
	"đơn điện biên",
	"đã thanh toán",
	"đã cọc",
	"payment confirm",
	"deposit payment",
	"confirmation",
}

func IsSummaryRow(productName string) bool {
	normalized := strings.ToLower(strings.TrimSpace(productName))
	if normalized == "" {
		return true
	}
	for _, pattern := range skipRowPatterns {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	return false
}

func cellString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func isEmptyRow(row []interface{}) bool {
	for _, cell := range row {
		if cellString(cell) != "" {
			return false
		}
	}
	return true
}

// ParseSheetData turns a raw grid into typed sale records. Rows are numbered
// by their 1-based position in the data region, counting blank and summary
// rows too, so a record keeps its row number when later rows are appended
// or earlier junk rows are cleaned up in place.
func ParseSheetData(sheetName string, headers []string, rows [][]interface{}) *ParsedSheet {
	batchNumber, batchDate := ParseSheetName(sheetName)
	columns := ResolveColumns(headers)

	cell := func(row []interface{}, field Field) interface{} {
		index, ok := columns[field]
		if !ok || index >= len(row) {
			return nil
		}
		return row[index]
	}

	records := make([]SaleRecord, 0, len(rows))
	for rowIndex, row := range rows {
		if isEmptyRow(row) {
			continue
		}

		productName := cellString(cell(row, FieldProductName))
		if productName == "" || IsSummaryRow(productName) {
			continue
		}

		records = append(records, SaleRecord{
			RowNumber:     rowIndex + 1,
			CustomerName:  cellString(cell(row, FieldCustomerName)),
			ProductName:   productName,
			CostUsd:       ParseNumericCell(cell(row, FieldCostUsd)),
			CostVnd:       ParseNumericCell(cell(row, FieldCostVnd)),
			SalePrice:     ParseNumericCell(cell(row, FieldSalePrice)),
			Profit:        ParseNumericCell(cell(row, FieldProfit)),
			Weight:        ParseNumericCell(cell(row, FieldWeight)),
			ShippingCost:  ParseNumericCell(cell(row, FieldShippingCost)),
			PaymentStatus: ParsePaymentStatus(cellString(cell(row, FieldPaymentStatus))),
			Quantity:      ParseNumericCell(cell(row, FieldQuantity)),
		})
	}

	return &ParsedSheet{
		SheetName:   sheetName,
		BatchNumber: batchNumber,
		BatchDate:   batchDate,
		Columns:     columns,
		Records:     records,
	}
}
