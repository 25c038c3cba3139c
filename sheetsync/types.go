package sheetsync

const ModuleSheetSync = "sheetsync"

// SheetData is one sheet's raw grid as delivered by the spreadsheet webhook:
// a header row plus untyped cell values. Cells arrive as strings or numbers
// depending on how the source formats the column. No binding tags here: a
// structurally broken sheet inside a bulk import becomes an error outcome
// for that sheet instead of rejecting the whole payload.
type SheetData struct {
	SheetName string          `json:"sheetName"`
	Headers   []string        `json:"headers"`
	Rows      [][]interface{} `json:"rows"`
}

// SyncPayload is the incremental sync request body for a single sheet.
type SyncPayload struct {
	SheetName string          `json:"sheetName" binding:"required"`
	Headers   []string        `json:"headers" binding:"required"`
	Rows      [][]interface{} `json:"rows"`
	Timestamp string          `json:"timestamp"`
}

// BulkImportPayload carries every sheet of a workbook for a full reload.
// ExchangeRate (VND per USD) fills missing VND costs from USD costs.
type BulkImportPayload struct {
	Sheets       []SheetData `json:"sheets" binding:"required"`
	ExchangeRate *float64    `json:"exchangeRate"`
}

type SyncResult struct {
	BatchId            int    `json:"batch_id"`
	SheetName          string `json:"sheet_name"`
	RowsProcessed      int    `json:"rows_processed"`
	RowsCreated        int    `json:"rows_created"`
	RowsUpdated        int    `json:"rows_updated"`
	ProductsNormalized int    `json:"products_normalized"`
}

type SheetStatus string

const (
	SheetStatusImported SheetStatus = "imported"
	SheetStatusSkipped  SheetStatus = "skipped"
	SheetStatusError    SheetStatus = "error"
)

// SheetOutcome reports the fate of one sheet inside a bulk import. A failed
// sheet never aborts the run; the error lands here instead.
type SheetOutcome struct {
	SheetName          string      `json:"sheet_name"`
	Status             SheetStatus `json:"status"`
	BatchId            int         `json:"batch_id,omitempty"`
	Rows               int         `json:"rows"`
	ProductsNormalized int         `json:"products_normalized"`
	Message            string      `json:"message,omitempty"`
}

type BulkImportResult struct {
	TotalSheets    int            `json:"total_sheets"`
	ImportedSheets int            `json:"imported_sheets"`
	SkippedSheets  int            `json:"skipped_sheets"`
	FailedSheets   int            `json:"failed_sheets"`
	TotalRows      int            `json:"total_rows"`
	TotalProducts  int            `json:"total_products"`
	Outcomes       []SheetOutcome `json:"outcomes"`
}

type ReconcileResult struct {
	ItemsProcessed int `json:"items_processed"`
	NewMatches     int `json:"new_matches"`
}

// UnsoldItem is one reconciliation report line for an item still unsold
// past the staleness threshold.
type UnsoldItem struct {
	ID              int     `json:"id"`
	ProductName     string  `json:"product_name"`
	Category        *string `json:"category"`
	Brand           *string `json:"brand"`
	SourceStore     *string `json:"source_store"`
	PostedAt        string  `json:"posted_at"`
	DaysSincePosted int     `json:"days_since_posted"`
}

type UnsoldReport struct {
	DaysThreshold     int              `json:"days_threshold"`
	TotalPosted       int64            `json:"total_posted"`
	TotalSold         int64            `json:"total_sold"`
	TotalUnsold       int64            `json:"total_unsold"`
	StaleUnsold       int64            `json:"stale_unsold"`
	UnsoldRatePercent float64          `json:"unsold_rate_percent"`
	ByCategory        map[string]int64 `json:"by_category"`
	Items             []UnsoldItem     `json:"items"`
}
