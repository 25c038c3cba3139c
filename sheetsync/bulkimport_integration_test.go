package sheetsync_test

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	"bitbucket.org/mmdatafocus/shopops_backend/models"
	"bitbucket.org/mmdatafocus/shopops_backend/sheetsync"
	"github.com/shopspring/decimal"
)

func TestBulkImportFullReload(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()
	db := config.GetDB()

	oracle := &scriptedOracle{answers: map[string]sheetsync.OracleResult{
		"bỉm huggies size 3": {Name: "Huggies Diapers Size 3", Category: "baby", Brand: strPtr("Huggies")},
	}}
	importer := sheetsync.NewImporter(sheetsync.NewResolverWithOracle(oracle))

	rate := 24000.0
	payload := &sheetsync.BulkImportPayload{
		ExchangeRate: &rate,
		Sheets: []sheetsync.SheetData{
			{
				SheetName: "Đợt 7",
				Headers:   []string{"Mặt hàng", "Giá nhập (USD)", "Giá bán (VND)"},
				Rows: [][]interface{}{
					{"bỉm huggies size 3", "$25", "950,000"},
					{"bỉm huggies size 3", float64(25), "950,000"},
				},
			},
			{SheetName: "Hướng dẫn", Headers: []string{"A"}, Rows: [][]interface{}{{"x"}}},
			{SheetName: "Hàng tồn kho", Headers: []string{"A"}, Rows: [][]interface{}{{"x"}}},
		},
	}

	result, err := importer.BulkImport(ctx, payload)
	if err != nil {
		t.Fatalf("bulk import: %v", err)
	}
	if result.ImportedSheets != 1 || result.SkippedSheets != 2 || result.FailedSheets != 0 {
		t.Fatalf("outcome counts = %+v", result)
	}
	if result.TotalRows != 2 {
		t.Fatalf("total rows = %d, want 2", result.TotalRows)
	}
	// Both rows carry the same raw name, so one product was normalized.
	if result.TotalProducts != 1 {
		t.Fatalf("total products = %d, want 1", result.TotalProducts)
	}
	if result.Outcomes[0].ProductsNormalized != 1 {
		t.Errorf("sheet products normalized = %d, want 1", result.Outcomes[0].ProductsNormalized)
	}

	batch, err := models.GetBatchBySheetName(ctx, db, "Đợt 7")
	if err != nil || batch == nil {
		t.Fatalf("batch lookup: %v %v", batch, err)
	}
	if !batch.ExchangeRate.Equal(decimal.NewFromInt(24000)) {
		t.Errorf("exchange rate = %s, want 24000", batch.ExchangeRate)
	}

	sales, err := models.GetSalesByBatch(ctx, db, batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 2 {
		t.Fatalf("sales = %d, want 2", len(sales))
	}
	for _, sale := range sales {
		if sale.CostVnd == nil || !sale.CostVnd.Equal(decimal.NewFromInt(600000)) {
			t.Errorf("row %d cost_vnd = %v, want 600000 (25 USD at 24000)", sale.RowNumber, sale.CostVnd)
		}
	}

	// Both rows resolve to one identity; the post-import rebuild counts
	// them from the sales table.
	huggies := productByNormalizedName(t, "huggies diapers size 3")
	if huggies.TotalSales != 2 {
		t.Errorf("huggies total_sales = %d, want 2", huggies.TotalSales)
	}

	// Re-importing with one row replaces the batch wholesale.
	payload.Sheets = payload.Sheets[:1]
	payload.Sheets[0].Rows = payload.Sheets[0].Rows[:1]
	if _, err := importer.BulkImport(ctx, payload); err != nil {
		t.Fatalf("second bulk import: %v", err)
	}

	sales, err = models.GetSalesByBatch(ctx, db, batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 1 {
		t.Fatalf("sales after reload = %d, want 1", len(sales))
	}

	huggies = productByNormalizedName(t, "huggies diapers size 3")
	if huggies.TotalSales != 1 {
		t.Errorf("huggies total_sales after reload = %d, want 1", huggies.TotalSales)
	}
}
