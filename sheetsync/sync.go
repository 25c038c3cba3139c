package sheetsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	"bitbucket.org/mmdatafocus/shopops_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrSheetSkipped marks sheets that are valid input but carry no sales data
// (instructions, templates, inventory trackers).
var ErrSheetSkipped = errors.New("sheet is not a sales sheet")

// Synchronizer runs the incremental per-sheet sync. Identity resolution
// happens before the database transaction opens so slow oracle calls never
// hold row locks.
type Synchronizer struct {
	resolver *Resolver
}

func NewSynchronizer(resolver *Resolver) *Synchronizer {
	return &Synchronizer{resolver: resolver}
}

// SyncSheet upserts one sheet's rows keyed on (batch, row number). Re-syncing
// an unchanged sheet is a no-op apart from timestamps; edited rows update in
// place and push a signed delta into their product's aggregates.
func (s *Synchronizer) SyncSheet(ctx context.Context, payload *SyncPayload) (*SyncResult, error) {
	logger := config.GetLogger()

	if ShouldSkipSheet(payload.SheetName) || IsInventorySheet(payload.SheetName) {
		return nil, ErrSheetSkipped
	}

	parsed := ParseSheetData(payload.SheetName, payload.Headers, payload.Rows)
	db := config.GetDB()

	batch, err := ensureBatch(ctx, db, parsed)
	if err != nil {
		config.LogError(logger, ModuleSheetSync, "SyncSheet", "ensure batch", payload.SheetName, err)
		return nil, err
	}

	identities := s.resolveUnboundNames(ctx, db, batch.ID, parsed.Records)

	result := &SyncResult{
		BatchId:            batch.ID,
		SheetName:          parsed.SheetName,
		ProductsNormalized: len(identities),
	}

	now := time.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := AcquireSheetLock(tx, parsed.SheetName); err != nil {
			return err
		}
		defer ReleaseSheetLock(tx, parsed.SheetName)

		for _, record := range parsed.Records {
			created, err := s.syncRecord(ctx, tx, batch.ID, record, identities, now)
			if err != nil {
				return err
			}
			result.RowsProcessed++
			if created {
				result.RowsCreated++
			} else {
				result.RowsUpdated++
			}
		}

		if err := models.RecomputeBatchTotals(ctx, tx, batch.ID); err != nil {
			return err
		}
		return tx.WithContext(ctx).Model(&models.Batch{}).
			Where("id = ?", batch.ID).
			Update("synced_at", now).Error
	})
	if err != nil {
		config.LogError(logger, ModuleSheetSync, "SyncSheet", "sync transaction", payload.SheetName, err)
		return nil, err
	}

	return result, nil
}

// resolveUnboundNames collects the raw names of rows that will need a
// product binding (new rows, or rows previously synced without one) and
// resolves them in batches. Runs outside the sync transaction.
func (s *Synchronizer) resolveUnboundNames(ctx context.Context, db *gorm.DB, batchId int, records []SaleRecord) map[string]models.ResolvedIdentity {
	existing, err := models.GetSalesByBatch(ctx, db, batchId)
	if err != nil {
		config.LogError(config.GetLogger(), ModuleSheetSync, "resolveUnboundNames", "load existing sales", batchId, err)
	}
	bound := make(map[int]bool, len(existing))
	for _, sale := range existing {
		if sale.ProductId != nil {
			bound[sale.RowNumber] = true
		}
	}

	var rawNames []string
	for _, record := range records {
		if !bound[record.RowNumber] {
			rawNames = append(rawNames, record.ProductName)
		}
	}
	if len(rawNames) == 0 {
		return map[string]models.ResolvedIdentity{}
	}
	return s.resolver.ResolveNames(ctx, rawNames)
}

func (s *Synchronizer) syncRecord(ctx context.Context, tx *gorm.DB, batchId int, record SaleRecord, identities map[string]models.ResolvedIdentity, now time.Time) (created bool, err error) {
	existing, err := models.GetSaleByBatchRow(ctx, tx, batchId, record.RowNumber)
	if err != nil {
		return false, err
	}

	if existing == nil {
		product, err := s.bindProduct(ctx, tx, record.ProductName, identities)
		if err != nil {
			return false, err
		}

		sale := models.Sale{
			BatchId:         batchId,
			RowNumber:       record.RowNumber,
			CustomerName:    record.CustomerName,
			ProductNameRaw:  record.ProductName,
			CostUsd:         record.CostUsd,
			CostVnd:         record.CostVnd,
			ShippingCostVnd: record.ShippingCost,
			WeightKg:        record.Weight,
			SalePriceVnd:    record.SalePrice,
			ProfitVnd:       record.Profit,
			Quantity:        record.Quantity,
			PaymentStatus:   record.PaymentStatus,
			SyncedAt:        now,
		}
		if product != nil {
			sale.ProductId = &product.ID
			if err := models.AddProductSale(ctx, tx, product.ID, decimalOrZero(record.SalePrice), decimalOrZero(record.Profit)); err != nil {
				return false, err
			}
		}
		if err := tx.WithContext(ctx).Create(&sale).Error; err != nil {
			return false, err
		}
		return true, nil
	}

	productId := existing.ProductId
	if productId == nil {
		product, err := s.bindProduct(ctx, tx, record.ProductName, identities)
		if err != nil {
			return false, err
		}
		if product != nil {
			productId = &product.ID
			if err := models.AddProductSale(ctx, tx, product.ID, decimalOrZero(record.SalePrice), decimalOrZero(record.Profit)); err != nil {
				return false, err
			}
		}
	} else {
		revenueDelta := decimalOrZero(record.SalePrice).Sub(decimalOrZero(existing.SalePriceVnd))
		profitDelta := decimalOrZero(record.Profit).Sub(decimalOrZero(existing.ProfitVnd))
		if err := models.ApplyProductSaleDelta(ctx, tx, *productId, revenueDelta, profitDelta); err != nil {
			return false, err
		}
	}

	updates := map[string]interface{}{
		"customer_name":     record.CustomerName,
		"product_name_raw":  record.ProductName,
		"product_id":        productId,
		"cost_usd":          record.CostUsd,
		"cost_vnd":          record.CostVnd,
		"shipping_cost_vnd": record.ShippingCost,
		"weight_kg":         record.Weight,
		"sale_price_vnd":    record.SalePrice,
		"profit_vnd":        record.Profit,
		"quantity":          record.Quantity,
		"payment_status":    record.PaymentStatus,
		"synced_at":         now,
	}
	err = tx.WithContext(ctx).Model(&models.Sale{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error
	if err != nil {
		return false, err
	}
	return false, nil
}

// bindProduct maps a raw name to its NormalizedProduct row, creating the
// identity on first sight. A missing map entry means the name was already
// bound when identities were resolved; re-resolving here keeps the row
// bound even when racing syncs interleave.
func (s *Synchronizer) bindProduct(ctx context.Context, tx *gorm.DB, rawName string, identities map[string]models.ResolvedIdentity) (*models.NormalizedProduct, error) {
	identity, ok := identities[rawName]
	if !ok {
		identity = s.resolver.ResolveName(ctx, rawName)
	}
	return models.FindOrCreateNormalizedProduct(ctx, tx, identity)
}

// ensureBatch find-or-creates the batch row for a sheet and refreshes the
// metadata parsed from its name. Racing creators are resolved by the unique
// sheet_name index.
func ensureBatch(ctx context.Context, db *gorm.DB, parsed *ParsedSheet) (*models.Batch, error) {
	batch, err := models.GetBatchBySheetName(ctx, db, parsed.SheetName)
	if err != nil {
		return nil, err
	}
	if batch != nil {
		updates := map[string]interface{}{
			"batch_number": parsed.BatchNumber,
			"batch_date":   parsed.BatchDate,
		}
		if err := db.WithContext(ctx).Model(batch).Updates(updates).Error; err != nil {
			return nil, err
		}
		return batch, nil
	}

	batch = &models.Batch{
		SheetName:   parsed.SheetName,
		BatchNumber: parsed.BatchNumber,
		BatchDate:   parsed.BatchDate,
		SyncedAt:    time.Now(),
	}
	if err := db.WithContext(ctx).Create(batch).Error; err != nil {
		if models.IsDuplicateKeyError(err) {
			return models.GetBatchBySheetName(ctx, db, parsed.SheetName)
		}
		return nil, err
	}
	return batch, nil
}

func decimalOrZero(value *decimal.Decimal) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return *value
}
