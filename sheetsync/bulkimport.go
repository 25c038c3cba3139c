package sheetsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	"bitbucket.org/mmdatafocus/shopops_backend/models"
	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultExchangeRate = 25000
	bulkImportLockKey   = "sheetsync:bulk-import"
	bulkImportLockTTL   = 10 * time.Minute
)

// ErrImportRunning means another bulk import holds the cross-instance lock.
var ErrImportRunning = errors.New("another bulk import is already running")

// Importer runs the destructive full reload: every data sheet in the payload
// replaces its batch's sales wholesale. Product identities and their
// aggregates are rebuilt from scratch afterwards.
type Importer struct {
	resolver *Resolver
}

func NewImporter(resolver *Resolver) *Importer {
	return &Importer{resolver: resolver}
}

// BulkImport imports every sheet of a workbook. One failed sheet never
// aborts the run; its error is recorded in the outcome list and the
// remaining sheets proceed.
func (i *Importer) BulkImport(ctx context.Context, payload *BulkImportPayload) (*BulkImportResult, error) {
	logger := config.GetLogger()

	release, err := acquireBulkImportLock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	exchangeRate := decimal.NewFromInt(defaultExchangeRate)
	if payload.ExchangeRate != nil && *payload.ExchangeRate > 0 {
		exchangeRate = decimal.NewFromFloat(*payload.ExchangeRate)
	}

	result := &BulkImportResult{TotalSheets: len(payload.Sheets)}
	for _, sheet := range payload.Sheets {
		outcome := i.importSheet(ctx, sheet, exchangeRate)
		result.Outcomes = append(result.Outcomes, outcome)
		switch outcome.Status {
		case SheetStatusImported:
			result.ImportedSheets++
			result.TotalRows += outcome.Rows
			result.TotalProducts += outcome.ProductsNormalized
		case SheetStatusSkipped:
			result.SkippedSheets++
		case SheetStatusError:
			result.FailedSheets++
			config.LogError(logger, ModuleSheetSync, "BulkImport", "sheet failed", sheet.SheetName, errors.New(outcome.Message))
		}
	}

	if result.ImportedSheets > 0 {
		if _, err := models.RebuildProductStats(ctx); err != nil {
			config.LogError(logger, ModuleSheetSync, "BulkImport", "rebuild product stats", nil, err)
		}
	}

	return result, nil
}

func (i *Importer) importSheet(ctx context.Context, sheet SheetData, exchangeRate decimal.Decimal) SheetOutcome {
	outcome := SheetOutcome{SheetName: sheet.SheetName}

	// A structurally broken sheet fails alone; the rest of the run proceeds.
	if strings.TrimSpace(sheet.SheetName) == "" || len(sheet.Headers) == 0 {
		outcome.Status = SheetStatusError
		outcome.Message = "sheet name and headers are required"
		return outcome
	}

	if ShouldSkipSheet(sheet.SheetName) || IsInventorySheet(sheet.SheetName) {
		outcome.Status = SheetStatusSkipped
		outcome.Message = "not a sales sheet"
		return outcome
	}

	parsed := ParseSheetData(sheet.SheetName, sheet.Headers, sheet.Rows)
	if len(parsed.Records) == 0 {
		outcome.Status = SheetStatusSkipped
		outcome.Message = "no sales rows"
		return outcome
	}

	db := config.GetDB()
	batch, err := ensureBatch(ctx, db, parsed)
	if err != nil {
		outcome.Status = SheetStatusError
		outcome.Message = err.Error()
		return outcome
	}
	outcome.BatchId = batch.ID

	// All names resolve up front; the reload transaction never waits on
	// the oracle.
	rawNames := make([]string, 0, len(parsed.Records))
	for _, record := range parsed.Records {
		rawNames = append(rawNames, record.ProductName)
	}
	identities := i.resolver.ResolveNames(ctx, rawNames)

	now := time.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := AcquireSheetLock(tx, parsed.SheetName); err != nil {
			return err
		}
		defer ReleaseSheetLock(tx, parsed.SheetName)

		if err := tx.WithContext(ctx).Where("batch_id = ?", batch.ID).Delete(&models.Sale{}).Error; err != nil {
			return err
		}

		for _, record := range parsed.Records {
			identity, ok := identities[record.ProductName]
			if !ok {
				identity = FallbackIdentity(record.ProductName)
			}
			product, err := models.FindOrCreateNormalizedProduct(ctx, tx, identity)
			if err != nil {
				return err
			}

			costVnd := record.CostVnd
			if costVnd == nil && record.CostUsd != nil {
				converted := record.CostUsd.Mul(exchangeRate)
				costVnd = &converted
			}

			sale := models.Sale{
				BatchId:         batch.ID,
				RowNumber:       record.RowNumber,
				CustomerName:    record.CustomerName,
				ProductNameRaw:  record.ProductName,
				ProductId:       &product.ID,
				CostUsd:         record.CostUsd,
				CostVnd:         costVnd,
				ShippingCostVnd: record.ShippingCost,
				WeightKg:        record.Weight,
				SalePriceVnd:    record.SalePrice,
				ProfitVnd:       record.Profit,
				Quantity:        record.Quantity,
				PaymentStatus:   record.PaymentStatus,
				SyncedAt:        now,
			}
			if err := tx.WithContext(ctx).Create(&sale).Error; err != nil {
				return err
			}
		}

		if err := models.RecomputeBatchTotals(ctx, tx, batch.ID); err != nil {
			return err
		}
		return tx.WithContext(ctx).Model(&models.Batch{}).
			Where("id = ?", batch.ID).
			Updates(map[string]interface{}{
				"exchange_rate": exchangeRate,
				"synced_at":     now,
			}).Error
	})
	if err != nil {
		outcome.Status = SheetStatusError
		outcome.Message = err.Error()
		return outcome
	}

	outcome.Status = SheetStatusImported
	outcome.Rows = len(parsed.Records)
	outcome.ProductsNormalized = len(identities)
	return outcome
}

// acquireBulkImportLock guards the reload across instances via redis. When
// redis is not configured the guard degrades to a no-op; the per-sheet
// advisory locks still prevent corrupting concurrent writes.
func acquireBulkImportLock(ctx context.Context) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}

	lock, err := locker.Obtain(ctx, bulkImportLockKey, bulkImportLockTTL, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrImportRunning
		}
		return nil, fmt.Errorf("obtain bulk import lock: %w", err)
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
