package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Batch is one imported spreadsheet/sheet, keyed by its sheet name.
// Created on first sync, updated on every subsequent sync, never deleted
// by the pipeline itself.
type Batch struct {
	ID              int             `gorm:"primary_key" json:"id"`
	SheetName       string          `gorm:"uniqueIndex;size:191;not null" json:"sheet_name"`
	BatchNumber     *int            `json:"batch_number"`
	BatchDate       *string         `gorm:"size:20" json:"batch_date"`
	ExchangeRate    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"exchange_rate"`
	TotalItems      int             `gorm:"not null;default:0" json:"total_items"`
	TotalRevenueVnd decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_revenue_vnd"`
	TotalProfitVnd  decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_profit_vnd"`
	SyncedAt        time.Time       `json:"synced_at"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetBatchBySheetName returns nil, nil when no batch exists for the sheet.
func GetBatchBySheetName(ctx context.Context, db *gorm.DB, sheetName string) (*Batch, error) {
	var batch Batch
	err := db.WithContext(ctx).Where("sheet_name = ?", sheetName).Take(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// RecomputeBatchTotals re-derives the batch's aggregate columns from its
// current sales rows. Recomputing (instead of incrementing) keeps the totals
// correct even when individual rows were edited between syncs.
func RecomputeBatchTotals(ctx context.Context, db *gorm.DB, batchId int) error {
	return db.WithContext(ctx).Exec(`
		UPDATE batches SET
			total_items = (SELECT COUNT(*) FROM sales WHERE batch_id = ?),
			total_revenue_vnd = (SELECT COALESCE(SUM(sale_price_vnd), 0) FROM sales WHERE batch_id = ?),
			total_profit_vnd = (SELECT COALESCE(SUM(profit_vnd), 0) FROM sales WHERE batch_id = ?)
		WHERE id = ?`,
		batchId, batchId, batchId, batchId).Error
}

func GetBatches(ctx context.Context) ([]*Batch, error) {
	db := config.GetDB()
	var results []*Batch
	err := db.WithContext(ctx).Order("batch_number DESC, id DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
