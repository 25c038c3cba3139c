package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Sale is one transaction row inside a batch. The (batch_id, row_number)
// pair is the natural key used by the idempotent upsert, so a row keeps its
// identity across re-syncs of the same sheet.
type Sale struct {
	ID              int              `gorm:"primary_key" json:"id"`
	BatchId         int              `gorm:"uniqueIndex:idx_sales_batch_row;not null" json:"batch_id"`
	RowNumber       int              `gorm:"uniqueIndex:idx_sales_batch_row;not null" json:"row_number"`
	CustomerName    string           `gorm:"size:255" json:"customer_name"`
	ProductNameRaw  string           `gorm:"size:500" json:"product_name_raw"`
	ProductId       *int             `gorm:"index" json:"product_id"`
	CostUsd         *decimal.Decimal `gorm:"type:decimal(20,2)" json:"cost_usd"`
	CostVnd         *decimal.Decimal `gorm:"type:decimal(20,2)" json:"cost_vnd"`
	ShippingCostVnd *decimal.Decimal `gorm:"type:decimal(20,2)" json:"shipping_cost_vnd"`
	WeightKg        *decimal.Decimal `gorm:"type:decimal(10,3)" json:"weight_kg"`
	SalePriceVnd    *decimal.Decimal `gorm:"type:decimal(20,2)" json:"sale_price_vnd"`
	ProfitVnd       *decimal.Decimal `gorm:"type:decimal(20,2)" json:"profit_vnd"`
	Quantity        *decimal.Decimal `gorm:"type:decimal(10,2)" json:"quantity"`
	PaymentStatus   PaymentStatus    `gorm:"size:20;not null;default:unknown" json:"payment_status"`
	SyncedAt        time.Time        `gorm:"index" json:"synced_at"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// GetSaleByBatchRow returns nil, nil when the row has never been synced.
func GetSaleByBatchRow(ctx context.Context, db *gorm.DB, batchId int, rowNumber int) (*Sale, error) {
	var sale Sale
	err := db.WithContext(ctx).
		Where("batch_id = ? AND row_number = ?", batchId, rowNumber).
		Take(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sale, nil
}

func GetSalesByBatch(ctx context.Context, db *gorm.DB, batchId int) ([]*Sale, error) {
	var results []*Sale
	err := db.WithContext(ctx).
		Where("batch_id = ?", batchId).
		Order("row_number").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
