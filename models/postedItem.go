package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	"github.com/shopspring/decimal"
)

// PostedItem is a listing event: an item was posted for sale, prior to and
// independent of any confirmed sale. The reconciler flips Sold and links
// MatchedSaleId; nothing else mutates the row after creation.
type PostedItem struct {
	ID              int              `gorm:"primary_key" json:"id"`
	ProductId       *int             `gorm:"index" json:"product_id"`
	GeneratedPostId *int             `json:"generated_post_id"`
	ProductName     string           `gorm:"size:500;not null" json:"product_name"`
	Category        *string          `gorm:"size:30" json:"category"`
	Brand           *string          `gorm:"size:100" json:"brand"`
	SourceStore     *string          `gorm:"size:100" json:"source_store"`
	PostedAt        time.Time        `gorm:"index;autoCreateTime" json:"posted_at"`
	CostUsd         *decimal.Decimal `gorm:"type:decimal(20,2)" json:"cost_usd"`
	ListedPriceVnd  *decimal.Decimal `gorm:"type:decimal(20,2)" json:"listed_price_vnd"`
	Sold            bool             `gorm:"not null;default:false" json:"sold"`
	MatchedSaleId   *int             `json:"matched_sale_id"`
	MatchedAt       *time.Time       `json:"matched_at"`
}

func CreatePostedItem(ctx context.Context, item *PostedItem) error {
	if item.ProductName == "" {
		return errors.New("product name is required")
	}
	db := config.GetDB()
	return db.WithContext(ctx).Create(item).Error
}

type PostedItemFilter struct {
	SoldOnly   bool
	UnsoldOnly bool
	Limit      int
}

func GetPostedItems(ctx context.Context, filter PostedItemFilter) ([]*PostedItem, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if filter.SoldOnly {
		dbCtx = dbCtx.Where("sold = ?", true)
	} else if filter.UnsoldOnly {
		dbCtx = dbCtx.Where("sold = ?", false)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var results []*PostedItem
	err := dbCtx.Order("posted_at DESC").Limit(limit).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func UpdatePostedItem(ctx context.Context, id int, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return errors.New("no fields to update")
	}
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&PostedItem{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("posted item not found")
	}
	return nil
}

func DeletePostedItem(ctx context.Context, id int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Delete(&PostedItem{}, id).Error
}
