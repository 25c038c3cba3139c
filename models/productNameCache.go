package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductNameCache memoizes one raw, lower-cased product-name string to its
// normalized attributes so the oracle is consulted at most once per distinct
// raw string ever seen. Many raw strings may map to the same product.
// The table is derived state: it can be truncated and rebuilt at any time.
type ProductNameCache struct {
	RawName        string          `gorm:"primaryKey;size:191" json:"raw_name"`
	NormalizedName string          `gorm:"size:255;not null" json:"normalized_name"`
	Category       ProductCategory `gorm:"size:30;not null;default:other" json:"category"`
	Brand          *string         `gorm:"size:100" json:"brand"`
	ProductId      *int            `gorm:"index" json:"product_id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

const productNameCacheRedisPrefix = "productName:"

// LookupProductNameCache checks redis first, then the table. Redis is a pure
// accelerator: a redis miss with a table hit refills redis.
// Returns nil, nil on a miss.
func LookupProductNameCache(ctx context.Context, rawName string) (*ProductNameCache, error) {
	key := strings.ToLower(strings.TrimSpace(rawName))
	if key == "" {
		return nil, nil
	}

	var cached ProductNameCache
	exists, err := config.GetRedisObject(productNameCacheRedisPrefix+key, &cached)
	if err == nil && exists {
		return &cached, nil
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Where("raw_name = ?", key).Take(&cached).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	_ = config.SetRedisObject(productNameCacheRedisPrefix+key, &cached, 0)
	return &cached, nil
}

// SaveProductNameCache upserts the memoized entry for the raw name.
// Re-resolving the same raw string overwrites the previous entry in place.
func SaveProductNameCache(ctx context.Context, entry *ProductNameCache) error {
	entry.RawName = strings.ToLower(strings.TrimSpace(entry.RawName))
	if entry.RawName == "" {
		return errors.New("raw name is required")
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "raw_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"normalized_name", "category", "brand", "product_id", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return err
	}

	_ = config.SetRedisObject(productNameCacheRedisPrefix+entry.RawName, entry, 0)
	return nil
}
