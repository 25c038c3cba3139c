package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	gosqlmysql "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NormalizedProduct is the canonical product identity shared by many raw
// name variants. The unique index on name_normalized is the enforcement
// point for race-tolerant first-time creation.
type NormalizedProduct struct {
	ID              int             `gorm:"primary_key" json:"id"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	NameNormalized  string          `gorm:"uniqueIndex;size:191;not null" json:"name_normalized"`
	Category        ProductCategory `gorm:"size:30;not null;default:other" json:"category"`
	Brand           *string         `gorm:"size:100" json:"brand"`
	TotalSales      int             `gorm:"not null;default:0" json:"total_sales"`
	TotalRevenueVnd decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_revenue_vnd"`
	TotalProfitVnd  decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_profit_vnd"`
	LastSoldAt      *time.Time      `json:"last_sold_at"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ResolvedIdentity is an oracle (or fallback) normalization result, not yet
// bound to a NormalizedProduct row.
type ResolvedIdentity struct {
	Name           string
	NameNormalized string
	Category       ProductCategory
	Brand          *string
}

// FindOrCreateNormalizedProduct is an insert-or-fetch keyed on the
// normalized lookup key. Two callers racing to create the same identity are
// resolved by the unique index: the loser re-reads the winner's row instead
// of surfacing the constraint violation.
func FindOrCreateNormalizedProduct(ctx context.Context, db *gorm.DB, identity ResolvedIdentity) (*NormalizedProduct, error) {
	key := strings.ToLower(strings.TrimSpace(identity.NameNormalized))
	if key == "" {
		return nil, errors.New("normalized name is required")
	}

	var existing NormalizedProduct
	err := db.WithContext(ctx).Where("name_normalized = ?", key).Take(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	product := NormalizedProduct{
		Name:           identity.Name,
		NameNormalized: key,
		Category:       identity.Category,
		Brand:          identity.Brand,
	}
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		if IsDuplicateKeyError(err) {
			var winner NormalizedProduct
			if rerr := db.WithContext(ctx).Where("name_normalized = ?", key).Take(&winner).Error; rerr != nil {
				return nil, rerr
			}
			return &winner, nil
		}
		return nil, err
	}
	return &product, nil
}

// IsDuplicateKeyError reports whether err is a unique-constraint violation,
// either gorm's translated sentinel or the raw MySQL 1062.
func IsDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *gosqlmysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// AddProductSale applies one new sale to the identity's running aggregates.
// Increments are atomic SQL expressions so that concurrent batch syncs
// touching the same identity never lose updates to read-modify-write.
func AddProductSale(ctx context.Context, db *gorm.DB, productId int, salePrice, profit decimal.Decimal) error {
	return db.WithContext(ctx).Model(&NormalizedProduct{}).
		Where("id = ?", productId).
		Updates(map[string]interface{}{
			"total_sales":       gorm.Expr("total_sales + 1"),
			"total_revenue_vnd": gorm.Expr("total_revenue_vnd + ?", salePrice),
			"total_profit_vnd":  gorm.Expr("total_profit_vnd + ?", profit),
			"last_sold_at":      time.Now(),
		}).Error
}

// ApplyProductSaleDelta adjusts revenue/profit aggregates when an existing
// sale row's values change on re-sync. The sale count is untouched: the row
// was already counted on first insert.
func ApplyProductSaleDelta(ctx context.Context, db *gorm.DB, productId int, revenueDelta, profitDelta decimal.Decimal) error {
	if revenueDelta.IsZero() && profitDelta.IsZero() {
		return nil
	}
	return db.WithContext(ctx).Model(&NormalizedProduct{}).
		Where("id = ?", productId).
		Updates(map[string]interface{}{
			"total_revenue_vnd": gorm.Expr("total_revenue_vnd + ?", revenueDelta),
			"total_profit_vnd":  gorm.Expr("total_profit_vnd + ?", profitDelta),
		}).Error
}

// RebuildProductStats recomputes every identity's aggregates from the sales
// table. This is the explicit full rebuild; the sync path only ever applies
// additive updates.
func RebuildProductStats(ctx context.Context) (int64, error) {
	db := config.GetDB()
	result := db.WithContext(ctx).Exec(`
		UPDATE normalized_products np
		LEFT JOIN (
			SELECT
				product_id,
				COUNT(*) AS sale_count,
				COALESCE(SUM(sale_price_vnd), 0) AS revenue,
				COALESCE(SUM(profit_vnd), 0) AS profit,
				MAX(synced_at) AS last_sold
			FROM sales
			WHERE product_id IS NOT NULL
			GROUP BY product_id
		) agg ON agg.product_id = np.id
		SET
			np.total_sales = COALESCE(agg.sale_count, 0),
			np.total_revenue_vnd = COALESCE(agg.revenue, 0),
			np.total_profit_vnd = COALESCE(agg.profit, 0),
			np.last_sold_at = agg.last_sold`)
	return result.RowsAffected, result.Error
}

func GetNormalizedProduct(ctx context.Context, id int) (*NormalizedProduct, error) {
	db := config.GetDB()
	var product NormalizedProduct
	if err := db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}
