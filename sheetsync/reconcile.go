package sheetsync

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	"bitbucket.org/mmdatafocus/shopops_backend/models"
	"gorm.io/gorm"
)

const (
	defaultUnsoldDaysThreshold = 14
	defaultUnsoldLimit         = 50
)

// Reconcile matches unmatched posted items against synced sales and marks
// the hits as sold. Matching is two-tier: an exact product binding wins;
// otherwise the leading words of the posted name are tried as a fuzzy
// pattern against raw sale names. Only sales synced at or after the posting
// time qualify, since an earlier sale cannot be the outcome of the post.
func Reconcile(ctx context.Context) (*ReconcileResult, error) {
	db := config.GetDB()

	var unmatched []*models.PostedItem
	err := db.WithContext(ctx).
		Where("sold = ? AND matched_sale_id IS NULL", false).
		Find(&unmatched).Error
	if err != nil {
		config.LogError(config.GetLogger(), ModuleSheetSync, "Reconcile", "load unmatched items", nil, err)
		return nil, err
	}

	result := &ReconcileResult{ItemsProcessed: len(unmatched)}
	now := time.Now()

	for _, item := range unmatched {
		sale, err := findMatchingSale(ctx, db, item)
		if err != nil {
			config.LogError(config.GetLogger(), ModuleSheetSync, "Reconcile", "match lookup", item.ID, err)
			continue
		}
		if sale == nil {
			continue
		}

		err = db.WithContext(ctx).Model(&models.PostedItem{}).
			Where("id = ?", item.ID).
			Updates(map[string]interface{}{
				"sold":            true,
				"matched_sale_id": sale.ID,
				"matched_at":      now,
			}).Error
		if err != nil {
			config.LogError(config.GetLogger(), ModuleSheetSync, "Reconcile", "mark sold", item.ID, err)
			continue
		}
		result.NewMatches++
	}

	return result, nil
}

func findMatchingSale(ctx context.Context, db *gorm.DB, item *models.PostedItem) (*models.Sale, error) {
	if item.ProductId != nil {
		sale, err := earliestSale(ctx, db.Where("product_id = ?", *item.ProductId), item.PostedAt)
		if err != nil || sale != nil {
			return sale, err
		}
	}

	pattern := fuzzyNamePattern(item.ProductName)
	if pattern == "" {
		return nil, nil
	}
	return earliestSale(ctx, db.Where("LOWER(product_name_raw) LIKE ?", pattern), item.PostedAt)
}

func earliestSale(ctx context.Context, scope *gorm.DB, postedAt time.Time) (*models.Sale, error) {
	var sales []*models.Sale
	err := scope.WithContext(ctx).
		Where("synced_at >= ?", postedAt).
		Order("synced_at ASC").
		Limit(1).
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, nil
	}
	return sales[0], nil
}

// fuzzyNamePattern builds the tier-2 LIKE pattern from the first three
// words of the posted name, joined by wildcards: "vitamin c 1000mg tablets"
// becomes %vitamin%c%1000mg%.
func fuzzyNamePattern(productName string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(productName)))
	if len(words) == 0 {
		return ""
	}
	if len(words) > 3 {
		words = words[:3]
	}
	return "%" + strings.Join(words, "%") + "%"
}

// BuildUnsoldReport summarizes posted items that remain unsold past the
// staleness threshold: the stale items themselves (oldest first), a
// category breakdown, and the overall unsold rate.
func BuildUnsoldReport(ctx context.Context, daysThreshold int, limit int) (*UnsoldReport, error) {
	if daysThreshold <= 0 {
		daysThreshold = defaultUnsoldDaysThreshold
	}
	if limit <= 0 {
		limit = defaultUnsoldLimit
	}

	db := config.GetDB()
	cutoff := time.Now().AddDate(0, 0, -daysThreshold)
	staleScope := func() *gorm.DB {
		return db.WithContext(ctx).Model(&models.PostedItem{}).
			Where("sold = ? AND matched_sale_id IS NULL AND posted_at < ?", false, cutoff)
	}

	report := &UnsoldReport{
		DaysThreshold: daysThreshold,
		ByCategory:    map[string]int64{},
	}

	if err := db.WithContext(ctx).Model(&models.PostedItem{}).Count(&report.TotalPosted).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&models.PostedItem{}).Where("sold = ?", true).Count(&report.TotalSold).Error; err != nil {
		return nil, err
	}
	report.TotalUnsold = report.TotalPosted - report.TotalSold
	if err := staleScope().Count(&report.StaleUnsold).Error; err != nil {
		return nil, err
	}
	if report.TotalPosted > 0 {
		report.UnsoldRatePercent = float64(report.StaleUnsold) / float64(report.TotalPosted) * 100
	}

	type categoryCount struct {
		Category string
		Count    int64
	}
	var breakdown []categoryCount
	err := staleScope().
		Select("COALESCE(category, 'uncategorized') AS category, COUNT(*) AS count").
		Group("category").
		Order("count DESC").
		Scan(&breakdown).Error
	if err != nil {
		return nil, err
	}
	for _, entry := range breakdown {
		report.ByCategory[entry.Category] = entry.Count
	}

	var staleItems []*models.PostedItem
	err = staleScope().Order("posted_at ASC").Limit(limit).Find(&staleItems).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, item := range staleItems {
		report.Items = append(report.Items, UnsoldItem{
			ID:              item.ID,
			ProductName:     item.ProductName,
			Category:        item.Category,
			Brand:           item.Brand,
			SourceStore:     item.SourceStore,
			PostedAt:        item.PostedAt.Format(time.RFC3339),
			DaysSincePosted: int(now.Sub(item.PostedAt).Hours() / 24),
		})
	}

	return report, nil
}
