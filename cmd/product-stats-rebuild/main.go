package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	"bitbucket.org/mmdatafocus/shopops_backend/models"
)

// Recomputes every product identity's sale aggregates from the sales table.
// The sync path only applies additive updates, so run this after manual
// database surgery or to verify the incremental math.
func main() {
	dryRun := flag.Bool("dry-run", false, "Report what would be rebuilt without writing")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()

	if *dryRun {
		var products, sales int64
		if err := db.WithContext(ctx).Model(&models.NormalizedProduct{}).Count(&products).Error; err != nil {
			fmt.Fprintf(os.Stderr, "count products: %v\n", err)
			os.Exit(1)
		}
		if err := db.WithContext(ctx).Model(&models.Sale{}).Where("product_id IS NOT NULL").Count(&sales).Error; err != nil {
			fmt.Fprintf(os.Stderr, "count sales: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("would rebuild %d products from %d bound sales\n", products, sales)
		return
	}

	affected, err := models.RebuildProductStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("rebuilt aggregates, %d product rows touched\n", affected)
}
