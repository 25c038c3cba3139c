package models

import (
	"log"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Batch{}, &Sale{},
		&NormalizedProduct{}, &ProductNameCache{},
		&PostedItem{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
