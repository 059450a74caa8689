package models

import (
	"log"

	"github.com/mmdatafocus/docflow_backend/config"
)

// MigrateTable runs AutoMigrate for every table, parents before children so
// the cascade foreign keys resolve.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Template{},
		&Field{},
		&BatchSession{},
		&BatchCandidate{},
		&CandidateFieldValue{},
		&Document{},
		&DocumentField{},
	)
	if err != nil {
		log.Printf("auto-migrate failed: %v", err)
		return
	}
	log.Println("database migrated")
}
