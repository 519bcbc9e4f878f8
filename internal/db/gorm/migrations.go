package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: current roster payload per namespace
		{
			ID: "001_roster_states",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&RosterState{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("roster_states")
			},
		},

		// Migration 002: revision history
		{
			ID: "002_roster_revisions",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&RosterRevision{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("roster_revisions")
			},
		},
	})

	return m.Migrate()
}
