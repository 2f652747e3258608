// Package testutil opens migrated in-memory databases for service tests.
package testutil

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/meterbill/internal/idgen"
	"github.com/smallbiznis/meterbill/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns a fresh in-memory database with every billing table created.
// The pool holds a single connection so the database lives as long as the test.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Models lists every persisted model.
func Models() []any {
	return migration.Models()
}

// NewNode returns a snowflake node for tests.
func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := idgen.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
