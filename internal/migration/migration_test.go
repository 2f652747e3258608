package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", name)
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestEmbeddedMigrationsCreateEveryTable(t *testing.T) {
	var schema strings.Builder
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/"+e.Name())
		require.NoError(t, err)
		schema.Write(body)
	}

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	for _, model := range Models() {
		stmt := &gorm.Statement{DB: db}
		require.NoError(t, stmt.Parse(model))
		assert.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+stmt.Schema.Table+" (", stmt.Schema.Table)
	}
}

func TestMigrateFallsBackToAutoMigrate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	status, err := Migrate(db)
	require.NoError(t, err)
	assert.Equal(t, Status{Dialect: "sqlite"}, status)
	assert.True(t, db.Migrator().HasTable("invoices"))
	assert.True(t, db.Migrator().HasIndex("invoices", "ux_invoices_user_month"))
	assert.True(t, db.Migrator().HasTable("audit_logs"))
}
