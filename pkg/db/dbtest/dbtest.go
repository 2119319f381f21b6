// Package dbtest opens throwaway sqlite databases with the production schema applied.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/angelmondragon/voucherredeem-backend/pkg/db"
	"github.com/angelmondragon/voucherredeem-backend/pkg/migrate"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open returns an in-memory sqlite client private to t, migrated to the latest version.
func Open(t testing.TB) *db.Client {
	t.Helper()

	client := OpenEmpty(t)
	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	require.NoError(t, migrate.Up(context.Background(), sqlDB, client.Dialect()))
	return client
}

// OpenEmpty returns an in-memory sqlite client with no schema.
func OpenEmpty(t testing.TB) *db.Client {
	t.Helper()

	goose.SetLogger(goose.NopLogger())

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db.NewFromGorm(conn)
}
