// Package testdb opens an isolated in-memory sqlite database carrying the
// production schema, for repository and service tests.
package testdb

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE packages (
		id INTEGER PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		package_type TEXT NOT NULL,
		display_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		promotion_kind TEXT,
		priority_level INTEGER NOT NULL DEFAULT 0,
		duration_hours INTEGER,
		extend_days INTEGER,
		membership_tier TEXT,
		membership_days INTEGER,
		max_posts INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE user_entitlements (
		user_id INTEGER PRIMARY KEY,
		free_post_quota INTEGER NOT NULL DEFAULT 5,
		free_post_used INTEGER NOT NULL DEFAULT 0,
		free_quota_reset_at DATETIME,
		membership_type TEXT,
		membership_expires_at DATETIME,
		membership_post_quota INTEGER,
		membership_post_used INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE listings (
		id INTEGER PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		promotion_type TEXT NOT NULL DEFAULT 'NONE',
		priority_level INTEGER NOT NULL DEFAULT 0,
		promotion_expire_at DATETIME,
		expire_at DATETIME,
		is_expired BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		buyer_id INTEGER NOT NULL,
		package_id INTEGER NOT NULL,
		listing_id INTEGER,
		order_type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE payments (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL,
		provider TEXT NOT NULL,
		provider_order_id INTEGER NOT NULL UNIQUE,
		transaction_id TEXT,
		amount INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		raw_data TEXT,
		paid_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Open returns a fresh database. Row-lock clauses are stripped because
// sqlite serializes writers on its own; the pool is pinned to a single
// connection so concurrent callers queue the same way row locks would.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:listingboost_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	stripLocks := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if !strings.Contains(sql, "FOR UPDATE") {
			return
		}
		sql = strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
		sql = strings.ReplaceAll(sql, "FOR UPDATE", "")
		d.Statement.SQL.Reset()
		d.Statement.SQL.WriteString(sql)
	}
	if err := db.Callback().Query().Before("gorm:query").Register("testdb:strip_locks", stripLocks); err != nil {
		t.Fatalf("register query callback: %v", err)
	}
	if err := db.Callback().Row().Before("gorm:row").Register("testdb:strip_locks_row", stripLocks); err != nil {
		t.Fatalf("register row callback: %v", err)
	}
	if err := db.Callback().Raw().Before("gorm:raw").Register("testdb:strip_locks_raw", stripLocks); err != nil {
		t.Fatalf("register raw callback: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to apply schema: %v", err)
		}
	}
	return db
}
