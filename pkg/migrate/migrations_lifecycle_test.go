package migrate_test

import (
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/giftdrop-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	fsys := migrate.Migrations()
	matches, err := fs.Glob(fsys, "*_"+suffix+".sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration embedded", suffix)
	}
	data, err := fs.ReadFile(fsys, matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	return string(data)
}

func TestLifecycleMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_gifts": {
			"CREATE TABLE IF NOT EXISTS gifts",
			"CHECK (bought_count >= 0 AND bought_count <= total_count)",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_gifts_slug",
			"DROP TABLE IF EXISTS gifts",
		},
		"create_invoices": {
			"CREATE TABLE IF NOT EXISTS invoices",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_external_id",
			"CREATE INDEX IF NOT EXISTS idx_invoices_sweep ON invoices (status, expires_at, last_checked_at)",
			"CREATE INDEX IF NOT EXISTS idx_invoices_expires_at",
		},
		"create_gift_transfers": {
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_gift_transfers_purchased_gift_id",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_gift_transfers_send_token",
			"CHECK (receiver_id IS NULL OR receiver_id <> sender_id)",
		},
		"create_outbox_events": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"WHERE published_at IS NULL",
		},
	}

	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	if err := migrate.Validate(migrate.Migrations()); err != nil {
		t.Fatalf("embedded migrations should validate: %v", err)
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 2, 8, 30, 0, 0, time.UTC)

	path, err := migrate.CreateSQLMigration(dir, "Add Gift Tags!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "20261002083000_add_gift_tags.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}

	if _, err := migrate.CreateSQLMigration(dir, "add gift tags", now); err == nil {
		t.Fatal("expected a clash on the same version and name")
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!", now); err == nil {
		t.Fatal("expected empty slug to be rejected")
	}
}

func TestValidateRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/001_init.sql", []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.Validate(os.DirFS(dir)); err == nil {
		t.Fatal("expected short version to be rejected")
	}
	if err := migrate.Validate(os.DirFS(t.TempDir())); err == nil {
		t.Fatal("expected empty directory to be rejected")
	}
}
