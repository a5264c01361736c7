package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateSQLMigrationRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	versionClock = func() time.Time { return time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { versionClock = func() time.Time { return time.Now().UTC() } })

	path, err := CreateSQLMigration(dir, "add refund column")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260105090000_add_refund_column.sql" {
		t.Fatalf("unexpected file %s", path)
	}
	if _, err := CreateSQLMigration(dir, "add refund column"); err == nil {
		t.Fatal("expected a second create with the same version to fail")
	}
	if _, err := CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("expected an unusable name to be rejected")
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	cases := map[string]struct {
		name string
		body string
	}{
		"bad name":     {name: "create_orders.sql", body: "-- +goose Up\n-- +goose Down\n"},
		"missing down": {name: "20260105090000_orders.sql", body: "-- +goose Up\nSELECT 1;\n"},
		"reversed":     {name: "20260105090000_orders.sql", body: "-- +goose Down\n-- +goose Up\n"},
		"missing up":   {name: "20260105090000_orders.sql", body: "-- +goose Down\n"},
	}
	for label, tc := range cases {
		t.Run(label, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, tc.name), []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := ValidateDir(dir); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := []byte("-- +goose Up\n-- +goose Down\n")
	for _, name := range []string{"20260105090000_a.sql", "20260105090000_b.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	err := ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}
