package db

import (
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func tableExists(t *testing.T, d *DB, name string) bool {
	t.Helper()
	var n int
	err := d.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestOpen_AppliesPragmas(t *testing.T) {
	d := setupTestDB(t)

	var mode string
	if err := d.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := d.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestMigrateUpDown(t *testing.T) {
	d := setupTestDB(t)

	v, dirty, err := d.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion before up: %v", err)
	}
	if v != 0 || dirty {
		t.Errorf("fresh DB version = %d dirty=%v, want 0 false", v, dirty)
	}

	if err := d.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if !tableExists(t, d, "calibration_runs") {
		t.Fatal("calibration_runs missing after MigrateUp")
	}

	// Second run is a no-op.
	if err := d.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}
	v, dirty, err = d.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if v != 1 || dirty {
		t.Errorf("version = %d dirty=%v, want 1 false", v, dirty)
	}

	if err := d.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	if tableExists(t, d, "calibration_runs") {
		t.Error("calibration_runs still present after MigrateDown")
	}
}

func TestOpenAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	d, err := OpenAndMigrate(path)
	if err != nil {
		t.Fatalf("OpenAndMigrate: %v", err)
	}
	defer d.Close()

	if !tableExists(t, d, "calibration_runs") {
		t.Fatal("calibration_runs missing")
	}
}
