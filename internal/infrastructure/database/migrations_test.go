package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/maxsfamily/stripgate/migrations"
)

var testMigrations = fstest.MapFS{
	"20260101_000000_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);")},
	"20260101_000000_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
	"20260102_000000_gadgets.up.sql":   {Data: []byte("CREATE TABLE gadgets (id INTEGER PRIMARY KEY);")},
	"README.md":                        {Data: []byte("ignored")},
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "widgets") || !tableExists(t, db, "gadgets") {
		t.Fatal("migrations did not create tables")
	}

	applied, pending, err := db.MigrationStatus(ctx, testMigrations)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d; want 2, 0", len(applied), len(pending))
	}

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260101_000000_widgets.up.sql":   testMigrations["20260101_000000_widgets.up.sql"],
		"20260101_000000_widgets.down.sql": testMigrations["20260101_000000_widgets.down.sql"],
	}
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "widgets") {
		t.Error("widgets should have been dropped")
	}

	applied, _, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %d after rollback, want 0", len(applied))
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// The latest migration (gadgets) ships without a down file.
	if err := db.MigrateDown(ctx, testMigrations); err == nil {
		t.Error("MigrateDown() should fail without down SQL")
	}
}

func TestMigrate_Embedded(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate(embedded) error = %v", err)
	}
	if !tableExists(t, db, "action_audit") {
		t.Error("embedded migrations did not create action_audit")
	}
}

func TestLoadMigrations(t *testing.T) {
	t.Run("nil fs", func(t *testing.T) {
		got, err := LoadMigrations(nil)
		if err != nil || got != nil {
			t.Errorf("LoadMigrations(nil) = %v, %v", got, err)
		}
	})

	t.Run("orphan down file", func(t *testing.T) {
		fsys := fstest.MapFS{"20260101_000000_x.down.sql": {Data: []byte("SELECT 1;")}}
		if _, err := LoadMigrations(fsys); err == nil {
			t.Error("LoadMigrations() should reject a down file without up")
		}
	})

	t.Run("sorted", func(t *testing.T) {
		got, err := LoadMigrations(testMigrations)
		if err != nil {
			t.Fatalf("LoadMigrations() error = %v", err)
		}
		if len(got) != 2 || got[0].Name != "widgets" || got[1].Name != "gadgets" {
			t.Errorf("LoadMigrations() = %+v", got)
		}
	})
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260101_120000_action_audit.up.sql", "20260101_120000", "action_audit", true, true},
		{"20260101_120000_action_audit.down.sql", "20260101_120000", "action_audit", false, true},
		{"20260101_120000.up.sql", "20260101_120000", "", true, true},
		{"20260101.up.sql", "", "", false, false},
		{"20260101_120000_x.sql", "", "", false, false},
		{"notes.txt", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)",
					version, name, up, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
