package db

import (
	"testing"
	"testing/fstest"

	"slackmemory/migrations"
)

func TestSQLFilesOrderedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"notes.md":       {Data: []byte("not a migration")},
		"010_tenth.sql":  {Data: []byte("SELECT 10;")},
	}

	files, err := sqlFiles(fsys)
	if err != nil {
		t.Fatalf("sqlFiles: %v", err)
	}
	want := []string{"001_first.sql", "002_second.sql", "010_tenth.sql"}
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("got %v, want %v", files, want)
		}
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	files, err := sqlFiles(migrations.Files)
	if err != nil {
		t.Fatalf("sqlFiles: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no embedded migration files")
	}
	for _, f := range files {
		if f != "" && (f[0] < '0' || f[0] > '9') {
			t.Fatalf("migration %q missing numeric version prefix", f)
		}
	}
}
