package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/dynq/internal/ir"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, testSchema())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path, testSchema())
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path, testSchema())
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"dynq_meta", "dynq_entity", "e_order", "e_customer", "e_employee", "c_order__lines", "c_order__tags"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_RejectsDifferentLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, testSchema())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	changed := testSchema()
	changed.Entities["Customer"].Properties = append(changed.Entities["Customer"].Properties,
		ir.PropertySpec{Name: "Country", Type: strT.Nullify()})

	_, err = Open(path, changed)
	if err == nil || !strings.Contains(err.Error(), "does not match schema layout") {
		t.Fatalf("expected layout mismatch, got %v", err)
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:", testSchema())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version string
	if err := s.db.QueryRow("SELECT value FROM dynq_meta WHERE key = 'ir_version'").Scan(&version); err != nil {
		t.Fatalf("read meta: %v", err)
	}
	if version != ir.IRVersion {
		t.Errorf("ir_version = %q, want %q", version, ir.IRVersion)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db", testSchema())
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_InvalidSchema(t *testing.T) {
	bad := testSchema()
	bad.Entities["Customer"].Properties = append(bad.Entities["Customer"].Properties,
		ir.PropertySpec{Name: "name", Type: strT})

	_, err := Open(":memory:", bad)
	if err == nil || !strings.Contains(err.Error(), "same column") {
		t.Fatalf("expected column collision, got %v", err)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.want); err != nil {
				t.Error(err)
			}
		})
	}
}
