package store

import (
	"context"
	"testing"
)

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM "` + table + `"`).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSeed_WritesEveryTable(t *testing.T) {
	s := seededStore(t)

	want := map[string]int{
		"dynq_entity":    3,
		"e_customer":     1,
		"e_employee":     1,
		"e_order":        2,
		"c_order__lines": 2,
		"c_order__tags":  1,
	}
	for table, n := range want {
		if got := countRows(t, s, table); got != n {
			t.Errorf("%s has %d rows, want %d", table, got, n)
		}
	}
}

func TestSeed_StoredRepresentation(t *testing.T) {
	s := seededStore(t)

	var total int64
	var from, city string
	err := s.db.QueryRow(`SELECT "total", sys_from, "address_city" FROM "e_order" WHERE sys_to IS NULL`).Scan(&total, &from, &city)
	if err != nil {
		t.Fatalf("select current order: %v", err)
	}
	if total != 122500 {
		t.Errorf("total = %d, want 122500 (scaled by 10^4)", total)
	}
	if from != "2024-01-05 00:00:00.000" {
		t.Errorf("sys_from = %q", from)
	}
	if city != "Springfield" {
		t.Errorf("address_city = %q", city)
	}

	var typ string
	if err := s.db.QueryRow(`SELECT type FROM dynq_entity WHERE id = 2`).Scan(&typ); err != nil {
		t.Fatalf("select entity type: %v", err)
	}
	if typ != "Employee" {
		t.Errorf("type of 2 = %q, want Employee", typ)
	}
}

func TestSeed_ReplacesPreviousContents(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	if err := s.Seed(ctx, testDataset(t, s.Schema())); err != nil {
		t.Fatalf("second Seed() failed: %v", err)
	}
	if got := countRows(t, s, "e_order"); got != 2 {
		t.Errorf("e_order has %d rows after reseeding, want 2", got)
	}
	if got := countRows(t, s, "c_order__lines"); got != 2 {
		t.Errorf("c_order__lines has %d rows after reseeding, want 2", got)
	}
}

func TestSeed_CanceledContext(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Seed(ctx, testDataset(t, s.Schema())); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if got := countRows(t, s, "e_order"); got != 0 {
		t.Errorf("e_order has %d rows after a failed seed, want 0", got)
	}
}
