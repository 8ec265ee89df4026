package seed

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Simplici0/batchcost/internal/db"
	"github.com/Simplici0/batchcost/internal/migrations"
	"github.com/Simplici0/batchcost/internal/store"
)

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "seed-test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	defer database.Close()

	if err := migrations.Up(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	st := store.New(database)
	for i := 0; i < 10; i++ {
		stats, err := Run(context.Background(), st)
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != 3 {
				t.Fatalf("expected 3 inserts in first run, got %d", stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 {
			t.Fatalf("expected 0 inserts in iteration %d, got %d", i, stats.Inserts)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM material_groups WHERE name = ?`, defaultGroupName, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM materials WHERE name = ?`, defaultMaterialName, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM machines WHERE name = ?`, defaultMachineName, 1)

	var createdBy string
	if err := database.QueryRow(`SELECT created_by FROM machines WHERE name = ?`, defaultMachineName).Scan(&createdBy); err != nil {
		t.Fatalf("query machine: %v", err)
	}
	if createdBy != "system" {
		t.Fatalf("expected seed rows created by system, got %q", createdBy)
	}
}

func TestRunLinksMaterialToSeededGroup(t *testing.T) {
	t.Parallel()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	defer database.Close()
	if err := migrations.Up(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	st := store.New(database)
	if _, err := Run(context.Background(), st); err != nil {
		t.Fatalf("run seed: %v", err)
	}

	id, err := st.FindMaterialByName(context.Background(), defaultMaterialName)
	if err != nil {
		t.Fatalf("find material: %v", err)
	}
	m, err := st.GetMaterial(context.Background(), id)
	if err != nil {
		t.Fatalf("get material: %v", err)
	}
	if m.Density != defaultGroupDensity {
		t.Fatalf("expected density %v, got %v", defaultGroupDensity, m.Density)
	}
	if !m.PricePerKg.Equal(defaultMaterialPrice) {
		t.Fatalf("expected price %s, got %s", defaultMaterialPrice, m.PricePerKg)
	}
}

func assertCount(t *testing.T, database *sql.DB, query string, arg any, expected int) {
	t.Helper()

	var count int
	if err := database.QueryRow(query, arg).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected count %d, got %d", expected, count)
	}
}
