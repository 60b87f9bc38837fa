package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/helpdesk/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "helpdesk.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_Tenants(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	tenant := &models.Tenant{Name: "Acme Corp", Plan: "basic"}
	if err := store.CreateTenant(ctx, tenant); err != nil {
		t.Fatal(err)
	}
	if tenant.ID == "" || tenant.CreatedAt.IsZero() {
		t.Errorf("ID and CreatedAt should be set: %+v", tenant)
	}

	got, err := store.GetTenant(ctx, tenant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Acme Corp" || got.Plan != "basic" {
		t.Errorf("got %+v", got)
	}
	byName, err := store.GetTenantByName(ctx, "Acme Corp")
	if err != nil {
		t.Fatal(err)
	}
	if byName.ID != tenant.ID {
		t.Errorf("GetTenantByName id=%s, want %s", byName.ID, tenant.ID)
	}

	if err := store.CreateTenant(ctx, &models.Tenant{Name: "Acme Corp"}); err == nil {
		t.Error("expected unique name violation")
	}
	if err := store.CreateTenant(ctx, &models.Tenant{Name: "  "}); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("expected configuration error for blank name, got %v", err)
	}

	_, err = store.GetTenant(ctx, "nope")
	if !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}

	_ = store.CreateTenant(ctx, &models.Tenant{Name: "Globex"})
	list, err := store.ListTenants(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "Acme Corp" || list[1].Name != "Globex" {
		t.Errorf("ListTenants: %+v", list)
	}
	if n, _ := store.CountTenants(ctx); n != 2 {
		t.Errorf("CountTenants=%d", n)
	}
}

func TestSQLiteStorage_SeedTenants(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	seeds := []TenantSeed{
		{Name: "Acme Corp", Plan: "basic"},
		{Name: "Globex", ID: "6f1c2a9e-6a53-4a47-9a52-3c1b0d6f0001"},
	}

	first, err := store.SeedTenants(ctx, seeds)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || first["Globex"] != "6f1c2a9e-6a53-4a47-9a52-3c1b0d6f0001" || first["Acme Corp"] == "" {
		t.Fatalf("mapping: %v", first)
	}

	second, err := store.SeedTenants(ctx, seeds)
	if err != nil {
		t.Fatal(err)
	}
	if second["Acme Corp"] != first["Acme Corp"] {
		t.Error("re-seeding must keep existing ids")
	}
	if n, _ := store.CountTenants(ctx); n != 2 {
		t.Errorf("re-seeding duplicated tenants: %d", n)
	}

	_, err = store.SeedTenants(ctx, []TenantSeed{{Name: "Initech"}, {Name: "Globex", ID: "different"}})
	if !errors.Is(err, models.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := store.GetTenantByName(ctx, "Initech"); !errors.Is(err, ErrTenantNotFound) {
		t.Error("failed seed must not be partially applied")
	}
}

func TestSQLiteStorage_ResolveTenants(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	ids, err := store.SeedTenants(ctx, []TenantSeed{{Name: "Acme Corp"}, {Name: "Globex"}})
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.ResolveTenants(ctx, []string{"Acme Corp", ids["Globex"], "Acme Corp"})
	if err != nil {
		t.Fatal(err)
	}
	if got["Acme Corp"] != ids["Acme Corp"] || got[ids["Globex"]] != ids["Globex"] {
		t.Errorf("resolved: %v", got)
	}

	_, err = store.ResolveTenants(ctx, []string{"Acme Corp", "Umbrella", "Hooli"})
	if !errors.Is(err, models.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	want := "configuration error: unknown tenants: Hooli, Umbrella"
	if err.Error() != want {
		t.Errorf("error=%q, want %q", err.Error(), want)
	}
}

func TestSQLiteStorage_Runs(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-1", "run-2"} {
		r := &models.RunSummary{RunID: id, StartedAt: base.Add(time.Duration(i) * time.Hour), Documents: 3, Done: 2, Skipped: 1, Points: 10}
		r.Finish(2 * time.Second)
		if err := store.RecordRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	_ = store.RecordRun(ctx, &models.RunSummary{RunID: "run-3", StartedAt: base.Add(-time.Hour), Aborted: true, Error: "boom"})

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" || runs[1].RunID != "run-1" {
		t.Fatalf("ListRuns: %+v", runs)
	}
	if runs[0].Duration != 2*time.Second || runs[0].Points != 10 || runs[0].VectorsPerSec != 5 {
		t.Errorf("run fields: %+v", runs[0])
	}

	all, _ := store.ListRuns(ctx, 0)
	if len(all) != 3 || !all[2].Aborted || all[2].Error != "boom" {
		t.Errorf("oldest run: %+v", all[len(all)-1])
	}
	if n, _ := store.CountRuns(ctx); n != 3 {
		t.Errorf("CountRuns=%d", n)
	}
}
