package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ChristianSBP/sbp-services/internal/db"
	"github.com/ChristianSBP/sbp-services/internal/domain"
	"github.com/ChristianSBP/sbp-services/internal/migrate"
	"github.com/ChristianSBP/sbp-services/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func seedSeason(t *testing.T, r repo.Repo, id string) {
	t.Helper()
	err := r.InsertSeason(context.Background(), domain.Season{
		ID: id, Name: "Season " + id,
		StartDate: "2026-01-05", EndDate: "2026-06-30",
		CreatedAt: "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("seed season: %v", err)
	}
}

func insertDuty(t *testing.T, r repo.Repo, d domain.Duty) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if d.CreatedAt == "" {
		d.CreatedAt = "2026-01-01T00:00:00Z"
		d.UpdatedAt = d.CreatedAt
	}
	if err := r.InsertDuty(ctx, tx, d); err != nil {
		t.Fatalf("insert duty: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestActiveSeasonIsExclusive(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedSeason(t, r, "s1")
	seedSeason(t, r, "s2")

	if err := r.SetActiveSeason(ctx, "s1"); err != nil {
		t.Fatalf("activate s1: %v", err)
	}
	if err := r.SetActiveSeason(ctx, "s2"); err != nil {
		t.Fatalf("activate s2: %v", err)
	}
	active, err := r.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("active season: %v", err)
	}
	if active.ID != "s2" {
		t.Errorf("active = %s, want s2", active.ID)
	}
	seasons, err := r.ListSeasons(ctx)
	if err != nil {
		t.Fatal(err)
	}
	activeCount := 0
	for _, s := range seasons {
		if s.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Errorf("%d active seasons, want exactly 1", activeCount)
	}

	if err := r.SetActiveSeason(ctx, "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("activate unknown: err = %v, want ErrNotFound", err)
	}
}

func TestListDutiesOrderAndFilters(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedSeason(t, r, "s1")

	late := "19:30"
	early := "10:00"
	insertDuty(t, r, domain.Duty{
		ID: "d-late", SeasonID: "s1", Date: "2026-01-05",
		Type: domain.TypeConcert, Formation: domain.FormationTutti,
		Status: domain.StatusFixed, StartTime: &late,
	})
	insertDuty(t, r, domain.Duty{
		ID: "d-early", SeasonID: "s1", Date: "2026-01-05",
		Type: domain.TypeRehearsal, Formation: domain.FormationTutti,
		Status: domain.StatusFixed, StartTime: &early,
	})
	insertDuty(t, r, domain.Duty{
		ID: "d-untimed", SeasonID: "s1", Date: "2026-01-04",
		Type: domain.TypeRehearsal, Formation: domain.FormationWindQuintet,
		Status: domain.StatusPossible,
	})

	duties, err := r.ListDuties(ctx, repo.DutyFilters{SeasonID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(duties) != 3 {
		t.Fatalf("got %d duties, want 3", len(duties))
	}
	gotOrder := []string{duties[0].ID, duties[1].ID, duties[2].ID}
	wantOrder := []string{"d-untimed", "d-early", "d-late"}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("order = %v, want %v", gotOrder, wantOrder)
		}
	}

	duties, err = r.ListDuties(ctx, repo.DutyFilters{SeasonID: "s1", DateFrom: "2026-01-05", DateTo: "2026-01-05"})
	if err != nil {
		t.Fatal(err)
	}
	if len(duties) != 2 {
		t.Errorf("date filter returned %d duties, want 2", len(duties))
	}

	duties, err = r.ListDuties(ctx, repo.DutyFilters{SeasonID: "s1", Formation: "wind_quintet"})
	if err != nil {
		t.Fatal(err)
	}
	if len(duties) != 1 || duties[0].ID != "d-untimed" {
		t.Errorf("formation filter returned %+v", duties)
	}
}

func TestMusicianEnsemblesRoundTrip(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	m := domain.Musician{
		ID: "m1", Name: "Jonas Weiss", Register: "flute", Group: "wood",
		Share: 100, Ensembles: []string{"wind_quintet", "serenade"},
		CreatedAt: "2026-01-01T00:00:00Z",
	}
	if err := r.InsertMusician(ctx, m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetMusician(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Ensembles) != 2 {
		t.Fatalf("ensembles = %v", got.Ensembles)
	}

	m.Ensembles = []string{"wind_quintet"}
	if err := r.UpdateMusician(ctx, m); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = r.GetMusician(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Ensembles) != 1 || got.Ensembles[0] != "wind_quintet" {
		t.Errorf("ensembles after update = %v", got.Ensembles)
	}
}

func TestArtifactNotFound(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	if _, err := r.CollectiveArtifact(ctx, "nope", "pdf"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("collective: err = %v, want ErrNotFound", err)
	}
	if _, err := r.IndividualArtifact(ctx, "nope", "doc"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("individual: err = %v, want ErrNotFound", err)
	}
	if _, err := r.GetDuty(ctx, "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("duty: err = %v, want ErrNotFound", err)
	}
}
