package plan_test

import (
	"testing"

	"github.com/ChristianSBP/sbp-services/internal/config"
	"github.com/ChristianSBP/sbp-services/internal/domain"
	"github.com/ChristianSBP/sbp-services/internal/plan"
)

func TestParticipatesIn(t *testing.T) {
	horn := domain.Musician{Name: "Anna Berg", Register: "horn", Group: "brass"}
	flute := domain.Musician{Name: "Jonas Weiss", Register: "flute", Group: "wood", Ensembles: []string{"wind_quintet"}}
	timpani := domain.Musician{Name: "Mara Klein", Register: "percussion"}
	bass := domain.Musician{Name: "Timo Frank", Register: "double_bass"}

	cases := []struct {
		m    domain.Musician
		f    domain.Formation
		want bool
	}{
		{horn, domain.FormationTutti, true},
		{horn, domain.FormationUnknown, true},
		{horn, "", true},
		{horn, domain.FormationCommittee, false},
		{horn, domain.FormationBrass, true},
		{horn, domain.FormationBrassEnsemble, true},
		{horn, domain.FormationWoodwind, false},
		{flute, domain.FormationWoodwind, true},
		{flute, domain.FormationBrass, false},
		{flute, domain.FormationWindQuintet, true},
		{horn, domain.FormationWindQuintet, false},
		{timpani, domain.FormationPercussion, true},
		{flute, domain.FormationPercussion, false},
		{bass, domain.FormationDoubleBass, true},
		{horn, domain.FormationDoubleBass, false},
	}
	for _, tc := range cases {
		if got := plan.ParticipatesIn(tc.m, tc.f); got != tc.want {
			t.Errorf("ParticipatesIn(%s, %s) = %v, want %v", tc.m.Name, tc.f, got, tc.want)
		}
	}
}

func TestCollectiveCoversEveryDay(t *testing.T) {
	cfg := config.Default()
	duties := []domain.Duty{
		{Date: "2026-01-05", Type: domain.TypeRehearsal, Formation: domain.FormationTutti, Status: domain.StatusFixed},
		{Date: "2026-01-07", Type: domain.TypeConcert, Formation: domain.FormationTutti, Status: domain.StatusFixed},
	}
	p, err := plan.Collective(cfg, "Duty plan January", duties, "2026-01-05", "2026-01-11")
	if err != nil {
		t.Fatalf("collective: %v", err)
	}
	if len(p.Rows) != 7 {
		t.Fatalf("got %d rows, want 7", len(p.Rows))
	}
	if p.Rows[0].Free || p.Rows[2].Free {
		t.Error("duty days must not be marked free")
	}
	if !p.Rows[1].Free {
		t.Error("empty day must be marked free")
	}
	if p.Rows[0].Weight != 1 {
		t.Errorf("row weight = %v, want 1", p.Rows[0].Weight)
	}
}

func TestIndividualFiltersByParticipation(t *testing.T) {
	cfg := config.Default()
	horn := domain.Musician{Name: "Anna Berg", Register: "horn", Group: "brass"}
	duties := []domain.Duty{
		{Date: "2026-01-05", Type: domain.TypeRehearsal, Formation: domain.FormationTutti, Status: domain.StatusFixed},
		{Date: "2026-01-06", Type: domain.TypeRehearsal, Formation: domain.FormationWoodwind, Status: domain.StatusFixed},
		{Date: "2026-01-07", Type: domain.TypeConcert, Formation: domain.FormationBrassEnsemble, Status: domain.StatusFixed},
	}
	p, err := plan.Individual(cfg, horn, duties, "2026-01-05", "2026-01-07")
	if err != nil {
		t.Fatalf("individual: %v", err)
	}
	if p.Title != "Duty plan Anna Berg" {
		t.Errorf("title = %q", p.Title)
	}
	if len(p.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(p.Rows))
	}
	if len(p.Rows[0].Duties) != 1 {
		t.Errorf("tutti day should be kept for the horn")
	}
	if !p.Rows[1].Free {
		t.Errorf("woodwind day should be free for the horn")
	}
	if len(p.Rows[2].Duties) != 1 {
		t.Errorf("brass ensemble day should be kept for the horn")
	}
}

func TestIndividualForVacantSlot(t *testing.T) {
	cfg := config.Default()
	vacant := domain.Musician{Position: "2nd trumpet", Group: "brass", IsVacant: true}
	p, err := plan.Individual(cfg, vacant, nil, "2026-01-05", "2026-01-05")
	if err != nil {
		t.Fatalf("individual: %v", err)
	}
	if p.Title != "Duty plan vacant (2nd trumpet)" {
		t.Errorf("title = %q", p.Title)
	}
}

func TestCollectiveRejectsReversedRange(t *testing.T) {
	cfg := config.Default()
	if _, err := plan.Collective(cfg, "x", nil, "2026-01-11", "2026-01-05"); err == nil {
		t.Fatal("expected error for reversed range")
	}
}
