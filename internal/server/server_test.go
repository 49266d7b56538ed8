package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/ChristianSBP/sbp-services/internal/app"
	"github.com/ChristianSBP/sbp-services/internal/config"
	"github.com/ChristianSBP/sbp-services/internal/db"
	"github.com/ChristianSBP/sbp-services/internal/domain"
	"github.com/ChristianSBP/sbp-services/internal/migrate"
)

type stubConverter struct{}

func (stubConverter) Convert(ctx context.Context, doc []byte) ([]byte, error) {
	return append([]byte("%PDF "), doc...), nil
}

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	a := app.New(conn, config.Default())
	a.Pipeline.Converter = stubConverter{}
	handler, err := New(Config{App: a, BasePath: "/v1", Auth: AuthConfig{Disabled: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", string(data), err)
	}
	return v
}

func createSeason(t *testing.T, ts *testServer) domain.Season {
	t.Helper()
	res, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/seasons", map[string]any{
		"name":       "Spring 2026",
		"start_date": "2026-01-05",
		"end_date":   "2026-01-18",
		"is_active":  true,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create season: %d %s", res.StatusCode, data)
	}
	return decode[domain.Season](t, data)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	res, data := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, data)
	}
}

func TestDutyCreateAndValidate(t *testing.T) {
	ts := newTestServer(t)
	season := createSeason(t, ts)

	res, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/duties", map[string]any{
		"season_id": season.ID,
		"date":      "2026-01-05",
		"type":      "rehearsal",
		"status":    "fixed",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create duty: %d %s", res.StatusCode, data)
	}
	duty := decode[domain.Duty](t, data)
	if duty.ID == "" || duty.Formation != domain.FormationTutti {
		t.Fatalf("unexpected duty: %+v", duty)
	}

	res, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/validations", map[string]any{
		"season_id": season.ID,
		"date":      "2026-01-06",
		"type":      "concert",
		"status":    "possible",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate: %d %s", res.StatusCode, data)
	}
	result := decode[domain.ValidationResult](t, data)
	if result.Status != "ok" {
		t.Errorf("validation status = %s, want ok (%s)", result.Status, data)
	}
	if result.TotalWeighted != 1.5 {
		t.Errorf("total = %v, want 1.5", result.TotalWeighted)
	}

	res, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/duties?season_id="+season.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list duties: %d %s", res.StatusCode, data)
	}
	if duties := decode[[]domain.Duty](t, data); len(duties) != 1 {
		t.Errorf("listed %d duties, want 1", len(duties))
	}
}

func TestDutyUpdateByID(t *testing.T) {
	ts := newTestServer(t)
	season := createSeason(t, ts)

	res, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/duties", map[string]any{
		"season_id": season.ID,
		"date":      "2026-01-05",
		"type":      "rehearsal",
		"status":    "possible",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create duty: %d %s", res.StatusCode, data)
	}
	created := decode[domain.Duty](t, data)

	res, data = doJSON(t, ts.client, http.MethodPut, ts.URL+"/v1/duties/"+created.ID, map[string]any{
		"date":   "2026-01-06",
		"type":   "concert",
		"status": "fixed",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update duty: %d %s", res.StatusCode, data)
	}
	updated := decode[domain.Duty](t, data)
	if updated.ID != created.ID {
		t.Errorf("update changed the id: %s -> %s", created.ID, updated.ID)
	}
	if updated.Date != "2026-01-06" || updated.Status != domain.StatusFixed {
		t.Errorf("update not applied: %+v", updated)
	}

	res, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/duties/"+created.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get duty: %d %s", res.StatusCode, data)
	}
	if got := decode[domain.Duty](t, data); got.Date != "2026-01-06" {
		t.Errorf("stored duty date = %s, want 2026-01-06", got.Date)
	}
}

func TestMusicianUpdateByID(t *testing.T) {
	ts := newTestServer(t)
	res, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/musicians", map[string]any{
		"name": "Anna Berg", "register": "horn", "group": "brass",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create musician: %d %s", res.StatusCode, data)
	}
	created := decode[domain.Musician](t, data)

	res, data = doJSON(t, ts.client, http.MethodPut, ts.URL+"/v1/musicians/"+created.ID, map[string]any{
		"name": "Anna Berg-Lund", "register": "horn", "group": "brass",
		"ensembles": []string{"brass_quartet"},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update musician: %d %s", res.StatusCode, data)
	}
	updated := decode[domain.Musician](t, data)
	if updated.ID != created.ID || updated.Name != "Anna Berg-Lund" {
		t.Errorf("update not applied: %+v", updated)
	}
	if len(updated.Ensembles) != 1 || updated.Ensembles[0] != "brass_quartet" {
		t.Errorf("ensembles = %v", updated.Ensembles)
	}
}

func TestValidationTreatsSameIDAsReplacement(t *testing.T) {
	ts := newTestServer(t)
	season := createSeason(t, ts)

	res, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/duties", map[string]any{
		"season_id": season.ID,
		"date":      "2026-01-05",
		"type":      "rehearsal",
		"status":    "fixed",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create duty: %d %s", res.StatusCode, data)
	}
	created := decode[domain.Duty](t, data)

	// Validating an edit of the stored duty must not double-count it.
	res, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/validations", map[string]any{
		"id":        created.ID,
		"season_id": season.ID,
		"date":      "2026-01-05",
		"type":      "rehearsal",
		"status":    "possible",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate: %d %s", res.StatusCode, data)
	}
	result := decode[domain.ValidationResult](t, data)
	if result.TotalWeighted != 0.5 {
		t.Errorf("total = %v, want 0.5 for the replaced duty", result.TotalWeighted)
	}
}

func TestValidationRejectsMalformedDate(t *testing.T) {
	ts := newTestServer(t)
	res, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/validations", map[string]any{
		"date":   "05.01.2026",
		"type":   "rehearsal",
		"status": "fixed",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (%s)", res.StatusCode, data)
	}
}

func TestPlanGenerationFlow(t *testing.T) {
	ts := newTestServer(t)
	season := createSeason(t, ts)
	for _, d := range []string{"2026-01-05", "2026-01-07"} {
		res, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/duties", map[string]any{
			"season_id": season.ID, "date": d, "type": "rehearsal", "status": "fixed",
		})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("create duty: %d %s", res.StatusCode, data)
		}
	}
	res, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/musicians", map[string]any{
		"name": "Anna Berg", "register": "horn", "group": "brass",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create musician: %d %s", res.StatusCode, data)
	}

	res, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/plans", map[string]any{
		"season_id": season.ID,
	})
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("create plan: %d %s", res.StatusCode, data)
	}
	gp := decode[domain.GeneratedPlan](t, data)
	if gp.Status != domain.PlanPending {
		t.Fatalf("status = %s, want pending", gp.Status)
	}

	deadline := time.Now().Add(10 * time.Second)
	for gp.Status == domain.PlanPending || gp.Status == domain.PlanGenerating {
		if time.Now().After(deadline) {
			t.Fatalf("plan stuck in %s", gp.Status)
		}
		time.Sleep(50 * time.Millisecond)
		res, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/plans/"+gp.ID, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("get plan: %d %s", res.StatusCode, data)
		}
		gp = decode[domain.GeneratedPlan](t, data)
	}
	if gp.Status != domain.PlanReady {
		t.Fatalf("status = %s, want ready (cause: %s)", gp.Status, gp.ErrorCause)
	}
	if gp.IndividualCount != 1 {
		t.Fatalf("individuals = %d, want 1", gp.IndividualCount)
	}

	res, body := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/plans/"+gp.ID+"/artifacts/doc", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("download doc: %d %s", res.StatusCode, body)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("doc content type = %q", ct)
	}
	res, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/plans/"+gp.ID+"/artifacts/pdf", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("download pdf: %d", res.StatusCode)
	}
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Error("pdf artifact missing converter output")
	}

	ind := gp.Individuals[0]
	res, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/plans/"+gp.ID+"/individuals/"+ind.ID+"/artifacts/doc", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("download individual doc: %d %s", res.StatusCode, body)
	}
	if !bytes.Contains(body, []byte("Anna Berg")) {
		t.Error("individual doc should carry the member's name")
	}
}

func TestUnknownPlanIs404(t *testing.T) {
	ts := newTestServer(t)
	res, data := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/plans/nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (%s)", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "not_found" {
		t.Errorf("error envelope = %s", data)
	}
}

func TestBearerAuthRequired(t *testing.T) {
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	a := app.New(conn, config.Default())
	handler, err := New(Config{App: a, BasePath: "/v1", Auth: AuthConfig{JWTSecret: "test-secret"}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
	})
	url := "http://" + ln.Addr().String()

	res, _ := doJSON(t, &http.Client{}, http.MethodGet, url+"/v1/seasons", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a token", res.StatusCode)
	}
	// Health stays open.
	res, _ = doJSON(t, &http.Client{}, http.MethodGet, url+"/v1/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", res.StatusCode)
	}
}
