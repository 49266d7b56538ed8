package generate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChristianSBP/sbp-services/internal/config"
	"github.com/ChristianSBP/sbp-services/internal/domain"
	"github.com/ChristianSBP/sbp-services/internal/events"
	"github.com/ChristianSBP/sbp-services/internal/plan"
	"github.com/ChristianSBP/sbp-services/internal/render"
	"github.com/ChristianSBP/sbp-services/internal/repo"
	"github.com/ChristianSBP/sbp-services/internal/rules"
)

const defaultArtifactTimeout = 120 * time.Second

// Pipeline runs duty plan generation: pending, generating, then ready or
// error, with every transition persisted. Runs are serialized; a second
// request waits for the running one.
type Pipeline struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Rules     rules.Engine
	Renderer  render.Renderer
	Converter render.Converter
	Now       func() time.Time

	// ArtifactTimeout bounds each render+convert of one artifact.
	ArtifactTimeout time.Duration

	mu sync.Mutex
}

// Request describes one generation run. When From/To are empty the season's
// own range is used.
type Request struct {
	SeasonID string
	From     string
	To       string
	ActorID  string
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) artifactTimeout() time.Duration {
	if p.ArtifactTimeout > 0 {
		return p.ArtifactTimeout
	}
	return defaultArtifactTimeout
}

// Create registers a pending plan. The run itself happens in Run; HTTP
// callers get the pending record back immediately.
func (p *Pipeline) Create(ctx context.Context, req Request) (domain.GeneratedPlan, error) {
	req, err := p.resolveRange(ctx, req)
	if err != nil {
		return domain.GeneratedPlan{}, err
	}
	gp := domain.GeneratedPlan{
		ID:        uuid.NewString(),
		PlanStart: req.From,
		PlanEnd:   req.To,
		Status:    domain.PlanPending,
		CreatedAt: p.now().UTC().Format(time.RFC3339),
	}
	if req.SeasonID != "" {
		gp.SeasonID = &req.SeasonID
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GeneratedPlan{}, err
	}
	defer tx.Rollback()
	if err := p.Repo.InsertPlan(ctx, tx, gp); err != nil {
		return domain.GeneratedPlan{}, fmt.Errorf("insert plan: %w", err)
	}
	if err := p.Events.Append(ctx, tx, events.PlanCreated, req.SeasonID, "plan", gp.ID, req.ActorID, events.EventPayload{
		"from": req.From, "to": req.To,
	}); err != nil {
		return domain.GeneratedPlan{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GeneratedPlan{}, err
	}
	return gp, nil
}

func (p *Pipeline) resolveRange(ctx context.Context, req Request) (Request, error) {
	if req.From != "" && req.To != "" {
		return req, nil
	}
	var season domain.Season
	var err error
	if req.SeasonID != "" {
		season, err = p.Repo.GetSeason(ctx, req.SeasonID)
	} else {
		season, err = p.Repo.ActiveSeason(ctx)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return req, fmt.Errorf("%w: no season to derive the plan range from", rules.ErrInvalidInput)
		}
		return req, err
	}
	req.SeasonID = season.ID
	if req.From == "" {
		req.From = season.StartDate
	}
	if req.To == "" {
		req.To = season.EndDate
	}
	return req, nil
}

// Run executes a previously created plan to completion. Collective artifacts
// are fatal on failure; individual artifacts fail in isolation.
func (p *Pipeline) Run(ctx context.Context, planID, actorID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	gp, err := p.Repo.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if gp.Status != domain.PlanPending {
		return fmt.Errorf("plan %s is %s, not pending", planID, gp.Status)
	}
	seasonID := ""
	if gp.SeasonID != nil {
		seasonID = *gp.SeasonID
	}
	if err := p.transition(ctx, gp.ID, seasonID, actorID, domain.PlanGenerating, ""); err != nil {
		return err
	}

	if err := p.run(ctx, gp, seasonID, actorID); err != nil {
		if terr := p.transition(ctx, gp.ID, seasonID, actorID, domain.PlanError, err.Error()); terr != nil {
			return fmt.Errorf("record failure %q: %w", err.Error(), terr)
		}
		return err
	}
	return p.transition(ctx, gp.ID, seasonID, actorID, domain.PlanReady, "")
}

func (p *Pipeline) run(ctx context.Context, gp domain.GeneratedPlan, seasonID, actorID string) error {
	duties, err := p.Repo.ListDuties(ctx, repo.DutyFilters{
		SeasonID: seasonID,
		DateFrom: gp.PlanStart,
		DateTo:   gp.PlanEnd,
	})
	if err != nil {
		return fmt.Errorf("load duties: %w", err)
	}
	roster, err := p.Repo.ListMusicians(ctx)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	violations, err := p.Rules.ValidateRange(duties, gp.PlanStart, gp.PlanEnd)
	if err != nil {
		return fmt.Errorf("validate range: %w", err)
	}

	collective, err := plan.Collective(p.Config, "Duty plan", duties, gp.PlanStart, gp.PlanEnd)
	if err != nil {
		return fmt.Errorf("build collective plan: %w", err)
	}
	collective.Violations = violations

	doc, pdf, err := p.produce(ctx, collective)
	if err != nil {
		return fmt.Errorf("collective artifacts: %w", err)
	}
	violationsJSON, err := json.Marshal(violations)
	if err != nil {
		return err
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := p.Repo.SaveCollectiveArtifacts(ctx, tx, gp.ID, doc, pdf, string(violationsJSON)); err != nil {
		return fmt.Errorf("save collective artifacts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	for _, m := range roster {
		if err := p.runIndividual(ctx, gp, m, duties); err != nil {
			return err
		}
	}
	return nil
}

// runIndividual generates one member's artifacts. Render and convert failures
// are recorded on the member row; only storage errors abort the run.
func (p *Pipeline) runIndividual(ctx context.Context, gp domain.GeneratedPlan, m domain.Musician, duties []domain.Duty) error {
	summary := domain.IndividualPlanSummary{
		ID:          uuid.NewString(),
		PlanID:      gp.ID,
		DisplayName: m.DisplayName(),
		IsVacant:    m.IsVacant,
	}
	if m.ID != "" {
		id := m.ID
		summary.MusicianID = &id
	}

	var doc, pdf []byte
	individual, err := plan.Individual(p.Config, m, duties, gp.PlanStart, gp.PlanEnd)
	if err == nil {
		doc, pdf, err = p.produce(ctx, individual)
	}
	if err != nil {
		summary.FailureCause = err.Error()
		log.Printf("plan %s: individual %s failed: %v", gp.ID, summary.DisplayName, err)
		doc, pdf = nil, nil
	}

	tx, txErr := p.DB.BeginTx(ctx, nil)
	if txErr != nil {
		return txErr
	}
	defer tx.Rollback()
	if err := p.Repo.InsertIndividual(ctx, tx, summary, doc, pdf); err != nil {
		return fmt.Errorf("save individual plan %s: %w", summary.DisplayName, err)
	}
	return tx.Commit()
}

// produce renders a plan and converts it, bounded by the artifact timeout.
func (p *Pipeline) produce(ctx context.Context, pl plan.Plan) (doc, pdf []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.artifactTimeout())
	defer cancel()
	doc, err = p.Renderer.Render(pl)
	if err != nil {
		return nil, nil, err
	}
	pdf, err = p.convertWithRetry(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, pdf, nil
}

// convertWithRetry retries a failed conversion once. Converter tools are
// flaky on cold start; a second attempt usually succeeds.
func (p *Pipeline) convertWithRetry(ctx context.Context, doc []byte) ([]byte, error) {
	pdf, err := p.Converter.Convert(ctx, doc)
	if err == nil {
		return pdf, nil
	}
	var convErr *render.ConversionError
	if !errors.As(err, &convErr) || ctx.Err() != nil {
		return nil, err
	}
	return p.Converter.Convert(ctx, doc)
}

func (p *Pipeline) transition(ctx context.Context, planID, seasonID, actorID string, status domain.PlanStatus, cause string) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := p.Repo.UpdatePlanStatus(ctx, tx, planID, status, cause); err != nil {
		return err
	}
	evtType := map[domain.PlanStatus]string{
		domain.PlanGenerating: events.PlanGenerating,
		domain.PlanReady:      events.PlanReady,
		domain.PlanError:      events.PlanFailed,
	}[status]
	payload := events.EventPayload{}
	if cause != "" {
		payload["cause"] = cause
	}
	if err := p.Events.Append(ctx, tx, evtType, seasonID, "plan", planID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// Generate creates and runs a plan synchronously. Used by the CLI.
func (p *Pipeline) Generate(ctx context.Context, req Request) (domain.GeneratedPlan, error) {
	gp, err := p.Create(ctx, req)
	if err != nil {
		return domain.GeneratedPlan{}, err
	}
	runErr := p.Run(ctx, gp.ID, req.ActorID)
	final, err := p.Repo.GetPlan(ctx, gp.ID)
	if err != nil {
		return domain.GeneratedPlan{}, err
	}
	if runErr != nil && final.Status != domain.PlanError {
		return final, runErr
	}
	return final, nil
}

// Start runs a created plan in the background with its own context. HTTP
// callers return the pending record and poll.
func (p *Pipeline) Start(planID, actorID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := p.Run(ctx, planID, actorID); err != nil {
			log.Printf("plan %s: generation failed: %v", planID, err)
		}
	}()
}
