package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ChristianSBP/sbp-services/internal/app"
	"github.com/ChristianSBP/sbp-services/internal/domain"
	"github.com/ChristianSBP/sbp-services/internal/events"
	"github.com/ChristianSBP/sbp-services/internal/generate"
	"github.com/ChristianSBP/sbp-services/internal/repo"
	"github.com/ChristianSBP/sbp-services/internal/schedule"
)

func registerSeasons(api huma.API, a *app.App) {
	type seasonPath struct {
		SeasonID string `path:"season_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "create-season",
		Method:      http.MethodPost,
		Path:        "/seasons",
		Summary:     "Create season",
	}, func(ctx context.Context, input *struct {
		Body seasonBody `json:"body"`
	}) (*struct {
		Body domain.Season `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		if input.Body.EndDate < input.Body.StartDate {
			return nil, handleError(fmt.Errorf("invalid season range: end %s before start %s", input.Body.EndDate, input.Body.StartDate))
		}
		s := domain.Season{
			ID:        uuid.NewString(),
			Name:      input.Body.Name,
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
			CreatedAt: a.Now().UTC().Format(time.RFC3339),
		}
		if err := a.Repo.InsertSeason(ctx, s); err != nil {
			return nil, handleError(err)
		}
		if input.Body.IsActive {
			if err := a.Repo.SetActiveSeason(ctx, s.ID); err != nil {
				return nil, handleError(err)
			}
			s.IsActive = true
		}
		return &struct {
			Body domain.Season `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-seasons",
		Method:      http.MethodGet,
		Path:        "/seasons",
		Summary:     "List seasons",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Season `json:"body"`
	}, error) {
		res, err := a.Repo.ListSeasons(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Season `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-season",
		Method:      http.MethodGet,
		Path:        "/seasons/{season_id}",
		Summary:     "Get season",
	}, func(ctx context.Context, input *seasonPath) (*struct {
		Body domain.Season `json:"body"`
	}, error) {
		s, err := a.Repo.GetSeason(ctx, input.SeasonID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Season `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-season",
		Method:      http.MethodPost,
		Path:        "/seasons/{season_id}/activate",
		Summary:     "Mark season active",
	}, func(ctx context.Context, input *seasonPath) (*struct {
		Body domain.Season `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		if err := a.Repo.SetActiveSeason(ctx, input.SeasonID); err != nil {
			return nil, handleError(err)
		}
		s, err := a.Repo.GetSeason(ctx, input.SeasonID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Season `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-season",
		Method:      http.MethodDelete,
		Path:        "/seasons/{season_id}",
		Summary:     "Delete season",
	}, func(ctx context.Context, input *seasonPath) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		if err := a.Repo.DeleteSeason(ctx, input.SeasonID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDuties(api huma.API, a *app.App) {
	type dutyPath struct {
		DutyID string `path:"duty_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "create-duty",
		Method:      http.MethodPost,
		Path:        "/duties",
		Summary:     "Create duty",
	}, func(ctx context.Context, input *struct {
		Body dutyBody `json:"body"`
	}) (*struct {
		Body domain.Duty `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d := input.Body.toDuty()
		if d.SeasonID == "" {
			season, err := a.Repo.ActiveSeason(ctx)
			if err != nil {
				return nil, handleError(fmt.Errorf("season_id required: %w", err))
			}
			d.SeasonID = season.ID
		} else if _, err := a.Repo.GetSeason(ctx, d.SeasonID); err != nil {
			return nil, handleError(err)
		}
		d.ID = uuid.NewString()
		now := a.Now().UTC().Format(time.RFC3339)
		d.CreatedAt, d.UpdatedAt = now, now

		tx, err := a.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		if err := a.Repo.InsertDuty(ctx, tx, d); err != nil {
			return nil, handleError(err)
		}
		if err := a.Events.Append(ctx, tx, events.DutyCreated, d.SeasonID, "duty", d.ID, actorID, events.EventPayload{
			"date": d.Date, "type": string(d.Type), "status": string(d.Status),
		}); err != nil {
			return nil, handleError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Duty `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-duty",
		Method:      http.MethodPut,
		Path:        "/duties/{duty_id}",
		Summary:     "Update duty",
	}, func(ctx context.Context, input *struct {
		DutyID string   `path:"duty_id"`
		Body   dutyBody `json:"body"`
	}) (*struct {
		Body domain.Duty `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		existing, err := a.Repo.GetDuty(ctx, input.DutyID)
		if err != nil {
			return nil, handleError(err)
		}
		d := input.Body.toDuty()
		d.ID = existing.ID
		d.SeasonID = existing.SeasonID
		d.CreatedAt = existing.CreatedAt
		d.UpdatedAt = a.Now().UTC().Format(time.RFC3339)

		tx, err := a.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		if err := a.Repo.UpdateDuty(ctx, tx, d); err != nil {
			return nil, handleError(err)
		}
		if err := a.Events.Append(ctx, tx, events.DutyUpdated, d.SeasonID, "duty", d.ID, actorID, events.EventPayload{
			"date": d.Date, "type": string(d.Type), "status": string(d.Status),
		}); err != nil {
			return nil, handleError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Duty `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-duty",
		Method:      http.MethodDelete,
		Path:        "/duties/{duty_id}",
		Summary:     "Delete duty",
	}, func(ctx context.Context, input *dutyPath) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		existing, err := a.Repo.GetDuty(ctx, input.DutyID)
		if err != nil {
			return nil, handleError(err)
		}
		tx, err := a.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		if err := a.Repo.DeleteDuty(ctx, tx, input.DutyID); err != nil {
			return nil, handleError(err)
		}
		if err := a.Events.Append(ctx, tx, events.DutyDeleted, existing.SeasonID, "duty", existing.ID, actorID, nil); err != nil {
			return nil, handleError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-duty",
		Method:      http.MethodGet,
		Path:        "/duties/{duty_id}",
		Summary:     "Get duty",
	}, func(ctx context.Context, input *dutyPath) (*struct {
		Body domain.Duty `json:"body"`
	}, error) {
		d, err := a.Repo.GetDuty(ctx, input.DutyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Duty `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-duties",
		Method:      http.MethodGet,
		Path:        "/duties",
		Summary:     "List duties",
	}, func(ctx context.Context, input *struct {
		SeasonID  string `query:"season_id"`
		From      string `query:"from"`
		To        string `query:"to"`
		Status    string `query:"status"`
		Formation string `query:"formation"`
	}) (*struct {
		Body []domain.Duty `json:"body"`
	}, error) {
		res, err := a.Repo.ListDuties(ctx, repo.DutyFilters{
			SeasonID:  input.SeasonID,
			DateFrom:  input.From,
			DateTo:    input.To,
			Status:    input.Status,
			Formation: input.Formation,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Duty `json:"body"`
		}{Body: res}, nil
	})
}

func registerMusicians(api huma.API, a *app.App) {
	type musicianPath struct {
		MusicianID string `path:"musician_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "create-musician",
		Method:      http.MethodPost,
		Path:        "/musicians",
		Summary:     "Create roster slot",
	}, func(ctx context.Context, input *struct {
		Body musicianBody `json:"body"`
	}) (*struct {
		Body domain.Musician `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		m := input.Body.toMusician()
		if m.Name == "" && !m.IsVacant {
			return nil, handleError(fmt.Errorf("name required unless the slot is vacant"))
		}
		m.ID = uuid.NewString()
		m.CreatedAt = a.Now().UTC().Format(time.RFC3339)
		if err := a.Repo.InsertMusician(ctx, m); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Musician `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-musician",
		Method:      http.MethodPut,
		Path:        "/musicians/{musician_id}",
		Summary:     "Update roster slot",
	}, func(ctx context.Context, input *struct {
		MusicianID string       `path:"musician_id"`
		Body       musicianBody `json:"body"`
	}) (*struct {
		Body domain.Musician `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		existing, err := a.Repo.GetMusician(ctx, input.MusicianID)
		if err != nil {
			return nil, handleError(err)
		}
		m := input.Body.toMusician()
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
		if err := a.Repo.UpdateMusician(ctx, m); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Musician `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-musician",
		Method:      http.MethodDelete,
		Path:        "/musicians/{musician_id}",
		Summary:     "Delete roster slot",
	}, func(ctx context.Context, input *musicianPath) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		if err := a.Repo.DeleteMusician(ctx, input.MusicianID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-musicians",
		Method:      http.MethodGet,
		Path:        "/musicians",
		Summary:     "List roster",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Musician `json:"body"`
	}, error) {
		res, err := a.Repo.ListMusicians(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Musician `json:"body"`
		}{Body: res}, nil
	})
}

func registerValidation(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-duty",
		Method:      http.MethodPost,
		Path:        "/validations",
		Summary:     "Validate a duty before saving it",
		Description: "Checks the candidate against its week and the adjacent weeks. Nothing is persisted; existing duties with the same id are treated as replaced.",
	}, func(ctx context.Context, input *struct {
		Body validateBody `json:"body"`
	}) (*struct {
		Body domain.ValidationResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		candidate := input.Body.toDuty()

		day, err := schedule.ParseDate(candidate.Date)
		if err != nil {
			return nil, handleError(err)
		}
		weekStart := schedule.WeekStart(day)
		existing, err := a.Repo.ListDuties(ctx, repo.DutyFilters{
			SeasonID: candidate.SeasonID,
			DateFrom: schedule.FormatDate(weekStart.AddDate(0, 0, -7)),
			DateTo:   schedule.FormatDate(weekStart.AddDate(0, 0, 13)),
		})
		if err != nil {
			return nil, handleError(err)
		}
		result, err := a.Rules.Validate(candidate, existing)
		if err != nil {
			return nil, handleError(err)
		}

		tx, err := a.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		if err := a.Events.Append(ctx, tx, events.Validated, candidate.SeasonID, "duty", candidate.ID, actorID, events.EventPayload{
			"date":   candidate.Date,
			"status": result.Status,
			"errors": result.Summary.Errors,
		}); err != nil {
			return nil, handleError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ValidationResult `json:"body"`
		}{Body: result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-range",
		Method:      http.MethodGet,
		Path:        "/validations",
		Summary:     "Validate a date range",
	}, func(ctx context.Context, input *struct {
		SeasonID string `query:"season_id"`
		From     string `query:"from" required:"true"`
		To       string `query:"to" required:"true"`
	}) (*struct {
		Body []domain.Violation `json:"body"`
	}, error) {
		duties, err := a.Repo.ListDuties(ctx, repo.DutyFilters{
			SeasonID: input.SeasonID,
			DateFrom: input.From,
			DateTo:   input.To,
		})
		if err != nil {
			return nil, handleError(err)
		}
		violations, err := a.Rules.ValidateRange(duties, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		if violations == nil {
			violations = []domain.Violation{}
		}
		return &struct {
			Body []domain.Violation `json:"body"`
		}{Body: violations}, nil
	})
}

func registerPlans(api huma.API, a *app.App) {
	type planPath struct {
		PlanID string `path:"plan_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-plan",
		Method:        http.MethodPost,
		Path:          "/plans",
		Summary:       "Start duty plan generation",
		Description:   "Registers a pending plan and generates it in the background. Poll the plan until it is ready or error.",
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *struct {
		Body generateBody `json:"body"`
	}) (*struct {
		Body domain.GeneratedPlan `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		gp, err := a.Pipeline.Create(ctx, generate.Request{
			SeasonID: input.Body.SeasonID,
			From:     input.Body.From,
			To:       input.Body.To,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		a.Pipeline.Start(gp.ID, actorID)
		return &struct {
			Body domain.GeneratedPlan `json:"body"`
		}{Body: gp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/plans",
		Summary:     "List generated plans",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"0"`
	}) (*struct {
		Body []domain.GeneratedPlan `json:"body"`
	}, error) {
		res, err := a.Repo.ListPlans(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.GeneratedPlan `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-plan",
		Method:      http.MethodGet,
		Path:        "/plans/{plan_id}",
		Summary:     "Get generated plan",
	}, func(ctx context.Context, input *planPath) (*struct {
		Body domain.GeneratedPlan `json:"body"`
	}, error) {
		gp, err := a.Repo.GetPlan(ctx, input.PlanID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GeneratedPlan `json:"body"`
		}{Body: gp}, nil
	})

	type artifactResponse struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	contentType := func(kind string) string {
		if kind == "pdf" {
			return "application/pdf"
		}
		return "text/plain; charset=utf-8"
	}

	huma.Register(api, huma.Operation{
		OperationID: "download-collective-artifact",
		Method:      http.MethodGet,
		Path:        "/plans/{plan_id}/artifacts/{kind}",
		Summary:     "Download the collective plan document or PDF",
	}, func(ctx context.Context, input *struct {
		PlanID string `path:"plan_id"`
		Kind   string `path:"kind" enum:"doc,pdf"`
	}) (*artifactResponse, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		data, err := a.Repo.CollectiveArtifact(ctx, input.PlanID, input.Kind)
		if err != nil {
			return nil, handleError(err)
		}
		return &artifactResponse{ContentType: contentType(input.Kind), Body: data}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "download-individual-artifact",
		Method:      http.MethodGet,
		Path:        "/plans/{plan_id}/individuals/{individual_id}/artifacts/{kind}",
		Summary:     "Download one member's plan document or PDF",
	}, func(ctx context.Context, input *struct {
		PlanID       string `path:"plan_id"`
		IndividualID string `path:"individual_id"`
		Kind         string `path:"kind" enum:"doc,pdf"`
	}) (*artifactResponse, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		data, err := a.Repo.IndividualArtifact(ctx, input.IndividualID, input.Kind)
		if err != nil {
			return nil, handleError(err)
		}
		return &artifactResponse{ContentType: contentType(input.Kind), Body: data}, nil
	})
}

func registerEvents(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"0"`
		SeasonID   string `query:"season_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		res, err := a.Repo.LatestEvents(ctx, input.Limit, input.SeasonID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: res}, nil
	})
}
