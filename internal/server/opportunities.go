package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"playbook/internal/domain"
	"playbook/internal/engine"
	"playbook/internal/repo"
)

type opportunityPath struct {
	ID string `path:"id"`
}

func registerOpportunities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-opportunity",
		Method:        http.MethodPost,
		Path:          "/opportunities",
		Summary:       "Create opportunity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateOpportunityRequest `json:"body"`
	}) (*struct {
		Body domain.Opportunity `json:"body"`
	}, error) {
		o, err := e.CreateOpportunity(ctx, input.Body.options(actorIDFromContext(ctx)))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Opportunity `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-opportunities",
		Method:      http.MethodGet,
		Path:        "/opportunities",
		Summary:     "List opportunities, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Region   string `query:"region"`
		Industry string `query:"industry"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body OpportunityPage `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListOpportunities(ctx, repo.OpportunityFilters{
			Status:          input.Status,
			Region:          input.Region,
			Industry:        input.Industry,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := OpportunityPage{Items: items}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			resp.Items = items[:limit]
		}
		return &struct {
			Body OpportunityPage `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-opportunity",
		Method:      http.MethodGet,
		Path:        "/opportunities/{id}",
		Summary:     "Get opportunity with its plays and stage instances",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *opportunityPath) (*struct {
		Body domain.Opportunity `json:"body"`
	}, error) {
		o, err := e.GetOpportunity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Opportunity `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-opportunity",
		Method:      http.MethodPatch,
		Path:        "/opportunities/{id}",
		Summary:     "Update opportunity; play_ids attach additively",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body UpdateOpportunityRequest `json:"body"`
	}) (*struct {
		Body domain.Opportunity `json:"body"`
	}, error) {
		o, err := e.UpdateOpportunity(ctx, input.ID, input.Body.options(actorIDFromContext(ctx)))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Opportunity `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-opportunity",
		Method:      http.MethodDelete,
		Path:        "/opportunities/{id}",
		Summary:     "Delete opportunity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *opportunityPath) (*struct{}, error) {
		if err := e.DeleteOpportunity(ctx, input.ID, actorIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-opportunity-play",
		Method:      http.MethodPatch,
		Path:        "/opportunities/{id}/plays/{play_id}",
		Summary:     "Edit an attached play",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string                 `path:"id"`
		PlayID string                 `path:"play_id"`
		Body   OpportunityPlayRequest `json:"body"`
	}) (*struct {
		Body domain.OpportunityPlay `json:"body"`
	}, error) {
		playID, perr := pathPlayID(input.PlayID)
		if perr != nil {
			return nil, perr
		}
		op, err := e.SetOpportunityPlay(ctx, input.ID, playID, engine.OpportunityPlayPatch{
			AliasName:             input.Body.AliasName,
			IsActive:              input.Body.IsActive,
			IsPrimary:             input.Body.IsPrimary,
			SelectedTechnologyIDs: input.Body.SelectedTechnologyIDs,
			ActorID:               actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OpportunityPlay `json:"body"`
		}{Body: op}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "detach-opportunity-play",
		Method:      http.MethodDelete,
		Path:        "/opportunities/{id}/plays/{play_id}",
		Summary:     "Detach a play and drop its stage instances",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		PlayID string `path:"play_id"`
	}) (*struct{}, error) {
		playID, perr := pathPlayID(input.PlayID)
		if perr != nil {
			return nil, perr
		}
		if err := e.DetachPlay(ctx, input.ID, playID, actorIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerStages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "update-stage-instance",
		Method:      http.MethodPatch,
		Path:        "/opportunities/{id}/play/{play_id}/stage/{stage_key}",
		Summary:     "Update a stage instance",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID       string             `path:"id"`
		PlayID   string             `path:"play_id"`
		StageKey string             `path:"stage_key"`
		Body     StageUpdateRequest `json:"body"`
	}) (*struct {
		Body domain.StageInstance `json:"body"`
	}, error) {
		playID, perr := pathPlayID(input.PlayID)
		if perr != nil {
			return nil, perr
		}
		si, err := e.UpdateStageInstance(ctx, input.ID, playID, input.StageKey, input.Body.patch(actorIDFromContext(ctx)))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.StageInstance `json:"body"`
		}{Body: si}, nil
	})
}

func registerNotes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stage-notes",
		Method:      http.MethodGet,
		Path:        "/stage-instances/{id}/notes",
		Summary:     "List stage notes, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body NoteList `json:"body"`
	}, error) {
		items, err := e.ListStageNotes(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NoteList `json:"body"`
		}{Body: NoteList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-stage-note",
		Method:        http.MethodPost,
		Path:          "/stage-instances/{id}/notes",
		Summary:       "Add stage note",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body NoteRequest `json:"body"`
	}) (*struct {
		Body domain.StageNote `json:"body"`
	}, error) {
		n, err := e.AddStageNote(ctx, input.ID, engine.NoteOptions{
			Content:   input.Body.Content,
			IsPrivate: input.Body.IsPrivate,
			ActorID:   actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.StageNote `json:"body"`
		}{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage-note",
		Method:      http.MethodPut,
		Path:        "/notes/{note_id}",
		Summary:     "Update stage note",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NoteID string            `path:"note_id"`
		Body   UpdateNoteRequest `json:"body"`
	}) (*struct {
		Body domain.StageNote `json:"body"`
	}, error) {
		n, err := e.UpdateStageNote(ctx, input.NoteID, engine.NotePatch{
			Content:   input.Body.Content,
			IsPrivate: input.Body.IsPrivate,
			ActorID:   actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.StageNote `json:"body"`
		}{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-stage-note",
		Method:      http.MethodDelete,
		Path:        "/notes/{note_id}",
		Summary:     "Delete stage note",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NoteID string `path:"note_id"`
	}) (*struct{}, error) {
		if err := e.DeleteStageNote(ctx, input.NoteID, actorIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
