package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"playbook/internal/domain"
	"playbook/internal/engine"
	"playbook/internal/playmatch"
)

type playPath struct {
	PlayID string `path:"play_id"`
}

func registerPlays(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-play",
		Method:        http.MethodPost,
		Path:          "/plays",
		Summary:       "Create play",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body PlayRequest `json:"body"`
	}) (*struct {
		Body domain.Play `json:"body"`
	}, error) {
		p, err := e.CreatePlay(ctx, input.Body.options(actorIDFromContext(ctx)))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Play `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-plays",
		Method:      http.MethodGet,
		Path:        "/plays",
		Summary:     "List plays",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PlayList `json:"body"`
	}, error) {
		items, err := e.ListPlays(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlayList `json:"body"`
		}{Body: PlayList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "match-plays",
		Method:      http.MethodGet,
		Path:        "/plays/match",
		Summary:     "Rank plays against an opportunity intent",
	}, func(ctx context.Context, input *struct {
		Offering []string `query:"offering"`
		Sector   string   `query:"sector"`
		Region   string   `query:"region"`
		Stage    string   `query:"stage"`
	}) (*struct {
		Body MatchList `json:"body"`
	}, error) {
		results, err := e.MatchPlays(ctx, playmatch.Query{
			Offering: splitList(input.Offering),
			Sector:   input.Sector,
			Region:   input.Region,
			Stage:    input.Stage,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if results == nil {
			results = []playmatch.Result{}
		}
		return &struct {
			Body MatchList `json:"body"`
		}{Body: MatchList{Items: results}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-plays",
		Method:      http.MethodGet,
		Path:        "/plays/search",
		Summary:     "Fuzzy search play titles",
	}, func(ctx context.Context, input *struct {
		Q string `query:"q"`
	}) (*struct {
		Body PlayList `json:"body"`
	}, error) {
		items, err := e.SearchPlays(ctx, input.Q)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Play{}
		}
		return &struct {
			Body PlayList `json:"body"`
		}{Body: PlayList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-play",
		Method:      http.MethodGet,
		Path:        "/plays/{play_id}",
		Summary:     "Get play",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *playPath) (*struct {
		Body domain.Play `json:"body"`
	}, error) {
		id, perr := pathPlayID(input.PlayID)
		if perr != nil {
			return nil, perr
		}
		p, err := e.GetPlay(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Play `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-play",
		Method:      http.MethodPut,
		Path:        "/plays/{play_id}",
		Summary:     "Replace play",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PlayID string      `path:"play_id"`
		Body   PlayRequest `json:"body"`
	}) (*struct {
		Body domain.Play `json:"body"`
	}, error) {
		id, perr := pathPlayID(input.PlayID)
		if perr != nil {
			return nil, perr
		}
		p, err := e.UpdatePlay(ctx, id, input.Body.options(actorIDFromContext(ctx)))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Play `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-play",
		Method:      http.MethodPatch,
		Path:        "/plays/{play_id}",
		Summary:     "Update play fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PlayID string           `path:"play_id"`
		Body   PatchPlayRequest `json:"body"`
	}) (*struct {
		Body domain.Play `json:"body"`
	}, error) {
		id, perr := pathPlayID(input.PlayID)
		if perr != nil {
			return nil, perr
		}
		p, err := e.PatchPlay(ctx, id, input.Body.patch(actorIDFromContext(ctx)))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Play `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-play",
		Method:      http.MethodDelete,
		Path:        "/plays/{play_id}",
		Summary:     "Delete play",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *playPath) (*struct{}, error) {
		id, perr := pathPlayID(input.PlayID)
		if perr != nil {
			return nil, perr
		}
		if err := e.DeletePlay(ctx, id, actorIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
