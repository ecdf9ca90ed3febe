package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"playbook/internal/domain"
	"playbook/internal/engine"
)

func registerDictionary(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-dictionary",
		Method:      http.MethodGet,
		Path:        "/dictionary",
		Summary:     "Taxonomy lists and mappings",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Dictionary `json:"body"`
	}, error) {
		d, err := e.Dictionary(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dictionary `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "map-offering-technology",
		Method:        http.MethodPost,
		Path:          "/admin/dictionary/mapping/offering-technology",
		Summary:       "Link or unlink a technology and an offering",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body OfferingTechnologyRequest `json:"body"`
	}) (*struct{}, error) {
		if err := e.MapOfferingTechnology(ctx, input.Body.Offering, input.Body.Technology, input.Body.Action, actorIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-dictionary-option",
		Method:        http.MethodPost,
		Path:          "/admin/dictionary/{kind}",
		Summary:       "Add a dictionary option",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Kind string                 `path:"kind"`
		Body DictionaryValueRequest `json:"body"`
	}) (*struct{}, error) {
		if err := e.AddDictionaryOption(ctx, input.Kind, input.Body.Value, actorIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "rename-dictionary-option",
		Method:        http.MethodPut,
		Path:          "/admin/dictionary/{kind}/{value}",
		Summary:       "Rename a dictionary option",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Kind  string                  `path:"kind"`
		Value string                  `path:"value"`
		Body  DictionaryRenameRequest `json:"body"`
	}) (*struct{}, error) {
		if err := e.RenameDictionaryOption(ctx, input.Kind, input.Value, input.Body.NewValue, actorIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-dictionary-option",
		Method:        http.MethodDelete,
		Path:          "/admin/dictionary/{kind}/{value}",
		Summary:       "Remove a dictionary option",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind  string `path:"kind"`
		Value string `path:"value"`
	}) (*struct{}, error) {
		if err := e.DeleteDictionaryOption(ctx, input.Kind, input.Value, actorIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
