package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/cinecam/internal/library"
)

// ClipListResponse wraps the clip library listing, newest first.
type ClipListResponse struct {
	Body struct {
		Clips []library.Clip `json:"clips"`
	}
}

// ClipDeleteInput names the clip to remove.
type ClipDeleteInput struct {
	Name string `path:"name" example:"clip_20250127_103000" doc:"Clip name without extension"`
}

func (s *Server) registerLibraryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-clips",
		Method:      http.MethodGet,
		Path:        "/api/clips",
		Summary:     "List clips",
		Description: "Lists the clip library newest first, with sidecar metadata",
		Tags:        []string{"library"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*ClipListResponse, error) {
		clips, err := s.opts.Library.Clips()
		if err != nil {
			return nil, huma.Error500InternalServerError(err.Error())
		}
		resp := &ClipListResponse{}
		resp.Body.Clips = clips
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-clip",
		Method:      http.MethodDelete,
		Path:        "/api/clips/{name}",
		Summary:     "Delete clip",
		Description: "Removes a clip with its thumbnail and sidecar",
		Tags:        []string{"library"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 422},
	}, func(ctx context.Context, input *ClipDeleteInput) (*struct{}, error) {
		if err := s.opts.Library.Remove(input.Name); err != nil {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, nil
	})
}
