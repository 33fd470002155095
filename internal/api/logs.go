package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/cinecam/internal/logging"
)

// LogsInput bounds the log history query.
type LogsInput struct {
	Limit int `query:"limit" default:"200" minimum:"1" maximum:"500" doc:"Maximum entries to return"`
}

// LogsResponse wraps recent log records, oldest first.
type LogsResponse struct {
	Body struct {
		Entries []logging.Entry `json:"entries"`
	}
}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent logs",
		Description: "Returns the in-memory log history across all modules",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *LogsInput) (*LogsResponse, error) {
		resp := &LogsResponse{}
		resp.Body.Entries = logging.RecentEntries(input.Limit)
		return resp, nil
	})
}
