package api

import (
	"context"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/cinecam/internal/encoder"
	"github.com/smazurov/cinecam/internal/lut"
)

// RecordStartInput selects encode settings for one take. Omitted fields use
// the configured defaults.
type RecordStartInput struct {
	Body struct {
		Profile     string `json:"profile,omitempty" enum:"highBitrate,mezzanine" doc:"Encode profile"`
		BitrateMbps int    `json:"bitrateMbps,omitempty" minimum:"0" maximum:"400" doc:"Target bitrate for the high-bitrate profile"`
		Audio       *bool  `json:"audio,omitempty" doc:"Record audio alongside video"`
	}
}

// RecordStateData reports the recording pipeline state.
type RecordStateData struct {
	State     string `json:"state" example:"writing" doc:"Pipeline state"`
	SessionID string `json:"sessionId,omitempty" doc:"Recording session identifier"`
}

// RecordStateResponse wraps RecordStateData.
type RecordStateResponse struct {
	Body RecordStateData
}

// RecordResultData summarizes a finished take.
type RecordResultData struct {
	Path            string  `json:"path" doc:"Final clip location"`
	ThumbnailPath   string  `json:"thumbnailPath,omitempty" doc:"Thumbnail location"`
	Frames          uint64  `json:"frames" doc:"Video frames encoded"`
	Dropped         uint64  `json:"dropped" doc:"Frames dropped by backpressure"`
	RenderFailures  uint64  `json:"renderFailures" doc:"Frames dropped by grading failures"`
	DurationSeconds float64 `json:"durationSeconds" doc:"Recorded duration"`
}

// RecordResultResponse wraps RecordResultData.
type RecordResultResponse struct {
	Body RecordResultData
}

// LUTInput loads a grading LUT from a server-side path, or clears it.
type LUTInput struct {
	Body struct {
		Path string `json:"path" doc:"Path to a .cube file, empty to clear the active LUT"`
	}
}

// LUTResponse reports the active LUT.
type LUTResponse struct {
	Body struct {
		Name string `json:"name,omitempty" doc:"Active LUT title or file name"`
	}
}

func (s *Server) registerRecordingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "start-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/start",
		Summary:     "Start recording",
		Description: "Begins a take with the current capture configuration. Starting while recording is a no-op.",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(ctx context.Context, input *RecordStartInput) (*RecordStateResponse, error) {
		opts := s.opts.RecordDefaults
		if input.Body.Profile != "" {
			opts.Profile = encoder.Profile(input.Body.Profile)
		}
		if input.Body.BitrateMbps > 0 {
			opts.BitrateMbps = input.Body.BitrateMbps
		}
		if input.Body.Audio != nil {
			opts.AudioEnabled = *input.Body.Audio
		}
		if err := s.opts.Session.StartRecording(opts); err != nil {
			return nil, sessionError(err)
		}
		return &RecordStateResponse{Body: RecordStateData{
			State:     s.opts.Pipeline.State().String(),
			SessionID: s.opts.Pipeline.SessionID(),
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/stop",
		Summary:     "Stop recording",
		Description: "Finalizes the in-flight take and returns the finished clip",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*RecordResultResponse, error) {
		result, err := s.opts.Session.StopRecording(ctx)
		if err != nil {
			return nil, sessionError(err)
		}
		return &RecordResultResponse{Body: RecordResultData{
			Path:            result.Clip.Path,
			ThumbnailPath:   result.Clip.ThumbnailPath,
			Frames:          result.Frames,
			Dropped:         result.Dropped,
			RenderFailures:  result.RenderFailures,
			DurationSeconds: result.DurationSeconds,
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-recording-state",
		Method:      http.MethodGet,
		Path:        "/api/recording",
		Summary:     "Recording state",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*RecordStateResponse, error) {
		return &RecordStateResponse{Body: RecordStateData{
			State:     s.opts.Pipeline.State().String(),
			SessionID: s.opts.Pipeline.SessionID(),
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-lut",
		Method:      http.MethodPut,
		Path:        "/api/recording/lut",
		Summary:     "Load grading LUT",
		Description: "Loads a .cube LUT applied to every recorded frame. The active take keeps the LUT it started with.",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(ctx context.Context, input *LUTInput) (*LUTResponse, error) {
		resp := &LUTResponse{}
		if input.Body.Path == "" {
			s.opts.Pipeline.SetLUT(nil, "")
			return resp, nil
		}
		f, err := os.Open(input.Body.Path)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("open LUT: " + err.Error())
		}
		defer f.Close()
		l, err := lut.Parse(f)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("parse LUT: " + err.Error())
		}
		name := l.Title
		if name == "" {
			name = input.Body.Path
		}
		s.opts.Pipeline.SetLUT(l, name)
		resp.Body.Name = name
		return resp, nil
	})
}
