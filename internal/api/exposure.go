package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/cinecam/internal/exposure"
)

// ExposureData is the exposure state payload.
type ExposureData struct {
	Mode           string  `json:"mode" example:"auto" doc:"Active exposure mode"`
	ISO            float64 `json:"iso" example:"400" doc:"Current ISO"`
	ShutterSeconds float64 `json:"shutterSeconds" example:"0.02083" doc:"Shutter duration in seconds"`
	WhiteBalanceK  float64 `json:"whiteBalanceK" example:"5600" doc:"White balance temperature in Kelvin"`
	Tint           float64 `json:"tint" doc:"White balance tint"`
	Bias           float64 `json:"bias" doc:"Exposure bias in EV"`
	ISOOverride    bool    `json:"isoOverride" doc:"ISO pinned while in shutter priority"`
}

func exposureData(s exposure.State) ExposureData {
	return ExposureData{
		Mode:           string(s.Mode),
		ISO:            s.ISO,
		ShutterSeconds: s.Shutter.Seconds(),
		WhiteBalanceK:  s.WhiteBalanceK,
		Tint:           s.Tint,
		Bias:           s.Bias,
		ISOOverride:    s.ISOOverride,
	}
}

// ExposureResponse wraps the exposure state.
type ExposureResponse struct {
	Body ExposureData
}

// ExposureModeInput selects an exposure mode.
type ExposureModeInput struct {
	Body struct {
		Mode string `json:"mode" enum:"auto,manual,shutterPriority,locked" doc:"Exposure mode"`
	}
}

// ISOInput sets an exact ISO.
type ISOInput struct {
	Body struct {
		ISO float64 `json:"iso" exclusiveMinimum:"0" example:"800" doc:"Target ISO, clamped to the device range"`
	}
}

// ShutterInput sets the shutter as a duration or an angle. Exactly one of
// the two fields should be supplied.
type ShutterInput struct {
	Body struct {
		Seconds float64 `json:"seconds,omitempty" minimum:"0" example:"0.01" doc:"Shutter duration in seconds"`
		Angle   float64 `json:"angle,omitempty" minimum:"0" maximum:"360" example:"180" doc:"Shutter angle against the current frame rate"`
	}
}

// WhiteBalanceInput fixes white balance. Zero kelvin returns to auto.
type WhiteBalanceInput struct {
	Body struct {
		Kelvin float64 `json:"kelvin" minimum:"0" example:"5600" doc:"Temperature in Kelvin, 0 for auto"`
		Tint   float64 `json:"tint,omitempty" doc:"Green-magenta tint"`
	}
}

// BiasInput applies an EV bias to auto exposure.
type BiasInput struct {
	Body struct {
		EV float64 `json:"ev" minimum:"-3" maximum:"3" example:"-0.7" doc:"Exposure bias in EV"`
	}
}

func (s *Server) registerExposureRoutes() {
	exp := s.opts.Exposure

	respond := func() (*ExposureResponse, error) {
		return &ExposureResponse{Body: exposureData(exp.Snapshot())}, nil
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-exposure",
		Method:      http.MethodGet,
		Path:        "/api/exposure",
		Summary:     "Exposure state",
		Tags:        []string{"exposure"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*ExposureResponse, error) {
		return respond()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-exposure-mode",
		Method:      http.MethodPut,
		Path:        "/api/exposure/mode",
		Summary:     "Set exposure mode",
		Tags:        []string{"exposure"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(ctx context.Context, input *ExposureModeInput) (*ExposureResponse, error) {
		if err := exp.SetMode(exposure.Mode(input.Body.Mode)); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return respond()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "toggle-shutter-priority",
		Method:      http.MethodPost,
		Path:        "/api/exposure/shutter-priority",
		Summary:     "Toggle shutter priority",
		Description: "Enters 180-degree shutter priority, or leaves it restoring the previous mode",
		Tags:        []string{"exposure"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(ctx context.Context, _ *struct{}) (*ExposureResponse, error) {
		if err := exp.ToggleShutterPriority(); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return respond()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "toggle-exposure-lock",
		Method:      http.MethodPost,
		Path:        "/api/exposure/lock",
		Summary:     "Toggle exposure lock",
		Tags:        []string{"exposure"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(ctx context.Context, _ *struct{}) (*ExposureResponse, error) {
		if err := exp.ToggleLock(); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return respond()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-iso",
		Method:      http.MethodPut,
		Path:        "/api/exposure/iso",
		Summary:     "Set ISO",
		Description: "Pins ISO as an override inside shutter priority, switches to manual otherwise",
		Tags:        []string{"exposure"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(ctx context.Context, input *ISOInput) (*ExposureResponse, error) {
		if err := exp.SetISO(input.Body.ISO); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return respond()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-shutter",
		Method:      http.MethodPut,
		Path:        "/api/exposure/shutter",
		Summary:     "Set shutter",
		Tags:        []string{"exposure"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(ctx context.Context, input *ShutterInput) (*ExposureResponse, error) {
		var err error
		switch {
		case input.Body.Angle > 0:
			err = exp.SetShutterAngle(input.Body.Angle)
		case input.Body.Seconds > 0:
			err = exp.SetShutterDuration(time.Duration(input.Body.Seconds * float64(time.Second)))
		default:
			return nil, huma.Error422UnprocessableEntity("either seconds or angle is required")
		}
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return respond()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-white-balance",
		Method:      http.MethodPut,
		Path:        "/api/exposure/white-balance",
		Summary:     "Set white balance",
		Tags:        []string{"exposure"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(ctx context.Context, input *WhiteBalanceInput) (*ExposureResponse, error) {
		if err := exp.SetWhiteBalance(input.Body.Kelvin, input.Body.Tint); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return respond()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-exposure-bias",
		Method:      http.MethodPut,
		Path:        "/api/exposure/bias",
		Summary:     "Set exposure bias",
		Tags:        []string{"exposure"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(ctx context.Context, input *BiasInput) (*ExposureResponse, error) {
		if err := exp.SetBias(input.Body.EV); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return respond()
	})
}
