package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/cinecam/internal/device"
	"github.com/smazurov/cinecam/internal/orientation"
	"github.com/smazurov/cinecam/internal/session"
)

// StatusResponse wraps the combined session and exposure status.
type StatusResponse struct {
	Body StatusData
}

// StatusData is the status endpoint payload.
type StatusData struct {
	Session  session.Status `json:"session"`
	Exposure ExposureData   `json:"exposure"`
}

// SessionActiveInput toggles the session foreground state.
type SessionActiveInput struct {
	Body struct {
		Active bool `json:"active" doc:"Whether the capture session should run"`
	}
}

// ConfigInput carries a capture format request.
type ConfigInput struct {
	Body struct {
		Width      int     `json:"width" minimum:"1" example:"1920" doc:"Capture width in pixels"`
		Height     int     `json:"height" minimum:"1" example:"1080" doc:"Capture height in pixels"`
		FrameRate  float64 `json:"frameRate" minimum:"1" example:"30" doc:"Capture frame rate"`
		ColorSpace string  `json:"colorSpace,omitempty" enum:"rec709,log,hdr" doc:"Capture color space, current kept when empty"`
	}
}

// ColorSpaceInput selects a capture color space.
type ColorSpaceInput struct {
	Body struct {
		ColorSpace string `json:"colorSpace" enum:"rec709,log,hdr" doc:"Capture color space"`
	}
}

// LensInput selects a rig position.
type LensInput struct {
	Body struct {
		Lens string `json:"lens" enum:"ultrawide,wide,telephoto,front" example:"telephoto" doc:"Rig position"`
	}
}

// ZoomInput requests an overall zoom factor.
type ZoomInput struct {
	Body struct {
		Factor float64 `json:"factor" exclusiveMinimum:"0" example:"1.8" doc:"Overall zoom factor across the rig"`
	}
}

// StatusOnlyResponse returns the session status after a control operation.
type StatusOnlyResponse struct {
	Body session.Status
}

// OrientationInput carries device and interface orientation readings. Either
// field may be omitted to keep its last value.
type OrientationInput struct {
	Body struct {
		Device    string `json:"device,omitempty" enum:"portrait,portraitUpsideDown,landscapeLeft,landscapeRight,faceUp,faceDown,unknown" doc:"Accelerometer reading"`
		Interface string `json:"interface,omitempty" enum:"portrait,portraitUpsideDown,landscapeLeft,landscapeRight" doc:"Interface reading, the fallback when the device lies flat"`
	}
}

// OrientationResponse reports the resolved rotation.
type OrientationResponse struct {
	Body OrientationData
}

// OrientationData is the orientation endpoint payload.
type OrientationData struct {
	Rotation int  `json:"rotation" example:"90" doc:"Rotation applied to recorded clips, in degrees clockwise"`
	Frozen   bool `json:"frozen" doc:"Whether the rotation is pinned by an active recording"`
}

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Session status",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*StatusResponse, error) {
		return &StatusResponse{Body: StatusData{
			Session:  s.opts.Session.StatusSnapshot(),
			Exposure: exposureData(s.opts.Exposure.Snapshot()),
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-session-active",
		Method:      http.MethodPost,
		Path:        "/api/session/active",
		Summary:     "Activate or background the session",
		Description: "The explicit foreground signal. After a runtime failure the session only restarts through this call.",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, input *SessionActiveInput) (*StatusOnlyResponse, error) {
		if err := s.opts.Session.SetActive(input.Body.Active); err != nil {
			return nil, sessionError(err)
		}
		return &StatusOnlyResponse{Body: s.opts.Session.StatusSnapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-config",
		Method:      http.MethodPut,
		Path:        "/api/session/config",
		Summary:     "Set capture format",
		Description: "Applies a new capture format as a reconfiguration transaction. Rejected while recording.",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422},
	}, func(ctx context.Context, input *ConfigInput) (*StatusOnlyResponse, error) {
		cfg := session.Config{
			Width:      input.Body.Width,
			Height:     input.Body.Height,
			FrameRate:  input.Body.FrameRate,
			ColorSpace: device.ColorSpace(input.Body.ColorSpace),
		}
		if cfg.ColorSpace == "" {
			cfg.ColorSpace = s.opts.Session.Config().ColorSpace
		}
		if err := s.opts.Session.SetConfig(cfg); err != nil {
			return nil, sessionError(err)
		}
		return &StatusOnlyResponse{Body: s.opts.Session.StatusSnapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-color-space",
		Method:      http.MethodPut,
		Path:        "/api/session/colorspace",
		Summary:     "Set color space",
		Description: "Switches the capture color space. Fails closed when the active format cannot carry it.",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422},
	}, func(ctx context.Context, input *ColorSpaceInput) (*StatusOnlyResponse, error) {
		if err := s.opts.Session.SetColorSpace(device.ColorSpace(input.Body.ColorSpace)); err != nil {
			return nil, sessionError(err)
		}
		return &StatusOnlyResponse{Body: s.opts.Session.StatusSnapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "switch-lens",
		Method:      http.MethodPost,
		Path:        "/api/session/lens",
		Summary:     "Switch lens",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409},
	}, func(ctx context.Context, input *LensInput) (*StatusOnlyResponse, error) {
		if err := s.opts.Session.SwitchLens(device.Position(input.Body.Lens)); err != nil {
			return nil, sessionError(err)
		}
		return &StatusOnlyResponse{Body: s.opts.Session.StatusSnapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-orientation",
		Method:      http.MethodPut,
		Path:        "/api/session/orientation",
		Summary:     "Report orientation",
		Description: "Feeds device and interface orientation readings. The resolved rotation is stamped on clips; while recording it stays pinned to the value at record start.",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(ctx context.Context, input *OrientationInput) (*OrientationResponse, error) {
		if input.Body.Device != "" {
			o, ok := orientation.Parse(input.Body.Device)
			if !ok {
				return nil, huma.Error422UnprocessableEntity("unknown device orientation")
			}
			s.opts.Orientation.SetDeviceOrientation(o)
		}
		if input.Body.Interface != "" {
			o, ok := orientation.Parse(input.Body.Interface)
			if !ok {
				return nil, huma.Error422UnprocessableEntity("unknown interface orientation")
			}
			s.opts.Orientation.SetInterfaceOrientation(o)
		}
		return &OrientationResponse{Body: OrientationData{
			Rotation: int(s.opts.Orientation.Rotation()),
			Frozen:   s.opts.Orientation.Frozen(),
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-zoom",
		Method:      http.MethodPost,
		Path:        "/api/session/zoom",
		Summary:     "Set zoom",
		Description: "Drives the rig toward an overall zoom factor, substituting cameras near their native factors",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 409},
	}, func(ctx context.Context, input *ZoomInput) (*StatusOnlyResponse, error) {
		if err := s.opts.Session.SetZoom(input.Body.Factor); err != nil {
			return nil, sessionError(err)
		}
		return &StatusOnlyResponse{Body: s.opts.Session.StatusSnapshot()}, nil
	})
}

// sessionError maps the session error taxonomy onto HTTP statuses.
func sessionError(err error) error {
	var serr *session.Error
	if !errors.As(err, &serr) {
		return huma.Error500InternalServerError(err.Error())
	}
	switch serr.Kind {
	case session.KindLensUnavailable:
		return huma.Error404NotFound(serr.Error())
	case session.KindNotRunning:
		return huma.Error409Conflict(serr.Error())
	case session.KindConfigurationFailed:
		return huma.Error409Conflict(serr.Error())
	case session.KindDeviceUnavailable:
		return huma.Error503ServiceUnavailable(serr.Error())
	case session.KindRecordingFailed:
		return huma.Error500InternalServerError(serr.Error())
	default:
		return huma.Error500InternalServerError(serr.Error())
	}
}
