package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func formatLabel(width, height int, fps float64) string {
	return fmt.Sprintf("%dx%d@%g", width, height, fps)
}

// DeviceInfo describes one camera on the rig.
type DeviceInfo struct {
	ID         string   `json:"id" example:"sim-wide" doc:"Device identifier"`
	Name       string   `json:"name" example:"Simulated Wide" doc:"Human-readable name"`
	Position   string   `json:"position" example:"wide" doc:"Rig position"`
	NativeZoom float64  `json:"nativeZoom" example:"1" doc:"Zoom factor at 1x digital zoom"`
	MinZoom    float64  `json:"minZoom" doc:"Minimum digital zoom"`
	MaxZoom    float64  `json:"maxZoom" doc:"Maximum digital zoom"`
	Formats    []string `json:"formats" doc:"Supported capture formats as WxH@maxfps"`
}

// DeviceListResponse wraps the device list.
type DeviceListResponse struct {
	Body struct {
		Devices []DeviceInfo `json:"devices"`
	}
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List cameras",
		Description: "Enumerates the cameras on the rig and their static capabilities",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*DeviceListResponse, error) {
		resp := &DeviceListResponse{}
		for _, d := range s.opts.Catalog.Devices() {
			info := DeviceInfo{
				ID:         d.ID,
				Name:       d.Name,
				Position:   string(d.Position),
				NativeZoom: d.NativeZoom,
				MinZoom:    d.MinZoom,
				MaxZoom:    d.MaxZoom,
			}
			for _, f := range d.Formats {
				info.Formats = append(info.Formats, formatLabel(f.Width, f.Height, f.MaxFrameRate()))
			}
			resp.Body.Devices = append(resp.Body.Devices, info)
		}
		return resp, nil
	})
}
