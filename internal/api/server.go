// Package api is the HTTP control surface: a Huma v2 API for every capture
// intent, an SSE stream mirroring the event bus, an MJPEG preview and the
// companion WebSocket endpoint.
package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/cinecam/internal/companion"
	"github.com/smazurov/cinecam/internal/device"
	"github.com/smazurov/cinecam/internal/events"
	"github.com/smazurov/cinecam/internal/exposure"
	"github.com/smazurov/cinecam/internal/library"
	"github.com/smazurov/cinecam/internal/logging"
	"github.com/smazurov/cinecam/internal/orientation"
	"github.com/smazurov/cinecam/internal/preview"
	"github.com/smazurov/cinecam/internal/recording"
	"github.com/smazurov/cinecam/internal/session"
	"github.com/smazurov/cinecam/internal/version"
)

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string

	Catalog     *device.Catalog
	Session     *session.Controller
	Exposure    *exposure.Controller
	Pipeline    *recording.Pipeline
	Library     *library.Store
	Preview     *preview.LatestStore
	Bus         *events.Bus
	Hub         *companion.Hub
	Orientation *orientation.Resolver

	RecordDefaults session.RecordOptions

	PrometheusHandler http.Handler
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	opts       *Options
	logger     *slog.Logger
}

// NewServer builds the server and registers every route.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("CineCam API", version.Version)
	config.Info.Description = "Cinema camera capture control"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {Type: "http", Scheme: "basic"},
	}

	api := humago.New(mux, config)

	s := &Server{
		api:    api,
		mux:    mux,
		opts:   opts,
		logger: logging.GetLogger("api"),
	}

	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(s.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	if opts.Hub != nil {
		mux.Handle("GET /api/companion", opts.Hub)
	}
	if opts.Preview != nil {
		mux.Handle("GET /api/preview.mjpeg", s.previewHandler())
	}

	s.registerRoutes()
	return s
}

// basicAuthMiddleware enforces HTTP basic auth on every operation that
// declares a security requirement. SSE clients may pass base64 credentials
// in the auth query parameter instead of a header.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		reject := func(msg string) {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="CineCam API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg)
		}

		var credentials string
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				reject("Invalid authentication type")
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
			if err != nil {
				reject("Invalid credentials format")
				return
			}
			credentials = string(decoded)
		} else if query := ctx.Query("auth"); query != "" {
			decoded, err := base64.StdEncoding.DecodeString(query)
			if err != nil {
				reject("Invalid credentials format")
				return
			}
			credentials = string(decoded)
		}

		if credentials == "" {
			reject("Authentication required")
			return
		}
		parts := strings.SplitN(credentials, ":", 2)
		if len(parts) != 2 || parts[0] != username || parts[1] != password {
			reject("Invalid credentials")
			return
		}
		next(ctx)
	}
}

// Mux returns the underlying mux for additional setup.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// Start serves until the listener fails or Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down immediately.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	// Health endpoint, no auth.
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthData{Status: "ok"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, _ *struct{}) (*VersionResponse, error) {
		info := version.Get()
		return &VersionResponse{Body: info}, nil
	})

	s.registerDeviceRoutes()
	s.registerSessionRoutes()
	s.registerExposureRoutes()
	s.registerRecordingRoutes()
	s.registerLibraryRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
}

// withAuth returns the security requirement for protected operations.
func withAuth() []map[string][]string {
	return []map[string][]string{{"basicAuth": {}}}
}

// HealthData is the health check payload.
type HealthData struct {
	Status string `json:"status" example:"ok" doc:"Service status"`
}

// HealthResponse wraps HealthData.
type HealthResponse struct {
	Body HealthData
}

// VersionResponse wraps build information.
type VersionResponse struct {
	Body version.Info
}
