// Package web provides the HTTP status page and control API for the
// heater-control daemon.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/sweeney/heater-control/internal/command"
	"github.com/sweeney/heater-control/internal/status"
)

// Server serves the status page and control API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	cmd        command.Interface
	logger     *zap.SugaredLogger
}

// New creates a Server that reads loop activity from tracker and applies
// control requests through cmd.
func New(addr string, tracker *status.Tracker, cmd command.Interface, logger *zap.SugaredLogger) *Server {
	s := &Server{tracker: tracker, cmd: cmd, logger: logger}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/status.json", s.handleJSON)
	r.Get("/index.json", s.handleJSON)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Post("/enable", s.handleEnable)
		r.Post("/disable", s.handleDisable)
		r.Post("/mode", s.handleMode)
		r.Put("/gains", s.handleGains)
		r.Put("/setpoint", s.handleSetpoint)
		r.Put("/frequency", s.handleFrequency)
	})
	return r
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.tracker.Snapshot(), s.cmd.Status()); err != nil {
		s.logger.Warnw("render status page", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot(), s.cmd.Status()))
}

// fail renders err with 422 for rejected values, 400 for undecodable
// requests and 500 for anything else.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := errResponse(err)
	if resp.HTTPStatusCode == http.StatusInternalServerError {
		s.logger.Errorw("api request failed", "path", r.URL.Path, "error", err)
	}
	render.Render(w, r, resp)
}

// ok replies with the resulting control state.
func (s *Server) ok(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, newControlResponse(s.cmd.Status()))
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if err := s.cmd.Enable(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.cmd.Disable(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	// An empty body toggles the mode.
	var req modeRequest
	if err := render.Bind(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, r, badRequestError{err})
		return
	}

	var err error
	if req.Mode == "" {
		_, err = s.cmd.SwitchMode()
	} else {
		err = s.cmd.SetMode(req.Mode)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r)
}

func (s *Server) handleGains(w http.ResponseWriter, r *http.Request) {
	var req gainsRequest
	if err := render.Bind(r, &req); err != nil {
		s.fail(w, r, badRequestError{err})
		return
	}
	if err := s.cmd.SetGains(req.gains()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r)
}

func (s *Server) handleSetpoint(w http.ResponseWriter, r *http.Request) {
	var req setpointRequest
	if err := render.Bind(r, &req); err != nil {
		s.fail(w, r, badRequestError{err})
		return
	}

	var err error
	if req.Channel == 0 {
		err = s.cmd.SetSetpointAll(*req.Value)
	} else {
		err = s.cmd.SetSetpointOne(req.Channel, *req.Value)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r)
}

func (s *Server) handleFrequency(w http.ResponseWriter, r *http.Request) {
	var req frequencyRequest
	if err := render.Bind(r, &req); err != nil {
		s.fail(w, r, badRequestError{err})
		return
	}
	if err := s.cmd.SetFrequency(*req.Value); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r)
}
