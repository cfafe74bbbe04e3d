// Package server exposes the update checker to a host over HTTP. It stands in
// for the host's update hooks: one endpoint per hook.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	appErrors "github.com/vascofialho-nl/releasecheck/errors"
	"github.com/vascofialho-nl/releasecheck/logger"
	"github.com/vascofialho-nl/releasecheck/models"
)

const actionPluginInformation = "plugin_information"

// Cycle runs one update cycle against the host's update transient.
type Cycle interface {
	PollOnce(ctx context.Context) (*models.UpdateTransient, error)
}

// Describer answers plugin information requests.
type Describer interface {
	DescribeRelease(ctx context.Context, slug string) (*models.ReleaseInfo, bool)
}

type Server struct {
	cycle     Cycle
	describer Describer
	logger    logger.Logger
	httpSrv   *http.Server
	done      chan error
}

type Params struct {
	Config    Config
	Cycle     Cycle
	Describer Describer
	Logger    logger.Logger
}

func New(p Params) *Server {
	p.Config.Defaults()

	log := p.Logger
	if log == nil {
		log = logger.NewNop()
	}

	s := &Server{
		cycle:     p.Cycle,
		describer: p.Describer,
		logger:    log,
	}
	s.httpSrv = &http.Server{
		Addr:              p.Config.Addr,
		Handler:           s.Router(p.Config.RequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router(timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/healthz", healthzHandler)
	r.Get("/update-check", s.updateCheckHandler)
	r.Get("/plugin-info", s.pluginInfoHandler)
	return r
}

// Start listens in the background until Stop is called.
func (s *Server) Start(context.Context) error {
	s.done = make(chan error, 1)
	go func() {
		s.logger.InfoW("http adapter listening", "addr", s.httpSrv.Addr)
		err := s.httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.logger.ErrorW("http adapter stopped", "error", err)
		}
		s.done <- err
	}()
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) updateCheckHandler(w http.ResponseWriter, r *http.Request) {
	t, err := s.cycle.PollOnce(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) pluginInfoHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if action := q.Get("action"); action != actionPluginInformation {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "unsupported_action", Message: "unsupported action " + action})
		return
	}
	slug := q.Get("slug")
	if slug == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "missing_slug", Message: "slug is required"})
		return
	}

	info, ok := s.describer.DescribeRelease(r.Context(), slug)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Message: "no release information for " + slug})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := appErrors.CodeOf(err)
	status := http.StatusInternalServerError
	if code == appErrors.CodeConfig {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Code: string(code), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
