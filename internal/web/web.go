package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storecal/internal/calendar"
	"storecal/internal/config"
	appLog "storecal/internal/log"
	"storecal/internal/metrics"
	"storecal/internal/model"
)

const maxBodyBytes = 1 << 20

type Options struct {
	// BasicAuth, when set with both fields, protects every route except
	// /health.
	BasicAuth *config.BasicAuthConfig
	Metrics   *metrics.Metrics
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	// CalendarName is the X-WR-CALNAME of exported feeds.
	CalendarName string
	Now          func() time.Time
}

// Server exposes the calendar service over HTTP.
type Server struct {
	svc    *calendar.Service
	opts   Options
	router *mux.Router
}

func NewServer(svc *calendar.Service, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CalendarName == "" {
		opts.CalendarName = "storecal"
	}
	s := &Server{svc: svc, opts: opts, router: mux.NewRouter()}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	if s.basicAuthEnabled() {
		appLog.Info("web: basic auth enabled")
		return s.basicAuthMiddleware(s.router)
	}
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("web: listening", "addr", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) basicAuthEnabled() bool {
	a := s.opts.BasicAuth
	return a != nil && a.Username != "" && a.Password != ""
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.opts.BasicAuth.Username
	password := s.opts.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="storecal", charset="UTF-8"`)
			writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// problem is an RFC 7807 body. Errors maps field names to messages for
// validation failures.
type problem struct {
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string, errs map[string][]string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{Title: title, Status: status, Detail: detail, Errors: errs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("web: write JSON response failed", err)
	}
}

// writeError maps calendar errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs model.ValidationErrors
		rerr  *calendar.ResolutionError
		ferr  *calendar.FetchError
	)
	switch {
	case errors.As(err, &verrs):
		writeProblem(w, http.StatusBadRequest, "validation failed", "", verrs.Fields())
	case errors.As(err, &rerr):
		writeProblem(w, http.StatusNotFound, "not found", rerr.Error(), nil)
	case errors.Is(err, calendar.ErrSlotFull):
		writeProblem(w, http.StatusConflict, "slot full", err.Error(), nil)
	case errors.Is(err, context.Canceled):
		// Client went away, possibly mid-query; nothing useful to send.
	case errors.As(err, &ferr):
		appLog.Error("web: upstream failure", err, "method", r.Method, "path", r.URL.Path)
		writeProblem(w, http.StatusBadGateway, "upstream failure", ferr.Op, nil)
	default:
		appLog.Error("web: request failed", err, "method", r.Method, "path", r.URL.Path)
		writeProblem(w, http.StatusInternalServerError, "internal error", "", nil)
	}
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return model.ValidationErrors{{Field: "body", Msg: fmt.Sprintf("invalid JSON: %v", err)}}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return model.ValidationErrors{{Field: "body", Msg: "must contain a single JSON object"}}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})
}
