package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crateside/sleeve/internal/cost"
	"github.com/crateside/sleeve/internal/model"
	"github.com/crateside/sleeve/internal/scan"
)

// maxUploadBytes bounds the image upload.
const maxUploadBytes = 16 << 20

var servePort int

// sessionRegistry retains session handles so pollers can find them by id.
// Terminal sessions age out after an hour; a client that waited that long
// starts a new scan.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*scan.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*scan.Session)}
}

func (r *sessionRegistry) add(s *scan.Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	go func() {
		<-s.Done()
		time.Sleep(time.Hour)
		r.mu.Lock()
		delete(r.sessions, s.ID())
		r.mu.Unlock()
	}()
}

func (r *sessionRegistry) get(id string) (*scan.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// serverEnv is what the HTTP layer needs from the pipeline env. baseCtx
// scopes sessions to the server lifetime, not the submitting request.
type serverEnv struct {
	baseCtx      context.Context
	orchestrator *scan.Orchestrator
	tracker      *cost.Tracker
	registry     *sessionRegistry
	corsOrigins  []string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP scan API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		router := newRouter(&serverEnv{
			baseCtx:      ctx,
			orchestrator: env.Orchestrator,
			tracker:      env.Tracker,
			registry:     newSessionRegistry(),
			corsOrigins:  cfg.Server.CORSOrigins,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newRouter builds the chi router for the scan API.
func newRouter(env *serverEnv) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := env.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/scans", func(w http.ResponseWriter, req *http.Request) {
		capture, err := readCapture(req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		baseCtx := env.baseCtx
		if baseCtx == nil {
			baseCtx = context.Background()
		}
		session := env.orchestrator.Submit(baseCtx, capture)
		env.registry.add(session)

		writeJSON(w, http.StatusAccepted, session.Snapshot())
	})

	r.Get("/scans/{id}", func(w http.ResponseWriter, req *http.Request) {
		session, ok := env.registry.get(chi.URLParam(req, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session"})
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot())
	})

	r.Get("/cost", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, env.tracker.Report())
	})

	return r
}

// readCapture extracts the uploaded image from a multipart form (field
// "image") or a raw image body.
func readCapture(req *http.Request) (model.Capture, error) {
	contentType := req.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/") {
		if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
			return model.Capture{}, eris.Wrap(err, "parse multipart form")
		}
		file, header, err := req.FormFile("image")
		if err != nil {
			return model.Capture{}, eris.Wrap(err, `form field "image" is required`)
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return model.Capture{}, eris.Wrap(err, "read upload")
		}
		mt := header.Header.Get("Content-Type")
		if mt == "" {
			mt = http.DetectContentType(data)
		}
		return validateCapture(data, mt)
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, maxUploadBytes))
	if err != nil {
		return model.Capture{}, eris.Wrap(err, "read body")
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return validateCapture(data, contentType)
}

func validateCapture(data []byte, mediaType string) (model.Capture, error) {
	if len(data) == 0 {
		return model.Capture{}, eris.New("empty image")
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return model.Capture{}, eris.Errorf("unsupported content type %q", mediaType)
	}
	return model.Capture{Data: data, MediaType: mediaType}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
