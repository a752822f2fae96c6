package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/monitoring"
	"github.com/sells-group/qualify-cli/internal/qualify"
	"github.com/sells-group/qualify-cli/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initQualify(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		metrics := monitoring.NewCollector(env.Breakers.Snapshot)
		checker := monitoring.NewChecker(metrics, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: newRouter(serverDeps{
				Analyzer:       env.Service,
				Workflows:      env.Workflows,
				Health:         env.Breakers.Snapshot,
				Metrics:        metrics,
				LookbackHours:  cfg.Monitoring.LookbackWindowHours,
				RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
				AllowedOrigins: cfg.Server.AllowedOrigins,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type analyzer interface {
	RunAnalysis(ctx context.Context, profileRef string, business model.Business, depth model.Depth, opts qualify.Options) *qualify.Outcome
}

type serverDeps struct {
	Analyzer       analyzer
	Workflows      *workflow.Registry
	Health         func() map[string]string // backend circuit states
	Metrics        *monitoring.Collector
	LookbackHours  int
	RequestTimeout time.Duration
	AllowedOrigins []string
}

type analyzeRequest struct {
	Profile  string         `json:"profile"`
	Business model.Business `json:"business"`
	Depth    model.Depth    `json:"depth"`
	Workflow string         `json:"workflow"`
	Tier     model.Tier     `json:"tier"`
}

type workflowView struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Stages      []string `json:"stages"`
}

func newRouter(d serverDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if d.Health != nil {
			body["backends"] = d.Health()
		}
		writeJSON(w, http.StatusOK, body)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/workflows", func(w http.ResponseWriter, r *http.Request) {
			defs := d.Workflows.List()
			views := make([]workflowView, 0, len(defs))
			for _, def := range defs {
				views = append(views, viewOf(def))
			}
			writeJSON(w, http.StatusOK, views)
		})

		r.Post("/analyze", func(w http.ResponseWriter, r *http.Request) {
			var req analyzeRequest
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if req.Depth == "" {
				req.Depth = model.DepthLight
			}

			ctx := r.Context()
			if d.RequestTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d.RequestTimeout)
				defer cancel()
			}

			out := d.Analyzer.RunAnalysis(ctx, req.Profile, req.Business, req.Depth,
				qualify.Options{Workflow: req.Workflow, Tier: req.Tier})
			if d.Metrics != nil {
				d.Metrics.Record(out)
			}
			writeJSON(w, statusFor(out), out)
		})

		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			if d.Metrics == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "metrics disabled"})
				return
			}
			hours := d.LookbackHours
			if hours <= 0 {
				hours = 24
			}
			writeJSON(w, http.StatusOK, d.Metrics.Collect(hours))
		})
	})

	return r
}

func viewOf(def workflow.Definition) workflowView {
	v := workflowView{Name: def.Name, Description: def.Description, Stages: make([]string, 0, len(def.Stages))}
	for _, s := range def.Stages {
		v.Stages = append(v.Stages, s.Name)
	}
	return v
}

// statusFor maps an outcome to the HTTP status of its response. Early exits
// are successful requests.
func statusFor(out *qualify.Outcome) int {
	if out.Verdict != model.VerdictError {
		return http.StatusOK
	}
	err := out.Err()
	var ie *apperr.InputError
	switch {
	case errors.As(err, &ie), apperr.IsConfiguration(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch apperr.AcquisitionKindOf(err) {
	case apperr.AcquisitionNotFound:
		return http.StatusNotFound
	case apperr.AcquisitionPrivateAccount:
		return http.StatusForbidden
	case apperr.AcquisitionRateLimited:
		return http.StatusTooManyRequests
	case apperr.AcquisitionTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}
