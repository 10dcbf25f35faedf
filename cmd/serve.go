package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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

	"github.com/sells-group/leadscrub/internal/job"
	"github.com/sells-group/leadscrub/internal/metrics"
	"github.com/sells-group/leadscrub/internal/model"
	"github.com/sells-group/leadscrub/internal/store"
)

// maxTriggerBytes caps push and trigger request bodies.
const maxTriggerBytes = 1 << 20

var servePort int

// jobRunner runs one scrub job.
type jobRunner interface {
	Run(ctx context.Context, t model.Trigger) (*job.Outcome, error)
}

// jobReader loads job documents.
type jobReader interface {
	GetJob(ctx context.Context, path string) (*model.Job, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger server",
	Long:  "Accepts push-delivered triggers at POST /pubsub/push, raw triggers at POST /jobs and serves job documents and Prometheus metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initScrub(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Runner, env.Store, env.Metrics),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the HTTP routes. rec may be nil, in which case /metrics
// is not served.
func buildRouter(runner jobRunner, docs jobReader, rec *metrics.Recorder) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if rec != nil {
		r.Method(http.MethodGet, "/metrics", rec.Handler())
	}

	// Push deliveries are acknowledged with 204 unless the job failed in a
	// way a redelivery could fix.
	r.Post("/pubsub/push", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, maxTriggerBytes))
		if err != nil {
			http.Error(w, `{"error":"read body"}`, http.StatusBadRequest)
			return
		}

		t, err := job.DecodePush(body)
		if err == nil {
			_, err = runner.Run(req.Context(), t)
		}
		switch {
		case err == nil, job.IsAbort(err):
			if err != nil {
				zap.L().Warn("push: acknowledging aborted job", zap.Error(err))
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, http.StatusInternalServerError, errorBody(err))
		}
	})

	r.Post("/jobs", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, maxTriggerBytes))
		if err != nil {
			http.Error(w, `{"error":"read body"}`, http.StatusBadRequest)
			return
		}

		t, err := job.DecodeTrigger(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err))
			return
		}

		out, err := runner.Run(req.Context(), t)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, out)
		case job.KindOf(err) == job.KindMalformedTrigger:
			writeJSON(w, http.StatusBadRequest, errorBody(err))
		case job.KindOf(err) == job.KindConfigNotFound:
			writeJSON(w, http.StatusNotFound, errorBody(err))
		case job.IsAbort(err), job.KindOf(err) == job.KindInvalidConfig:
			writeJSON(w, http.StatusUnprocessableEntity, errorBody(err))
		default:
			writeJSON(w, http.StatusInternalServerError, errorBody(err))
		}
	})

	r.Get("/jobs/*", func(w http.ResponseWriter, req *http.Request) {
		path := chi.URLParam(req, "*")
		if path == "" {
			http.Error(w, `{"error":"job path is required"}`, http.StatusBadRequest)
			return
		}

		doc, err := docs.GetJob(req.Context(), path)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found", "path": path})
			return
		}
		if err != nil {
			zap.L().Error("get job failed", zap.String("path", path), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get job failed"})
			return
		}
		writeJSON(w, http.StatusOK, doc)
	})

	return r
}

func errorBody(err error) map[string]string {
	return map[string]string{
		"error": err.Error(),
		"kind":  string(job.KindOf(err)),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
