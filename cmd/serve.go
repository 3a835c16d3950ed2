package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve saved runs over a read-only JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		c := *cfg
		c.Server.Port = port
		if err := c.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx, &c)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
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

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter exposes the run store read-only:
//
//	GET /health
//	GET /runs?region=&limit=&offset=
//	GET /runs/latest?region=&top=
//	GET /runs/{id}?top=
func buildRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			limit, err := queryInt(q.Get("limit"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			offset, err := queryInt(q.Get("offset"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
				return
			}

			runs, err := st.ListRuns(req.Context(), store.RunFilter{
				Region: q.Get("region"),
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/latest", func(w http.ResponseWriter, req *http.Request) {
			top, err := queryInt(req.URL.Query().Get("top"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "top must be a non-negative integer")
				return
			}
			run, err := st.LatestRun(req.Context(), req.URL.Query().Get("region"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			run.Cities = run.Top(top)
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			top, err := queryInt(req.URL.Query().Get("top"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "top must be a non-negative integer")
				return
			}
			run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			run.Cities = run.Top(top)
			writeJSON(w, http.StatusOK, run)
		})
	})

	return r
}

// queryInt parses an optional non-negative integer query value.
func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	zap.L().Error("serve: store query failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
