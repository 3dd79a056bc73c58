// main is the entry point of the Online Campus application.
//
// STARTUP SEQUENCE:
//  1. Load configuration from a YAML file
//  2. Initialise the logger
//  3. Open the configured storage backend (sqlite, postgres, redis, memory)
//  4. Register all HTTP routes
//  5. Start the HTTP server in a separate goroutine
//  6. Block the main goroutine until an OS signal (Ctrl+C / kill) arrives
//  7. Gracefully shut down: finish in-flight requests, close storage, exit
//
// RUNNING THE SERVER:
//
//	go run ./cmd/online-campus --config=config/local.yaml
//
// or (with the environment variable):
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/online-campus
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aanand-mishra/online-campus/internal/config"
	"github.com/aanand-mishra/online-campus/internal/editor"
	"github.com/aanand-mishra/online-campus/internal/http/handlers/course"
	"github.com/aanand-mishra/online-campus/internal/http/handlers/student"
	"github.com/aanand-mishra/online-campus/internal/http/middleware"
	"github.com/aanand-mishra/online-campus/internal/listing"
	"github.com/aanand-mishra/online-campus/internal/storage"
	"github.com/aanand-mishra/online-campus/internal/storage/memory"
	"github.com/aanand-mishra/online-campus/internal/storage/postgres"
	"github.com/aanand-mishra/online-campus/internal/storage/redis"
	"github.com/aanand-mishra/online-campus/internal/storage/sqlite"
)

const version = "1.0.0"

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	// MustLoad reads the YAML config and exits if anything is wrong.
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// Installed as the default so handlers can call slog.Info directly.
	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting online-campus",
		slog.String("env", cfg.Env),
		slog.String("version", version),
	)

	// ── 3. Initialise Storage ─────────────────────────────────────────────
	// Everything past this point only sees the storage.Storage interface.
	store, err := openStorage(cfg)
	if err != nil {
		log.Error("failed to initialise storage",
			slog.String("driver", cfg.Storage.Driver),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	log.Info("storage initialised", slog.String("driver", cfg.Storage.Driver))

	// ── 4. Register HTTP Routes ───────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	router := newRouter(store, cfg.Listing, middleware.NewMetrics(reg))

	server := &http.Server{
		Addr:    cfg.HTTPServer.Addr,
		Handler: router,

		// Timeouts keep slow clients from holding connections open.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── 5. Start Server in a Goroutine ────────────────────────────────────
	// ListenAndServe blocks, so it runs in its own goroutine; otherwise
	// the shutdown code below would never run.
	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server encountered an error",
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// ── 6. Wait for Shutdown Signal ───────────────────────────────────────
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	log.Info("shutdown signal received, stopping server...")

	// ── 7. Graceful Shutdown ──────────────────────────────────────────────
	// In-flight requests get 5 seconds to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown server gracefully",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server stopped gracefully")
}

// openStorage picks the backend named by cfg.Storage.Driver.
func openStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		return sqlite.New(cfg)
	case config.DriverPostgres:
		return postgres.New(cfg)
	case config.DriverRedis:
		return redis.New(cfg)
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newRouter builds the route table. Every route is wrapped with the
// metrics middleware under a stable label.
//
//	POST   /api/students                 → create a student
//	GET    /api/students                 → search / sort / paginate
//	GET    /api/students/export          → same list as an Excel workbook
//	GET    /api/students/{id}            → one student (with rowVersion)
//	PUT    /api/students/{id}            → optimistic-concurrency edit
//	DELETE /api/students/{id}            → delete a student
//	GET    /api/students/{id}/courses    → courses a student takes
//	POST   /api/students/{id}/enrolments → enrol a student in a course
//	POST   /api/courses                  → create a course
//	GET    /api/courses                  → list courses
//	GET    /metrics                      → Prometheus metrics
func newRouter(store storage.Storage, lc config.Listing, m *middleware.Metrics) *http.ServeMux {
	pager := listing.Pager{PageSize: lc.PageSize, FoldCase: lc.CaseInsensitiveSearch}
	ed := editor.New(store)

	router := http.NewServeMux()

	router.HandleFunc("POST /api/students", m.Wrap("create_student", student.New(store)))
	router.HandleFunc("GET /api/students", m.Wrap("list_students", student.GetList(store, pager)))
	router.HandleFunc("GET /api/students/export", m.Wrap("export_students", student.Export(store, pager)))
	router.HandleFunc("GET /api/students/{id}", m.Wrap("get_student", student.GetByID(store)))
	router.HandleFunc("PUT /api/students/{id}", m.Wrap("update_student", student.Update(store, ed)))
	router.HandleFunc("DELETE /api/students/{id}", m.Wrap("delete_student", student.Delete(store)))

	router.HandleFunc("GET /api/students/{id}/courses", m.Wrap("student_courses", course.StudentCourses(store)))
	router.HandleFunc("POST /api/students/{id}/enrolments", m.Wrap("enrol_student", course.Enrol(store)))
	router.HandleFunc("POST /api/courses", m.Wrap("create_course", course.New(store)))
	router.HandleFunc("GET /api/courses", m.Wrap("list_courses", course.GetList(store)))

	router.Handle("GET /metrics", m.Handler())

	return router
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default: // "dev" and anything unrecognised
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}
}
