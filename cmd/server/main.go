// Command server starts the printarr-sub001 ingestion core: the durable
// job queue, the per-kind pipeline workers, the event broadcaster, and a
// thin health/metrics surface. The REST API proper lives in a separate
// deployment; this process is the pipeline that API calls into.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/archive"
	"github.com/AdamA817/printarr-sub001/internal/catalog"
	"github.com/AdamA817/printarr-sub001/internal/config"
	"github.com/AdamA817/printarr-sub001/internal/dedupe"
	"github.com/AdamA817/printarr-sub001/internal/events"
	"github.com/AdamA817/printarr-sub001/internal/family"
	"github.com/AdamA817/printarr-sub001/internal/ingest"
	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/observability/logging"
	"github.com/AdamA817/printarr-sub001/internal/observability/metrics"
	"github.com/AdamA817/printarr-sub001/internal/preview"
	"github.com/AdamA817/printarr-sub001/internal/queue"
	"github.com/AdamA817/printarr-sub001/internal/settings"
	"github.com/AdamA817/printarr-sub001/internal/sources"
	"github.com/AdamA817/printarr-sub001/internal/sources/localfolder"
	"github.com/AdamA817/printarr-sub001/internal/sources/upload"
	"github.com/AdamA817/printarr-sub001/internal/workers"
)

func main() {
	configPath := flag.String("config-path", "", "path to catalog database, credentials, and session files")
	dataPath := flag.String("data-path", "", "path to the staging directory root")
	libraryPath := flag.String("library-path", "", "path to the organised library root")
	cachePath := flag.String("cache-path", "", "path to the preview cache root")
	host := flag.String("host", "", "HTTP listen host")
	port := flag.Int("port", 0, "HTTP listen port")
	debug := flag.Bool("debug", false, "enable debug mode (stack traces in error responses, verbose logging)")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	databaseURL := flag.String("database-url", "", "Postgres connection string backing the job queue")
	redisAddr := flag.String("redis-addr", "", "Redis address for the multi-process event broadcaster transport")
	flag.Parse()

	var debugOverride *bool
	if isFlagSet("debug") {
		debugOverride = debug
	}
	cfg, err := config.Load(config.Overrides{
		ConfigPath:  *configPath,
		DataPath:    *dataPath,
		LibraryPath: *libraryPath,
		CachePath:   *cachePath,
		Host:        *host,
		Port:        *port,
		Debug:       debugOverride,
		LogLevel:    *logLevel,
		DatabaseURL: *databaseURL,
		RedisAddr:   *redisAddr,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "printarr: configuration error:", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel})
	recorder := metrics.Default()

	if err := os.MkdirAll(cfg.ConfigPath, 0o755); err != nil {
		logger.Error("failed to create config path", "path", cfg.ConfigPath, "error", err)
		os.Exit(1)
	}
	stagingRoot := filepath.Join(cfg.DataPath, "staging")
	if err := os.MkdirAll(stagingRoot, 0o755); err != nil {
		logger.Error("failed to create staging path", "path", stagingRoot, "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.LibraryPath, 0o755); err != nil {
		logger.Error("failed to create library path: unwritable library path is an unrecoverable init failure", "path", cfg.LibraryPath, "error", err)
		os.Exit(1)
	}
	previewCacheRoot := filepath.Join(cfg.CachePath, "previews")
	if err := os.MkdirAll(previewCacheRoot, 0o755); err != nil {
		logger.Error("failed to create preview cache path", "path", previewCacheRoot, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database: unavailable database is an unrecoverable init failure", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("database unreachable: unrecoverable init failure", "error", err)
		os.Exit(1)
	}
	if err := catalog.Migrate(db); err != nil {
		logger.Error("failed to apply catalog migrations", "error", err)
		os.Exit(1)
	}

	jobQueue, err := queue.Open(ctx, queue.Config{DSN: cfg.DatabaseURL, ApplicationName: "printarr-sub001"})
	if err != nil {
		logger.Error("failed to open job queue", "error", err)
		os.Exit(1)
	}
	defer jobQueue.Close()

	store := catalog.New(filepath.Join(cfg.ConfigPath, "catalog.json"))
	if err := store.Load(); err != nil {
		logger.Error("failed to load catalog snapshot", "error", err)
		os.Exit(1)
	}

	var broadcaster events.Broadcaster
	if cfg.RedisAddr != "" {
		broadcaster, err = events.NewRedisBroadcaster(ctx, events.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Logger:   logging.WithComponent(logger, logging.ComponentEvents),
		})
		if err != nil {
			logger.Error("failed to connect event broadcaster to redis", "error", err)
			os.Exit(1)
		}
		logger.Info("event broadcaster using redis transport", "addr", cfg.RedisAddr)
	} else {
		broadcaster = events.NewMemoryBroadcaster(256)
	}
	events.StartHeartbeat(ctx, broadcaster)

	settingsSvc := settings.NewService(store)
	dedupeSvc := dedupe.NewService(store)
	familySvc := family.NewService(store)
	previewSvc := preview.NewService(store)
	ingestSvc := ingest.NewService(store, jobQueue, broadcaster)

	deleteArchives, err := settingsSvc.GetBool(settings.KeyDeleteArchivesAfterExtraction)
	if err != nil {
		logger.Warn("failed to read delete_archives_after_extraction setting, defaulting to true", "error", err)
		deleteArchives = true
	}

	pipeline := &workers.Pipeline{
		Repo:        store,
		Queue:       jobQueue,
		Dedupe:      dedupeSvc,
		Family:      familySvc,
		Preview:     previewSvc,
		Settings:    settingsSvc,
		Ingest:      ingestSvc,
		Events:      broadcaster,
		Logger:      logging.WithComponent(logger, logging.ComponentPipeline),
		Adapters:    buildAdapterResolver(store, stagingRoot),
		Extractor:   &archive.Extractor{DeleteAfterExtraction: deleteArchives},
		StagingRoot: stagingRoot,
		LibraryRoot: cfg.LibraryPath,
	}

	maxConcurrentDownloads, err := settingsSvc.GetInt(settings.KeyMaxConcurrentDownloads)
	if err != nil {
		logger.Warn("failed to read max_concurrent_downloads setting, defaulting to 3", "error", err)
		maxConcurrentDownloads = 3
	}

	workerGroups := []struct {
		label       string
		kinds       []models.JobKind
		concurrency int
	}{
		{"sync", []models.JobKind{models.JobBackfillChannel, models.JobSyncChannelLive}, 2},
		{"download", []models.JobKind{models.JobDownloadDesign, models.JobDownloadImportRecord}, maxConcurrentDownloads},
		{"extract", []models.JobKind{models.JobExtractArchive}, 2},
		{"import", []models.JobKind{models.JobImportToLibrary}, 2},
		{"analyze", []models.JobKind{models.JobAnalyze3MF, models.JobAIAnalyzeDesign}, 1},
		{"render", []models.JobKind{models.JobGenerateRender}, 1},
		{"dedupe-family", []models.JobKind{models.JobDedupeReconcile, models.JobDetectFamilyOverlap}, 2},
	}

	var runners []*workers.Worker
	for _, group := range workerGroups {
		runners = append(runners, &workers.Worker{
			Queue:       jobQueue,
			Kinds:       group.kinds,
			Concurrency: group.concurrency,
			Handler:     dispatchHandler(pipeline, group.kinds),
			Logger:      logging.WithComponent(logger, logging.WorkerComponent(group.label)),
			Metrics:     recorder,
		})
	}

	var wg sync.WaitGroup
	for _, w := range runners {
		wg.Add(1)
		go func(w *workers.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	requeuer := &queueStaleRequeuer{queue: jobQueue, staleAfter: cfg.StaleJobRequeueAfter}
	if n, err := requeuer.RequeueStale(ctx); err != nil {
		logger.Error("failed to requeue stale running jobs at startup", "error", err)
	} else if n > 0 {
		logger.Info("requeued stale running jobs after restart", "count", n)
	}
	stopRequeuer := startStaleJobRequeueWorker(ctx, logging.WithComponent(logger, logging.ComponentStaleRequeue), requeuer, cfg.StaleJobRequeueEvery)
	defer stopRequeuer()

	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/healthz", healthHandler(db, jobQueue))
	opsHandler := metrics.Instrument(recorder, logging.WithComponent(logger, logging.ComponentHTTP), mux)

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: opsHandler}
	errs := make(chan error, 1)
	go func() {
		logger.Info("printarr-sub001 listening", "addr", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errs:
		logger.Error("http server error", "error", err)
	}

	stop()
	stopRequeuer()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful http shutdown failed", "error", err)
	}

	logger.Info("printarr-sub001 stopped")
}

// dispatchHandler builds a single workers.Handler shared by a worker group
// spanning more than one kind, routing each job to Pipeline.HandlerFor's
// per-kind method; single-kind groups skip the indirection.
func dispatchHandler(p *workers.Pipeline, kinds []models.JobKind) workers.Handler {
	if len(kinds) == 1 {
		return p.HandlerFor(kinds[0])
	}
	return func(ctx context.Context, job models.Job) (any, error) {
		return p.HandlerFor(job.Kind)(ctx, job)
	}
}

// buildAdapterResolver returns the workers.AdapterResolver the pipeline
// uses to pick a channel's source adapter at BACKFILL_CHANNEL/
// SYNC_CHANNEL_LIVE claim time, never per call. Wire-protocol clients for
// the chat-platform, cloud-drive, and forum adapters are external
// collaborators this deployment does not ship; only the local-disk adapters
// (local-folder, direct-upload), which need no such client, are fully
// constructible here.
func buildAdapterResolver(store *catalog.Store, stagingRoot string) workers.AdapterResolver {
	return func(channel models.Channel) (sources.Adapter, error) {
		importSource, ok := store.ImportSourceByChannel(channel.ID)
		if !ok {
			return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("channel %s: no wire-protocol client configured for this deployment (chat/cloud-drive/forum clients are external collaborators)", channel.ID))
		}
		folders := store.ListImportSourceFolders(importSource.ID)
		if len(folders) == 0 {
			return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("import source %s has no folders configured", importSource.ID))
		}

		var children []sources.Adapter
		var keys []string
		for _, folder := range folders {
			switch importSource.Kind {
			case "local_folder":
				profile := models.ImportProfile{}
				if folder.ProfileID != nil {
					if p, ok := store.GetImportProfile(*folder.ProfileID); ok {
						profile = p
					}
				}
				children = append(children, localfolder.New(folder, profile))
			case "upload":
				children = append(children, upload.New(store, folder.ID, upload.StagingDir{Root: filepath.Join(stagingRoot, "uploads")}))
			default:
				return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("import source kind %q: no wire-protocol client configured for this deployment", importSource.Kind))
			}
			keys = append(keys, folder.ID)
		}
		if len(children) == 1 {
			return children[0], nil
		}
		return sources.NewFanoutAdapter(keys, children), nil
	}
}

func healthHandler(db *sql.DB, q *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := "healthy"
		if err := db.PingContext(ctx); err != nil {
			status = "unhealthy"
		} else if err := q.Ping(ctx); err != nil {
			status = "unhealthy"
		}
		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(w, `{"status":%q}`, status)
	}
}

// isFlagSet reports whether name was explicitly passed on the command
// line, distinguishing "not set" from "set to the zero value" for flags
// like --debug=false that should still override the environment.
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
