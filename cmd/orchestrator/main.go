// Command orchestrator is the composition root: it loads
// configuration, wires TaskStore/Extractor/Transcriber/Scheduler/
// Ingestor/Janitor/HTTP router together, and drives graceful shutdown.
// Generalized from ShrutiLad242-job-service/main.go's flat
// store->pool->handler->router->signal-wait shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juniormartinxo/transcription/internal/config"
	"github.com/juniormartinxo/transcription/internal/httpapi"
	"github.com/juniormartinxo/transcription/internal/ingest"
	"github.com/juniormartinxo/transcription/internal/janitor"
	"github.com/juniormartinxo/transcription/internal/media"
	"github.com/juniormartinxo/transcription/internal/serviced"
	"github.com/juniormartinxo/transcription/internal/store"
	"github.com/juniormartinxo/transcription/internal/transcriber"
	"github.com/juniormartinxo/transcription/internal/worker"
)

// app owns every long-lived component and implements serviced.Server
// so the same composition serves both foreground and OS-service runs.
type app struct {
	cfg       *config.Config
	scheduler *worker.Scheduler
	janitor   *janitor.Janitor
	httpSrv   *http.Server
}

func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	for _, dir := range []string{cfg.AudiosDir, cfg.VideosDir, cfg.TranscriptionsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
	}

	taskStore, err := store.New(cfg.TaskStorePath)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}

	extractor := media.New(cfg.ExtractorTimeout)
	tr := transcriber.NewCachingStub()

	sched := worker.NewScheduler(taskStore, tr, cfg.TranscriptionsDir, cfg.TaskTimeout, cfg.MaxConcurrentTasks, cfg.QueueDepth())

	ing := ingest.New(taskStore, sched, extractor,
		cfg.AudiosDir, cfg.VideosDir, cfg.MaxAudioBytes, cfg.MaxVideoBytes,
		cfg.ExtractorTimeout, cfg.UploadIdleTimeout, cfg.VersionModel, cfg.ForceCPU)

	j := janitor.New(taskStore, cfg.VideosDir, cfg.TaskRetention)

	handlers := httpapi.New(taskStore, sched, ing)
	router := httpapi.NewRouter(handlers)

	return &app{
		cfg:       cfg,
		scheduler: sched,
		janitor:   j,
		httpSrv: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: cfg.UploadIdleTimeout,
		},
	}, nil
}

// Serve starts every background component and blocks on the HTTP
// listener, implementing serviced.Server.
func (a *app) Serve() error {
	a.scheduler.Recover()
	a.scheduler.Start()
	if err := a.janitor.Start(a.cfg.JanitorInterval); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}

	log.Printf("orchestrator listening on %s", a.cfg.HTTPAddr)
	if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown implements serviced.Server: stop accepting requests, drain
// the scheduler, then stop the janitor.
func (a *app) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := a.scheduler.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	a.janitor.Stop()
	return firstErr
}

func runForeground(a *app) {
	go func() {
		if err := a.Serve(); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("orchestrator exited")
}

func main() {
	serviceAction := flag.String("service", "", "service control action: install, uninstall, start, stop, restart")
	flag.Parse()

	a, err := buildApp()
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	if *serviceAction == "" {
		runForeground(a)
		return
	}

	svc, err := serviced.New(a, 30*time.Second)
	if err != nil {
		log.Fatalf("service init: %v", err)
	}

	if *serviceAction == "run" {
		if err := svc.Run(); err != nil {
			log.Fatalf("service run: %v", err)
		}
		return
	}

	if err := serviced.Control(svc, *serviceAction); err != nil {
		log.Fatalf("service %s: %v", *serviceAction, err)
	}
	fmt.Printf("service %s: done\n", *serviceAction)
}
