package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axvoice/axasr/asr"
	"github.com/axvoice/axasr/internal/bus"
	"github.com/axvoice/axasr/internal/config"
	"github.com/axvoice/axasr/internal/natsserver"
	"github.com/axvoice/axasr/internal/service"
	"github.com/axvoice/axasr/internal/transcriptstore"
)

// Runtime wires the daemon together: telemetry, broker, recognizer, the
// recognition service, and the HTTP surface.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// buildRecognizer constructs the backend selected by asr.mode.
func buildRecognizer(cfg config.ASRConfig, logger *slog.Logger) (asr.Recognizer, error) {
	switch cfg.Mode {
	case "npu":
		return asr.Init(cfg.ModelType, cfg.ModelPath, cfg.Language, asr.WithLogger(logger))
	case "exec":
		return asr.NewExecRecognizer(asr.ExecOptions{
			Command:    cfg.Command,
			ModelPath:  cfg.ModelPath,
			Language:   cfg.Language,
			SampleRate: cfg.SampleRate,
		})
	case "mock":
		return asr.NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown asr mode %q", cfg.Mode)
	}
}

// Start runs the daemon until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	defer busClient.Close()

	store, err := transcriptstore.Open(ctx, r.cfg.Transcripts, r.logger)
	if err != nil {
		return fmt.Errorf("open transcript store: %w", err)
	}
	defer store.Close()

	recognizer, err := buildRecognizer(r.cfg.ASR, r.logger)
	if err != nil {
		return fmt.Errorf("build recognizer: %w", err)
	}
	defer recognizer.Close()

	svc := service.New(ctx, r.cfg.ASR, busClient, store, recognizer, r.logger)
	if err := svc.Start(); err != nil {
		return err
	}
	defer svc.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("asr_mode", r.cfg.ASR.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
