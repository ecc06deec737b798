// Package service exposes the recognition engine on the bus: PCM frames in,
// transcripts out.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/axvoice/axasr/asr"
	"github.com/axvoice/axasr/internal/bus"
	"github.com/axvoice/axasr/internal/config"
	"github.com/axvoice/axasr/internal/protocol"
	"github.com/axvoice/axasr/internal/transcriptstore"
	"github.com/axvoice/axasr/internal/wave"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const recognizeTimeout = 60 * time.Second

type Service struct {
	cfg        config.ASRConfig
	bus        *bus.Client
	store      *transcriptstore.Store
	recognizer asr.Recognizer
	log        *slog.Logger

	sessions map[string]*sessionState
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	sub      *nats.Subscription
	wg       sync.WaitGroup
	ready    bool

	recognitions metric.Int64Counter
	latency      metric.Float64Histogram
}

type sessionState struct {
	Buffer       []byte
	Inflight     bool
	PendingFinal bool
}

func New(parent context.Context, cfg config.ASRConfig, busClient *bus.Client,
	store *transcriptstore.Store, recognizer asr.Recognizer, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:        cfg,
		bus:        busClient,
		store:      store,
		recognizer: recognizer,
		log:        log.With(slog.String("component", "asr-service")),
		sessions:   make(map[string]*sessionState),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := otel.Meter("github.com/axvoice/axasr/service")
	var err error
	if s.recognitions, err = meter.Int64Counter("axasr.recognitions",
		metric.WithDescription("Completed recognition calls by outcome")); err != nil {
		s.log.Warn("failed to create recognition counter", slog.String("error", err.Error()))
	}
	if s.latency, err = meter.Float64Histogram("axasr.recognition.seconds",
		metric.WithDescription("Recognition call latency")); err != nil {
		s.log.Warn("failed to create latency histogram", slog.String("error", err.Error()))
	}
}

func (s *Service) Start() error {
	subject := protocol.SubjectAudioFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub
	s.ready = true
	s.log.Info("recognition service started", slog.String("subject", subject))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ready
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slog.String("error", err.Error()))
		return
	}
	if frame.SessionID == "" {
		return
	}
	if frame.SampleRate != 0 && frame.SampleRate != s.cfg.SampleRate {
		s.log.Warn("dropping frame with unexpected sample rate",
			slog.String("session", frame.SessionID),
			slog.Int("sample_rate", frame.SampleRate))
		return
	}

	s.mu.Lock()
	state := s.sessions[frame.SessionID]
	if state == nil {
		state = &sessionState{}
		s.sessions[frame.SessionID] = state
	}
	state.Buffer = append(state.Buffer, frame.PCM...)
	s.mu.Unlock()

	if frame.Final {
		s.scheduleRecognition(frame.SessionID)
	}
}

// scheduleRecognition snapshots the session buffer and runs recognition in
// the background. A final frame arriving while a run is in flight queues one
// follow-up run over the accumulated buffer.
func (s *Service) scheduleRecognition(sessionID string) {
	s.mu.Lock()
	state := s.sessions[sessionID]
	if state == nil {
		s.mu.Unlock()
		return
	}
	if state.Inflight {
		state.PendingFinal = true
		s.mu.Unlock()
		return
	}
	pcm := append([]byte(nil), state.Buffer...)
	state.Inflight = true
	state.Buffer = nil
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.recognize(sessionID, pcm)

		s.mu.Lock()
		state := s.sessions[sessionID]
		pending := false
		if state != nil {
			state.Inflight = false
			pending = state.PendingFinal
			state.PendingFinal = false
			if !pending {
				delete(s.sessions, sessionID)
			}
		}
		s.mu.Unlock()
		if pending {
			s.scheduleRecognition(sessionID)
		}
	}()
}

func (s *Service) recognize(sessionID string, pcm []byte) {
	ctx, cancel := context.WithTimeout(s.ctx, recognizeTimeout)
	defer cancel()

	samples, err := wave.FromPCM16(pcm)
	if err == nil && len(samples) == 0 {
		err = fmt.Errorf("%w: empty utterance", asr.ErrInvalidArgument)
	}

	var result asr.Result
	start := time.Now()
	if err == nil {
		result, err = s.recognizer.Transcribe(ctx, samples)
	}
	elapsed := time.Since(start)

	outcome := "error"
	if err == nil {
		outcome = result.Outcome.String()
	}
	if s.recognitions != nil {
		s.recognitions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if s.latency != nil {
		s.latency.Record(ctx, elapsed.Seconds())
	}

	if err != nil {
		s.log.Warn("recognition failed",
			slog.String("session", sessionID),
			slog.String("status", asr.StatusOf(err).String()),
			slog.String("error", err.Error()))
		s.publishError(sessionID, err)
		return
	}

	s.publishTranscript(sessionID, result)
	if s.store != nil {
		if err := s.store.Append(ctx, transcriptstore.Entry{
			SessionID: sessionID,
			Text:      result.Text,
			Outcome:   result.Outcome.String(),
			ModelType: s.cfg.ModelType,
		}); err != nil {
			s.log.Warn("failed to persist transcript", slog.String("error", err.Error()))
		}
	}
}

func (s *Service) publishTranscript(sessionID string, result asr.Result) {
	msg := protocol.Transcript{
		SessionID: sessionID,
		Text:      result.Text,
		Outcome:   result.Outcome.String(),
		ModelType: s.cfg.ModelType,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Warn("failed to marshal transcript", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTranscriptFinal, data); err != nil {
		s.log.Warn("failed to publish transcript", slog.String("error", err.Error()))
	}
}

func (s *Service) publishError(sessionID string, cause error) {
	payload, err := json.Marshal(map[string]any{
		"session_id": sessionID,
		"status":     int(asr.StatusOf(cause)),
		"error":      cause.Error(),
	})
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectRecognitionError, payload); err != nil {
		s.log.Warn("failed to publish recognition error", slog.String("error", err.Error()))
	}
}
