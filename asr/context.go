package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/axvoice/axasr/internal/engine"
	"github.com/axvoice/axasr/internal/frontend"
	"github.com/axvoice/axasr/internal/model"
	"github.com/axvoice/axasr/internal/npu"
	"github.com/axvoice/axasr/internal/tokenizer"
	"github.com/axvoice/axasr/internal/wave"
)

// Context is the opaque recognition handle. All fields are private state
// reachable only through its operations. The mutex serializes recognition
// calls around the non-reentrant accelerator graphs.
type Context struct {
	mu     sync.Mutex
	closed bool
	// fatal latches the first driver-corruption error; once set, every
	// call returns it until Close.
	fatal error

	rt       npu.Runtime
	bundle   *model.Bundle
	tok      *tokenizer.Tokenizer
	fe       *frontend.Frontend
	enc      *engine.Encoder
	dec      *engine.Decoder
	prefix   []int
	language string
	log      *slog.Logger
}

type options struct {
	logger  *slog.Logger
	factory npu.Factory
}

// Option adjusts Init behavior.
type Option func(*options)

// WithLogger attaches a logger; defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRuntime overrides the accelerator runtime factory. Used by tests and
// by embedders that bring their own vendor runtime.
func WithRuntime(f npu.Factory) Option {
	return func(o *options) { o.factory = f }
}

// Init loads the model bundle for modelType under modelPath and binds the
// context to language ("auto" enables detection). On any failure it returns
// a nil context with every partially acquired resource released; there is no
// degraded handle state.
func Init(modelType, modelPath, language string, opts ...Option) (*Context, error) {
	if strings.TrimSpace(modelType) == "" || strings.TrimSpace(modelPath) == "" {
		return nil, fmt.Errorf("%w: model type and path must be set", ErrInvalidArgument)
	}
	if language == "" {
		language = tokenizer.LanguageAuto
	}

	o := options{logger: slog.Default(), factory: npu.OpenDefault}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger.With(slog.String("component", "asr"), slog.String("model", modelType))

	rt, err := npu.Acquire(o.factory)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = rt.Close()
		}
	}()

	bundle, err := model.Load(rt, modelType, modelPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if !ok {
			_ = bundle.Close()
		}
	}()

	tok, err := tokenizer.New(bundle.Vocab)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelCorrupt, err)
	}

	fallback := bundle.Config.LanguageFallback == tokenizer.LanguageAuto
	prefix, err := tok.Prefix(language, fallback)
	if err != nil {
		return nil, err
	}
	if fallback && len(prefix) == 1 && language != tokenizer.LanguageAuto {
		log.Warn("language not in vocabulary, falling back to auto detection",
			slog.String("language", language))
		language = tokenizer.LanguageAuto
	}

	c := &Context{
		rt:       rt,
		bundle:   bundle,
		tok:      tok,
		fe:       frontend.New(bundle.Config),
		enc:      engine.NewEncoder(bundle.Encoder),
		dec:      engine.NewDecoder(bundle.Decoder, tok, bundle.Config),
		prefix:   prefix,
		language: language,
		log:      log,
	}
	log.Info("recognition context initialized",
		slog.String("language", language),
		slog.Int("vocab_size", tok.Size()),
		slog.Int("max_tokens", bundle.Config.MaxTokens))
	ok = true
	return c, nil
}

// Language returns the resolved language binding.
func (c *Context) Language() string { return c.language }

// RunFile recognizes a 16 kHz mono WAV file.
func (c *Context) RunFile(path string) (Result, error) {
	if strings.TrimSpace(path) == "" {
		return Result{}, fmt.Errorf("%w: empty file path", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usable(); err != nil {
		return Result{}, err
	}
	samples, err := wave.DecodeFile(path, c.bundle.Config.SampleRate)
	if err != nil {
		return Result{}, err
	}
	return c.recognize(context.Background(), samples)
}

// RunPCM recognizes caller-supplied 16 kHz mono float32 samples in [-1, 1].
func (c *Context) RunPCM(samples []float32) (Result, error) {
	return c.Transcribe(context.Background(), samples)
}

// Transcribe implements Recognizer. The context is only consulted between
// encoder windows; individual accelerator calls are blocking and cannot be
// cancelled.
func (c *Context) Transcribe(ctx context.Context, samples []float32) (Result, error) {
	if len(samples) == 0 {
		return Result{}, fmt.Errorf("%w: no samples", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usable(); err != nil {
		return Result{}, err
	}
	return c.recognize(ctx, samples)
}

// usable is called with the mutex held.
func (c *Context) usable() error {
	if c.closed {
		return ErrClosed
	}
	if c.fatal != nil {
		return c.fatal
	}
	return nil
}

// recognize runs the shared pipeline: frontend -> encoder -> decoder ->
// detokenize, window by window in timestamp order. Any failure discards all
// partial output.
func (c *Context) recognize(ctx context.Context, samples []float32) (Result, error) {
	windows := c.fe.Windows(samples, c.bundle.Config.MaxWindows)

	var texts []string
	outcome := OutcomeNormal
	noSpeechWindows := 0
	for i, window := range windows {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		features, err := c.fe.Prepare(window)
		if err != nil {
			return Result{}, err
		}
		hidden, err := c.enc.Run(features)
		if err != nil {
			return Result{}, c.noteFatal(err)
		}
		tokens, windowOutcome, err := c.dec.Run(hidden, c.prefix)
		if err != nil {
			return Result{}, c.noteFatal(err)
		}

		switch windowOutcome {
		case engine.OutcomeNoSpeech:
			noSpeechWindows++
		case engine.OutcomeMaxLength:
			outcome = OutcomeMaxLength
		}
		if text := c.tok.Decode(tokens); text != "" {
			texts = append(texts, text)
		}
		c.log.Debug("window decoded",
			slog.Int("window", i),
			slog.Int("tokens", len(tokens)),
			slog.String("outcome", windowOutcome.String()))
	}
	if noSpeechWindows == len(windows) && outcome == OutcomeNormal {
		outcome = OutcomeNoSpeech
	}
	return Result{Text: strings.Join(texts, " "), Outcome: outcome}, nil
}

// noteFatal latches driver-corruption errors so later calls fail fast with
// the same error instead of touching corrupt accelerator state.
func (c *Context) noteFatal(err error) error {
	if errors.Is(err, npu.ErrFatal) {
		c.fatal = err
		c.log.Error("accelerator entered fatal state", slog.String("error", err.Error()))
	}
	return err
}

// Close releases the model graphs and the accelerator runtime. The handle is
// invalid afterwards; a second Close reports ErrClosed and does nothing.
// Callers must not Close concurrently with in-flight recognition.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true

	err := errors.Join(c.bundle.Close(), c.rt.Close())
	c.log.Info("recognition context closed")
	return err
}
