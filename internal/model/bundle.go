// Package model loads and validates the four on-disk artifacts a recognition
// context needs: encoder graph, decoder graph, vocabulary, and JSON config.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/axvoice/axasr/internal/npu"
	"github.com/axvoice/axasr/internal/tokenizer"
)

var (
	// ErrNotFound indicates a required artifact file is absent.
	ErrNotFound = errors.New("model: artifact not found")

	// ErrCorrupt indicates an artifact exists but failed to parse or load
	// into the accelerator runtime.
	ErrCorrupt = errors.New("model: artifact corrupt")

	// ErrConfigInvalid indicates the model config is missing required keys
	// or holds values of the wrong type.
	ErrConfigInvalid = errors.New("model: invalid config")
)

// GraphExt is the compiled graph file extension of the target accelerator.
const GraphExt = ".axmodel"

// Config is the model configuration parsed from {type}_config.json.
// SampleRate through VocabSize are required; the rest default sensibly.
type Config struct {
	SampleRate int `json:"sample_rate"`
	NumMels    int `json:"n_mels"`
	FFTSize    int `json:"n_fft"`
	HopLength  int `json:"hop_length"`
	// WindowSeconds is the fixed encoder input duration; shorter audio is
	// zero-padded, longer audio truncated or chunked per MaxWindows.
	WindowSeconds int `json:"window_seconds"`
	MaxTokens     int `json:"max_tokens"`
	VocabSize     int `json:"vocab_size"`

	// NoSpeechThreshold trips the no-speech stop condition on the first
	// decoder step; zero disables the check.
	NoSpeechThreshold float64 `json:"no_speech_threshold"`
	// LanguageFallback set to "auto" downgrades an unsupported language to
	// automatic detection instead of failing the init.
	LanguageFallback string `json:"language_fallback"`
	// MaxWindows bounds chunked recognition of long inputs; 1 means a
	// single window with tail truncation.
	MaxWindows int `json:"max_windows"`
}

// WindowSamples returns the fixed encoder window length in samples.
func (c Config) WindowSamples() int {
	return c.SampleRate * c.WindowSeconds
}

// Frames returns the number of feature frames per encoder window.
func (c Config) Frames() int {
	return c.WindowSamples() / c.HopLength
}

func (c *Config) validate() error {
	type field struct {
		name  string
		value int
	}
	for _, f := range []field{
		{"sample_rate", c.SampleRate},
		{"n_mels", c.NumMels},
		{"n_fft", c.FFTSize},
		{"hop_length", c.HopLength},
		{"window_seconds", c.WindowSeconds},
		{"max_tokens", c.MaxTokens},
		{"vocab_size", c.VocabSize},
	} {
		if f.value <= 0 {
			return fmt.Errorf("%w: %s must be a positive integer", ErrConfigInvalid, f.name)
		}
	}
	if c.NoSpeechThreshold < 0 || c.NoSpeechThreshold > 1 {
		return fmt.Errorf("%w: no_speech_threshold must be within [0,1]", ErrConfigInvalid)
	}
	switch c.LanguageFallback {
	case "", tokenizer.LanguageAuto:
	default:
		return fmt.Errorf("%w: language_fallback must be empty or %q", ErrConfigInvalid, tokenizer.LanguageAuto)
	}
	if c.MaxWindows == 0 {
		c.MaxWindows = 1
	}
	if c.MaxWindows < 0 {
		return fmt.Errorf("%w: max_windows must be >= 1", ErrConfigInvalid)
	}
	return nil
}

// Paths holds the resolved artifact locations for a model type under a model
// directory, following the fixed layout
// {path}/{type}/{type}-encoder.axmodel etc.
type Paths struct {
	Encoder string
	Decoder string
	Tokens  string
	Config  string
}

// Resolve computes artifact paths deterministically from type and directory.
func Resolve(modelType, modelPath string) Paths {
	dir := filepath.Join(modelPath, modelType)
	return Paths{
		Encoder: filepath.Join(dir, modelType+"-encoder"+GraphExt),
		Decoder: filepath.Join(dir, modelType+"-decoder"+GraphExt),
		Tokens:  filepath.Join(dir, modelType+"-tokens.txt"),
		Config:  filepath.Join(dir, modelType+"_config.json"),
	}
}

// Bundle is a fully loaded model: both graphs resident on the accelerator,
// the vocabulary, and the parsed config. Immutable once constructed; owned
// exclusively by the recognition context that loaded it.
type Bundle struct {
	ModelType string
	ModelPath string
	Encoder   npu.Graph
	Decoder   npu.Graph
	Vocab     []tokenizer.Entry
	Config    Config
}

// Load resolves and loads all four artifacts. Either the whole bundle loads
// or the operation fails with every partially acquired graph released; no
// partial bundle is ever returned.
func Load(rt npu.Runtime, modelType, modelPath string) (*Bundle, error) {
	paths := Resolve(modelType, modelPath)
	for _, p := range []string{paths.Encoder, paths.Decoder, paths.Tokens, paths.Config} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
	}

	b := &Bundle{ModelType: modelType, ModelPath: modelPath}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	var err error
	if b.Encoder, err = rt.LoadGraph(paths.Encoder); err != nil {
		return nil, fmt.Errorf("%w: encoder: %v", ErrCorrupt, err)
	}
	if b.Decoder, err = rt.LoadGraph(paths.Decoder); err != nil {
		return nil, fmt.Errorf("%w: decoder: %v", ErrCorrupt, err)
	}

	tokensFile, err := os.Open(paths.Tokens)
	if err != nil {
		return nil, fmt.Errorf("%w: tokens: %v", ErrCorrupt, err)
	}
	b.Vocab, err = tokenizer.Parse(tokensFile)
	tokensFile.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: tokens: %v", ErrCorrupt, err)
	}

	raw, err := os.ReadFile(paths.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: config: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal(raw, &b.Config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if err := b.Config.validate(); err != nil {
		return nil, err
	}
	if b.Config.VocabSize != len(b.Vocab) {
		return nil, fmt.Errorf("%w: vocab_size %d does not match %d vocabulary entries",
			ErrConfigInvalid, b.Config.VocabSize, len(b.Vocab))
	}

	ok = true
	return b, nil
}

// Close releases the accelerator graphs. Safe on a partially loaded bundle.
func (b *Bundle) Close() error {
	var errs []error
	if b.Encoder != nil {
		errs = append(errs, b.Encoder.Close())
		b.Encoder = nil
	}
	if b.Decoder != nil {
		errs = append(errs, b.Decoder.Close())
		b.Decoder = nil
	}
	return errors.Join(errs...)
}
