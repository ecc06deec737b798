// Package asr is the public boundary of the NPU speech-to-text engine.
//
// A Context is the opaque handle: it owns one loaded model bundle, its
// tokenizer, and the accelerator resources, bound to one language for its
// whole lifetime. Init builds it, Close tears it down, RunFile and RunPCM
// recognize audio through it. Independent contexts are safe to use
// concurrently; calls on a single context are serialized internally.
package asr

import (
	"context"
	"errors"

	"github.com/axvoice/axasr/internal/engine"
	"github.com/axvoice/axasr/internal/frontend"
	"github.com/axvoice/axasr/internal/model"
	"github.com/axvoice/axasr/internal/npu"
	"github.com/axvoice/axasr/internal/tokenizer"
	"github.com/axvoice/axasr/internal/wave"
)

var (
	// ErrInvalidArgument covers nil/empty inputs and empty identifiers.
	ErrInvalidArgument = errors.New("asr: invalid argument")

	// ErrClosed is returned for any call on a closed context.
	ErrClosed = errors.New("asr: context closed")

	// Re-exported component sentinels, so callers match the whole taxonomy
	// with errors.Is against this package alone.
	ErrModelNotFound       = model.ErrNotFound
	ErrModelCorrupt        = model.ErrCorrupt
	ErrConfigInvalid       = model.ErrConfigInvalid
	ErrUnsupportedLanguage = tokenizer.ErrUnsupportedLanguage
	ErrAudioFormat         = wave.ErrFormat
	ErrShapeMismatch       = frontend.ErrShape
	ErrInference           = npu.ErrInference
	ErrResourceExhausted   = npu.ErrResourceExhausted
)

// Outcome mirrors the decoder's terminal state.
type Outcome = engine.Outcome

const (
	OutcomeNormal    = engine.OutcomeNormal
	OutcomeMaxLength = engine.OutcomeMaxLength
	OutcomeNoSpeech  = engine.OutcomeNoSpeech
)

// Result is a finished recognition. Text is a fresh string owned by the
// caller; the engine keeps no reference to it. Failure paths always return
// the zero Result, never partially written text.
type Result struct {
	Text    string
	Outcome Outcome
}

// Status is the numeric call status matching the C boundary this engine was
// designed against: zero success, negative errors.
type Status int

const (
	StatusOK                  Status = 0
	StatusInvalidHandle       Status = -1
	StatusInvalidArgument     Status = -2
	StatusAudioFormat         Status = -3
	StatusInference           Status = -4
	StatusResourceExhausted   Status = -5
	StatusUnsupportedLanguage Status = -6
	StatusModelNotFound       Status = -7
	StatusModelCorrupt        Status = -8
	StatusConfigInvalid       Status = -9
	StatusInternal            Status = -10
)

// StatusOf maps an error from this package onto its status code.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrClosed):
		return StatusInvalidHandle
	case errors.Is(err, ErrInvalidArgument):
		return StatusInvalidArgument
	case errors.Is(err, ErrAudioFormat):
		return StatusAudioFormat
	case errors.Is(err, ErrUnsupportedLanguage):
		return StatusUnsupportedLanguage
	case errors.Is(err, ErrModelNotFound):
		return StatusModelNotFound
	case errors.Is(err, ErrModelCorrupt):
		return StatusModelCorrupt
	case errors.Is(err, ErrConfigInvalid):
		return StatusConfigInvalid
	case errors.Is(err, ErrResourceExhausted):
		return StatusResourceExhausted
	case errors.Is(err, npu.ErrFatal), errors.Is(err, ErrInference):
		return StatusInference
	default:
		return StatusInternal
	}
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidHandle:
		return "invalid_handle"
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusAudioFormat:
		return "audio_format"
	case StatusInference:
		return "inference"
	case StatusResourceExhausted:
		return "resource_exhausted"
	case StatusUnsupportedLanguage:
		return "unsupported_language"
	case StatusModelNotFound:
		return "model_not_found"
	case StatusModelCorrupt:
		return "model_corrupt"
	case StatusConfigInvalid:
		return "config_invalid"
	default:
		return "internal"
	}
}

// Recognizer abstracts recognition backends for the service layer: the NPU
// context, the exec fallback, and the mock all satisfy it.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32) (Result, error)
	Close() error
}
