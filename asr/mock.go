package asr

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a Recognizer that fabricates transcripts without
// touching any model or hardware. Used for smoke tests and mode: mock.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, samples []float32) (Result, error) {
	if len(samples) == 0 {
		return Result{}, fmt.Errorf("%w: no samples", ErrInvalidArgument)
	}
	return Result{
		Text:    fmt.Sprintf("[transcript of %d samples]", len(samples)),
		Outcome: OutcomeNormal,
	}, nil
}

func (m *mockRecognizer) Close() error { return nil }
