package asr

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMockRecognizer(t *testing.T) {
	rec := NewMockRecognizer()
	defer rec.Close()

	result, err := rec.Transcribe(context.Background(), make([]float32, 100))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if !strings.Contains(result.Text, "100") {
		t.Errorf("mock transcript %q should mention the sample count", result.Text)
	}
	if result.Outcome != OutcomeNormal {
		t.Errorf("outcome = %v, want normal", result.Outcome)
	}

	_, err = rec.Transcribe(context.Background(), nil)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty input: got %v, want ErrInvalidArgument", err)
	}
}

func TestNewExecRecognizer(t *testing.T) {
	rec, err := NewExecRecognizer(ExecOptions{Command: `whisper-cli --threads 4`})
	if err != nil {
		t.Fatalf("NewExecRecognizer failed: %v", err)
	}
	rec.Close()

	if _, err := NewExecRecognizer(ExecOptions{Command: ""}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty command: got %v, want ErrInvalidArgument", err)
	}
	if _, err := NewExecRecognizer(ExecOptions{Command: `unbalanced "quote`}); err == nil {
		t.Error("expected parse error for unbalanced quote")
	}
}

func TestExecRecognizerRejectsEmptyInput(t *testing.T) {
	rec, err := NewExecRecognizer(ExecOptions{Command: "true"})
	if err != nil {
		t.Fatalf("NewExecRecognizer failed: %v", err)
	}
	defer rec.Close()

	if _, err := rec.Transcribe(context.Background(), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
}

func TestExecRecognizerCommandFailure(t *testing.T) {
	rec, err := NewExecRecognizer(ExecOptions{Command: "false"})
	if err != nil {
		t.Fatalf("NewExecRecognizer failed: %v", err)
	}
	defer rec.Close()

	_, err = rec.Transcribe(context.Background(), make([]float32, 160))
	if !errors.Is(err, ErrInference) {
		t.Errorf("failing command: got %v, want ErrInference", err)
	}
}
