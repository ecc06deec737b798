package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/axvoice/axasr/internal/wave"
	shellwords "github.com/mattn/go-shellwords"
)

// ExecOptions configures the exec fallback backend: an external recognizer
// command for hosts without the NPU. The command receives the audio as a
// temporary WAV file and must print a JSON object {"text": "..."} on stdout.
type ExecOptions struct {
	Command    string
	ModelPath  string
	Language   string
	SampleRate int
}

type execRecognizer struct {
	cmd  []string
	opts ExecOptions
	mu   sync.Mutex
}

type execResult struct {
	Text string `json:"text"`
}

// NewExecRecognizer parses the configured command line and returns a
// Recognizer that shells out per call.
func NewExecRecognizer(opts ExecOptions) (Recognizer, error) {
	args, err := shellwords.NewParser().Parse(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: recognizer command is empty", ErrInvalidArgument)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	return &execRecognizer{cmd: args, opts: opts}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, samples []float32) (Result, error) {
	if len(samples) == 0 {
		return Result{}, fmt.Errorf("%w: no samples", ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.CreateTemp("", "axasr_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := wave.Encode(file, samples, r.opts.SampleRate); err != nil {
		return Result{}, err
	}

	args := append([]string{}, r.cmd[1:]...)
	args = append(args, "--audio", file.Name())
	if r.opts.ModelPath != "" {
		args = append(args, "--model", r.opts.ModelPath)
	}
	if r.opts.Language != "" {
		args = append(args, "--language", r.opts.Language)
	}

	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("%w: recognizer command: %v: %s", ErrInference, err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("%w: decode recognizer response: %v", ErrInference, err)
	}
	return Result{Text: resp.Text, Outcome: OutcomeNormal}, nil
}

func (r *execRecognizer) Close() error { return nil }
