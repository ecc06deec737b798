package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/axvoice/axasr/internal/npu"
)

const testVocab = `<|startoftranscript|> 0
<|endoftext|> 1
<|nospeech|> 2
<|en|> 3
▁hi 4
`

const testConfigJSON = `{
	"sample_rate": 16000,
	"n_mels": 80,
	"n_fft": 400,
	"hop_length": 160,
	"window_seconds": 2,
	"max_tokens": 32,
	"vocab_size": 5
}`

// writeArtifacts lays out a complete model directory and returns the model
// path. Individual files can be overridden or removed by the caller.
func writeArtifacts(t *testing.T, modelType string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, modelType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		modelType + "-encoder" + GraphExt: "stub graph",
		modelType + "-decoder" + GraphExt: "stub graph",
		modelType + "-tokens.txt":         testVocab,
		modelType + "_config.json":        testConfigJSON,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestResolve(t *testing.T) {
	p := Resolve("base", "/models")
	if p.Encoder != filepath.Join("/models", "base", "base-encoder.axmodel") {
		t.Errorf("unexpected encoder path %q", p.Encoder)
	}
	if p.Config != filepath.Join("/models", "base", "base_config.json") {
		t.Errorf("unexpected config path %q", p.Config)
	}
}

func TestLoad(t *testing.T) {
	root := writeArtifacts(t, "base")
	rt := npu.NewFakeRuntime()

	b, err := Load(rt, "base", root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer b.Close()

	if len(b.Vocab) != 5 {
		t.Errorf("vocab size = %d, want 5", len(b.Vocab))
	}
	if b.Config.SampleRate != 16000 {
		t.Errorf("sample_rate = %d, want 16000", b.Config.SampleRate)
	}
	if b.Config.MaxWindows != 1 {
		t.Errorf("max_windows default = %d, want 1", b.Config.MaxWindows)
	}
	if rt.OpenGraphs() != 2 {
		t.Errorf("expected 2 open graphs, got %d", rt.OpenGraphs())
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	root := writeArtifacts(t, "base")
	if err := os.Remove(filepath.Join(root, "base", "base-decoder.axmodel")); err != nil {
		t.Fatal(err)
	}
	rt := npu.NewFakeRuntime()

	_, err := Load(rt, "base", root)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if rt.OpenGraphs() != 0 {
		t.Errorf("missing artifact must not leak graphs, %d open", rt.OpenGraphs())
	}
}

func TestLoadUnknownModelType(t *testing.T) {
	rt := npu.NewFakeRuntime()
	_, err := Load(rt, "nope", t.TempDir())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadGraphFailureReleasesPartial(t *testing.T) {
	root := writeArtifacts(t, "base")
	rt := npu.NewFakeRuntime()
	rt.FailLoad("base-decoder.axmodel", errors.New("bad magic"))

	_, err := Load(rt, "base", root)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if rt.OpenGraphs() != 0 {
		t.Errorf("failed load leaked %d graphs", rt.OpenGraphs())
	}
}

func TestLoadBadTokens(t *testing.T) {
	root := writeArtifacts(t, "base")
	tokensPath := filepath.Join(root, "base", "base-tokens.txt")
	if err := os.WriteFile(tokensPath, []byte("garbage-without-id\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rt := npu.NewFakeRuntime()

	_, err := Load(rt, "base", root)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if rt.OpenGraphs() != 0 {
		t.Errorf("bad tokens leaked %d graphs", rt.OpenGraphs())
	}
}

func TestLoadBadConfig(t *testing.T) {
	cases := map[string]string{
		"not json":     "{",
		"missing keys": `{"sample_rate": 16000}`,
		"wrong type":   `{"sample_rate": "16000", "n_mels": 80, "n_fft": 400, "hop_length": 160, "window_seconds": 2, "max_tokens": 32, "vocab_size": 5}`,
		"vocab mismatch": `{"sample_rate": 16000, "n_mels": 80, "n_fft": 400, "hop_length": 160,
			"window_seconds": 2, "max_tokens": 32, "vocab_size": 9999}`,
		"bad threshold": `{"sample_rate": 16000, "n_mels": 80, "n_fft": 400, "hop_length": 160,
			"window_seconds": 2, "max_tokens": 32, "vocab_size": 5, "no_speech_threshold": 1.5}`,
		"bad fallback": `{"sample_rate": 16000, "n_mels": 80, "n_fft": 400, "hop_length": 160,
			"window_seconds": 2, "max_tokens": 32, "vocab_size": 5, "language_fallback": "en"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			root := writeArtifacts(t, "base")
			cfgPath := filepath.Join(root, "base", "base_config.json")
			if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			rt := npu.NewFakeRuntime()

			_, err := Load(rt, "base", root)
			if !errors.Is(err, ErrConfigInvalid) {
				t.Fatalf("expected ErrConfigInvalid, got %v", err)
			}
			if rt.OpenGraphs() != 0 {
				t.Errorf("invalid config leaked %d graphs", rt.OpenGraphs())
			}
		})
	}
}

func TestBundleCloseIdempotent(t *testing.T) {
	root := writeArtifacts(t, "base")
	rt := npu.NewFakeRuntime()

	b, err := Load(rt, "base", root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if rt.OpenGraphs() != 0 {
		t.Errorf("%d graphs still open after Close", rt.OpenGraphs())
	}
}

func TestConfigDerivedSizes(t *testing.T) {
	cfg := Config{SampleRate: 16000, WindowSeconds: 2, HopLength: 160}
	if cfg.WindowSamples() != 32000 {
		t.Errorf("WindowSamples = %d, want 32000", cfg.WindowSamples())
	}
	if cfg.Frames() != 200 {
		t.Errorf("Frames = %d, want 200", cfg.Frames())
	}
}
