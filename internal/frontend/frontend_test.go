package frontend

import (
	"errors"
	"math"
	"testing"

	"github.com/axvoice/axasr/internal/model"
)

func testConfig() model.Config {
	return model.Config{
		SampleRate:    16000,
		NumMels:       80,
		FFTSize:       400,
		HopLength:     160,
		WindowSeconds: 2,
		MaxTokens:     32,
		VocabSize:     10,
	}
}

func TestWindowsPadsShortInput(t *testing.T) {
	f := New(testConfig())
	size := testConfig().WindowSamples()

	windows := f.Windows(make([]float32, size/2), 4)
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if len(windows[0]) != size {
		t.Fatalf("window length = %d, want %d", len(windows[0]), size)
	}
	for i := size / 2; i < size; i++ {
		if windows[0][i] != 0 {
			t.Fatalf("expected zero padding at sample %d", i)
		}
	}
}

func TestWindowsChunksLongInput(t *testing.T) {
	f := New(testConfig())
	size := testConfig().WindowSamples()

	samples := make([]float32, size*2+size/2)
	for i := range samples {
		samples[i] = float32(i%100) / 100
	}
	windows := f.Windows(samples, 8)
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	if windows[1][0] != samples[size] {
		t.Error("second window does not start where the first ended")
	}
}

func TestWindowsCapTruncates(t *testing.T) {
	f := New(testConfig())
	size := testConfig().WindowSamples()

	windows := f.Windows(make([]float32, size*5), 2)
	if len(windows) != 2 {
		t.Fatalf("expected cap of 2 windows, got %d", len(windows))
	}
}

func TestWindowsEmptyInput(t *testing.T) {
	f := New(testConfig())
	windows := f.Windows(nil, 1)
	if len(windows) != 1 {
		t.Fatalf("expected 1 zero window for empty input, got %d", len(windows))
	}
}

func TestPrepareShape(t *testing.T) {
	cfg := testConfig()
	f := New(cfg)

	samples := make([]float32, cfg.WindowSamples())
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / float64(cfg.SampleRate)))
	}
	tensor, err := f.Prepare(samples)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	want := []int{1, cfg.NumMels, cfg.Frames()}
	if len(tensor.Shape) != 3 || tensor.Shape[0] != want[0] || tensor.Shape[1] != want[1] || tensor.Shape[2] != want[2] {
		t.Fatalf("tensor shape = %v, want %v", tensor.Shape, want)
	}
	if len(tensor.Data) != cfg.NumMels*cfg.Frames() {
		t.Fatalf("tensor data length = %d, want %d", len(tensor.Data), cfg.NumMels*cfg.Frames())
	}
	for i, v := range tensor.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("non-finite feature at %d: %v", i, v)
		}
	}
}

func TestPrepareRejectsWrongLength(t *testing.T) {
	f := New(testConfig())
	_, err := f.Prepare(make([]float32, 123))
	if !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestPrepareDeterministic(t *testing.T) {
	cfg := testConfig()
	f := New(cfg)

	samples := make([]float32, cfg.WindowSamples())
	for i := range samples {
		samples[i] = float32(math.Sin(0.01 * float64(i)))
	}
	a, err := f.Prepare(samples)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	b, err := f.Prepare(samples)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("feature %d differs between identical runs", i)
		}
	}
}

func TestPrepareSilenceBounded(t *testing.T) {
	cfg := testConfig()
	f := New(cfg)

	tensor, err := f.Prepare(make([]float32, cfg.WindowSamples()))
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	// Compression clamps the floor 8 dB under the peak, so the spread of a
	// silent window stays within 2 after rescaling.
	min, max := tensor.Data[0], tensor.Data[0]
	for _, v := range tensor.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if float64(max-min) > 2.0+1e-6 {
		t.Errorf("feature spread %v exceeds compression bound", max-min)
	}
}

func TestMelFilterbankCoversBins(t *testing.T) {
	filters := melFilterbank(80, 512, 16000)
	if len(filters) != 80 {
		t.Fatalf("expected 80 filters, got %d", len(filters))
	}
	nonEmpty := 0
	for _, f := range filters {
		if len(f) > 0 {
			nonEmpty++
		}
		for _, tap := range f {
			if tap.bin < 0 || tap.bin > 256 {
				t.Fatalf("tap bin %d out of range", tap.bin)
			}
			if tap.weight <= 0 || tap.weight > 1 {
				t.Fatalf("tap weight %v out of range", tap.weight)
			}
		}
	}
	if nonEmpty < 70 {
		t.Errorf("only %d of 80 filters have taps", nonEmpty)
	}
}

func TestFFTKnownInput(t *testing.T) {
	// DC input of ones transforms to an impulse at bin 0.
	x := make([]complex128, 8)
	for i := range x {
		x[i] = 1
	}
	fft(x)
	if math.Abs(real(x[0])-8) > 1e-9 {
		t.Errorf("bin 0 = %v, want 8", x[0])
	}
	for i := 1; i < 8; i++ {
		if math.Abs(real(x[i])) > 1e-9 || math.Abs(imag(x[i])) > 1e-9 {
			t.Errorf("bin %d = %v, want 0", i, x[i])
		}
	}
}
