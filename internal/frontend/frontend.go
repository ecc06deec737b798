// Package frontend converts raw 16 kHz mono float32 PCM into the fixed-shape
// log-mel feature tensor the encoder graph expects.
package frontend

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/axvoice/axasr/internal/model"
	"github.com/axvoice/axasr/internal/npu"
)

// ErrShape indicates an internal feature shape mismatch. This is a fatal
// programming error, never silently reshaped.
var ErrShape = errors.New("frontend: feature shape mismatch")

// Frontend holds the precomputed analysis window and mel filterbank for one
// model configuration. Safe for concurrent Prepare calls; all state here is
// read-only after New.
type Frontend struct {
	cfg     model.Config
	fftSize int
	window  []float64
	// filters[m] holds (bin, weight) pairs of mel filter m over the
	// non-negative frequency bins.
	filters [][]filterTap
}

type filterTap struct {
	bin    int
	weight float64
}

// New precomputes the Hann window and mel filterbank from the model config.
func New(cfg model.Config) *Frontend {
	fftSize := 1
	for fftSize < cfg.FFTSize {
		fftSize <<= 1
	}
	f := &Frontend{
		cfg:     cfg,
		fftSize: fftSize,
		window:  hann(cfg.FFTSize),
	}
	f.filters = melFilterbank(cfg.NumMels, fftSize, cfg.SampleRate)
	return f
}

// Windows splits samples into encoder-sized chunks. Input shorter than one
// window yields a single zero-padded window; longer input is cut into
// consecutive non-overlapping windows, capped at maxWindows with the
// remainder truncated. The returned windows alias freshly allocated memory.
func (f *Frontend) Windows(samples []float32, maxWindows int) [][]float32 {
	size := f.cfg.WindowSamples()
	if maxWindows < 1 {
		maxWindows = 1
	}
	count := (len(samples) + size - 1) / size
	if count < 1 {
		count = 1
	}
	if count > maxWindows {
		count = maxWindows
	}
	windows := make([][]float32, count)
	for i := range windows {
		w := make([]float32, size)
		start := i * size
		if start < len(samples) {
			copy(w, samples[start:])
		}
		windows[i] = w
	}
	return windows
}

// Prepare computes the log-mel feature tensor [1, n_mels, frames] for one
// exact encoder window. A window of any other length is a ShapeMismatch.
func (f *Frontend) Prepare(window []float32) (npu.Tensor, error) {
	size := f.cfg.WindowSamples()
	if len(window) != size {
		return npu.Tensor{}, fmt.Errorf("%w: got %d samples, window is %d", ErrShape, len(window), size)
	}

	frames := f.cfg.Frames()
	mels := f.cfg.NumMels
	logmel := make([]float64, mels*frames)

	frame := make([]complex128, f.fftSize)
	power := make([]float64, f.fftSize/2+1)
	for i := 0; i < frames; i++ {
		start := i * f.cfg.HopLength
		for j := 0; j < f.fftSize; j++ {
			var s float64
			if j < f.cfg.FFTSize && start+j < len(window) {
				s = float64(window[start+j]) * f.window[j]
			}
			frame[j] = complex(s, 0)
		}
		fft(frame)
		for j := range power {
			power[j] = real(frame[j])*real(frame[j]) + imag(frame[j])*imag(frame[j])
		}
		for m := 0; m < mels; m++ {
			var acc float64
			for _, tap := range f.filters[m] {
				acc += power[tap.bin] * tap.weight
			}
			logmel[m*frames+i] = math.Log10(math.Max(acc, 1e-10))
		}
	}

	// Dynamic range compression: clamp 8 dB under the peak, then rescale.
	peak := math.Inf(-1)
	for _, v := range logmel {
		if v > peak {
			peak = v
		}
	}
	out := npu.NewTensor(1, mels, frames)
	for i, v := range logmel {
		if v < peak-8.0 {
			v = peak - 8.0
		}
		out.Data[i] = float32((v + 4.0) / 4.0)
	}
	if out.Elems() != mels*frames {
		return npu.Tensor{}, fmt.Errorf("%w: produced %d elements, want %d", ErrShape, out.Elems(), mels*frames)
	}
	return out, nil
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

func melFilterbank(numMels, fftSize, sampleRate int) [][]filterTap {
	bins := fftSize/2 + 1
	melLo := hzToMel(0)
	melHi := hzToMel(float64(sampleRate) / 2)
	points := make([]float64, numMels+2)
	for i := range points {
		mel := melLo + (melHi-melLo)*float64(i)/float64(numMels+1)
		points[i] = melToHz(mel) / (float64(sampleRate) / 2) * float64(bins-1)
	}

	filters := make([][]filterTap, numMels)
	for m := 0; m < numMels; m++ {
		left, center, right := points[m], points[m+1], points[m+2]
		for b := int(math.Ceil(left)); b <= int(math.Floor(right)) && b < bins; b++ {
			if b < 0 {
				continue
			}
			var w float64
			fb := float64(b)
			switch {
			case fb < center && center > left:
				w = (fb - left) / (center - left)
			case fb >= center && right > center:
				w = (right - fb) / (right - center)
			}
			if w > 0 {
				filters[m] = append(filters[m], filterTap{bin: b, weight: w})
			}
		}
	}
	return filters
}

// fft runs an in-place iterative radix-2 transform. len(x) must be a power
// of two.
func fft(x []complex128) {
	n := len(x)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for length := 2; length <= n; length <<= 1 {
		ang := -2 * math.Pi / float64(length)
		wl := cmplx.Rect(1, ang)
		for i := 0; i < n; i += length {
			w := complex(1, 0)
			for j := 0; j < length/2; j++ {
				u := x[i+j]
				v := x[i+j+length/2] * w
				x[i+j] = u + v
				x[i+j+length/2] = u - v
				w *= wl
			}
		}
	}
}
