// Package wave reads and writes the 16 kHz mono WAV payloads the engine
// works with.
package wave

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV fmt-chunk audio formats the decoder accepts.
const (
	formatPCM       = 1
	formatIEEEFloat = 3
)

// ErrFormat indicates the audio source could not be turned into samples of
// the required rate and channel layout.
var ErrFormat = errors.New("wave: unsupported audio format")

// DecodeFile reads a WAV file into float32 samples in [-1, 1]. The file must
// be mono at the given sample rate; anything else fails with ErrFormat.
func DecodeFile(path string, sampleRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid wav file", ErrFormat, path)
	}
	if int(dec.SampleRate) != sampleRate {
		return nil, fmt.Errorf("%w: sample rate %d, want %d", ErrFormat, dec.SampleRate, sampleRate)
	}
	if dec.NumChans != 1 {
		return nil, fmt.Errorf("%w: %d channels, want mono", ErrFormat, dec.NumChans)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if buf == nil {
		return nil, fmt.Errorf("%w: empty wav buffer", ErrFormat)
	}

	out := make([]float32, len(buf.Data))
	switch dec.WavAudioFormat {
	case formatPCM:
		bitDepth := buf.SourceBitDepth
		if bitDepth <= 0 {
			bitDepth = 16
		}
		scale := float32(int(1) << (bitDepth - 1))
		for i, v := range buf.Data {
			out[i] = float32(v) / scale
		}
	case formatIEEEFloat:
		// The decoder hands float samples through as their raw bit
		// patterns; reinterpret instead of scaling.
		if dec.BitDepth != 32 {
			return nil, fmt.Errorf("%w: %d-bit float samples, want 32", ErrFormat, dec.BitDepth)
		}
		for i, v := range buf.Data {
			out[i] = math.Float32frombits(uint32(int32(v)))
		}
	default:
		return nil, fmt.Errorf("%w: wav audio format %d, want pcm or ieee float", ErrFormat, dec.WavAudioFormat)
	}
	return out, nil
}

// Encode writes float32 samples as a 16-bit mono PCM WAV stream.
func Encode(w io.WriteSeeker, samples []float32, sampleRate int) error {
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}

	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// FromPCM16 converts little-endian 16-bit PCM bytes into float32 samples.
func FromPCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: pcm16 payload not aligned", ErrFormat)
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out, nil
}
