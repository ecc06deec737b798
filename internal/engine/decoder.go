package engine

import (
	"fmt"
	"math"

	"github.com/axvoice/axasr/internal/model"
	"github.com/axvoice/axasr/internal/npu"
	"github.com/axvoice/axasr/internal/tokenizer"
)

// Outcome is the terminal state of one decoder run.
type Outcome int

const (
	// OutcomeNormal means the decoder emitted end-of-sequence on its own.
	OutcomeNormal Outcome = iota
	// OutcomeMaxLength means the hard token cap stopped the loop.
	OutcomeMaxLength
	// OutcomeNoSpeech means the no-speech check tripped on the first step.
	OutcomeNoSpeech
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNormal:
		return "normal"
	case OutcomeMaxLength:
		return "max_length"
	case OutcomeNoSpeech:
		return "no_speech"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decoder drives the autoregressive decoder graph with greedy token
// selection. Each step is one blocking accelerator call over the full token
// sequence so far plus the encoder hidden state.
type Decoder struct {
	graph             npu.Graph
	tok               *tokenizer.Tokenizer
	maxTokens         int
	noSpeechThreshold float64
}

func NewDecoder(graph npu.Graph, tok *tokenizer.Tokenizer, cfg model.Config) *Decoder {
	return &Decoder{
		graph:             graph,
		tok:               tok,
		maxTokens:         cfg.MaxTokens,
		noSpeechThreshold: cfg.NoSpeechThreshold,
	}
}

// Run decodes one window. prefix is the control-token seed from the
// tokenizer; the returned sequence contains only generated tokens. A failed
// step aborts the whole run with no partial output.
func (d *Decoder) Run(hidden npu.Tensor, prefix []int) ([]int, Outcome, error) {
	seq := append([]int(nil), prefix...)

	for step := 0; ; step++ {
		logits, err := d.step(step, seq, hidden)
		if err != nil {
			return nil, OutcomeNormal, err
		}

		if step == 0 && d.noSpeechThreshold > 0 && d.tok.NoSpeech() >= 0 {
			if prob(logits, d.tok.NoSpeech()) >= d.noSpeechThreshold {
				return nil, OutcomeNoSpeech, nil
			}
		}

		next := argmax(logits)
		if next == d.tok.End() {
			return seq[len(prefix):], OutcomeNormal, nil
		}
		seq = append(seq, next)
		if len(seq)-len(prefix) >= d.maxTokens {
			return seq[len(prefix):], OutcomeMaxLength, nil
		}
	}
}

// step feeds the current sequence and hidden state through the decoder graph
// and returns the next-token distribution in logit space.
func (d *Decoder) step(step int, seq []int, hidden npu.Tensor) ([]float32, error) {
	tokens := npu.NewTensor(1, len(seq))
	for i, id := range seq {
		tokens.Data[i] = float32(id)
	}
	outs, err := d.graph.Run([]npu.Tensor{tokens, hidden})
	if err != nil {
		return nil, asInference(fmt.Errorf("decoder step %d: %w", step, err))
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%w: decoder produced no output", npu.ErrInference)
	}
	logits := outs[0].Data
	if len(logits) != d.tok.Size() {
		return nil, fmt.Errorf("%w: decoder emitted %d logits for vocabulary of %d",
			npu.ErrInference, len(logits), d.tok.Size())
	}
	return logits, nil
}

// argmax breaks ties toward the lowest id, keeping greedy decoding
// deterministic.
func argmax(logits []float32) int {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	return best
}

// prob returns the softmax probability of one id.
func prob(logits []float32, id int) float64 {
	var max float64 = math.Inf(-1)
	for _, v := range logits {
		if float64(v) > max {
			max = float64(v)
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v) - max)
	}
	if sum == 0 {
		return 0
	}
	return math.Exp(float64(logits[id])-max) / sum
}
