// Package engine runs the two accelerator stages: the encoder forward pass
// and the autoregressive decoder loop.
package engine

import (
	"errors"
	"fmt"

	"github.com/axvoice/axasr/internal/npu"
)

// Encoder wraps the accelerator-resident encoder graph.
type Encoder struct {
	graph npu.Graph
}

func NewEncoder(graph npu.Graph) *Encoder {
	return &Encoder{graph: graph}
}

// Run executes one blocking forward pass over a feature tensor and returns
// the hidden-state tensor. Execution failures are never retried here; retry
// policy belongs to the caller.
func (e *Encoder) Run(features npu.Tensor) (npu.Tensor, error) {
	outs, err := e.graph.Run([]npu.Tensor{features})
	if err != nil {
		return npu.Tensor{}, asInference(fmt.Errorf("encoder: %w", err))
	}
	if len(outs) == 0 {
		return npu.Tensor{}, fmt.Errorf("%w: encoder produced no output", npu.ErrInference)
	}
	return outs[0], nil
}

// asInference folds non-taxonomy execution errors into ErrInference while
// preserving fatal and resource classifications from the runtime.
func asInference(err error) error {
	if errors.Is(err, npu.ErrInference) ||
		errors.Is(err, npu.ErrFatal) ||
		errors.Is(err, npu.ErrResourceExhausted) {
		return err
	}
	return fmt.Errorf("%w: %v", npu.ErrInference, err)
}
