// Package npu is the boundary to the accelerator runtime that executes
// compiled model graphs. The vendor runtime is an opaque external dependency;
// everything above this package talks to it through Runtime and Graph.
package npu

import (
	"errors"
	"fmt"
)

var (
	// ErrInference indicates a graph execution failure. The failed call
	// produced no usable output; the runtime itself remains usable.
	ErrInference = errors.New("npu: inference failed")

	// ErrFatal indicates the driver state is corrupt. A runtime that
	// returned ErrFatal must not be used for further inference.
	ErrFatal = errors.New("npu: driver state corrupt")

	// ErrResourceExhausted indicates the accelerator could not allocate
	// memory or execution slots for the request.
	ErrResourceExhausted = errors.New("npu: resource exhausted")
)

// Tensor is a dense float32 array with explicit shape. Integer-valued inputs
// (token ids) are carried as float32 data; graph implementations round them
// back before use.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zero-filled tensor of the given shape.
func NewTensor(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return Tensor{Shape: shape, Data: make([]float32, n)}
}

// Elems returns the element count implied by the shape.
func (t Tensor) Elems() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// SameShape reports whether t and other have identical shapes.
func (t Tensor) SameShape(other Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

func (t Tensor) String() string {
	return fmt.Sprintf("tensor%v", t.Shape)
}

// Graph is a loaded computation graph resident on the accelerator.
// Run blocks until the forward pass completes. Implementations are not
// required to be safe for concurrent Run calls; callers serialize.
type Graph interface {
	Run(inputs []Tensor) ([]Tensor, error)
	Close() error
}

// Runtime loads compiled graphs into the accelerator.
type Runtime interface {
	LoadGraph(path string) (Graph, error)
	Close() error
}

// Factory creates a Runtime. The process-wide driver bookkeeping in Acquire
// decides when a factory actually runs.
type Factory func() (Runtime, error)
