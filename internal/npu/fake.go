package npu

import (
	"fmt"
	"path/filepath"
	"sync"
)

// FakeRuntime is a deterministic in-memory Runtime. Graph behavior is scripted
// per artifact basename; it backs package tests and leak accounting without
// touching hardware.
type FakeRuntime struct {
	mu      sync.Mutex
	scripts map[string]func(inputs []Tensor) ([]Tensor, error)
	loadErr map[string]error
	open    int
	closed  bool
}

func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		scripts: make(map[string]func(inputs []Tensor) ([]Tensor, error)),
		loadErr: make(map[string]error),
	}
}

// Script installs the run function for graphs loaded from a file with the
// given basename.
func (f *FakeRuntime) Script(name string, fn func(inputs []Tensor) ([]Tensor, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[name] = fn
}

// FailLoad makes LoadGraph fail for the given basename.
func (f *FakeRuntime) FailLoad(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErr[name] = err
}

// OpenGraphs returns the number of loaded graphs not yet closed.
func (f *FakeRuntime) OpenGraphs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *FakeRuntime) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeRuntime) LoadGraph(path string) (Graph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, fmt.Errorf("fake runtime closed")
	}
	name := filepath.Base(path)
	if err, ok := f.loadErr[name]; ok {
		return nil, err
	}
	fn := f.scripts[name]
	if fn == nil {
		fn = func(inputs []Tensor) ([]Tensor, error) {
			return []Tensor{NewTensor(1)}, nil
		}
	}
	f.open++
	return &fakeGraph{rt: f, run: fn}, nil
}

func (f *FakeRuntime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeGraph struct {
	rt     *FakeRuntime
	run    func(inputs []Tensor) ([]Tensor, error)
	closed bool
	mu     sync.Mutex
}

func (g *fakeGraph) Run(inputs []Tensor) ([]Tensor, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, fmt.Errorf("fake graph closed")
	}
	return g.run(inputs)
}

func (g *fakeGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.rt.mu.Lock()
	g.rt.open--
	g.rt.mu.Unlock()
	return nil
}
