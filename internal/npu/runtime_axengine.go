//go:build axengine

package npu

/*
#cgo LDFLAGS: -lax_engine -lax_sys
#include <stdlib.h>
#include <string.h>
#include "ax_engine_api.h"
#include "ax_sys_api.h"
*/
import "C"

import (
	"fmt"
	"os"
	"sync"
	"unsafe"
)

// axRuntime drives the AX engine SDK. One instance per Acquire; the SDK's
// process-wide init/deinit pair is managed here behind the package driver
// lock, so calls arrive serialized.
type axRuntime struct {
	mu     sync.Mutex
	closed bool
}

var axInitCount int

// OpenDefault initializes the AX engine and returns a runtime backed by it.
func OpenDefault() (Runtime, error) {
	if axInitCount == 0 {
		if ret := C.AX_SYS_Init(); ret != 0 {
			return nil, fmt.Errorf("%w: AX_SYS_Init ret=%d", ErrFatal, int(ret))
		}
		var attr C.AX_ENGINE_NPU_ATTR_T
		if ret := C.AX_ENGINE_Init(&attr); ret != 0 {
			C.AX_SYS_Deinit()
			return nil, fmt.Errorf("%w: AX_ENGINE_Init ret=%d", ErrFatal, int(ret))
		}
	}
	axInitCount++
	return &axRuntime{}, nil
}

func (r *axRuntime) LoadGraph(path string) (Graph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("ax runtime closed")
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var handle C.AX_ENGINE_HANDLE
	ret := C.AX_ENGINE_CreateHandle(&handle, unsafe.Pointer(&blob[0]), C.AX_U32(len(blob)))
	if ret != 0 {
		return nil, fmt.Errorf("AX_ENGINE_CreateHandle %s ret=%d", path, int(ret))
	}
	if ret := C.AX_ENGINE_CreateContext(handle); ret != 0 {
		C.AX_ENGINE_DestroyHandle(handle)
		return nil, fmt.Errorf("AX_ENGINE_CreateContext %s ret=%d", path, int(ret))
	}

	g := &axGraph{rt: r, handle: handle}
	if err := g.bindIO(); err != nil {
		C.AX_ENGINE_DestroyHandle(handle)
		return nil, err
	}
	return g, nil
}

func (r *axRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	axInitCount--
	if axInitCount == 0 {
		C.AX_ENGINE_Deinit()
		C.AX_SYS_Deinit()
	}
	return nil
}

type axGraph struct {
	rt     *axRuntime
	handle C.AX_ENGINE_HANDLE
	info   *C.AX_ENGINE_IO_INFO_T
	io     C.AX_ENGINE_IO_T
	bound  bool
}

func (g *axGraph) bindIO() error {
	if ret := C.AX_ENGINE_GetIOInfo(g.handle, &g.info); ret != 0 {
		return fmt.Errorf("AX_ENGINE_GetIOInfo ret=%d", int(ret))
	}
	g.io.nInputSize = g.info.nInputSize
	g.io.nOutputSize = g.info.nOutputSize
	g.io.pInputs = (*C.AX_ENGINE_IO_BUFFER_T)(C.calloc(C.size_t(g.io.nInputSize), C.sizeof_AX_ENGINE_IO_BUFFER_T))
	g.io.pOutputs = (*C.AX_ENGINE_IO_BUFFER_T)(C.calloc(C.size_t(g.io.nOutputSize), C.sizeof_AX_ENGINE_IO_BUFFER_T))

	inputs := unsafe.Slice(g.io.pInputs, int(g.io.nInputSize))
	inMeta := unsafe.Slice(g.info.pInputs, int(g.info.nInputSize))
	for i := range inputs {
		if err := allocBuffer(&inputs[i], inMeta[i].nSize); err != nil {
			return err
		}
	}
	outputs := unsafe.Slice(g.io.pOutputs, int(g.io.nOutputSize))
	outMeta := unsafe.Slice(g.info.pOutputs, int(g.info.nOutputSize))
	for i := range outputs {
		if err := allocBuffer(&outputs[i], outMeta[i].nSize); err != nil {
			return err
		}
	}
	g.bound = true
	return nil
}

func allocBuffer(buf *C.AX_ENGINE_IO_BUFFER_T, size C.AX_U32) error {
	var phy C.AX_U64
	var virt unsafe.Pointer
	if ret := C.AX_SYS_MemAlloc(&phy, &virt, size, 128, nil); ret != 0 {
		return fmt.Errorf("%w: AX_SYS_MemAlloc %d bytes ret=%d", ErrResourceExhausted, uint32(size), int(ret))
	}
	buf.phyAddr = phy
	buf.pVirAddr = virt
	buf.nSize = size
	return nil
}

func (g *axGraph) Run(inputs []Tensor) ([]Tensor, error) {
	if !g.bound {
		return nil, fmt.Errorf("%w: graph io not bound", ErrInference)
	}
	bufs := unsafe.Slice(g.io.pInputs, int(g.io.nInputSize))
	if len(inputs) != len(bufs) {
		return nil, fmt.Errorf("%w: graph expects %d inputs, got %d", ErrInference, len(bufs), len(inputs))
	}
	for i, in := range inputs {
		n := in.Elems() * 4
		if n > int(bufs[i].nSize) {
			return nil, fmt.Errorf("%w: input %d overflows io buffer", ErrInference, i)
		}
		C.memcpy(bufs[i].pVirAddr, unsafe.Pointer(&in.Data[0]), C.size_t(n))
	}

	if ret := C.AX_ENGINE_RunSync(g.handle, &g.io); ret != 0 {
		return nil, fmt.Errorf("%w: AX_ENGINE_RunSync ret=%d", ErrInference, int(ret))
	}

	outBufs := unsafe.Slice(g.io.pOutputs, int(g.io.nOutputSize))
	outMeta := unsafe.Slice(g.info.pOutputs, int(g.info.nOutputSize))
	outs := make([]Tensor, len(outBufs))
	for i := range outBufs {
		shape := make([]int, int(outMeta[i].nShapeSize))
		dims := unsafe.Slice(&outMeta[i].pShape[0], len(shape))
		for d := range shape {
			shape[d] = int(dims[d])
		}
		t := NewTensor(shape...)
		C.memcpy(unsafe.Pointer(&t.Data[0]), outBufs[i].pVirAddr, C.size_t(t.Elems()*4))
		outs[i] = t
	}
	return outs, nil
}

func (g *axGraph) Close() error {
	if g.bound {
		bufs := unsafe.Slice(g.io.pInputs, int(g.io.nInputSize))
		for i := range bufs {
			if bufs[i].pVirAddr != nil {
				C.AX_SYS_MemFree(bufs[i].phyAddr, bufs[i].pVirAddr)
			}
		}
		outBufs := unsafe.Slice(g.io.pOutputs, int(g.io.nOutputSize))
		for i := range outBufs {
			if outBufs[i].pVirAddr != nil {
				C.AX_SYS_MemFree(outBufs[i].phyAddr, outBufs[i].pVirAddr)
			}
		}
		C.free(unsafe.Pointer(g.io.pInputs))
		C.free(unsafe.Pointer(g.io.pOutputs))
		g.bound = false
	}
	C.AX_ENGINE_DestroyHandle(g.handle)
	return nil
}
