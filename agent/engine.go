// Package agent drives a finalized plan: it reads coalesced ranges from the
// segmented store into host buffers, submits copy descriptors to a copy
// engine, and surfaces at-most-once completions with deadline tracking.
package agent

import (
	"math/rand"
	"sync"
	"time"
)

// CopyOp is a vendor-neutral copy descriptor. Native engines may reinterpret
// Dst as a device pointer plus layout metadata; the simulation engine
// ignores it.
type CopyOp struct {
	Src        []byte
	Dst        any
	Bytes      int64
	StreamID   int
	GPUID      int
	DeadlineMS int64
}

// CopyEngine accepts batches of copy ops. Every submitted op must eventually
// invoke done exactly once; completion order is not guaranteed and callbacks
// may run on any goroutine. Implementations must be safe to call
// concurrently across windows.
type CopyEngine interface {
	Submit(ops []*CopyOp, done func(*CopyOp))
}

// HostBufferProvider is implemented by engines that hand out pinned host
// buffers for zero-copy device transfer. Engines without it force the
// executor onto the plain-read path.
type HostBufferProvider interface {
	AcquireHostBuffer(nbytes int64) []byte
}

// SimEngine is the built-in CPU-only engine: each op completes after a small
// seeded jitter. It backs tests and the simulation driver.
type SimEngine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimEngine returns a simulation engine with deterministic jitter for the
// given seed.
func NewSimEngine(seed int64) *SimEngine {
	return &SimEngine{rng: rand.New(rand.NewSource(seed))}
}

// Submit completes each op synchronously after 10-60µs of jitter.
func (e *SimEngine) Submit(ops []*CopyOp, done func(*CopyOp)) {
	for _, op := range ops {
		e.mu.Lock()
		jitter := time.Duration(10+e.rng.Intn(50)) * time.Microsecond
		e.mu.Unlock()
		time.Sleep(jitter)
		done(op)
	}
}

// AcquireHostBuffer returns a writable buffer standing in for pinned memory.
func (e *SimEngine) AcquireHostBuffer(nbytes int64) []byte {
	return make([]byte, nbytes)
}

// NewEngine returns the registered native engine when preferNative is set
// and one is available, otherwise the simulation engine. Native engines
// register at init time via RegisterNativeEngine.
func NewEngine(preferNative bool, seed int64) CopyEngine {
	if preferNative {
		nativeMu.Lock()
		ctor := nativeCtor
		nativeMu.Unlock()
		if ctor != nil {
			if eng := ctor(); eng != nil {
				return eng
			}
		}
	}
	return NewSimEngine(seed)
}

var (
	nativeMu   sync.Mutex
	nativeCtor func() CopyEngine
)

// RegisterNativeEngine installs a constructor for a native copy engine.
// Later registrations replace earlier ones.
func RegisterNativeEngine(ctor func() CopyEngine) {
	nativeMu.Lock()
	nativeCtor = ctor
	nativeMu.Unlock()
}
