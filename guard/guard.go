// Package guard supplies the external-mutual-exclusion discipline the
// core allocator deliberately leaves out (tlsf's core is not internally
// synchronized — see its package doc). The original C implementation's
// equivalent is an interrupt-disable/restore wrapper bracketing every
// public entry point; in a hosted Go program the analogous discipline is
// a single mutex, which is what Guarded provides.
package guard

import (
	"sync"
	"unsafe"

	"tlsf"
)

// Guarded serializes every call into a *tlsf.Control behind one
// sync.Mutex, so the same handle can be shared across goroutines. There
// is no third-party mutual-exclusion primitive anywhere in the retrieved
// pack that improves on sync.Mutex for single-process, non-distributed
// locking — see DESIGN.md.
type Guarded struct {
	mu sync.Mutex
	c  *tlsf.Control
}

// New wraps an existing *tlsf.Control.
func New(c *tlsf.Control) *Guarded {
	return &Guarded{c: c}
}

// AddPool admits mem as a pool under the lock.
func (g *Guarded) AddPool(mem []byte) (*tlsf.Pool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.AddPool(mem)
}

// Malloc allocates under the lock.
func (g *Guarded) Malloc(size uintptr) unsafe.Pointer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.Malloc(size)
}

// Memalign allocates an aligned block under the lock.
func (g *Guarded) Memalign(align, size uintptr) unsafe.Pointer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.Memalign(align, size)
}

// Realloc resizes under the lock.
func (g *Guarded) Realloc(ptr unsafe.Pointer, size uintptr) unsafe.Pointer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.Realloc(ptr, size)
}

// Free releases under the lock.
func (g *Guarded) Free(ptr unsafe.Pointer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.c.Free(ptr)
}

// Calloc allocates and zeroes under the lock.
func (g *Guarded) Calloc(size uintptr) unsafe.Pointer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.Calloc(size)
}
