package tlsf

import (
	"os"
	"strconv"
	"sync"
	"unsafe"
)

// defaultPoolBytesEnv, when set to a positive integer, overrides the size
// of the package-level default pool created on first use of the facade
// functions below.
const defaultPoolBytesEnv = "TLSF_DEFAULT_POOL_BYTES"

// defaultPoolBytes is the facade's default pool size when
// defaultPoolBytesEnv is unset: 1 MiB.
const defaultPoolBytes = 1 << 20

var (
	defaultOnce sync.Once
	defaultCtl  *Control
	defaultErr  error
)

// defaultControl lazily builds the package-level Control the design notes
// (§9) call for: a thin façade binding one default instance, so that
// callers who don't need multiple pools or explicit handle plumbing don't
// have to manage a *Control themselves. Control itself never has default
// or global state — this is the only place package-level mutable state
// exists in the module.
func defaultControl() (*Control, error) {
	defaultOnce.Do(func() {
		n := defaultPoolBytes
		if v, ok := os.LookupEnv(defaultPoolBytesEnv); ok {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				n = parsed
			}
		}
		mem := make([]byte, n)
		defaultCtl, defaultErr = CreateWithPool(mem)
	})
	return defaultCtl, defaultErr
}

// Malloc allocates size bytes from the package-level default pool.
func Malloc(size uintptr) (unsafe.Pointer, error) {
	c, err := defaultControl()
	if err != nil {
		return nil, err
	}
	return c.Malloc(size), nil
}

// Memalign allocates size bytes aligned to align from the package-level
// default pool.
func Memalign(align, size uintptr) (unsafe.Pointer, error) {
	c, err := defaultControl()
	if err != nil {
		return nil, err
	}
	return c.Memalign(align, size), nil
}

// Realloc resizes ptr's allocation in the package-level default pool.
func Realloc(ptr unsafe.Pointer, size uintptr) (unsafe.Pointer, error) {
	c, err := defaultControl()
	if err != nil {
		return nil, err
	}
	return c.Realloc(ptr, size), nil
}

// Free returns ptr to the package-level default pool.
func Free(ptr unsafe.Pointer) error {
	c, err := defaultControl()
	if err != nil {
		return err
	}
	c.Free(ptr)
	return nil
}

// Calloc allocates size bytes from the package-level default pool and
// zeroes the payload, the convenience explicitly named out of scope for
// the core (§1) but expected of a complete allocator facade.
func Calloc(size uintptr) (unsafe.Pointer, error) {
	c, err := defaultControl()
	if err != nil {
		return nil, err
	}
	return c.Calloc(size), nil
}
