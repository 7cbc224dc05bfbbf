package tlsf

import "unsafe"

// Calloc allocates size bytes and zeroes the payload before returning it,
// the malloc-plus-zero convenience §1 names as a collaborator outside the
// core engine. It shares Malloc's nil-on-exhaustion and nil-on-zero-size
// behavior.
func (c *Control) Calloc(size uintptr) unsafe.Pointer {
	ptr := c.Malloc(size)
	if ptr == nil {
		return nil
	}
	clear(unsafe.Slice((*byte)(ptr), blockSize(blockFromPtr(ptr))))
	return ptr
}
