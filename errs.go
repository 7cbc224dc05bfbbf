package tlsf

import "github.com/cockroachdb/errors"

// ErrMisaligned is returned by AddPool when the supplied region's base
// address is not aligned to alignSize bytes.
var ErrMisaligned = errors.New("tlsf: pool base address is not 4-byte aligned")

// ErrPoolSize is returned by AddPool when, after accounting for the two
// words of overhead the pool must carry, the usable region falls outside
// [blockSizeMin, blockSizeMax].
var ErrPoolSize = errors.New("tlsf: pool size out of range")

// assertf panics with a formatted invariant-violation error. Only called
// from the blockPrev/blockNext guards in header.go, on paths that are
// undefined behavior on caller misuse; never on a path a correct caller
// can reach. The invariant checker in diagnostics.go returns errors
// instead of calling it.
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(errors.Newf(format, args...))
	}
}
