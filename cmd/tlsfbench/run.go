package main

import (
	"fmt"
	"math/rand"
	"unsafe"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tlsf"
)

func newRunCmd() *cobra.Command {
	var (
		poolBytes int
		ops       int
		seed      int64
		minSize   int
		maxSize   int
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "replay a synthetic malloc/free workload and report statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var logger *zap.Logger
			if verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				logger = l
			} else {
				logger = zap.NewNop()
			}
			defer logger.Sync() //nolint:errcheck

			mem := make([]byte, poolBytes)
			c, pool, err := newControlWithPool(mem)
			if err != nil {
				return err
			}

			stats := replay(c, rng(seed), ops, minSize, maxSize, logger)
			if err := c.CheckInvariants(); err != nil {
				return fmt.Errorf("invariant check failed after workload: %w", err)
			}
			if verbose {
				c.DebugLogPool(pool, logger)
			}

			printReport(cmd, stats, pool)
			return nil
		},
	}

	cmd.Flags().IntVar(&poolBytes, "pool-bytes", 1<<20, "pool size in bytes")
	cmd.Flags().IntVar(&ops, "ops", 10000, "number of malloc/free/realloc operations to replay")
	cmd.Flags().Int64Var(&seed, "seed", 1, "PRNG seed, for reproducible workloads")
	cmd.Flags().IntVar(&minSize, "min-size", 16, "minimum allocation size")
	cmd.Flags().IntVar(&maxSize, "max-size", 4096, "maximum allocation size")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log every block visited by the post-run pool walk")

	return cmd
}

func newControlWithPool(mem []byte) (*tlsf.Control, *tlsf.Pool, error) {
	c := tlsf.NewControl()
	pool, err := c.AddPool(mem)
	if err != nil {
		return nil, nil, fmt.Errorf("add pool: %w", err)
	}
	return c, pool, nil
}

func rng(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

type workloadStats struct {
	mallocs   int
	frees     int
	reallocs  int
	failures  int
	liveBytes uintptr
	peakBytes uintptr
}

// replay drives a random sequence of malloc/free/realloc calls against c,
// keeping every live pointer in a slice so frees and reallocs target real
// allocations.
func replay(c *tlsf.Control, r *rand.Rand, ops, minSize, maxSize int, logger *zap.Logger) workloadStats {
	var stats workloadStats
	live := make([]unsafe.Pointer, 0, ops)
	sizes := make(map[unsafe.Pointer]uintptr, ops)

	randSize := func() uintptr {
		return uintptr(minSize + r.Intn(maxSize-minSize+1))
	}

	for i := 0; i < ops; i++ {
		switch {
		case len(live) == 0 || r.Intn(3) != 0:
			size := randSize()
			p := c.Malloc(size)
			stats.mallocs++
			if p == nil {
				stats.failures++
				continue
			}
			live = append(live, p)
			sizes[p] = size
			stats.liveBytes += size
			if stats.liveBytes > stats.peakBytes {
				stats.peakBytes = stats.liveBytes
			}
		case r.Intn(2) == 0:
			idx := r.Intn(len(live))
			p := live[idx]
			stats.liveBytes -= sizes[p]
			delete(sizes, p)
			c.Free(p)
			stats.frees++
			live[idx] = live[len(live)-1]
			live = live[:len(live)-1]
		default:
			idx := r.Intn(len(live))
			p := live[idx]
			newSize := randSize()
			q := c.Realloc(p, newSize)
			stats.reallocs++
			if q == nil {
				stats.failures++
				continue
			}
			stats.liveBytes += newSize - sizes[p]
			if stats.liveBytes > stats.peakBytes {
				stats.peakBytes = stats.liveBytes
			}
			delete(sizes, p)
			sizes[q] = newSize
			live[idx] = q
		}
	}

	logger.Info("workload complete",
		zap.Int("mallocs", stats.mallocs),
		zap.Int("frees", stats.frees),
		zap.Int("reallocs", stats.reallocs),
		zap.Int("failures", stats.failures),
	)
	return stats
}

func printReport(cmd *cobra.Command, stats workloadStats, pool *tlsf.Pool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mallocs=%d frees=%d reallocs=%d failures=%d\n",
		stats.mallocs, stats.frees, stats.reallocs, stats.failures)
	fmt.Fprintf(out, "live_bytes=%d peak_bytes=%d\n", stats.liveBytes, stats.peakBytes)

	var freeBytes, usedBytes uintptr
	var freeBlocks, usedBlocks int
	tlsf.WalkPool(pool, func(ptr unsafe.Pointer, size uintptr, used bool) {
		if used {
			usedBlocks++
			usedBytes += size
		} else {
			freeBlocks++
			freeBytes += size
		}
	})
	fmt.Fprintf(out, "free_blocks=%d free_bytes=%d used_blocks=%d used_bytes=%d\n",
		freeBlocks, freeBytes, usedBlocks, usedBytes)
}
