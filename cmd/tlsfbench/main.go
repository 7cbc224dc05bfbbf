// Command tlsfbench drives a synthetic malloc/free/realloc workload
// against the tlsf allocator and reports fragmentation and utilization
// statistics. It is the reporting/diagnostic-I/O layer §1 of the
// specification keeps out of the core engine.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tlsfbench",
		Short: "exercise and report on the tlsf allocator",
		Long:  "tlsfbench builds a pool, replays a synthetic allocation workload against it, and reports fragmentation and invariant-check results.",
	}
	cmd.AddCommand(newRunCmd())
	return cmd
}
