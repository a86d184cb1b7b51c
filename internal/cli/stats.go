package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jocr1627/fun-with-ml-server/internal/client"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show in-memory server statistics: worker and registry timings
and job counts since the server started.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := gqlClient.GetServerStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	return render(cmd.OutOrStdout(), stats, func(w io.Writer) { printServerStats(w, stats) })
}

// printServerStats displays server runtime statistics.
func printServerStats(w io.Writer, stats *client.ServerStats) {
	fmt.Fprintf(w, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", stats.UptimeSeconds)

	printOpStats(w, "Worker Sessions", stats.WorkerSession)
	printOpStats(w, "Worker Acknowledgements", stats.WorkerAck)
	printOpStats(w, "Registry Reads", stats.RegistryRead)
	printOpStats(w, "Registry Writes", stats.RegistryWrite)

	fmt.Fprintf(w, "\nJobs:\n")
	fmt.Fprintf(w, "  Generate: %d started, %d done, %d failed\n",
		stats.GenerateJobs.Started, stats.GenerateJobs.Done, stats.GenerateJobs.Failed)
	fmt.Fprintf(w, "  Training: %d started, %d done, %d failed\n",
		stats.TrainingJobs.Started, stats.TrainingJobs.Done, stats.TrainingJobs.Failed)
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, title string, op *client.OperationStats) {
	if op == nil {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	fmt.Fprintf(w, "  Calls: %d (%d failed), Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}
