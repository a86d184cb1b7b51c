package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jocr1627/fun-with-ml-server/internal/client"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List or inspect generate and training jobs",
	Long: `List the jobs the server tracks, or inspect one by id.
A job has the id of the model it runs on.

Examples:
  fwml jobs generate       # List generate jobs
  fwml jobs generate 0     # Show the generate job of model 0
  fwml jobs train 0        # Show the training job of model 0`,
}

var jobsGenerateCmd = &cobra.Command{
	Use:   "generate [job-id]",
	Short: "List generate jobs or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsGenerate,
}

var jobsTrainCmd = &cobra.Command{
	Use:   "train [job-id]",
	Short: "List training jobs or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsTrain,
}

func init() {
	jobsCmd.AddCommand(jobsGenerateCmd)
	jobsCmd.AddCommand(jobsTrainCmd)
}

func runJobsGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		job, err := gqlClient.GetGenerateJob(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get generate job: %w", err)
		}
		if job == nil {
			return fmt.Errorf("job not found: %s", args[0])
		}
		return render(out, job, func(w io.Writer) { printGenerateJob(w, job) })
	}

	jobs, err := gqlClient.ListGenerateJobs(ctx)
	if err != nil {
		return fmt.Errorf("list generate jobs: %w", err)
	}
	rows := make([]jobRow, len(jobs))
	for i, j := range jobs {
		rows[i] = jobRow{id: j.ID, status: j.Status, startedAt: j.StartedAt, detail: fmt.Sprintf("%d chunks", len(j.Text))}
	}
	return render(out, jobs, func(w io.Writer) { printJobTable(w, rows) })
}

func runJobsTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		job, err := gqlClient.GetTrainingJob(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get training job: %w", err)
		}
		if job == nil {
			return fmt.Errorf("job not found: %s", args[0])
		}
		return render(out, job, func(w io.Writer) { printTrainingJob(w, job) })
	}

	jobs, err := gqlClient.ListTrainingJobs(ctx)
	if err != nil {
		return fmt.Errorf("list training jobs: %w", err)
	}
	rows := make([]jobRow, len(jobs))
	for i, j := range jobs {
		rows[i] = jobRow{id: j.ID, status: j.Status, startedAt: j.StartedAt, detail: formatMetrics(j.Metrics)}
	}
	return render(out, jobs, func(w io.Writer) { printJobTable(w, rows) })
}

type jobRow struct {
	id        string
	status    string
	startedAt time.Time
	detail    string
}

func printJobTable(w io.Writer, rows []jobRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return
	}

	fmt.Fprintf(w, "%-10s %-10s %-10s %s\n", "ID", "STATUS", "STARTED", "DETAIL")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, r := range rows {
		fmt.Fprintf(w, "%-10s %-10s %-10s %s\n", r.id, r.status, r.startedAt.Format(time.TimeOnly), r.detail)
	}
}

func printTimes(w io.Writer, startedAt time.Time, completedAt *time.Time) {
	fmt.Fprintf(w, "  Started: %s\n", startedAt.Format(time.RFC3339))
	if completedAt != nil {
		fmt.Fprintf(w, "  Completed: %s\n", completedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "  Duration: %s\n", completedAt.Sub(startedAt).Round(time.Millisecond))
	}
}

func printErrors(w io.Writer, errs []string) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n  Errors (%d):\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "    - %s\n", e)
	}
}

func printGenerateJob(w io.Writer, job *client.GenerateJob) {
	fmt.Fprintf(w, "Generate job: %s\n", job.ID)
	fmt.Fprintf(w, "  Model: %s\n", job.ModelID)
	fmt.Fprintf(w, "  Status: %s\n", job.Status)
	printTimes(w, job.StartedAt, job.CompletedAt)
	if job.Output != "" {
		fmt.Fprintf(w, "\nOutput:\n%s\n", job.Output)
	}
	printErrors(w, job.Errors)
}

func printTrainingJob(w io.Writer, job *client.TrainingJob) {
	fmt.Fprintf(w, "Training job: %s\n", job.ID)
	fmt.Fprintf(w, "  Model: %s\n", job.ModelID)
	fmt.Fprintf(w, "  Status: %s\n", job.Status)
	printTimes(w, job.StartedAt, job.CompletedAt)
	if metrics := formatMetrics(job.Metrics); metrics != "" {
		fmt.Fprintf(w, "  Metrics: %s\n", metrics)
	}
	printErrors(w, job.Errors)
}
