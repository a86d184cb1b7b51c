package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jocr1627/fun-with-ml-server/internal/client"
)

var (
	generatePrefix      string
	generateCount       int
	generateMaxLength   int
	generateTemperature float64
	generateDetach      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <model-id>",
	Short: "Generate text from a model",
	Long: `Generate text from a model and stream it as the worker produces it.

Examples:
  fwml generate 0
  fwml generate 0 --prefix "Once upon a time" --max-length 200
  fwml generate 0 --temperature 0.5 --detach`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generatePrefix, "prefix", "p", "", "text the generated output starts with")
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 1, "number of samples")
	generateCmd.Flags().IntVar(&generateMaxLength, "max-length", 100, "maximum length of each sample")
	generateCmd.Flags().Float64VarP(&generateTemperature, "temperature", "t", 1.0, "sampling temperature")
	generateCmd.Flags().BoolVarP(&generateDetach, "detach", "d", false, "start the job and return immediately")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]
	out := cmd.OutOrStdout()

	input := client.GenerateTextInput{
		ID:          id,
		Prefix:      generatePrefix,
		Count:       generateCount,
		MaxLength:   generateMaxLength,
		Temperature: generateTemperature,
	}

	if generateDetach {
		job, err := gqlClient.GenerateText(ctx, input)
		if err != nil {
			return fmt.Errorf("generate text: %w", err)
		}
		if job == nil {
			return fmt.Errorf("model not found: %s", id)
		}
		fmt.Fprintf(out, "Started generate job %s\nUse 'fwml jobs generate %s' to check status.\n", job.ID, job.ID)
		return nil
	}

	// Subscribe before starting the job so no chunk is published unseen.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	updates, watchErr := watchGeneration(watchCtx, id)

	job, err := gqlClient.GenerateText(ctx, input)
	if err != nil {
		return fmt.Errorf("generate text: %w", err)
	}
	if job == nil {
		return fmt.Errorf("model not found: %s", id)
	}

	job, err = streamGeneration(ctx, out, job, updates, watchErr)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)

	if job.Status == client.StatusError {
		return fmt.Errorf("generation failed: %s", strings.Join(job.Errors, "; "))
	}
	return nil
}

// watchGeneration runs the textGenerated subscription in the background.
func watchGeneration(ctx context.Context, id string) (<-chan *client.GenerateJob, <-chan error) {
	updates := make(chan *client.GenerateJob, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- gqlClient.WatchGeneration(ctx, id, func(job *client.GenerateJob) error {
			select {
			case updates <- job:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return updates, errc
}

// streamGeneration prints chunks until the job finishes. Subscription
// updates are complemented by polling, which also covers a subscription
// that was registered after the job already finished.
func streamGeneration(
	ctx context.Context,
	w io.Writer,
	job *client.GenerateJob,
	updates <-chan *client.GenerateJob,
	watchErr <-chan error,
) (*client.GenerateJob, error) {
	printer := &chunkPrinter{w: w}
	printer.update(job)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !job.Finished() {
		select {
		case <-ctx.Done():
			return job, ctx.Err()

		case update := <-updates:
			job = update

		case err := <-watchErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(w, "\n(live updates unavailable: %v; polling)\n", err)
			}
			watchErr = nil

		case <-ticker.C:
			latest, err := gqlClient.GetGenerateJob(ctx, job.ID)
			if err != nil {
				return job, fmt.Errorf("get generate job: %w", err)
			}
			if latest != nil {
				job = latest
			}
		}
		printer.update(job)
	}
	return job, nil
}

// chunkPrinter writes the chunks of successive job snapshots exactly once.
type chunkPrinter struct {
	w       io.Writer
	printed int
}

func (p *chunkPrinter) update(job *client.GenerateJob) {
	if len(job.Text) <= p.printed {
		return
	}
	for _, chunk := range job.Text[p.printed:] {
		fmt.Fprint(p.w, chunk)
	}
	p.printed = len(job.Text)
}
