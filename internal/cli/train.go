package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jocr1627/fun-with-ml-server/internal/client"
)

var (
	trainEpochs    int
	trainSelectors []string
	trainForce     bool
	trainDetach    bool
)

var trainCmd = &cobra.Command{
	Use:   "train <model-id> <url>",
	Short: "Train a model on the text of a web page",
	Long: `Train a model on the text of a web page and follow the progress.

A url the model was already trained on is rejected unless --force is given.

Examples:
  fwml train 0 https://www.gutenberg.org/files/100/100-0.txt
  fwml train 0 https://example.com/blog --selector article --selector p
  fwml train 0 https://example.com/blog --epochs 5 --force`,
	Args: cobra.ExactArgs(2),
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().IntVarP(&trainEpochs, "epochs", "e", 1, "number of training epochs")
	trainCmd.Flags().StringSliceVar(&trainSelectors, "selector", nil, "CSS selectors restricting the scraped text")
	trainCmd.Flags().BoolVarP(&trainForce, "force", "f", false, "retrain on a url the model already ingested")
	trainCmd.Flags().BoolVarP(&trainDetach, "detach", "d", false, "start the job and return immediately")
}

func runTrain(cmd *cobra.Command, args []string) error {
	id, url := args[0], args[1]
	out := cmd.OutOrStdout()

	job, err := gqlClient.TrainModel(cmd.Context(), client.TrainModelInput{
		ID:        id,
		URL:       url,
		Epochs:    trainEpochs,
		Selectors: trainSelectors,
		Force:     trainForce,
	})
	switch {
	case client.HasCode(err, "ALREADY_INGESTED"):
		return fmt.Errorf("model %s was already trained on %s (use --force to retrain)", id, url)
	case client.HasCode(err, "JOB_IN_PROGRESS"):
		return fmt.Errorf("model %s is already training; use 'fwml jobs train %s' to follow it", id, id)
	case err != nil:
		return fmt.Errorf("train model: %w", err)
	case job == nil:
		return fmt.Errorf("model not found: %s", id)
	}

	if trainDetach {
		fmt.Fprintf(out, "Started training job %s\nUse 'fwml jobs train %s' to check status.\n", job.ID, job.ID)
		return nil
	}

	if !isTerminal(out) {
		return followTraining(cmd.Context(), out, job)
	}
	return RunTrainingProgress(gqlClient, job, trainEpochs)
}

// followTraining polls the job and prints a line whenever it changes.
// Used instead of the progress view when output is not a terminal.
func followTraining(ctx context.Context, w io.Writer, job *client.TrainingJob) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := ""
	for {
		line := fmt.Sprintf("[%s] %s", job.Status, formatMetrics(job.Metrics))
		if line != last {
			fmt.Fprintln(w, strings.TrimSpace(line))
			last = line
		}

		switch job.Status {
		case client.StatusDone:
			return nil
		case client.StatusError:
			return fmt.Errorf("training failed: %w", jobError(job.Errors))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		latest, err := gqlClient.GetTrainingJob(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("get training job: %w", err)
		}
		if latest == nil {
			return fmt.Errorf("job %s is no longer tracked", job.ID)
		}
		job = latest
	}
}
