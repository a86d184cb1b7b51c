package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jocr1627/fun-with-ml-server/internal/client"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage models",
	Long: `Create, inspect, rename and delete models.

Examples:
  fwml models list
  fwml models create shakespeare
  fwml models show 0
  fwml models rename 0 bard
  fwml models delete 0`,
	RunE: runModelsList,
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all models",
	Args:  cobra.NoArgs,
	RunE:  runModelsList,
}

var modelsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsCreate,
}

var modelsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a model and the sources it was trained on",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsShow,
}

var modelsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a model",
	Args:  cobra.ExactArgs(2),
	RunE:  runModelsRename,
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a model",
	Long: `Delete a model. The worker must acknowledge the deletion first;
if it does not, the model is kept and an error is reported.`,
	Args: cobra.ExactArgs(1),
	RunE: runModelsDelete,
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsCreateCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsRenameCmd)
	modelsCmd.AddCommand(modelsDeleteCmd)
}

func runModelsList(cmd *cobra.Command, args []string) error {
	ms, err := gqlClient.ListModels(cmd.Context())
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return render(cmd.OutOrStdout(), ms, func(w io.Writer) { printModelTable(w, ms) })
}

func runModelsCreate(cmd *cobra.Command, args []string) error {
	m, err := gqlClient.CreateModel(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("create model: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created model %s (%s)\n", m.ID, m.Name)
	return nil
}

func runModelsShow(cmd *cobra.Command, args []string) error {
	m, err := gqlClient.GetModel(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get model: %w", err)
	}
	if m == nil {
		return fmt.Errorf("model not found: %s", args[0])
	}
	return render(cmd.OutOrStdout(), m, func(w io.Writer) { printModel(w, m) })
}

func runModelsRename(cmd *cobra.Command, args []string) error {
	m, err := gqlClient.UpdateModel(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("rename model: %w", err)
	}
	if m == nil {
		return fmt.Errorf("model not found: %s", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed model %s to %s\n", m.ID, m.Name)
	return nil
}

func runModelsDelete(cmd *cobra.Command, args []string) error {
	m, err := gqlClient.DeleteModel(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	if m == nil {
		return fmt.Errorf("model not found: %s", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted model %s (%s)\n", m.ID, m.Name)
	return nil
}

func printModelTable(w io.Writer, ms []client.Model) {
	if len(ms) == 0 {
		fmt.Fprintln(w, "No models found")
		return
	}

	fmt.Fprintf(w, "%-10s %-24s %-8s %s\n", "ID", "NAME", "SOURCES", "CREATED")
	fmt.Fprintln(w, strings.Repeat("-", 64))
	for _, m := range ms {
		fmt.Fprintf(w, "%-10s %-24s %-8d %s\n", m.ID, m.Name, len(m.Sources), m.CreatedAt.Format(time.DateTime))
	}
}

func printModel(w io.Writer, m *client.Model) {
	fmt.Fprintf(w, "Model: %s\n", m.ID)
	fmt.Fprintf(w, "  Name: %s\n", m.Name)
	fmt.Fprintf(w, "  Created: %s\n", m.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Updated: %s\n", m.UpdatedAt.Format(time.RFC3339))
	if len(m.Sources) == 0 {
		fmt.Fprintln(w, "  Sources: none")
		return
	}
	fmt.Fprintf(w, "  Sources (%d):\n", len(m.Sources))
	for _, src := range m.Sources {
		fmt.Fprintf(w, "    - %s\n", src)
	}
}
