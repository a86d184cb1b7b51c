// Package cli provides the command-line interface for the fun-with-ml server.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jocr1627/fun-with-ml-server/internal/client"
	"github.com/jocr1627/fun-with-ml-server/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string

	gqlClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fwml",
	Short: "Train and query text-generation models",
	Long: `fwml talks to a fun-with-ml server over GraphQL.

Create models, train them on web pages, and generate text from them.
The server address is taken from --server, FWML_SERVER_URL, or
defaults to http://localhost:4000/query.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		endpoint := serverURL
		if endpoint == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			endpoint = cfg.ServerURL
		}
		gqlClient = client.New(endpoint)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "GraphQL endpoint of the server")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatText, "output format: text, json or yaml")

	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)
}

