package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/pagesnap/internal/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "pagesnap",
		Short: "Region screenshots of web pages, stitched and annotated",
		Long: `Pagesnap captures a rectangular region of a web page as a single PNG,
scrolling and stitching when the region is taller than the viewport.

Captures can be annotated with mosaic redaction, freehand pen strokes,
rectangles and arrows before they are written.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			logLevel := slog.LevelInfo
			if opts.verbose {
				logLevel = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
			slog.SetDefault(logger)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newShotCmd(opts))
	cmd.AddCommand(newManifestCmd())

	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv("PAGESNAP_CONFIG")
	}
	return config.Load(path)
}
