package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/pagesnap/internal/agent"
	"github.com/lehigh-university-libraries/pagesnap/internal/annotation"
	"github.com/lehigh-university-libraries/pagesnap/internal/browser"
	"github.com/lehigh-university-libraries/pagesnap/internal/config"
	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
	"github.com/lehigh-university-libraries/pagesnap/internal/manifest"
	"github.com/lehigh-university-libraries/pagesnap/internal/storage"
)

type shotOptions struct {
	url          string
	region       geometry.Rect
	annotations  string
	output       string
	outputDir    string
	manifestPath string
	agentURL     string
}

func newShotCmd(root *rootOptions) *cobra.Command {
	opts := &shotOptions{}

	cmd := &cobra.Command{
		Use:   "shot",
		Short: "Capture a region of a page without the API",
		Long: `Opens a page, captures a region in page coordinates and writes the PNG.

A width or height of 0 extends the region to the edge of the page, so the
defaults capture the full page. Regions taller than the viewport are
captured in scrolled segments and stitched.

An annotation script (YAML) can draw onto the capture before it is saved:

  steps:
    - tool: mosaic
      points: [{x: 10, y: 10}, {x: 200, y: 40}]
    - tool: arrow
      color: "#0066ff"
      line_width: 4
      points: [{x: 300, y: 300}, {x: 220, y: 60}]
    - undo: true`,
		Example: `  # Full page into ./screenshots
  pagesnap shot --url https://example.com

  # A 600x2000 region with annotations, plus a capture manifest
  pagesnap shot --url https://example.com --y 400 --width 600 --height 2000 \
    --annotations notes.yaml --output region.png --manifest captures.parquet

  # Hand post-processing to an agent running "pagesnap serve"
  pagesnap shot --url https://example.com --agent-url http://localhost:8888/api/agent`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return runShot(cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.url, "url", "u", "", "Page to capture (required)")
	cmd.Flags().Float64Var(&opts.region.X, "x", 0, "Region left edge in CSS pixels")
	cmd.Flags().Float64Var(&opts.region.Y, "y", 0, "Region top edge in CSS pixels")
	cmd.Flags().Float64Var(&opts.region.Width, "width", 0, "Region width; 0 extends to the page edge")
	cmd.Flags().Float64Var(&opts.region.Height, "height", 0, "Region height; 0 extends to the page bottom")
	cmd.Flags().StringVarP(&opts.annotations, "annotations", "A", "", "YAML annotation script")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output PNG path (default: timestamped file in the output directory)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Output directory (default from config)")
	cmd.Flags().StringVarP(&opts.manifestPath, "manifest", "m", "", "Write a Parquet capture manifest to this path")
	cmd.Flags().StringVar(&opts.agentURL, "agent-url", "", "Post-process through a remote agent endpoint instead of locally")

	cmd.MarkFlagRequired("url")

	return cmd
}

func runShot(cmd *cobra.Command, cfg *config.Config, opts *shotOptions) error {
	ctx := cmd.Context()

	var script *annotation.Script
	if opts.annotations != "" {
		var err error
		script, err = annotation.LoadScript(opts.annotations, config.ParseColor)
		if err != nil {
			return err
		}
	}

	mgr := browser.NewManager(cfg.Browser)
	if err := mgr.Start(); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer mgr.Close()

	tab, err := mgr.Open(ctx, opts.url)
	if err != nil {
		return err
	}
	defer tab.Close()

	sel, err := tab.Selection(ctx, opts.region)
	if err != nil {
		return err
	}
	if err := sel.Validate(); err != nil {
		return fmt.Errorf("invalid region: %w", err)
	}

	msg := agent.Message{Action: agent.ActionCapture, Selection: &sel}
	if script != nil {
		ann := annotation.NewSession(sel.LogicalSize(), cfg.AnnotationOptions())
		defer ann.Close()
		committed, err := script.Apply(ann)
		if err != nil {
			return err
		}
		snaps, err := ann.Snapshots()
		if err != nil {
			return err
		}
		msg.Overlays = agent.EncodeOverlays(snaps)
		slog.Info("Applied annotations", "committed", committed, "layers", len(snaps))
	}

	var peer agent.Peer
	if opts.agentURL != "" {
		peer = agent.NewHTTPPeer(opts.agentURL)
	} else {
		var output agent.Output = agent.DirOutput{Dir: cfg.OutputDir}
		if opts.outputDir != "" {
			output = agent.DirOutput{Dir: opts.outputDir}
		}
		if opts.output != "" {
			output = agent.FileOutput{Path: opts.output}
		}
		peer = agent.Local{Agent: agent.New(output)}
	}

	start := time.Now()
	slog.Info("Capturing", "url", opts.url, "selection", sel.Bounds(), "dpr", sel.DevicePixelRatio)
	outcome, err := agent.NewOrchestrator(cfg.NewScheduler(tab, tab), peer).Handle(ctx, msg)
	if err != nil {
		return err
	}
	slog.Info("Screenshot saved",
		"file", outcome.File,
		"mode", outcome.Result.Mode,
		"segments", len(outcome.Result.Segments),
		"retries", outcome.Result.Retries,
		"elapsed", time.Since(start))

	if opts.manifestPath != "" {
		rows := manifest.Rows(storage.NewID(), opts.url, outcome.Result)
		if err := manifest.Write(opts.manifestPath, rows); err != nil {
			return err
		}
		slog.Info("Manifest written", "path", opts.manifestPath, "rows", len(rows))
	}

	fmt.Fprintln(cmd.OutOrStdout(), outcome.File)
	return nil
}
