package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/pagesnap/internal/manifest"
)

func newManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Work with capture manifests",
	}
	cmd.AddCommand(newManifestInspectCmd())
	return cmd
}

func newManifestInspectCmd() *cobra.Command {
	var showSegments bool

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Summarize the captures recorded in a manifest",
		Long: `Reads a parquet or jsonl manifest written by "pagesnap shot --manifest"
and prints one summary per capture.

A capture is complete when its segments tile the selection with no gaps
or overlaps.`,
		Example: `  # Summaries only
  pagesnap manifest inspect captures.parquet

  # Include every segment row
  pagesnap manifest inspect captures.jsonl --segments`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := manifest.Load(args[0])
			if err != nil {
				return fmt.Errorf("failed to load manifest: %w", err)
			}
			return printManifest(cmd.OutOrStdout(), args[0], rows, showSegments)
		},
	}

	cmd.Flags().BoolVarP(&showSegments, "segments", "s", false, "Show every segment row")

	return cmd
}

func printManifest(w io.Writer, path string, rows []manifest.Row, showSegments bool) error {
	summaries := manifest.Summarize(rows)
	fmt.Fprintf(w, "Loaded %d rows (%d captures) from %s\n", len(rows), len(summaries), path)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	incomplete := 0
	for i, s := range summaries {
		fmt.Fprintf(w, "CAPTURE %d/%d\n", i+1, len(summaries))
		fmt.Fprintln(w, strings.Repeat("-", 80))
		fmt.Fprintf(w, "ID:        %s\n", s.CaptureID)
		fmt.Fprintf(w, "URL:       %s\n", s.URL)
		fmt.Fprintf(w, "Mode:      %s\n", s.Mode)
		fmt.Fprintf(w, "Segments:  %d\n", s.Segments)
		fmt.Fprintf(w, "Covered:   %.0f / %.0f px\n", s.Covered, s.Height)
		fmt.Fprintf(w, "Retries:   %d\n", s.Retries)
		fmt.Fprintf(w, "Duration:  %d ms\n", s.Duration)
		if s.Complete() {
			fmt.Fprintln(w, "Status:    complete")
		} else {
			incomplete++
			fmt.Fprintf(w, "Status:    INCOMPLETE (gaps at segments %v)\n", s.Gaps)
		}

		if showSegments {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "  %-4s %8s %8s %8s %8s\n", "SEG", "SCROLL_Y", "CROP_Y", "HEIGHT", "OFFSET")
			for _, r := range rows {
				if r.CaptureID != s.CaptureID {
					continue
				}
				fmt.Fprintf(w, "  %-4d %8.0f %8.0f %8.0f %8.0f\n", r.Segment, r.ScrollY, r.CropY, r.CropHeight, r.OffsetY)
			}
		}
		fmt.Fprintln(w)
	}

	if incomplete > 0 {
		return fmt.Errorf("%d of %d captures are incomplete", incomplete, len(summaries))
	}
	return nil
}
