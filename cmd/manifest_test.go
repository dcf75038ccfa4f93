package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/pagesnap/internal/manifest"
)

func TestPrintManifest(t *testing.T) {
	rows := []manifest.Row{
		{CaptureID: "a", URL: "https://example.com", Mode: "segmented", Segment: 0, CropHeight: 100, OffsetY: 0, Height: 180},
		{CaptureID: "a", URL: "https://example.com", Mode: "segmented", Segment: 1, CropY: 20, CropHeight: 80, OffsetY: 100, Height: 180},
	}

	var buf bytes.Buffer
	if err := printManifest(&buf, "m.parquet", rows, true); err != nil {
		t.Fatalf("printManifest() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"2 rows (1 captures)", "Status:    complete", "Covered:   180 / 180 px", "SCROLL_Y"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintManifestIncomplete(t *testing.T) {
	rows := []manifest.Row{
		{CaptureID: "a", Mode: "segmented", Segment: 0, CropHeight: 100, Height: 250},
		{CaptureID: "a", Mode: "segmented", Segment: 1, CropHeight: 100, OffsetY: 150, Height: 250},
	}

	var buf bytes.Buffer
	err := printManifest(&buf, "m.jsonl", rows, false)
	if err == nil {
		t.Fatal("expected error for incomplete capture")
	}
	if !strings.Contains(buf.String(), "INCOMPLETE (gaps at segments [1])") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "shot", "manifest"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("missing %s command", name)
		}
	}
}
