// Package manifest records the segment plan of captures so stitched
// output can be checked after the fact. Manifests are Parquet files, with
// JSONL accepted for hand-written fixtures.
package manifest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/lehigh-university-libraries/pagesnap/internal/capture"
)

// Row is one captured segment. Single-view captures produce one row.
type Row struct {
	CaptureID    string  `parquet:"capture_id" json:"capture_id"`
	URL          string  `parquet:"url" json:"url"`
	Mode         string  `parquet:"mode" json:"mode"`
	Segment      int32   `parquet:"segment" json:"segment"`
	ScrollY      float64 `parquet:"scroll_y" json:"scroll_y"`
	CropY        float64 `parquet:"crop_y" json:"crop_y"`
	CropHeight   float64 `parquet:"crop_height" json:"crop_height"`
	OffsetY      float64 `parquet:"offset_y" json:"offset_y"`
	SelectionX   float64 `parquet:"selection_x" json:"selection_x"`
	SelectionY   float64 `parquet:"selection_y" json:"selection_y"`
	Width        float64 `parquet:"width" json:"width"`
	Height       float64 `parquet:"height" json:"height"`
	WindowHeight float64 `parquet:"window_height" json:"window_height"`
	DPR          float64 `parquet:"dpr" json:"dpr"`
	ImageBytes   int64   `parquet:"image_bytes" json:"image_bytes"`
	Hidden       int32   `parquet:"hidden" json:"hidden"`
	Retries      int32   `parquet:"retries" json:"retries"`
	CapturedAtMs int64   `parquet:"captured_at_ms" json:"captured_at_ms"`
	DurationMs   int64   `parquet:"duration_ms" json:"duration_ms"`
}

// Rows flattens a capture result.
func Rows(captureID, url string, res *capture.Result) []Row {
	sel := res.Selection
	base := Row{
		CaptureID:    captureID,
		URL:          url,
		Mode:         string(res.Mode),
		SelectionX:   sel.X,
		SelectionY:   sel.Y,
		Width:        sel.Width,
		Height:       sel.Height,
		WindowHeight: sel.WindowHeight,
		DPR:          sel.DevicePixelRatio,
		Hidden:       int32(res.Hidden),
		Retries:      int32(res.Retries),
		DurationMs:   res.Duration.Milliseconds(),
	}

	if res.Mode == capture.ModeSingle {
		row := base
		row.ScrollY = sel.ScrollY
		row.CropY = res.Crop.Y
		row.CropHeight = res.Crop.Height
		row.ImageBytes = int64(len(res.Image))
		return []Row{row}
	}

	rows := make([]Row, 0, len(res.Segments))
	for i, seg := range res.Segments {
		row := base
		row.Segment = int32(i)
		row.ScrollY = seg.ScrollY
		row.CropY = seg.CropOffsetY
		row.CropHeight = seg.CropHeight
		row.OffsetY = seg.DestOffsetY
		row.ImageBytes = int64(len(seg.Image))
		if !seg.CapturedAt.IsZero() {
			row.CapturedAtMs = seg.CapturedAt.UnixMilli()
		}
		rows = append(rows, row)
	}
	return rows
}

// Write stores rows at path as Parquet.
func Write(path string, rows []Row) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create manifest directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[Row](file)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write manifest rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close manifest writer: %w", err)
	}

	slog.Debug("Wrote manifest", "path", path, "rows", len(rows))
	return file.Close()
}

// Load reads a manifest (Parquet or JSONL, chosen by extension).
func Load(path string) ([]Row, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".parquet":
		return loadParquet(path)
	case ".jsonl", ".json":
		return loadJSONL(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", ext)
	}
}

func loadParquet(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	slog.Debug("Parquet manifest opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var records []Row
	rows := make([]Row, 128)
	for {
		n, err := reader.Read(rows)
		records = append(records, rows[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest rows: %w", err)
		}
	}
	if int64(len(records)) != pf.NumRows() {
		return nil, fmt.Errorf("manifest is incomplete: read %d of %d rows", len(records), pf.NumRows())
	}
	return records, nil
}

func loadJSONL(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest file: %w", err)
	}
	defer file.Close()

	var records []Row
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			slog.Warn("Failed to parse manifest line", "line", lineNum, "err", err)
			continue
		}
		records = append(records, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	return records, nil
}

// Summary describes one capture in a manifest.
type Summary struct {
	CaptureID string
	URL       string
	Mode      string
	Segments  int
	// Covered is the sum of crop heights, which equals Height for a
	// complete capture.
	Covered  float64
	Height   float64
	Retries  int
	Duration int64
	// Gaps lists segments whose offset does not continue the previous one.
	Gaps []int
}

// Complete reports whether the segments tile the selection exactly.
func (s Summary) Complete() bool {
	return s.Covered == s.Height && len(s.Gaps) == 0
}

// Summarize groups rows by capture, in first-seen order.
func Summarize(rows []Row) []Summary {
	index := make(map[string]int)
	var out []Summary
	byCapture := make(map[string][]Row)
	for _, r := range rows {
		if _, ok := index[r.CaptureID]; !ok {
			index[r.CaptureID] = len(out)
			out = append(out, Summary{CaptureID: r.CaptureID, URL: r.URL, Mode: r.Mode, Height: r.Height, Retries: int(r.Retries), Duration: r.DurationMs})
		}
		byCapture[r.CaptureID] = append(byCapture[r.CaptureID], r)
	}

	for i := range out {
		segs := byCapture[out[i].CaptureID]
		sort.Slice(segs, func(a, b int) bool { return segs[a].Segment < segs[b].Segment })
		next := 0.0
		for _, r := range segs {
			if r.OffsetY != next {
				out[i].Gaps = append(out[i].Gaps, int(r.Segment))
			}
			out[i].Covered += r.CropHeight
			next = r.OffsetY + r.CropHeight
		}
		out[i].Segments = len(segs)
	}
	return out
}
