package annotation

import (
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseRedOnly(s string) (color.RGBA, error) {
	if s == "red" {
		return color.RGBA{R: 255, A: 255}, nil
	}
	return color.RGBA{}, fmt.Errorf("unknown color %q", s)
}

const script = `
steps:
  - tool: pen
    color: red
    line_width: 5
    points: [{x: 10, y: 10}, {x: 90, y: 10}]
  - tool: rect
    points: [{x: 10, y: 20}, {x: 60, y: 70}]
  - tool: arrow
    points: [{x: 0, y: 0}, {x: 4, y: 0}]
  - undo: true
`

func TestScriptApply(t *testing.T) {
	sc, err := ParseScript([]byte(script), parseRedOnly)
	require.NoError(t, err)
	require.Len(t, sc.Steps, 4)
	require.NotNil(t, sc.Steps[0].Color)

	s := NewSession(image.Pt(100, 100), Options{Seed: 1})
	committed, err := sc.Apply(s)
	require.NoError(t, err)

	assert.Equal(t, 2, committed)
	assert.Equal(t, 2, s.Layer(KindPen).HistoryLen())
	// The undo removed the rectangle, the short arrow never registered.
	assert.Equal(t, 1, s.Layer(KindRect).HistoryLen())
	assert.Equal(t, 1, s.Layer(KindArrow).HistoryLen())
	assert.Equal(t, Kind(""), s.ActiveTool())
	assert.Equal(t, 5.0, s.Style().LineWidth)
}

func TestParseScriptErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown tool", "steps:\n  - tool: blur\n    points: [{x: 1, y: 1}]\n"},
		{"no points", "steps:\n  - tool: pen\n"},
		{"bad color", "steps:\n  - tool: pen\n    color: teal\n    points: [{x: 1, y: 1}]\n"},
		{"bad yaml", "steps: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScript([]byte(tt.src), parseRedOnly)
			assert.Error(t, err)
		})
	}
}
