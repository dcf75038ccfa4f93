package annotation

import (
	"fmt"
	"image/color"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
)

// Gesture is one scripted pointer gesture. Color and LineWidth, when set,
// change the style from this gesture on.
type Gesture struct {
	Tool      Kind             `yaml:"tool"`
	Color     *color.RGBA      `yaml:"-"`
	LineWidth float64          `yaml:"line_width,omitempty"`
	Points    []geometry.Point `yaml:"points"`
}

// Script is a sequence of gestures and undos replayed onto a Session, for
// annotating non-interactive captures.
type Script struct {
	Steps []Step `yaml:"steps"`
}

// Step is either a gesture or an undo.
type Step struct {
	Gesture `yaml:",inline"`
	// Undo reverts the most recent annotation instead of drawing.
	Undo bool `yaml:"undo,omitempty"`
	// ColorHex is parsed into Gesture.Color.
	ColorHex string `yaml:"color,omitempty"`
}

// ColorParser turns a color string into RGBA.
type ColorParser func(string) (color.RGBA, error)

// LoadScript reads a YAML script.
func LoadScript(path string, parse ColorParser) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotation script: %w", err)
	}
	return ParseScript(data, parse)
}

// ParseScript decodes and checks a YAML script.
func ParseScript(data []byte, parse ColorParser) (*Script, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("failed to parse annotation script: %w", err)
	}
	for i := range script.Steps {
		step := &script.Steps[i]
		if step.Undo {
			continue
		}
		if _, err := ParseKind(string(step.Tool)); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if len(step.Points) == 0 {
			return nil, fmt.Errorf("step %d: no points", i+1)
		}
		if step.ColorHex != "" {
			col, err := parse(step.ColorHex)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			step.Color = &col
		}
	}
	return &script, nil
}

// Apply replays the script. It returns how many gestures were committed.
func (sc *Script) Apply(s *Session) (int, error) {
	committed := 0
	for i, step := range sc.Steps {
		if step.Undo {
			s.Undo()
			continue
		}
		style := Style{LineWidth: step.LineWidth}
		if step.Color != nil {
			style.Color = *step.Color
		}
		s.SetStyle(style)
		if err := s.Activate(step.Tool); err != nil {
			return committed, fmt.Errorf("step %d: %w", i+1, err)
		}
		ok, err := s.Draw(step.Points...)
		if err != nil {
			return committed, fmt.Errorf("step %d: %w", i+1, err)
		}
		if ok {
			committed++
		}
	}
	s.Deactivate()
	return committed, nil
}
