// Package config loads pagesnap settings from an optional YAML file and
// PAGESNAP_* environment overrides.
package config

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/pagesnap/internal/annotation"
	"github.com/lehigh-university-libraries/pagesnap/internal/browser"
	"github.com/lehigh-university-libraries/pagesnap/internal/capture"
)

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Capture    CaptureConfig    `yaml:"capture"`
	Browser    browser.Config   `yaml:"browser"`
	Annotation AnnotationConfig `yaml:"annotation"`
	// OutputDir receives finished screenshots.
	OutputDir string `yaml:"output_dir"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// CaptureConfig mirrors capture.Config plus the host rate ceiling.
type CaptureConfig struct {
	SettleDelay         time.Duration `yaml:"settle_delay"`
	CaptureInterval     time.Duration `yaml:"capture_interval"`
	RateLimitCooldown   time.Duration `yaml:"rate_limit_cooldown"`
	MaxRateLimitRetries int           `yaml:"max_rate_limit_retries"`
	SuppressSettle      time.Duration `yaml:"suppress_settle"`
	// CapturesPerSecond is the viewport snapshot ceiling. Zero disables it.
	CapturesPerSecond float64 `yaml:"captures_per_second"`
	// SuppressFixed hides fixed and stuck elements during segmented capture.
	SuppressFixed bool `yaml:"suppress_fixed"`
}

type AnnotationConfig struct {
	Color         string         `yaml:"color"`
	LineWidth     float64        `yaml:"line_width"`
	HistoryLimits map[string]int `yaml:"history_limits"`
}

// Default returns the built-in configuration.
func Default() *Config {
	sc := capture.DefaultConfig()
	cfg := &Config{
		Server: ServerConfig{Addr: ":8888"},
		Capture: CaptureConfig{
			SettleDelay:         sc.SettleDelay,
			CaptureInterval:     sc.CaptureInterval,
			RateLimitCooldown:   sc.RateLimitCooldown,
			MaxRateLimitRetries: sc.MaxRateLimitRetries,
			SuppressSettle:      sc.SuppressSettle,
			CapturesPerSecond:   2,
			SuppressFixed:       true,
		},
		Browser: browser.Config{Stealth: true},
		Annotation: AnnotationConfig{
			Color:     "#ff0000",
			LineWidth: annotation.DefaultStyle.LineWidth,
		},
		OutputDir: "screenshots",
	}
	cfg.Browser.Defaults()
	return cfg
}

// Load builds the configuration: defaults, then the YAML file at path if
// path is not empty, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.Browser.Defaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []string
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	float := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	str("PAGESNAP_ADDR", &c.Server.Addr)
	str("PAGESNAP_OUTPUT_DIR", &c.OutputDir)
	str("PAGESNAP_BROWSER_URL", &c.Browser.RemoteURL)
	boolean("PAGESNAP_HEADFUL", &c.Browser.Headful)
	boolean("PAGESNAP_STEALTH", &c.Browser.Stealth)
	integer("PAGESNAP_VIEWPORT_WIDTH", &c.Browser.Width)
	integer("PAGESNAP_VIEWPORT_HEIGHT", &c.Browser.Height)
	float("PAGESNAP_DPR", &c.Browser.DeviceScaleFactor)
	duration("PAGESNAP_SETTLE_DELAY", &c.Capture.SettleDelay)
	duration("PAGESNAP_CAPTURE_INTERVAL", &c.Capture.CaptureInterval)
	duration("PAGESNAP_RATE_LIMIT_COOLDOWN", &c.Capture.RateLimitCooldown)
	integer("PAGESNAP_MAX_RATE_LIMIT_RETRIES", &c.Capture.MaxRateLimitRetries)
	float("PAGESNAP_CAPTURES_PER_SECOND", &c.Capture.CapturesPerSecond)
	boolean("PAGESNAP_SUPPRESS_FIXED", &c.Capture.SuppressFixed)
	str("PAGESNAP_COLOR", &c.Annotation.Color)
	float("PAGESNAP_LINE_WIDTH", &c.Annotation.LineWidth)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks values that would otherwise fail later.
func (c *Config) Validate() error {
	if _, err := ParseColor(c.Annotation.Color); err != nil {
		return err
	}
	if c.Annotation.LineWidth <= 0 {
		return fmt.Errorf("line width must be positive, got %g", c.Annotation.LineWidth)
	}
	for name, limit := range c.Annotation.HistoryLimits {
		if _, err := annotation.ParseKind(name); err != nil {
			return fmt.Errorf("history_limits: %w", err)
		}
		if limit < 2 {
			return fmt.Errorf("history_limits.%s must be at least 2, got %d", name, limit)
		}
	}
	if c.Capture.CapturesPerSecond < 0 {
		return fmt.Errorf("captures_per_second must not be negative")
	}
	return nil
}

// Scheduler returns the capture scheduler settings.
func (c *Config) Scheduler() capture.Config {
	return capture.Config{
		SettleDelay:         c.Capture.SettleDelay,
		CaptureInterval:     c.Capture.CaptureInterval,
		RateLimitCooldown:   c.Capture.RateLimitCooldown,
		MaxRateLimitRetries: c.Capture.MaxRateLimitRetries,
		SuppressSettle:      c.Capture.SuppressSettle,
	}
}

// NewScheduler builds a scheduler over host, throttled to
// CapturesPerSecond. Fixed-element suppression uses dom only when
// SuppressFixed is set.
func (c *Config) NewScheduler(host capture.Host, dom capture.DOM) *capture.Scheduler {
	if rate := c.Capture.CapturesPerSecond; rate > 0 {
		host = capture.Throttle(host, rate)
	}
	if !c.Capture.SuppressFixed {
		dom = nil
	}
	return capture.NewScheduler(host, dom, c.Scheduler())
}

// AnnotationOptions returns the session options for new selections.
func (c *Config) AnnotationOptions() annotation.Options {
	col, err := ParseColor(c.Annotation.Color)
	if err != nil {
		col = annotation.DefaultStyle.Color
	}
	limits := make(map[annotation.Kind]int, len(c.Annotation.HistoryLimits))
	for name, limit := range c.Annotation.HistoryLimits {
		limits[annotation.Kind(name)] = limit
	}
	return annotation.Options{
		Style:         annotation.Style{Color: col, LineWidth: c.Annotation.LineWidth},
		HistoryLimits: limits,
	}
}

// ParseColor reads #rgb, #rrggbb or #rrggbbaa.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
