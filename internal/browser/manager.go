// Package browser drives a Chrome tab through Rod and exposes it as the
// capture host: viewport screenshots, scrolling and inline style access
// for fixed-element suppression.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string `yaml:"remote_url"`

	// Headful shows the browser window when launching locally.
	Headful bool `yaml:"headful"`

	// Stealth applies go-rod/stealth evasions to new tabs.
	Stealth bool `yaml:"stealth"`

	// Viewport size in logical pixels and the emulated device pixel ratio.
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	DeviceScaleFactor float64 `yaml:"device_scale_factor"`

	// NavigationTimeout bounds page load. Default: 30s.
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
}

// Defaults fills in unset values.
func (c *Config) Defaults() {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 800
	}
	if c.DeviceScaleFactor <= 0 {
		c.DeviceScaleFactor = 1
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
}

// Manager owns one Chrome connection.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.Defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome, or connects to the remote instance.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		slog.Info("Connecting to remote browser", "url", wsURL)
	} else {
		l := launcher.New().Headless(!m.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		wsURL = u
		m.lnch = l
		slog.Info("Launched local browser", "url", wsURL, "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		m.cleanup()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	m.browser = b
	return nil
}

// Open creates a tab sized to the configured viewport and navigates it.
func (m *Manager) Open(ctx context.Context, pageURL string) (*Tab, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	var page *rod.Page
	var err error
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create tab: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.Width,
		Height:            m.cfg.Height,
		DeviceScaleFactor: m.cfg.DeviceScaleFactor,
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigationTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		slog.Warn("Page load did not finish", "url", pageURL, "err", err)
	}

	slog.Debug("Opened tab", "url", pageURL, "width", m.cfg.Width, "height", m.cfg.Height, "dpr", m.cfg.DeviceScaleFactor)
	return &Tab{page: page, url: pageURL}, nil
}

// Close shuts Chrome down.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			slog.Warn("Failed to close browser", "err", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
