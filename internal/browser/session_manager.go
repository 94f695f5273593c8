// Package browser drives Chrome through rod to read fact sheets from the
// eHRMS portal.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"factsheet/internal/config"
	"factsheet/internal/logging"
)

// Config holds browser configuration.
type Config struct {
	Bin               string
	DebuggerURL       string
	Headless          bool
	Flags             []string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		Flags:             []string{"no-sandbox", "disable-dev-shm-usage", "disable-gpu"},
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 30 * time.Second,
	}
}

// ConfigFrom converts the file configuration.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Bin:               c.Browser.Bin,
		DebuggerURL:       c.Browser.DebuggerURL,
		Headless:          c.Browser.Headless,
		Flags:             append([]string(nil), c.Browser.Flags...),
		ViewportWidth:     c.Browser.ViewportWidth,
		ViewportHeight:    c.Browser.ViewportHeight,
		NavigationTimeout: c.GetNavigationTimeout(),
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}

// GetNavigationTimeout returns the navigation timeout.
func (c Config) GetNavigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// SessionManager owns one Chrome instance and hands out isolated pages.
type SessionManager struct {
	cfg        Config
	logger     *zap.Logger
	mu         sync.RWMutex
	browser    *rod.Browser
	launcher   *launcher.Launcher
	controlURL string
}

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg Config, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		cfg:    cfg,
		logger: logging.For(logger, logging.CategoryBrowser),
	}
}

// Start connects to an existing Chrome or launches a new one.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.logger.Warn("stale browser connection detected, reconnecting")
		m.closeLocked()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" {
		l := m.newLauncher()
		url, err := l.Launch()
		if err != nil {
			l.Kill()
			return fmt.Errorf("launch chrome: %w", err)
		}
		m.launcher = l
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if m.launcher != nil {
			m.launcher.Kill()
			m.launcher = nil
		}
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	m.logger.Info("browser connected",
		zap.String("control_url", controlURL),
		zap.Bool("headless", m.cfg.Headless),
		zap.Bool("launched", m.launcher != nil))
	return nil
}

func (m *SessionManager) newLauncher() *launcher.Launcher {
	l := launcher.New().Headless(m.cfg.Headless)
	if m.cfg.Bin != "" {
		l = l.Bin(m.cfg.Bin)
	}
	for _, raw := range m.cfg.Flags {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if name == "" {
			continue
		}
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l.Set(flags.Flag("window-size"),
		fmt.Sprintf("%d,%d", m.cfg.GetViewportWidth(), m.cfg.GetViewportHeight()))
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// ControlURL returns the WebSocket debugger URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes the browser and kills a launched process.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *SessionManager) closeLocked() error {
	var err error
	if m.browser != nil {
		// A browser we only attached to stays up for its owner.
		if m.launcher != nil {
			err = m.browser.Close()
		}
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher = nil
	}
	m.controlURL = ""
	return err
}

// NewPage opens a blank page in a fresh incognito context so concurrent
// scrapes share no cookies or storage. The returned func disposes the
// context.
func (m *SessionManager) NewPage(ctx context.Context) (*rod.Page, func(), error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, nil, err
	}

	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()
	if browser == nil {
		return nil, nil, errors.New("browser not connected")
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		m.logger.Debug("failed to set viewport", zap.Error(err))
	}

	cleanup := func() {
		_ = page.Close()
		if err := incognito.Close(); err != nil {
			m.logger.Debug("failed to dispose incognito context", zap.Error(err))
		}
	}
	return page.Context(ctx), cleanup, nil
}
