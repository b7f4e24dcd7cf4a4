package testing

import (
	"context"
	"fmt"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"signflow/internal/browser"
	"signflow/internal/config"
	"signflow/internal/crm"
	"signflow/internal/fixtures"
	"signflow/internal/placement"
	"signflow/internal/setup"
	"signflow/internal/testing/mock"
)

// fakeToken authenticates REST calls against fake environments.
const fakeToken = "signflow-fake-token"

// FakeEnvironmentManager gives every scenario its own in-memory CRM served
// over httptest, so scenarios never share state and can run in parallel.
type FakeEnvironmentManager struct {
	tempDir     string
	keepTempDir bool
	seq         atomic.Uint64
	once        sync.Once
	pdfPath     string
	pdfErr      error
}

// NewFakeEnvironmentManager creates a manager for the fake target. Scratch
// files live under a fresh temporary directory removed by Cleanup.
func NewFakeEnvironmentManager(keepTempDir bool) (*FakeEnvironmentManager, error) {
	dir, err := os.MkdirTemp("", "signflow-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &FakeEnvironmentManager{tempDir: dir, keepTempDir: keepTempDir}, nil
}

// Cleanup removes the scratch directory unless it is kept for debugging.
func (m *FakeEnvironmentManager) Cleanup() error {
	if m.keepTempDir {
		return nil
	}
	return os.RemoveAll(m.tempDir)
}

// referencePDF writes the reference document once for every scenario.
func (m *FakeEnvironmentManager) referencePDF() (string, error) {
	m.once.Do(func() {
		m.pdfPath, m.pdfErr = fixtures.EnsureReferencePDF(filepath.Join(m.tempDir, "reference.pdf"))
	})
	return m.pdfPath, m.pdfErr
}

func (m *FakeEnvironmentManager) CreateEnvironment(ctx context.Context, scenario TestScenario, logger TestLogger) (*Environment, error) {
	n := m.seq.Add(1)
	id := fmt.Sprintf("fake-%d-%s", n, uuid.NewString()[:8])

	coords, err := fixtures.DefaultCoordinates()
	if err != nil {
		return nil, err
	}
	pdf, err := m.referencePDF()
	if err != nil {
		return nil, fmt.Errorf("failed to write reference document: %w", err)
	}
	dir := filepath.Join(m.tempDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create environment directory: %w", err)
	}

	app := mock.NewApp(mock.Options{Token: fakeToken, Seed: n})
	srv := httptest.NewServer(app.Handler())
	opts := app.Options()

	env := &Environment{
		ID:           id,
		Target:       TargetFake,
		Page:         app.NewPage(),
		API:          crm.NewClient(context.Background(), srv.URL, opts.WorkspaceID, fakeToken),
		BaseURL:      opts.BaseURL,
		WorkspaceID:  opts.WorkspaceID,
		Timeouts:     mock.Timeouts(),
		Strategy:     mock.Strategy(),
		Coordinates:  coords,
		DocumentPath: pdf,
		Cache:        setup.NewCache(filepath.Join(dir, "setup-cache.json")),
		SeedContacts: true,
		Fake:         app,
	}
	env.OnClose(func() error {
		srv.Close()
		return nil
	})
	logger.Debug("🏗️  Created fake environment %s for scenario %s (api %s)\n", id, scenario.Name, srv.URL)
	return env, nil
}

func (m *FakeEnvironmentManager) DestroyEnvironment(ctx context.Context, env *Environment, logger TestLogger) error {
	if err := env.Close(); err != nil {
		return fmt.Errorf("failed to close environment %s: %w", env.ID, err)
	}
	if !m.keepTempDir {
		if err := os.RemoveAll(filepath.Join(m.tempDir, env.ID)); err != nil {
			return err
		}
	}
	logger.Debug("✅ Destroyed fake environment %s\n", env.ID)
	return nil
}

// ChromeEnvironmentManager drives a real deployment. Every scenario gets its
// own browser; the setup cache is shared so fixture templates are reused
// across scenarios and runs.
type ChromeEnvironmentManager struct {
	cfg          config.Config
	seedContacts bool
	cache        *setup.Cache
	coords       *fixtures.CoordinateMap
	coordsErr    error
}

// NewChromeEnvironmentManager creates a manager for the chrome target. When
// seedContacts is set, missing signer contacts are created instead of
// skipping the scenario.
func NewChromeEnvironmentManager(cfg config.Config, seedContacts bool) *ChromeEnvironmentManager {
	m := &ChromeEnvironmentManager{cfg: cfg, seedContacts: seedContacts, cache: setup.NewCache(cfg.Fixtures.CachePath)}
	if cfg.Fixtures.CoordinatesPath != "" {
		m.coords, m.coordsErr = fixtures.LoadCoordinates(cfg.Fixtures.CoordinatesPath)
	} else {
		m.coords, m.coordsErr = fixtures.DefaultCoordinates()
	}
	return m
}

func (m *ChromeEnvironmentManager) CreateEnvironment(ctx context.Context, scenario TestScenario, logger TestLogger) (*Environment, error) {
	if !m.cfg.TargetConfigured() {
		return nil, setup.Unavailable("no deployment configured: app.baseURL, app.workspaceID and auth.token are required")
	}
	if m.coordsErr != nil {
		return nil, m.coordsErr
	}
	pdf, err := fixtures.EnsureReferencePDF(m.cfg.Fixtures.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare reference document: %w", err)
	}

	base, err := url.Parse(m.cfg.App.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid app.baseURL: %w", err)
	}
	chrome, err := browser.NewChrome(ctx, browser.ChromeOptions{
		Headless:     m.cfg.Browser.Headless,
		WindowWidth:  m.cfg.Browser.WindowWidth,
		WindowHeight: m.cfg.Browser.WindowHeight,
		ExecPath:     m.cfg.Browser.ExecPath,
		Cookie:       &browser.Cookie{Name: m.cfg.Auth.CookieName, Value: m.cfg.Auth.Token, Domain: base.Hostname()},
	})
	if err != nil {
		return nil, setup.Unavailable("chrome is not available: %v", err)
	}

	env := &Environment{
		ID:            "chrome-" + uuid.NewString()[:8],
		Target:        TargetChrome,
		Page:          chrome,
		API:           crm.NewClient(context.Background(), m.cfg.EffectiveAPIURL(), m.cfg.App.WorkspaceID, m.cfg.Auth.Token),
		BaseURL:       strings.TrimRight(m.cfg.App.BaseURL, "/"),
		WorkspaceID:   m.cfg.App.WorkspaceID,
		Timeouts:      browser.TimeoutsFromConfig(m.cfg.Timeouts),
		Strategy:      placement.StrategyFromConfig(m.cfg.Placement),
		Coordinates:   m.coords,
		DocumentPath:  pdf,
		Cache:         m.cache,
		SeedContacts:  m.seedContacts,
		ScreenshotDir: m.cfg.Browser.ScreenshotDir,
	}
	env.OnClose(func() error {
		chrome.Close()
		return nil
	})
	logger.Debug("🏗️  Started chrome environment %s for scenario %s against %s\n", env.ID, scenario.Name, env.BaseURL)
	return env, nil
}

func (m *ChromeEnvironmentManager) DestroyEnvironment(ctx context.Context, env *Environment, logger TestLogger) error {
	if err := env.Close(); err != nil {
		return fmt.Errorf("failed to close environment %s: %w", env.ID, err)
	}
	logger.Debug("✅ Closed chrome environment %s\n", env.ID)
	return nil
}
