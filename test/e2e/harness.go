// Package e2e boots a complete manager instance against fake
// collaborators and exercises it through the public HTTP surface, the
// same way the dashboard and chat clients do.
package e2e

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inferlab/modelmgr/pkg/api"
	"github.com/inferlab/modelmgr/pkg/config"
	"github.com/inferlab/modelmgr/pkg/events"
	"github.com/inferlab/modelmgr/pkg/lifecycle"
	"github.com/inferlab/modelmgr/pkg/llm"
	"github.com/inferlab/modelmgr/pkg/orchestrator"
	"github.com/inferlab/modelmgr/pkg/probe"
	"github.com/inferlab/modelmgr/pkg/services"
	"github.com/inferlab/modelmgr/pkg/tools"
)

// TestApp is one complete manager instance wired to fakes.
type TestApp struct {
	Catalog     *config.Catalog
	Driver      *FakeDriver
	Prober      probe.Prober
	Memory      *StaticMemory
	Warnings    *services.SystemWarningsService
	Engine      *lifecycle.Engine
	Monitor     *lifecycle.Monitor
	ConnManager *events.ConnectionManager
	Server      *api.Server

	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/ws"

	t          *testing.T
	httpClient *http.Client
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	specs     []*config.ModelSpec
	driver    *FakeDriver
	prober    probe.Prober
	memory    *StaticMemory
	chat      config.ChatConfig
	monitor   *config.MonitorConfig
	reconcile bool
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithSpecs sets the model catalog.
func WithSpecs(specs ...*config.ModelSpec) TestAppOption {
	return func(c *testAppConfig) { c.specs = specs }
}

// WithDriver sets a pre-configured container driver fake.
func WithDriver(d *FakeDriver) TestAppOption {
	return func(c *testAppConfig) { c.driver = d }
}

// WithProber overrides the default HTTP prober, which only makes sense
// when the catalog ports have a real (httptest) endpoint behind them.
func WithProber(p probe.Prober) TestAppOption {
	return func(c *testAppConfig) { c.prober = p }
}

// WithMemory sets the admission fake.
func WithMemory(m *StaticMemory) TestAppOption {
	return func(c *testAppConfig) { c.memory = m }
}

// WithChatConfig sets chat loop settings and collaborator URLs.
func WithChatConfig(chat config.ChatConfig) TestAppOption {
	return func(c *testAppConfig) { c.chat = chat }
}

// WithMonitor enables the background health monitor.
func WithMonitor(interval time.Duration, failureThreshold int) TestAppOption {
	return func(c *testAppConfig) {
		c.monitor = &config.MonitorConfig{
			IntervalSeconds:  int(interval / time.Second),
			FailureThreshold: failureThreshold,
		}
	}
}

// WithReconcile runs container adoption before the server starts.
func WithReconcile() TestAppOption {
	return func(c *testAppConfig) { c.reconcile = true }
}

// NewTestApp creates and starts a full manager test instance.
// Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.driver == nil {
		tc.driver = NewFakeDriver()
	}
	if tc.prober == nil {
		tc.prober = probe.NewHTTPProber(time.Second)
	}
	if tc.memory == nil {
		tc.memory = &StaticMemory{TotalGB: 64, AvailableGB: 64}
	}

	// e2e catalogs obey the same rules as loaded ones.
	require.NoError(t, config.ValidateSpecs(tc.specs))
	catalog := config.NewCatalog(tc.specs)

	ctx := context.Background()

	// 1. Warnings and the status stream.
	warnings := services.NewSystemWarningsService()
	connManager := events.NewConnectionManager(2 * time.Second)
	publisher := events.NewStatusPublisher(connManager)

	// 2. Lifecycle engine.
	engine := lifecycle.NewEngine(catalog, tc.driver, tc.prober, tc.memory, publisher)
	if tc.reconcile {
		engine.Reconcile(ctx)
	}
	connManager.SetSnapshotFunc(engine.StatusFrames)

	// 3. Health monitor, only when a test asks for it.
	var monitor *lifecycle.Monitor
	if tc.monitor != nil {
		monitor = lifecycle.NewMonitor(engine, warnings,
			tc.monitor.Interval(), tc.monitor.FailureThreshold)
		monitor.Start()
	}

	// 4. Chat orchestrator against the configured collaborator URLs.
	modelTimeout := tc.chat.ModelTimeout()
	if modelTimeout <= 0 {
		modelTimeout = 30 * time.Second
	}
	pool := llm.NewPool(modelTimeout)
	var search orchestrator.SearchService
	if tc.chat.SearchURL != "" {
		search = tools.NewSearchClient(tc.chat.SearchURL, tc.chat.SearchTimeout())
	}
	var sandbox orchestrator.SandboxService
	if tc.chat.SandboxURL != "" {
		sandbox = tools.NewSandboxClient(tc.chat.SandboxURL, tc.chat.SandboxTimeout())
	}
	orch := orchestrator.New(engine, pool, search, sandbox, warnings, tc.chat)

	// 5. HTTP server on a random port.
	serverCfg := config.ServerConfig{
		Host:        "127.0.0.1",
		CORSOrigins: []string{"http://localhost:3000"},
	}
	server := api.NewServer(serverCfg, engine, orch, tc.memory, warnings, connManager)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = server.StartWithListener(ln)
	}()

	addr := ln.Addr().String()
	app := &TestApp{
		Catalog:     catalog,
		Driver:      tc.driver,
		Prober:      tc.prober,
		Memory:      tc.memory,
		Warnings:    warnings,
		Engine:      engine,
		Monitor:     monitor,
		ConnManager: connManager,
		Server:      server,
		BaseURL:     fmt.Sprintf("http://%s", addr),
		WSURL:       fmt.Sprintf("ws://%s/ws", addr),
		t:           t,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}

	// Cleanup in reverse-creation order.
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		if monitor != nil {
			monitor.Stop()
		}
		engine.Close()
	})

	return app
}

// testSpec builds a catalog entry with timings tightened for tests:
// probes every second, five seconds to come up.
func testSpec(id string, port int, opts ...func(*config.ModelSpec)) *config.ModelSpec {
	spec := &config.ModelSpec{
		ID:                         id,
		DisplayName:                id,
		Engine:                     config.EngineVLLM,
		EndpointPort:               port,
		ContainerName:              "mlm-" + id,
		StartCommand:               []string{"docker", "run", "-d", "--name", "mlm-" + id, "vllm/vllm-openai:latest"},
		StartupTimeoutSeconds:      5,
		HealthProbeIntervalSeconds: 1,
	}
	for _, opt := range opts {
		opt(spec)
	}
	return spec
}

func withMemoryEstimate(gb float64) func(*config.ModelSpec) {
	return func(s *config.ModelSpec) { s.EstimatedMemoryGB = gb }
}

func withStartupTimeout(seconds int) func(*config.ModelSpec) {
	return func(s *config.ModelSpec) { s.StartupTimeoutSeconds = seconds }
}

func withToolSupport() func(*config.ModelSpec) {
	return func(s *config.ModelSpec) { s.SupportsTools = true }
}

func withMaxContext(tokens int) func(*config.ModelSpec) {
	return func(s *config.ModelSpec) { s.MaxContextTokens = tokens }
}
