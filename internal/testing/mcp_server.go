package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the test framework over MCP on stdio so agents can list,
// validate and run scenarios.
type MCPServer struct {
	mcpServer  *server.MCPServer
	framework  *TestFramework
	configPath string
	target     Target
	debug      bool

	mu         sync.Mutex
	lastResult *TestSuiteResult
}

// NewMCPServer creates a test MCP server. Scenarios are read from
// configPath unless a tool call names another path.
func NewMCPServer(opts FrameworkOptions, configPath, version string) (*MCPServer, error) {
	opts.Verbose = true
	opts.ReportPath = ""
	framework, err := NewTestFrameworkForMode(ExecutionModeMCPServer, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create test framework: %w", err)
	}

	s := &MCPServer{
		mcpServer: server.NewMCPServer(
			"signflow-test",
			version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithPromptCapabilities(false),
		),
		framework:  framework,
		configPath: configPath,
		target:     opts.Target,
		debug:      opts.Debug,
	}
	s.registerTools()
	return s, nil
}

// Serve blocks serving MCP on stdio.
func (s *MCPServer) Serve() error {
	defer s.framework.Cleanup()
	return server.ServeStdio(s.mcpServer)
}

// Server returns the underlying MCP server, e.g. for in-process clients.
func (s *MCPServer) Server() *server.MCPServer {
	return s.mcpServer
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("test_run_scenarios",
		mcp.WithDescription("Execute e-signature scenarios and return the suite result"),
		mcp.WithString("category", mcp.Description("Filter by category (behavioral, integration)")),
		mcp.WithString("concept", mcp.Description("Filter by concept (template, agreement, signing-link, public-signing, end-to-end)")),
		mcp.WithString("scenario", mcp.Description("Run a specific scenario by name")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags; scenarios with any of them run")),
		mcp.WithString("config_path", mcp.Description("Path to scenario files; empty uses the built-in scenarios")),
		mcp.WithNumber("parallel", mcp.Description("Number of parallel workers (1-10)")),
		mcp.WithNumber("timeout_seconds", mcp.Description("Overall timeout in seconds (default 600)")),
		mcp.WithBoolean("fail_fast", mcp.Description("Stop on first failure")),
	), s.handleRunScenarios)

	s.mcpServer.AddTool(mcp.NewTool("test_list_scenarios",
		mcp.WithDescription("List available scenarios with filtering"),
		mcp.WithString("config_path", mcp.Description("Path to scenario files")),
		mcp.WithString("category", mcp.Description("Filter by category")),
		mcp.WithString("concept", mcp.Description("Filter by concept")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
	), s.handleListScenarios)

	s.mcpServer.AddTool(mcp.NewTool("test_validate_scenario",
		mcp.WithDescription("Validate scenario files against the action catalog"),
		mcp.WithString("scenario_path",
			mcp.Required(),
			mcp.Description("Path to scenario file or directory"),
		),
	), s.handleValidateScenario)

	s.mcpServer.AddTool(mcp.NewTool("test_list_actions",
		mcp.WithDescription("List the actions scenario steps can invoke, with their arguments"),
		mcp.WithString("concept", mcp.Description("Only list actions of this concept")),
	), s.handleListActions)

	s.mcpServer.AddTool(mcp.NewTool("test_get_results",
		mcp.WithDescription("Retrieve results from the last test execution"),
	), s.handleGetResults)
}

func (s *MCPServer) configFromArgs(args map[string]interface{}) (TestConfiguration, error) {
	config := DefaultTestConfiguration()
	config.Verbose = true
	config.Debug = s.debug
	config.ConfigPath = s.configPath
	config.Target = s.target

	var err error
	if v, ok := args["category"].(string); ok {
		if config.Category, err = ParseCategory(v); err != nil {
			return config, err
		}
	}
	if v, ok := args["concept"].(string); ok {
		if config.Concept, err = ParseConcept(v); err != nil {
			return config, err
		}
	}
	if v, ok := args["scenario"].(string); ok {
		config.Scenario = v
	}
	if v, ok := args["tags"].(string); ok && v != "" {
		config.Tags = SplitTags(v)
	}
	if v, ok := args["config_path"].(string); ok && v != "" {
		config.ConfigPath = v
	}
	if v, ok := args["parallel"].(float64); ok {
		if v < 1 || v > 10 {
			return config, fmt.Errorf("parallel workers must be between 1 and 10")
		}
		config.Parallel = int(v)
	}
	if v, ok := args["timeout_seconds"].(float64); ok && v > 0 {
		config.Timeout = time.Duration(v * float64(time.Second))
	}
	if v, ok := args["fail_fast"].(bool); ok {
		config.FailFast = v
	}
	return config, nil
}

func (s *MCPServer) handleRunScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	config, err := s.configFromArgs(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	scenarios, err := LoadAndFilterScenarios(config, s.framework.Logger)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load test scenarios: %v", err)), nil
	}
	if len(scenarios) == 0 {
		return mcp.NewToolResultText("No test scenarios matched the filters"), nil
	}

	// One run at a time: the structured reporter holds a single suite.
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.framework.Runner.Run(ctx, config, scenarios)
	if result != nil {
		s.lastResult = result
	}
	if err != nil && result == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Test execution failed: %v", err)), nil
	}

	jsonData, mErr := json.MarshalIndent(result, "", "  ")
	if mErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format test results: %v", mErr)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%v\n%s", err, jsonData)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

type scenarioInfo struct {
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Concept      string   `json:"concept"`
	Description  string   `json:"description"`
	Requires     []string `json:"requires,omitempty"`
	StepCount    int      `json:"step_count"`
	CleanupCount int      `json:"cleanup_count"`
	Tags         []string `json:"tags,omitempty"`
	Targets      []Target `json:"targets,omitempty"`
	Timeout      string   `json:"timeout,omitempty"`
}

func (s *MCPServer) handleListScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	config, err := s.configFromArgs(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scenarios, err := LoadAndFilterScenarios(config, s.framework.Logger)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load scenarios: %v", err)), nil
	}

	list := make([]scenarioInfo, len(scenarios))
	for i, scenario := range scenarios {
		list[i] = scenarioInfo{
			Name:         scenario.Name,
			Category:     string(scenario.Category),
			Concept:      string(scenario.Concept),
			Description:  scenario.Description,
			Requires:     scenario.Requires,
			StepCount:    len(scenario.Steps),
			CleanupCount: len(scenario.Cleanup),
			Tags:         scenario.Tags,
			Targets:      scenario.Targets,
		}
		if scenario.Timeout > 0 {
			list[i].Timeout = scenario.Timeout.String()
		}
	}
	return jsonResult(list)
}

func (s *MCPServer) handleValidateScenario(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("scenario_path")
	if err != nil {
		return mcp.NewToolResultError("scenario_path parameter is required"), nil
	}
	scenarios, err := NewTestScenarioLoaderWithLogger(s.debug, s.framework.Logger).LoadScenarios(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Scenario loading failed: %v", err)), nil
	}
	return jsonResult(ValidateScenarios(scenarios))
}

func (s *MCPServer) handleListActions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	concept, err := ParseConcept(request.GetString("concept", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var list []Action
	for _, a := range Actions() {
		if concept == "" || a.Concept == concept {
			list = append(list, a)
		}
	}
	return jsonResult(list)
}

func (s *MCPServer) handleGetResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if structured, ok := s.framework.Reporter.(StructuredTestReporter); ok {
		jsonData, err := structured.GetResultsAsJSON()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get structured results: %v", err)), nil
		}
		return mcp.NewToolResultText(jsonData), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult == nil {
		return mcp.NewToolResultText("No test results available. Run test_run_scenarios first."), nil
	}
	return jsonResult(s.lastResult)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
