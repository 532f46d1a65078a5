package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanscan/internal/config"
	"github.com/Aman-CERP/amanscan/internal/discovery"
	scanerrors "github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/pkg/version"
)

const (
	// defaultPathLimit is the number of paths listed by scan when no limit is given.
	defaultPathLimit = 200

	// maxPathLimit bounds the paths listed by scan.
	maxPathLimit = 10000

	// shutdownTimeout bounds the graceful stop of the HTTP transport.
	shutdownTimeout = 5 * time.Second
)

// Server is the MCP server for amanscan.
// It lets AI clients scan directories and keep the result current.
type Server struct {
	mcp    *mcp.Server
	engine *discovery.Engine
	config *config.Config
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server around engine. Requests start from the
// scan and cache sections of cfg.
func NewServer(engine *discovery.Engine, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("discovery engine is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine: engine,
		config: cfg,
		logger: logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    version.Name,
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools and resources
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return version.Name, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "scan",
			Description: "Discover files under a directory. Honors gitignore-style patterns and depth limits, and reuses the cached result of an identical earlier scan, reporting what changed since.",
		},
		{
			Name:        "update_context",
			Description: "Apply a single changed path to the latest scan covering it, without rescanning. Returns the added, modified and removed paths.",
		},
		{
			Name:        "error_summary",
			Description: "List the issues recorded by the latest scan and the updates since, grouped by severity.",
		},
		{
			Name:        "handle_error",
			Description: "Record a failure observed by the caller with the same classification as scan failures. Returns whether the caller may continue.",
		},
		{
			Name:        "invalidate_cache",
			Description: "Drop the cached result of a scan so the next identical scan walks the tree again.",
		},
	}
}

// CallTool invokes a tool by name with JSON-shaped arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "scan":
		return callWith(args, func(in ScanInput) (any, error) { return s.handleScan(ctx, in) })
	case "update_context":
		return callWith(args, func(in UpdateContextInput) (any, error) { return s.handleUpdateContext(ctx, in) })
	case "error_summary":
		return s.handleErrorSummary(), nil
	case "handle_error":
		return callWith(args, func(in HandleErrorInput) (any, error) { return s.handleHandleError(in) })
	case "invalidate_cache":
		return callWith(args, func(in InvalidateCacheInput) (any, error) { return s.handleInvalidateCache(in) })
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// callWith decodes args into the tool input type before calling fn.
func callWith[In any](args map[string]any, fn func(In) (any, error)) (any, error) {
	var in In
	data, err := json.Marshal(args)
	if err != nil {
		return nil, NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return fn(in)
}

// handleScan runs a scan and converts the result.
func (s *Server) handleScan(ctx context.Context, in ScanInput) (*ScanOutput, error) {
	if strings.TrimSpace(in.Root) == "" {
		return nil, NewInvalidParamsError("root parameter is required")
	}
	if !filepath.IsAbs(in.Root) {
		return nil, NewInvalidParamsError("root must be an absolute path")
	}

	req := s.config.ScanRequest(in.Root)
	if in.Recursive != nil {
		req.Recursive = *in.Recursive
	}
	if in.MaxDepth != nil {
		req.MaxDepth = *in.MaxDepth
	}
	req.Patterns = append(req.Patterns, in.Ignore...)
	if in.NoDefaults {
		req.IncludeDefaults = false
	}
	if in.NoCache {
		req.Cache = false
	}
	if in.FollowSymlinks {
		req.FollowSymlinks = true
	}
	limit := clampLimit(in.Limit, defaultPathLimit, 1, maxPathLimit)

	start := time.Now()
	requestID := uuid.NewString()
	s.logger.Info("scan started",
		slog.String("request_id", requestID),
		slog.String("root", in.Root))

	res, err := s.engine.Scan(ctx, req)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("scan failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("scan completed",
		slog.String("request_id", requestID),
		slog.String("scan_id", res.ScanID),
		slog.Duration("duration", duration),
		slog.Int("files", res.TotalFiles),
		slog.Bool("cache_hit", res.CacheHit))

	paths := res.Paths()
	truncated := len(paths) > limit
	if truncated {
		paths = paths[:limit]
	}

	return &ScanOutput{
		ScanID:           res.ScanID,
		Root:             res.Root,
		Project:          NewProjectDetector(res.Root, s.logger).Detect(),
		TotalFiles:       res.TotalFiles,
		TotalDirectories: res.TotalDirectories,
		TotalSize:        res.TotalSize,
		ElapsedMS:        res.Elapsed.Milliseconds(),
		CacheHit:         res.CacheHit,
		Partial:          res.Partial,
		Delta:            deltaOutput(res.Delta),
		Languages:        res.Languages,
		Errors:           res.Errors.Summary,
		Paths:            paths,
		Truncated:        truncated,
	}, nil
}

// handleUpdateContext applies one changed path.
func (s *Server) handleUpdateContext(ctx context.Context, in UpdateContextInput) (*DeltaOutput, error) {
	if strings.TrimSpace(in.Path) == "" {
		return nil, NewInvalidParamsError("path parameter is required")
	}
	if !filepath.IsAbs(in.Path) {
		return nil, NewInvalidParamsError("path must be an absolute path")
	}

	delta, err := s.engine.UpdateContext(ctx, in.Path)
	if err != nil {
		s.logger.Warn("update_context failed",
			slog.String("path", in.Path),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	out := deltaOutput(delta)
	return &out, nil
}

func (s *Server) handleErrorSummary() *ErrorSummaryOutput {
	return &ErrorSummaryOutput{
		Summary: s.engine.ErrorSummary(),
		Records: recordOutputs(s.engine.ErrorRecords()),
	}
}

// handleHandleError records a failure reported by the client.
func (s *Server) handleHandleError(in HandleErrorInput) (*HandleErrorOutput, error) {
	sev, err := scanerrors.ParseSeverity(strings.ToUpper(strings.TrimSpace(in.Severity)))
	if err != nil {
		return nil, NewInvalidParamsError(err.Error())
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, NewInvalidParamsError("message parameter is required")
	}

	ok := s.engine.HandleError(scanerrors.Context{
		Kind:    scanerrors.Kind(in.Kind),
		Path:    in.Path,
		Op:      in.Op,
		Message: in.Message,
	}, sev)
	return &HandleErrorOutput{Continue: ok}, nil
}

// handleInvalidateCache drops the record of the described scan.
func (s *Server) handleInvalidateCache(in InvalidateCacheInput) (*InvalidateCacheOutput, error) {
	if strings.TrimSpace(in.Root) == "" {
		return nil, NewInvalidParamsError("root parameter is required")
	}
	if !filepath.IsAbs(in.Root) {
		return nil, NewInvalidParamsError("root must be an absolute path")
	}

	req := s.config.ScanRequest(in.Root)
	if in.Recursive != nil {
		req.Recursive = *in.Recursive
	}
	if in.MaxDepth != nil {
		req.MaxDepth = *in.MaxDepth
	}
	req.Patterns = append(req.Patterns, in.Ignore...)
	if in.NoDefaults {
		req.IncludeDefaults = false
	}
	if in.FollowSymlinks {
		req.FollowSymlinks = true
	}

	key, err := s.engine.Invalidate(req)
	if err != nil {
		return nil, MapError(err)
	}
	s.logger.Info("cache invalidated", slog.String("root", in.Root), slog.String("key", string(key)))
	return &InvalidateCacheOutput{Key: key}, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	tools := s.ListTools()
	describe := func(name string) string {
		for _, t := range tools {
			if t.Name == name {
				return t.Description
			}
		}
		return ""
	}

	mcp.AddTool(s.mcp, &mcp.Tool{Name: "scan", Description: describe("scan")}, s.mcpScanHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "update_context", Description: describe("update_context")}, s.mcpUpdateContextHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "error_summary", Description: describe("error_summary")}, s.mcpErrorSummaryHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "handle_error", Description: describe("handle_error")}, s.mcpHandleErrorHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "invalidate_cache", Description: describe("invalidate_cache")}, s.mcpInvalidateCacheHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func (s *Server) mcpScanHandler(ctx context.Context, _ *mcp.CallToolRequest, input ScanInput) (
	*mcp.CallToolResult,
	*ScanOutput,
	error,
) {
	out, err := s.handleScan(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return textResult(FormatScan(out)), out, nil
}

func (s *Server) mcpUpdateContextHandler(ctx context.Context, _ *mcp.CallToolRequest, input UpdateContextInput) (
	*mcp.CallToolResult,
	*DeltaOutput,
	error,
) {
	out, err := s.handleUpdateContext(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return textResult(FormatDelta(input.Path, *out)), out, nil
}

func (s *Server) mcpErrorSummaryHandler(_ context.Context, _ *mcp.CallToolRequest, _ ErrorSummaryInput) (
	*mcp.CallToolResult,
	*ErrorSummaryOutput,
	error,
) {
	out := s.handleErrorSummary()
	return textResult(FormatErrorSummary(out)), out, nil
}

func (s *Server) mcpHandleErrorHandler(_ context.Context, _ *mcp.CallToolRequest, input HandleErrorInput) (
	*mcp.CallToolResult,
	*HandleErrorOutput,
	error,
) {
	out, err := s.handleHandleError(input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpInvalidateCacheHandler(_ context.Context, _ *mcp.CallToolRequest, input InvalidateCacheInput) (
	*mcp.CallToolResult,
	*InvalidateCacheOutput,
	error,
) {
	out, err := s.handleInvalidateCache(input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve runs the server on the given transport until ctx is done.
// Supported transports are "stdio" and "http" (streamable HTTP on addr).
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr))

	var err error
	switch transport {
	case "stdio":
		err = s.mcp.Run(ctx, &mcp.StdioTransport{})
	case "http":
		err = s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("http transport requires an address")
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http transport: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
