package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/chesscoach/internal/coach"
	"github.com/kalambet/chesscoach/internal/session"
	"github.com/kalambet/chesscoach/internal/storage"
)

// CoachService is the coach client surface the MCP tools call.
type CoachService interface {
	session.Service
	Dashboard(ctx context.Context, username string) (coach.Dashboard, error)
}

// RunHistory reads locally recorded runs.
type RunHistory interface {
	ListRuns(limit int) ([]storage.Run, error)
	LatestRun() (storage.Run, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service  CoachService
	History  RunHistory       // optional; load_analysis then requires run_id
	Recorder session.Recorder // optional
	Logger   *slog.Logger     // optional; slog.Default() when nil
}

func (d MCPDeps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewMCPServer creates an MCP server exposing the coach operations as tools.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"chesscoach",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("chesscoach: start chess game analyses, fetch their results, and schedule recurring runs."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("start_analysis",
			mcp.WithDescription("Start analysing games played since a date. Returns the run id."),
			mcp.WithString("date", mcp.Description("Start date, YYYY-MM-DD. May be empty.")),
		),
		mcpStartAnalysis(deps),
	)

	s.AddTool(
		mcp.NewTool("load_analysis",
			mcp.WithDescription("Fetch the analysis document for a run. Defaults to the most recent run."),
			mcp.WithString("run_id", mcp.Description("Run id returned by start_analysis")),
		),
		mcpLoadAnalysis(deps),
	)

	s.AddTool(
		mcp.NewTool("schedule_analysis",
			mcp.WithDescription("Register a recurring analysis."),
			mcp.WithString("date", mcp.Description("Start date, YYYY-MM-DD")),
			mcp.WithString("frequency", mcp.Description("daily or weekly (default daily)"), mcp.Enum("daily", "weekly")),
		),
		mcpScheduleAnalysis(deps),
	)

	s.AddTool(
		mcp.NewTool("dashboard",
			mcp.WithDescription("List the scheduled analyses registered for a user."),
			mcp.WithString("username", mcp.Description("Lichess username the service analyses games for"), mcp.Required()),
		),
		mcpDashboard(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"coach://history",
			"Run History",
			mcp.WithResourceDescription("Last 20 analysis runs started from this machine"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpStartAnalysis(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date := req.GetString("date", "")

		h, err := deps.Service.Analyze(ctx, coach.AnalysisRequest{Date: date})
		if err != nil {
			return mcpError(fmt.Sprintf("analyze failed: %v", err)), nil
		}
		if h.RunID == "" {
			return mcpError("service did not return a run id"), nil
		}
		if deps.Recorder != nil {
			if err := deps.Recorder.RecordRun(date, h); err != nil {
				return mcpError(fmt.Sprintf("started run %s but failed to record it: %v", h.RunID, err)), nil
			}
		}

		return mcpText(h.RunID), nil
	}
}

func mcpLoadAnalysis(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID := req.GetString("run_id", "")
		if runID == "" {
			if deps.History == nil {
				return mcpError("run_id is required"), nil
			}
			latest, err := deps.History.LatestRun()
			if errors.Is(err, storage.ErrNotFound) {
				return mcpError("no runs recorded yet; call start_analysis first"), nil
			}
			if err != nil {
				return mcpError(fmt.Sprintf("reading history: %v", err)), nil
			}
			runID = latest.RunID
		}

		doc, err := deps.Service.Analysis(ctx, runID)
		if err != nil {
			return mcpError(fmt.Sprintf("loading analysis %s: %v", runID, err)), nil
		}
		if doc.Status >= 400 {
			return mcpError(fmt.Sprintf("service returned %d: %s", doc.Status, doc.Pretty())), nil
		}

		return mcpText(doc.Pretty()), nil
	}
}

func mcpScheduleAnalysis(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		freq, err := coach.ParseFrequency(req.GetString("frequency", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		draft := coach.ScheduleDraft{Date: req.GetString("date", ""), Frequency: freq}

		status, err := deps.Service.Schedule(ctx, draft)
		if err != nil {
			return mcpError(fmt.Sprintf("schedule failed: %v", err)), nil
		}
		if deps.Recorder != nil {
			// The service already has the schedule; losing the local record is not fatal.
			if err := deps.Recorder.RecordSchedule(draft, status); err != nil {
				deps.logger().Warn("recording schedule failed", "date", draft.Date, "frequency", draft.Frequency, "error", err)
			}
		}
		if status >= 400 {
			return mcpError(fmt.Sprintf("service returned %d", status)), nil
		}

		return mcpText(session.ScheduledAck), nil
	}
}

func mcpDashboard(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}

		d, err := deps.Service.Dashboard(ctx, username)
		if err != nil {
			return mcpError(fmt.Sprintf("dashboard failed: %v", err)), nil
		}

		b, err := json.Marshal(d)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal dashboard: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type runSummary struct {
			RunID     string `json:"run_id"`
			Date      string `json:"date"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}

		summaries := []runSummary{}
		if deps.History != nil {
			runs, err := deps.History.ListRuns(20)
			if err != nil {
				return nil, fmt.Errorf("failed to list runs: %w", err)
			}
			for _, r := range runs {
				summaries = append(summaries, runSummary{
					RunID:     r.RunID,
					Date:      r.Date,
					Status:    r.Status,
					CreatedAt: r.CreatedAt.Format(time.RFC3339),
				})
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
		IsError: true,
	}
}
