package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/chesscoach/internal/coach"
	"github.com/kalambet/chesscoach/internal/session"
	"github.com/kalambet/chesscoach/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T, svc *fakeCoach) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Service:  svc,
		History:  store,
		Recorder: session.NewStoreRecorder(store),
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPServer_Builds(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeCoach{})
	if s := NewMCPServer(deps, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_Dashboard_DescribesLichessUser(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeCoach{})
	tool := NewMCPServer(deps, "test").GetTool("dashboard")
	if tool == nil {
		t.Fatal("dashboard tool not registered")
	}

	prop, err := json.Marshal(tool.Tool.InputSchema.Properties["username"])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(prop), "Lichess") || strings.Contains(string(prop), "Chess.com") {
		t.Errorf("username schema = %s, want a Lichess description", prop)
	}
}

func TestMCPTool_StartAnalysis(t *testing.T) {
	svc := &fakeCoach{handle: coach.RunHandle{RunID: "run-mcp"}}
	deps, store := newTestMCPDeps(t, svc)

	result, err := mcpStartAnalysis(deps)(context.Background(), makeCallToolRequest("start_analysis", map[string]interface{}{
		"date": "2024-04-01",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "run-mcp" {
		t.Errorf("text = %q, want run-mcp", got)
	}

	run, err := store.GetRun("run-mcp")
	if err != nil {
		t.Fatalf("run not recorded: %v", err)
	}
	if run.Date != "2024-04-01" || run.Status != storage.RunPending {
		t.Errorf("run = %+v", run)
	}
}

func TestMCPTool_StartAnalysis_ServiceError(t *testing.T) {
	svc := &fakeCoach{analyzeErr: errors.New("connection refused")}
	deps, _ := newTestMCPDeps(t, svc)

	result, err := mcpStartAnalysis(deps)(context.Background(), makeCallToolRequest("start_analysis", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "connection refused") {
		t.Errorf("text = %q", toolText(t, result))
	}
}

func TestMCPTool_LoadAnalysis_DefaultsToLatest(t *testing.T) {
	svc := &fakeCoach{doc: coach.Document{Status: 200, Body: json.RawMessage(`{"overall_analysis.txt":"Trade when ahead."}`)}}
	deps, store := newTestMCPDeps(t, svc)
	if err := store.SaveRun(storage.Run{RunID: "older"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRun(storage.Run{RunID: "newest"}); err != nil {
		t.Fatal(err)
	}

	result, err := mcpLoadAnalysis(deps)(context.Background(), makeCallToolRequest("load_analysis", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if len(svc.analysisIDs) != 1 || svc.analysisIDs[0] != "newest" {
		t.Errorf("analysis ids = %v, want [newest]", svc.analysisIDs)
	}
	if !strings.Contains(toolText(t, result), "Trade when ahead.") {
		t.Errorf("text = %q", toolText(t, result))
	}
}

func TestMCPTool_LoadAnalysis_NoHistory(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeCoach{})

	result, _ := mcpLoadAnalysis(deps)(context.Background(), makeCallToolRequest("load_analysis", nil))
	if !result.IsError {
		t.Fatal("expected tool error with no recorded runs")
	}
}

func TestMCPTool_LoadAnalysis_ErrorStatus(t *testing.T) {
	svc := &fakeCoach{doc: coach.Document{Status: 404, Body: json.RawMessage(`{"detail":"Not Found"}`)}}
	deps, _ := newTestMCPDeps(t, svc)

	result, _ := mcpLoadAnalysis(deps)(context.Background(), makeCallToolRequest("load_analysis", map[string]interface{}{
		"run_id": "missing",
	}))
	if !result.IsError {
		t.Fatal("expected tool error for 404")
	}
	if !strings.Contains(toolText(t, result), "Not Found") {
		t.Errorf("text = %q, want the service body", toolText(t, result))
	}
}

func TestMCPTool_ScheduleAnalysis(t *testing.T) {
	svc := &fakeCoach{status: 200}
	deps, store := newTestMCPDeps(t, svc)

	result, err := mcpScheduleAnalysis(deps)(context.Background(), makeCallToolRequest("schedule_analysis", map[string]interface{}{
		"date":      "2024-07-01",
		"frequency": "weekly",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != session.ScheduledAck {
		t.Errorf("text = %q", got)
	}
	if len(svc.schedules) != 1 || svc.schedules[0].Frequency != coach.Weekly {
		t.Errorf("schedules = %+v", svc.schedules)
	}

	recs, err := store.ListSchedules(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Date != "2024-07-01" {
		t.Errorf("recorded = %+v", recs)
	}
}

type failingRecorder struct{}

func (failingRecorder) RecordRun(string, coach.RunHandle) error {
	return errors.New("disk full")
}

func (failingRecorder) RecordSchedule(coach.ScheduleDraft, int) error {
	return errors.New("disk full")
}

// TestMCPTool_ScheduleAnalysis_RecordFailureLogged verifies that a failed
// local record still acknowledges the schedule and leaves a warning.
func TestMCPTool_ScheduleAnalysis_RecordFailureLogged(t *testing.T) {
	svc := &fakeCoach{status: 200}
	var logs bytes.Buffer
	deps := MCPDeps{
		Service:  svc,
		Recorder: failingRecorder{},
		Logger:   slog.New(slog.NewTextHandler(&logs, nil)),
	}

	result, err := mcpScheduleAnalysis(deps)(context.Background(), makeCallToolRequest("schedule_analysis", map[string]interface{}{
		"date": "2024-07-01",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != session.ScheduledAck {
		t.Errorf("text = %q, want the acknowledgement", got)
	}
	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "recording schedule failed") || !strings.Contains(out, "disk full") {
		t.Errorf("log output = %q, want a warning carrying the recorder error", out)
	}
}

func TestMCPTool_ScheduleAnalysis_DefaultFrequency(t *testing.T) {
	svc := &fakeCoach{status: 200}
	deps, _ := newTestMCPDeps(t, svc)

	if _, err := mcpScheduleAnalysis(deps)(context.Background(), makeCallToolRequest("schedule_analysis", nil)); err != nil {
		t.Fatal(err)
	}
	if len(svc.schedules) != 1 || svc.schedules[0].Frequency != coach.Daily {
		t.Errorf("schedules = %+v, want one daily", svc.schedules)
	}
}

func TestMCPTool_ScheduleAnalysis_BadFrequency(t *testing.T) {
	svc := &fakeCoach{}
	deps, _ := newTestMCPDeps(t, svc)

	result, _ := mcpScheduleAnalysis(deps)(context.Background(), makeCallToolRequest("schedule_analysis", map[string]interface{}{
		"frequency": "hourly",
	}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if len(svc.schedules) != 0 {
		t.Error("schedule sent despite bad frequency")
	}
}

func TestMCPTool_Dashboard(t *testing.T) {
	svc := &fakeCoach{dashboard: coach.Dashboard{
		Username:      "magnus",
		ScheduledJobs: []coach.ScheduledJob{{ID: "j1", Date: "2024-01-01", Frequency: "daily"}},
	}}
	deps, _ := newTestMCPDeps(t, svc)

	result, _ := mcpDashboard(deps)(context.Background(), makeCallToolRequest("dashboard", map[string]interface{}{
		"username": "magnus",
	}))
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var d coach.Dashboard
	if err := json.Unmarshal([]byte(toolText(t, result)), &d); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if d.Username != "magnus" || len(d.ScheduledJobs) != 1 {
		t.Errorf("dashboard = %+v", d)
	}
}

func TestMCPTool_Dashboard_RequiresUsername(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeCoach{})

	result, _ := mcpDashboard(deps)(context.Background(), makeCallToolRequest("dashboard", nil))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
}

func TestMCPResource_History(t *testing.T) {
	deps, store := newTestMCPDeps(t, &fakeCoach{})
	if err := store.SaveRun(storage.Run{RunID: "h1", Date: "2024-02-02"}); err != nil {
		t.Fatal(err)
	}

	contents, err := mcpResourceHistory(deps)(context.Background(), makeReadResourceRequest("coach://history"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var runs []map[string]string
	if err := json.Unmarshal([]byte(tc.Text), &runs); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(runs) != 1 || runs[0]["run_id"] != "h1" || runs[0]["status"] != "pending" {
		t.Errorf("runs = %v", runs)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	svc := &fakeCoach{handle: coach.RunHandle{RunID: "c"}, status: 200}
	deps, _ := newTestMCPDeps(t, svc)

	start := mcpStartAnalysis(deps)
	schedule := mcpScheduleAnalysis(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := start(context.Background(), makeCallToolRequest("start_analysis", nil)); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := schedule(context.Background(), makeCallToolRequest("schedule_analysis", nil)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
	if len(svc.schedules) != 5 {
		t.Errorf("schedules = %d, want 5", len(svc.schedules))
	}
}
