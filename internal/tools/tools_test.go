package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/shellstory/internal/analysis"
	"github.com/HendryAvila/shellstory/internal/cache"
	"github.com/HendryAvila/shellstory/internal/design"
	"github.com/HendryAvila/shellstory/internal/pipeline"
	"github.com/HendryAvila/shellstory/internal/scope"
	"github.com/HendryAvila/shellstory/internal/workspace"
)

// --- Test helpers ---

// toolReq builds a CallToolRequest with the given arguments.
func toolReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// isErrorResult checks if the result is a tool error.
func isErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// getResultText extracts the text content from a CallToolResult.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

type fakeRunner struct {
	got []pipeline.Request
	res *pipeline.Result
	err error
}

func (f *fakeRunner) AnalyzeScope(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.got = append(f.got, req)
	return f.res, f.err
}

func (f *fakeRunner) WriteShellStories(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.got = append(f.got, req)
	return f.res, f.err
}

func succeeded() *pipeline.Result {
	return &pipeline.Result{
		RunID:         "run-9",
		Status:        pipeline.StatusSucceeded,
		Phase:         pipeline.PhasePersist,
		FileKey:       "F1",
		ItemID:        "PROJ-7",
		Screens:       []design.Screen{{ID: "a"}, {ID: "b"}},
		Analyzed:      1,
		Cached:        1,
		Decision:      &scope.Outcome{Kind: scope.OutcomeProceed, Questions: 2},
		Questions:     2,
		ScopeAnalysis: "### Checkout\n- ☐ Card payment",
		Stories:       "- st1 Pay by card",
		DocumentSize:  1234,
		Warnings:      []string{"screen c skipped: no image"},
	}
}

// --- Run tools ---

func TestWriteStoriesTool_Definition(t *testing.T) {
	def := NewWriteStoriesTool(&fakeRunner{}).Definition()
	if def.Name != "write_shell_stories" {
		t.Errorf("tool name = %q", def.Name)
	}
	required := def.InputSchema.Required
	if len(required) != 2 || required[0] != paramFileKey || required[1] != paramItemID {
		t.Errorf("required = %v, want [file_key item_id]", required)
	}
	if len(def.InputSchema.Properties) != 3 {
		t.Errorf("parameter count = %d, want 3", len(def.InputSchema.Properties))
	}
}

func TestWriteStoriesTool_Handle_Success(t *testing.T) {
	runner := &fakeRunner{res: succeeded()}
	tool := NewWriteStoriesTool(runner)

	result, err := tool.Handle(context.Background(), toolReq(map[string]interface{}{
		"file_key": " F1 ",
		"item_id":  "PROJ-7",
		"context":  "Guest checkout",
	}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if isErrorResult(result) {
		t.Fatalf("unexpected tool error: %s", getResultText(result))
	}

	want := pipeline.Request{FileKey: "F1", ItemID: "PROJ-7", Context: "Guest checkout"}
	if len(runner.got) != 1 || runner.got[0] != want {
		t.Errorf("runner got %+v, want %+v", runner.got, want)
	}

	text := getResultText(result)
	for _, want := range []string{
		"Run run-9: succeeded",
		"analyzed 1, cached 1, skipped 0",
		"2 open questions, proceed",
		"1234 bytes",
		"screen c skipped",
		"## Shell Stories",
		"st1 Pay by card",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}
}

func TestWriteStoriesTool_Handle_MissingParams(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"no file key", map[string]interface{}{"item_id": "PROJ-7"}, "file_key"},
		{"blank item", map[string]interface{}{"file_key": "F1", "item_id": "  "}, "item_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{res: succeeded()}
			result, err := NewWriteStoriesTool(runner).Handle(context.Background(), toolReq(tt.args))
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if !isErrorResult(result) || !strings.Contains(getResultText(result), tt.want) {
				t.Errorf("result = %q, want error mentioning %s", getResultText(result), tt.want)
			}
			if len(runner.got) != 0 {
				t.Error("runner called with invalid input")
			}
		})
	}
}

func TestWriteStoriesTool_Handle_NeedsClarification(t *testing.T) {
	res := succeeded()
	res.Status = pipeline.StatusNeedsClarification
	res.Stories = ""
	res.Decision = &scope.Outcome{Kind: scope.OutcomeStillNeedsClarification, Questions: 7, Regenerated: true}
	res.Questions = 7

	result, _ := NewWriteStoriesTool(&fakeRunner{res: res}).Handle(context.Background(),
		toolReq(map[string]interface{}{"file_key": "F1", "item_id": "PROJ-7"}))
	if isErrorResult(result) {
		t.Fatalf("clarification is not a tool error: %s", getResultText(result))
	}
	text := getResultText(result)
	for _, want := range []string{"Needs clarification", "still-needs-clarification (regenerated)", "## Scope Analysis"} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "## Shell Stories") {
		t.Error("no stories expected")
	}
}

func TestAnalyzeScopeTool_Handle_TransientFailure(t *testing.T) {
	res := &pipeline.Result{RunID: "run-3", Phase: pipeline.PhaseAnalyze, Status: pipeline.StatusFailed}
	err := &pipeline.PhaseError{Phase: pipeline.PhaseAnalyze, Err: &analysis.TransientError{
		Phase: analysis.PhaseFetchArtifacts, FileKey: "F1", Screens: 3, Err: errors.New("rate limited"),
	}}
	tool := NewAnalyzeScopeTool(&fakeRunner{res: res, err: err})

	if tool.Definition().Name != "analyze_feature_scope" {
		t.Errorf("tool name = %q", tool.Definition().Name)
	}
	result, herr := tool.Handle(context.Background(), toolReq(map[string]interface{}{"file_key": "F1", "item_id": "PROJ-7"}))
	if herr != nil {
		t.Fatalf("Handle returned error: %v", herr)
	}
	if !isErrorResult(result) {
		t.Fatal("expected tool error")
	}
	text := getResultText(result)
	if !strings.Contains(text, "run-3 failed at phase analyze") || !strings.Contains(text, "retrying") {
		t.Errorf("result = %q", text)
	}
}

func TestRunResult_PermanentFailureHasNoRetryHint(t *testing.T) {
	res := &pipeline.Result{RunID: "run-4", Phase: pipeline.PhasePersist, Status: pipeline.StatusFailed}
	result := runResult(res, &pipeline.PhaseError{Phase: pipeline.PhasePersist, Err: errors.New("403")})
	if strings.Contains(getResultText(result), "retrying") {
		t.Errorf("unexpected retry hint: %s", getResultText(result))
	}
}

// --- ListScreensTool ---

func TestListScreensTool_Handle(t *testing.T) {
	ws := workspace.New(t.TempDir())
	if err := ws.SaveFile(&design.File{
		Key:  "F1",
		Name: "Checkout",
		Frames: []design.Frame{
			{ID: "pay", Name: "Payment", Box: design.BoundingBox{X: 500, Width: 375, Height: 800}},
			{ID: "cart", Name: "Cart", Box: design.BoundingBox{Width: 375, Height: 800}},
		},
		Notes: []design.Note{
			{ID: "n1", Box: design.BoundingBox{Y: 820, Width: 100, Height: 40}, TextBlocks: []string{"Promo", "codes later"}},
			{ID: "far", Box: design.BoundingBox{X: 9000, Y: 9000, Width: 5, Height: 5}},
		},
	}); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	tool := NewListScreensTool(ws, design.AssociateOptions{})

	result, err := tool.Handle(context.Background(), toolReq(map[string]interface{}{"file_key": "F1"}))
	if err != nil || isErrorResult(result) {
		t.Fatalf("Handle = %v, %s", err, getResultText(result))
	}
	text := getResultText(result)
	cart := strings.Index(text, "**Cart**")
	pay := strings.Index(text, "**Payment**")
	if cart < 0 || pay < 0 || cart > pay {
		t.Errorf("screens not in reading order:\n%s", text)
	}
	if !strings.Contains(text, "`n1`: Promo codes later") {
		t.Errorf("note missing:\n%s", text)
	}
	if !strings.Contains(text, "## Unassociated notes") || !strings.Contains(text, "`far`") {
		t.Errorf("unassociated note missing:\n%s", text)
	}

	result, _ = tool.Handle(context.Background(), toolReq(map[string]interface{}{"file_key": "nope"}))
	if !isErrorResult(result) {
		t.Error("unknown file should be a tool error")
	}
}

// --- Cache tools ---

func TestCacheTools_StatusAndClear(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewFileStore(t.TempDir()))
	if err := c.Touch(ctx, "F1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, "F1", "cart", cache.KindAnalysis, []byte("text")); err != nil {
		t.Fatal(err)
	}

	status := NewCacheStatusTool(c)
	result, err := status.Handle(ctx, toolReq(map[string]interface{}{}))
	if err != nil || isErrorResult(result) {
		t.Fatalf("status = %v, %s", err, getResultText(result))
	}
	var got []cache.Status
	if err := json.Unmarshal([]byte(getResultText(result)), &got); err != nil {
		t.Fatalf("status output is not JSON: %v", err)
	}
	if len(got) != 1 || got[0].FileKey != "F1" || len(got[0].Artifacts) != 1 || got[0].Metadata == nil {
		t.Errorf("status = %+v", got)
	}

	clearTool := NewCacheClearTool(c)
	result, _ = clearTool.Handle(ctx, toolReq(map[string]interface{}{}))
	if !isErrorResult(result) {
		t.Error("clear without file_key should be a tool error")
	}
	result, err = clearTool.Handle(ctx, toolReq(map[string]interface{}{"file_key": "F1"}))
	if err != nil || isErrorResult(result) {
		t.Fatalf("clear = %v, %s", err, getResultText(result))
	}
	keys, err := c.Keys(ctx)
	if err != nil || len(keys) != 0 {
		t.Errorf("Keys after clear = %v, %v", keys, err)
	}
}
