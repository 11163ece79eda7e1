package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures every dispatch so tests can assert exactly one path fired.
type recorder struct {
	calls []string
}

func (r *recorder) HandleSystem(info SystemInfo) {
	r.calls = append(r.calls, fmt.Sprintf("system:%s:%s", info.Subtype, info.Model))
}

func (r *recorder) HandleText(text string) {
	r.calls = append(r.calls, "text:"+text)
}

func (r *recorder) HandleThinking(text string) {
	r.calls = append(r.calls, "thinking:"+text)
}

func (r *recorder) HandleToolUse(name string, input string) {
	r.calls = append(r.calls, fmt.Sprintf("tool_use:%s:%s", name, input))
}

func (r *recorder) HandleToolResult(content string, isError bool) {
	r.calls = append(r.calls, fmt.Sprintf("tool_result:%v:%s", isError, content))
}

func (r *recorder) HandleDelta(kind string, text string) {
	r.calls = append(r.calls, fmt.Sprintf("delta:%s:%s", kind, text))
}

func (r *recorder) HandleResult(res Result) {
	r.calls = append(r.calls, fmt.Sprintf("result:%s:%s", res.Subtype, res.Text))
}

func (r *recorder) HandleRaw(line string) {
	r.calls = append(r.calls, "raw:"+line)
}

func TestProcessSystemInit(t *testing.T) {
	rec := &recorder{}
	line := `{"type":"system","subtype":"init","model":"opus","session_id":"abc","cwd":"/tmp/ws",` +
		`"tools":["Bash","Edit"],"mcp_servers":[{"name":"freeplay","status":"connected"}]}`

	ok := Process(line, rec)
	assert.True(t, ok)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "system:init:opus", rec.calls[0])
}

func TestProcessAssistantBlocks(t *testing.T) {
	rec := &recorder{}
	line := `{"type":"assistant","message":{"content":[` +
		`{"type":"thinking","thinking":"plan the edit"},` +
		`{"type":"text","text":"I'll update main.py"},` +
		`{"type":"tool_use","name":"Edit","input":{"file_path":"main.py"}}]}}`

	ok := Process(line, rec)
	assert.True(t, ok)
	assert.Equal(t, []string{
		"thinking:plan the edit",
		"text:I'll update main.py",
		`tool_use:Edit:{"file_path":"main.py"}`,
	}, rec.calls)
}

func TestProcessToolResultString(t *testing.T) {
	rec := &recorder{}
	line := `{"type":"user","message":{"content":[` +
		`{"type":"tool_result","content":"section written","is_error":false}]}}`

	Process(line, rec)
	assert.Equal(t, []string{"tool_result:false:section written"}, rec.calls)
}

func TestProcessToolResultBlocks(t *testing.T) {
	rec := &recorder{}
	line := `{"type":"user","message":{"content":[` +
		`{"type":"tool_result","content":[{"type":"text","text":"line one"},{"type":"text","text":"line two"}],"is_error":true}]}}`

	Process(line, rec)
	assert.Equal(t, []string{"tool_result:true:line one\nline two"}, rec.calls)
}

func TestProcessDeltas(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "text delta",
			line: `{"type":"content_block_delta","delta":{"type":"text_delta","text":"chunk"}}`,
			want: "delta:text_delta:chunk",
		},
		{
			name: "thinking delta",
			line: `{"type":"content_block_delta","delta":{"type":"thinking_delta","thinking":"hmm"}}`,
			want: "delta:thinking_delta:hmm",
		},
		{
			name: "input json delta",
			line: `{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{\"fi"}}`,
			want: `delta:input_json_delta:{"fi`,
		},
		{
			name: "block start",
			line: `{"type":"content_block_start","content_block":{"type":"tool_use"}}`,
			want: "delta:content_block_start:tool_use",
		},
		{
			name: "block stop",
			line: `{"type":"content_block_stop","index":0}`,
			want: "delta:content_block_stop:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			ok := Process(tt.line, rec)
			assert.True(t, ok)
			assert.Equal(t, []string{tt.want}, rec.calls)
		})
	}
}

func TestProcessResult(t *testing.T) {
	rec := &recorder{}
	line := `{"type":"result","subtype":"success","result":"Done: instrumented main.py",` +
		`"is_error":false,"num_turns":7,"duration_ms":93000,"total_cost_usd":0.4321,` +
		`"usage":{"input_tokens":1200,"output_tokens":800}}`

	Process(line, rec)
	assert.Equal(t, []string{"result:success:Done: instrumented main.py"}, rec.calls)
}

func TestProcessResultFields(t *testing.T) {
	collector := NewCollector()
	line := `{"type":"result","subtype":"success","result":"ok","num_turns":7,` +
		`"duration_ms":93000,"total_cost_usd":0.4321,"usage":{"input_tokens":1200,"output_tokens":800}}`

	Process(line, collector)
	require.NotNil(t, collector.FinalResult)

	res := *collector.FinalResult
	assert.Equal(t, 7, res.NumTurns)
	assert.Equal(t, int64(93000), res.DurationMS)
	assert.Equal(t, "1m33s", res.Duration().String())
	assert.Equal(t, 0.4321, res.TotalCostUSD)
	assert.Equal(t, int64(1200), res.Usage.InputTokens)
	assert.Equal(t, int64(800), res.Usage.OutputTokens)
}

func TestProcessUnknownTypePassesThrough(t *testing.T) {
	rec := &recorder{}
	line := `{"type":"telemetry_v2","payload":{"foo":1}}`

	ok := Process(line, rec)
	assert.False(t, ok)
	assert.Equal(t, []string{"raw:" + line}, rec.calls)
}

func TestProcessMalformedJSONPassesThrough(t *testing.T) {
	rec := &recorder{}
	line := `{"type": "assistant", truncated`

	ok := Process(line, rec)
	assert.False(t, ok)
	assert.Equal(t, []string{"raw:" + line}, rec.calls)
}

func TestProcessPlainTextPassesThrough(t *testing.T) {
	rec := &recorder{}
	line := "npm WARN deprecated package"

	ok := Process(line, rec)
	assert.False(t, ok)
	assert.Equal(t, []string{"raw:" + line}, rec.calls)
}

func TestProcessBlankLine(t *testing.T) {
	rec := &recorder{}
	assert.True(t, Process("   ", rec))
	assert.Empty(t, rec.calls)
}

func TestProcessExactlyOneDispatchPerLine(t *testing.T) {
	lines := []string{
		`{"type":"system","subtype":"init","model":"m"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"hello"}]}}`,
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":"x"}}`,
		`{"type":"result","subtype":"success"}`,
		`{"type":"unknown_event"}`,
		`not json at all`,
	}

	for _, line := range lines {
		rec := &recorder{}
		Process(line, rec)
		assert.Len(t, rec.calls, 1, "line %q should dispatch exactly once", line)
	}
}

func TestFlattenContentFallsBackToJSON(t *testing.T) {
	rec := &recorder{}
	line := `{"type":"user","message":{"content":[` +
		`{"type":"tool_result","content":{"status":"ok","files":3}}]}}`

	Process(line, rec)
	require.Len(t, rec.calls, 1)
	assert.Contains(t, rec.calls[0], `"status":"ok"`)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactlyten", truncate("exactlyten", 10))
	assert.Equal(t, "0123456789...", truncate("0123456789abcdef", 10))
	// Truncation counts runes, not bytes
	assert.Equal(t, "ααα...", truncate("ααααα", 3))
}
