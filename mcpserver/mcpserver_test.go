package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bosley/minutes/store"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTools(t *testing.T) (*tools, int64) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := &store.Meeting{Title: "Roadmap review", Date: time.Unix(1700000000, 0), Duration: 3725}
	tr := &store.Transcript{
		FullText: "the roadmap is on track",
		Segments: []store.Segment{{ID: uuid.New(), Offset: 65, Text: "the roadmap is on track"}},
	}
	sum := &store.Summary{Title: "Roadmap review", KeyPoints: []string{"on track"}, Model: "llama3.2"}
	require.NoError(t, st.CommitMeeting(context.Background(), m, tr, sum))

	return &tools{meetings: st}, m.ID
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	content, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func TestSearchMeetingsTool(t *testing.T) {
	tl, id := newTools(t)

	res, err := tl.searchMeetings(context.Background(), call(map[string]any{"query": "ROADMAP"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var got []meetingRow
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "1:02:05", got[0].Duration)

	res, err = tl.searchMeetings(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRecentMeetingsTool(t *testing.T) {
	tl, _ := newTools(t)

	res, err := tl.recentMeetings(context.Background(), call(map[string]any{"limit": 3}))
	require.NoError(t, err)

	var got []meetingRow
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Len(t, got, 1)
}

func TestGetMeetingTool(t *testing.T) {
	tl, id := newTools(t)

	res, err := tl.getMeeting(context.Background(), call(map[string]any{"id": float64(id)}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	out := text(t, res)
	assert.Contains(t, out, "Roadmap review")
	assert.Contains(t, out, "## Executive Summary")
	assert.Contains(t, out, "[01:05] the roadmap is on track")

	res, err = tl.getMeeting(context.Background(), call(map[string]any{"id": float64(id + 100)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
