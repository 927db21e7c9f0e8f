// Package mcpserver exposes stored meetings as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bosley/minutes/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const defaultLimit = 5

// Meetings is the read side of the store.
type Meetings interface {
	SearchMeetings(ctx context.Context, query string) ([]store.Meeting, error)
	FetchRecentMeetings(ctx context.Context, limit int) ([]store.Meeting, error)
	FetchMeeting(ctx context.Context, id int64) (store.Meeting, error)
	FetchTranscript(ctx context.Context, meetingID int64) (store.Transcript, error)
	FetchSummary(ctx context.Context, meetingID int64) (store.Summary, error)
}

type meetingRow struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Duration string    `json:"duration"`
}

type tools struct {
	meetings Meetings
}

// New builds the MCP server with its tools registered.
func New(meetings Meetings, version string) *server.MCPServer {
	s := server.NewMCPServer("minutes", version, server.WithToolCapabilities(false))
	t := &tools{meetings: meetings}

	s.AddTool(mcp.NewTool("search_meetings",
		mcp.WithDescription("Search recorded meetings by title or transcript text"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for, case-insensitive")),
	), t.searchMeetings)

	s.AddTool(mcp.NewTool("recent_meetings",
		mcp.WithDescription("List the most recent meetings, newest first"),
		mcp.WithNumber("limit", mcp.Description("How many meetings to return (default 5)")),
	), t.recentMeetings)

	s.AddTool(mcp.NewTool("get_meeting",
		mcp.WithDescription("Get a meeting with its transcript and summary"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Meeting ID")),
	), t.getMeeting)

	return s
}

// Serve runs the server on stdin and stdout until they close.
func Serve(meetings Meetings, version string) error {
	return server.ServeStdio(New(meetings, version))
}

func (t *tools) searchMeetings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	meetings, err := t.meetings.SearchMeetings(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return rows(meetings)
}

func (t *tools) recentMeetings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	meetings, err := t.meetings.FetchRecentMeetings(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing failed: %v", err)), nil
	}
	return rows(meetings)
}

func (t *tools) getMeeting(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	meeting, err := t.meetings.FetchMeeting(ctx, int64(id))
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("meeting %d not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Meeting %d: %s\nDate: %s\nDuration: %s\n",
		meeting.ID, meeting.Title, meeting.Date.Format(time.RFC3339), meeting.FormattedDuration())

	if summary, err := t.meetings.FetchSummary(ctx, meeting.ID); err == nil {
		b.WriteString("\n")
		b.WriteString(summary.Markdown())
	} else if !errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("summary lookup failed: %v", err)), nil
	}

	if transcript, err := t.meetings.FetchTranscript(ctx, meeting.ID); err == nil {
		b.WriteString("\n## Transcript\n\n")
		if len(transcript.Segments) == 0 {
			b.WriteString(transcript.FullText)
			b.WriteString("\n")
		}
		for _, seg := range transcript.Segments {
			fmt.Fprintf(&b, "[%s] %s\n", seg.Timestamp(), seg.Text)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("transcript lookup failed: %v", err)), nil
	}

	return mcp.NewToolResultText(b.String()), nil
}

func rows(meetings []store.Meeting) (*mcp.CallToolResult, error) {
	out := make([]meetingRow, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, meetingRow{ID: m.ID, Title: m.Title, Date: m.Date, Duration: m.FormattedDuration()})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meetings: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
