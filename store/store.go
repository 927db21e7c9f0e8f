// Package store persists meetings with their transcripts and summaries in
// a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrPersistence wraps every failed read or write.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalid is returned for records that violate a data invariant.
	ErrInvalid = errors.New("invalid record")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the process's handle on the meetings database. Construct it once
// and share it; every call is serialized through a single connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database at path if needed, migrates it and returns a
// Store. ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: failed to create database directory: %v", ErrPersistence, err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrPersistence, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrPersistence, err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("Database ready", "path", path)
	return s, nil
}

// New wraps an already open handle without migrating it.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveMeeting inserts a new meeting and assigns its ID.
func (s *Store) SaveMeeting(ctx context.Context, m *Meeting) (int64, error) {
	id, err := s.insertMeeting(ctx, s.db, m)
	if err != nil {
		return 0, err
	}
	m.ID = id
	slog.Debug("Saved meeting", "id", id, "title", m.Title)
	return id, nil
}

// SaveTranscript inserts a transcript for an existing meeting.
func (s *Store) SaveTranscript(ctx context.Context, t *Transcript) error {
	id, err := s.insertTranscript(ctx, s.db, t, t.MeetingID)
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// SaveSummary inserts a summary for an existing meeting.
func (s *Store) SaveSummary(ctx context.Context, sum *Summary) error {
	id, err := s.insertSummary(ctx, s.db, sum, sum.MeetingID)
	if err != nil {
		return err
	}
	sum.ID = id
	return nil
}

// CommitMeeting writes a meeting with its transcript and summary in one
// transaction. Either all three rows exist afterwards or none do, and IDs
// are only assigned on commit.
func (s *Store) CommitMeeting(ctx context.Context, m *Meeting, t *Transcript, sum *Summary) (err error) {
	if m == nil || t == nil || sum == nil {
		return fmt.Errorf("%w: meeting, transcript and summary are all required", ErrInvalid)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Error("Failed to roll back meeting", "error", rbErr)
			}
		}
	}()

	meetingID, err := s.insertMeeting(ctx, tx, m)
	if err != nil {
		return err
	}
	transcriptID, err := s.insertTranscript(ctx, tx, t, meetingID)
	if err != nil {
		return err
	}
	summaryID, err := s.insertSummary(ctx, tx, sum, meetingID)
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit meeting: %v", ErrPersistence, err)
	}

	m.ID = meetingID
	t.ID, t.MeetingID = transcriptID, meetingID
	sum.ID, sum.MeetingID = summaryID, meetingID

	slog.Debug("Committed meeting", "id", meetingID, "transcript", transcriptID, "summary", summaryID)
	return nil
}

func (s *Store) insertMeeting(ctx context.Context, q querier, m *Meeting) (int64, error) {
	if m.ID != 0 {
		return 0, fmt.Errorf("%w: meeting %d is already saved", ErrInvalid, m.ID)
	}
	if err := m.validate(); err != nil {
		return 0, err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO meetings (title, date, duration, audio_file_path, language, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.Title, unixFromTime(m.Date), m.Duration, m.AudioFilePath, m.Language, unixFromTime(m.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert meeting: %v", ErrPersistence, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read meeting id: %v", ErrPersistence, err)
	}
	return id, nil
}

func (s *Store) insertTranscript(ctx context.Context, q querier, t *Transcript, meetingID int64) (int64, error) {
	if t.ID != 0 {
		return 0, fmt.Errorf("%w: transcript %d is already saved", ErrInvalid, t.ID)
	}
	if meetingID == 0 {
		return 0, fmt.Errorf("%w: transcript has no meeting", ErrInvalid)
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	segments, err := encodeBlob(orEmpty(t.Segments))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to encode segments: %v", ErrPersistence, err)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO transcripts (meeting_id, full_text, segments, created_at)
		VALUES (?, ?, ?, ?)
	`, meetingID, t.FullText, segments, unixFromTime(t.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert transcript: %v", ErrPersistence, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read transcript id: %v", ErrPersistence, err)
	}
	return id, nil
}

func (s *Store) insertSummary(ctx context.Context, q querier, sum *Summary, meetingID int64) (int64, error) {
	if sum.ID != 0 {
		return 0, fmt.Errorf("%w: summary %d is already saved", ErrInvalid, sum.ID)
	}
	if meetingID == 0 {
		return 0, fmt.Errorf("%w: summary has no meeting", ErrInvalid)
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = s.now()
	}

	var blobs [4][]byte
	for i, v := range []any{orEmpty(sum.KeyPoints), orEmpty(sum.Decisions), orEmpty(sum.ActionItems), orEmpty(sum.NextSteps)} {
		b, err := encodeBlob(v)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to encode summary: %v", ErrPersistence, err)
		}
		blobs[i] = b
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO summaries (meeting_id, title, key_points, decisions, action_items, next_steps, model_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, meetingID, sum.Title, blobs[0], blobs[1], blobs[2], blobs[3], sum.Model, unixFromTime(sum.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert summary: %v", ErrPersistence, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read summary id: %v", ErrPersistence, err)
	}
	return id, nil
}

const meetingColumns = `m.id, m.title, m.date, m.duration, m.audio_file_path, m.language, m.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row scanner) (Meeting, error) {
	var m Meeting
	var date, createdAt float64
	var audioPath, language sql.NullString

	if err := row.Scan(&m.ID, &m.Title, &date, &m.Duration, &audioPath, &language, &createdAt); err != nil {
		return Meeting{}, err
	}
	m.Date = timeFromUnix(date)
	m.CreatedAt = timeFromUnix(createdAt)
	if audioPath.Valid {
		m.AudioFilePath = &audioPath.String
	}
	if language.Valid {
		m.Language = &language.String
	}
	return m, nil
}

func (s *Store) queryMeetings(ctx context.Context, query string, args ...any) ([]Meeting, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query meetings: %v", ErrPersistence, err)
	}
	defer rows.Close()

	meetings := []Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan meeting: %v", ErrPersistence, err)
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read meetings: %v", ErrPersistence, err)
	}
	return meetings, nil
}

// FetchAllMeetings returns every meeting, newest first.
func (s *Store) FetchAllMeetings(ctx context.Context) ([]Meeting, error) {
	return s.queryMeetings(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings m
		ORDER BY m.date DESC, m.id DESC
	`)
}

// FetchRecentMeetings returns at most limit meetings, newest first. A limit
// of zero or less returns all of them.
func (s *Store) FetchRecentMeetings(ctx context.Context, limit int) ([]Meeting, error) {
	if limit <= 0 {
		return s.FetchAllMeetings(ctx)
	}
	return s.queryMeetings(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings m
		ORDER BY m.date DESC, m.id DESC
		LIMIT ?
	`, limit)
}

func (s *Store) FetchMeeting(ctx context.Context, id int64) (Meeting, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings m
		WHERE m.id = ?
	`, id)

	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Meeting{}, fmt.Errorf("meeting %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Meeting{}, fmt.Errorf("%w: failed to scan meeting: %v", ErrPersistence, err)
	}
	return m, nil
}

func (s *Store) FetchTranscript(ctx context.Context, meetingID int64) (Transcript, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, meeting_id, full_text, segments, created_at
		FROM transcripts
		WHERE meeting_id = ?
	`, meetingID)

	var t Transcript
	var segments []byte
	var createdAt float64
	err := row.Scan(&t.ID, &t.MeetingID, &t.FullText, &segments, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Transcript{}, fmt.Errorf("transcript for meeting %d: %w", meetingID, ErrNotFound)
	}
	if err != nil {
		return Transcript{}, fmt.Errorf("%w: failed to scan transcript: %v", ErrPersistence, err)
	}

	t.Segments = decodeBlob[Segment](segments, "transcripts.segments")
	t.CreatedAt = timeFromUnix(createdAt)
	return t, nil
}

func (s *Store) FetchSummary(ctx context.Context, meetingID int64) (Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, meeting_id, title, key_points, decisions, action_items, next_steps, model_used, created_at
		FROM summaries
		WHERE meeting_id = ?
	`, meetingID)

	var sum Summary
	var keyPoints, decisions, actionItems, nextSteps []byte
	var createdAt float64
	err := row.Scan(&sum.ID, &sum.MeetingID, &sum.Title, &keyPoints, &decisions, &actionItems, &nextSteps, &sum.Model, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, fmt.Errorf("summary for meeting %d: %w", meetingID, ErrNotFound)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("%w: failed to scan summary: %v", ErrPersistence, err)
	}

	sum.KeyPoints = decodeBlob[string](keyPoints, "summaries.key_points")
	sum.Decisions = decodeBlob[Decision](decisions, "summaries.decisions")
	sum.ActionItems = decodeBlob[ActionItem](actionItems, "summaries.action_items")
	sum.NextSteps = decodeBlob[string](nextSteps, "summaries.next_steps")
	sum.CreatedAt = timeFromUnix(createdAt)
	return sum, nil
}

// DeleteMeeting removes a meeting together with its transcript and summary.
func (s *Store) DeleteMeeting(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete meeting %d: %v", ErrPersistence, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to delete meeting %d: %v", ErrPersistence, id, err)
	}
	if n == 0 {
		return fmt.Errorf("meeting %d: %w", id, ErrNotFound)
	}
	slog.Debug("Deleted meeting", "id", id)
	return nil
}

// SearchMeetings matches query case-insensitively against meeting titles
// and transcript text.
func (s *Store) SearchMeetings(ctx context.Context, query string) ([]Meeting, error) {
	pattern := "%" + escapeLike(query) + "%"
	return s.queryMeetings(ctx, `
		SELECT DISTINCT `+meetingColumns+`
		FROM meetings m
		LEFT JOIN transcripts t ON t.meeting_id = m.id
		WHERE m.title LIKE ? ESCAPE '\' OR t.full_text LIKE ? ESCAPE '\'
		ORDER BY m.date DESC, m.id DESC
	`, pattern, pattern)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
