package store

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Collections are stored as JSON in BLOB columns. A value that cannot be
// decoded reads back as an empty collection.

func encodeBlob(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodeBlob[T any](data []byte, column string) []T {
	out := []T{}
	if len(data) == 0 {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		slog.Debug("Failed to decode stored collection", "column", column, "error", err)
		return []T{}
	}
	if out == nil {
		return []T{}
	}
	return out
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
