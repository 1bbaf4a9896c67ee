package domain

import "time"

// Recording describes a finished recording as stored in a catalog.
type Recording struct {
	ID             string    `json:"recording_id"`
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	Strategy       string    `json:"strategy"`
	StartTimestamp int64     `json:"start_ts"`
	Events         int64     `json:"events"`
	Bytes          int64     `json:"bytes"`
	Remark         string    `json:"remark,omitempty"`
	ClosedAt       time.Time `json:"closed_at"`
}

// RecordingFile is a recording found on disk.
type RecordingFile struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// LoggerStats is a point-in-time view of a logger's counters.
type LoggerStats struct {
	Session   string  `json:"session"`
	Strategy  string  `json:"strategy"`
	Running   bool    `json:"running"`
	Events    int64   `json:"events"`
	Bytes     int64   `json:"bytes"`
	Stale     int64   `json:"stale"`
	Cached    int64   `json:"cached"`
	FillLevel float64 `json:"fill_level"`
}
