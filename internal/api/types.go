package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// BlobView references one media blob served under /api/blobs/{key}.
type BlobView struct {
	Key       string `json:"key"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
}

// ArtifactView is the transport form of an artifact.
type ArtifactView struct {
	ID        string            `json:"id"`
	Stage     string            `json:"stage"`
	Provider  string            `json:"provider"`
	RunID     string            `json:"runId"`
	CreatedAt string            `json:"createdAt,omitempty"`
	Text      string            `json:"text,omitempty"`
	Record    json.RawMessage   `json:"record,omitempty"`
	Blobs     []BlobView        `json:"blobs,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Upstream  map[string]string `json:"upstream,omitempty"`
}

// StageView describes one stage slot.
type StageView struct {
	Stage    string        `json:"stage"`
	Title    string        `json:"title"`
	State    string        `json:"state"`
	Artifact *ArtifactView `json:"artifact,omitempty"`
	History  int           `json:"history"`
}

// SessionSummary is a session in list form.
type SessionSummary struct {
	ID        string            `json:"id"`
	CreatedAt string            `json:"createdAt,omitempty"`
	Running   bool              `json:"running"`
	States    map[string]string `json:"states"`
}

// SessionDetail is a session with every stage slot in pipeline order.
type SessionDetail struct {
	ID        string      `json:"id"`
	CreatedAt string      `json:"createdAt,omitempty"`
	Running   bool        `json:"running"`
	Stages    []StageView `json:"stages"`
}

// SessionListResponse wraps GET /api/sessions.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// RunRequest is the body of POST /api/sessions/{id}/stages/{stage}/run.
type RunRequest struct {
	Overrides map[string]string `json:"overrides,omitempty"`
}

// RunResponse reports a committed run.
type RunResponse struct {
	Stage    StageView `json:"stage"`
	Demoted  []string  `json:"demoted,omitempty"`
	Attempts int       `json:"attempts"`
	CacheHit bool      `json:"cacheHit"`
	Manual   bool      `json:"manual"`
}

// ExportResponse reports a finished export.
type ExportResponse struct {
	Dir         string   `json:"dir"`
	VideoPath   string   `json:"videoPath"`
	EncodedPath string   `json:"encodedPath,omitempty"`
	ArchiveID   string   `json:"archiveId,omitempty"`
	Files       []string `json:"files,omitempty"`
}

// StageDefinition describes a stage's contract.
type StageDefinition struct {
	Stage      string   `json:"stage"`
	Title      string   `json:"title"`
	DependsOn  []string `json:"dependsOn,omitempty"`
	Inputs     []string `json:"inputs,omitempty"`
	Outputs    []string `json:"outputs"`
	Editable   []string `json:"editable,omitempty"`
	Params     []string `json:"params,omitempty"`
	Capability string   `json:"capability"`
	Ready      bool     `json:"ready"`
	Detail     string   `json:"detail,omitempty"`
}

// StageListResponse wraps GET /api/stages.
type StageListResponse struct {
	Stages []StageDefinition `json:"stages"`
}

// DependencyStatus reports availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus is the body of GET /api/status.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Bind         string             `json:"bind"`
	LockFilePath string             `json:"lockFilePath"`
	Sessions     int                `json:"sessions"`
	DevMode      bool               `json:"devMode"`
	VideoMode    string             `json:"videoMode"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Hint  string `json:"hint,omitempty"`
}

// LogEvent is a structured log line.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     string            `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	SessionID     string            `json:"sessionId,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	RunID         string            `json:"runId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse wraps GET /api/events. Next is the cursor for the
// following request.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}
