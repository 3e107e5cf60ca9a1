package store

import (
	"fmt"
	"time"
)

// Queue entry statuses. Pending entries are owned by the capture path
// (gateway, watcher); status flips are owned by the sync orchestrator.
const (
	StatusPending  = "pending"
	StatusSynced   = "synced"
	StatusUploaded = "uploaded"
)

// Sync log statuses.
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// Task is a locally cached inspection task projection.
// Cached rows are refreshed wholesale from the server; the version field
// follows the server's row version for last-write-wins reconciliation.
type Task struct {
	TaskID     string `json:"taskId"`
	TaskCode   string `json:"taskCode"`
	Title      string `json:"title"`
	StationID  string `json:"stationId"`
	AssigneeID string `json:"assigneeId"`
	Status     string `json:"status"`
	PlanDate   string `json:"planDate,omitempty"`
	IsOffline  int    `json:"isOffline"`
	Version    int64  `json:"version"`
}

// Device is a locally cached device projection, indexed by QR code so
// scan-to-device lookups work without connectivity.
type Device struct {
	DeviceID   string `json:"deviceId"`
	DeviceCode string `json:"deviceCode"`
	Name       string `json:"name"`
	QRCode     string `json:"qrCode"`
	StationID  string `json:"stationId"`
	CategoryID string `json:"categoryId"`
	Version    int64  `json:"version"`
}

// Station is a locally cached substation projection.
type Station struct {
	StationID   string `json:"stationId"`
	StationCode string `json:"stationCode"`
	Name        string `json:"name"`
	Address     string `json:"address,omitempty"`
	Version     int64  `json:"version"`
}

// Template is a locally cached inspection template projection.
// Items carries the template body as opaque JSON.
type Template struct {
	TemplateID   string `json:"templateId"`
	TemplateCode string `json:"templateCode"`
	Name         string `json:"name"`
	Items        string `json:"items,omitempty"`
	Version      int64  `json:"version"`
}

// Defect is a locally cached defect projection.
type Defect struct {
	DefectID    string `json:"defectId"`
	DefectCode  string `json:"defectCode"`
	DeviceID    string `json:"deviceId"`
	Status      string `json:"status"`
	Level       string `json:"level,omitempty"`
	Description string `json:"description,omitempty"`
	Version     int64  `json:"version"`
}

// Record is an inspection record. Records authored while offline carry
// IsOffline=1 until the server accepts them; the payload is the exact
// body replayed against the record-submission endpoint.
type Record struct {
	RecordID   string `json:"recordId"`
	RecordCode string `json:"recordCode"`
	TaskID     string `json:"taskId"`
	DeviceID   string `json:"deviceId"`
	IsOffline  int    `json:"isOffline"`
	Version    int64  `json:"version"`
	Payload    string `json:"payload,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

// Validate checks required record fields before insertion.
func (r *Record) Validate() error {
	if r.RecordID == "" {
		return fmt.Errorf("recordId is required")
	}
	if r.TaskID == "" {
		return fmt.Errorf("taskId is required")
	}
	if r.DeviceID == "" {
		return fmt.Errorf("deviceId is required")
	}
	return nil
}

// PendingFile is a file awaiting upload, typically photo evidence dropped
// into the capture directory. Path points at the local file on disk.
type PendingFile struct {
	FileID       string `json:"fileId"`
	BusinessType string `json:"businessType"`
	BusinessID   string `json:"businessId"`
	Path         string `json:"path"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"createdAt"`
}

// Validate checks required pending-file fields before insertion.
func (f *PendingFile) Validate() error {
	if f.FileID == "" {
		return fmt.Errorf("fileId is required")
	}
	if f.BusinessType == "" {
		return fmt.Errorf("businessType is required")
	}
	if f.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// PendingRequest is an API call captured while offline, stored for verbatim
// replay. Method is uppercased at capture time. Data and Params hold the
// JSON-encoded body and query parameters.
type PendingRequest struct {
	RequestID string `json:"requestId"`
	URL       string `json:"url"`
	Method    string `json:"method"`
	Data      string `json:"data,omitempty"`
	Params    string `json:"params,omitempty"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	Timestamp int64  `json:"timestamp"`
}

// Validate checks required pending-request fields before insertion.
func (p *PendingRequest) Validate() error {
	if p.RequestID == "" {
		return fmt.Errorf("requestId is required")
	}
	if p.URL == "" {
		return fmt.Errorf("url is required")
	}
	if p.Method == "" {
		return fmt.Errorf("method is required")
	}
	return nil
}

// SyncLog is one audit entry per sync run. Entries are append-only and
// pruned by retention age, never mutated.
type SyncLog struct {
	LogID     string `json:"logId"`
	SyncType  string `json:"syncType"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	DataCount int    `json:"dataCount"`
	Timestamp int64  `json:"timestamp"`
}

// nowMillis returns the current wall clock in milliseconds, the timestamp
// unit used throughout the store.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
