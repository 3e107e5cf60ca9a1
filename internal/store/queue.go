package store

import (
	"context"
	"database/sql"
	"fmt"
)

// This file holds the sync queues and the audit trail. Pending entries are
// created by the capture path, flipped by the sync orchestrator, and removed
// only by confirmed success plus retention-age expiry. A replay attempt on
// its own never deletes an entry.

// AddRecord inserts a locally authored inspection record.
// The created_at timestamp is set to now if unset.
func (s *Store) AddRecord(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	if rec.CreatedAt == 0 {
		rec.CreatedAt = nowMillis()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO records (record_id, record_code, task_id, device_id, is_offline, version, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RecordID, rec.RecordCode, rec.TaskID, rec.DeviceID,
		rec.IsOffline, rec.Version, nullIfEmpty(rec.Payload), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert record %s: %w", rec.RecordID, err)
	}

	return nil
}

// GetPendingRecords returns records flagged is_offline=1, oldest first.
func (s *Store) GetPendingRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT record_id, record_code, task_id, device_id, is_offline, version, payload, created_at
		FROM records WHERE is_offline = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var payload sql.NullString
		if err := rows.Scan(&r.RecordID, &r.RecordCode, &r.TaskID, &r.DeviceID,
			&r.IsOffline, &r.Version, &payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Payload = payload.String
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// MarkRecordSynced clears the offline flag after server acceptance.
func (s *Store) MarkRecordSynced(ctx context.Context, recordID string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE records SET is_offline = 0 WHERE record_id = ?`, recordID)
	if err != nil {
		return fmt.Errorf("failed to mark record %s synced: %w", recordID, err)
	}
	return nil
}

// AddPendingFile enqueues a file awaiting upload with status=pending.
// The created_at timestamp is set to now if unset.
func (s *Store) AddPendingFile(ctx context.Context, f *PendingFile) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid pending file: %w", err)
	}

	if f.Status == "" {
		f.Status = StatusPending
	}
	if f.CreatedAt == 0 {
		f.CreatedAt = nowMillis()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO pending_files (file_id, business_type, business_id, path, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.FileID, f.BusinessType, f.BusinessID, f.Path, f.Status, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pending file %s: %w", f.FileID, err)
	}

	return nil
}

// GetPendingFiles returns files with status=pending, oldest first.
func (s *Store) GetPendingFiles(ctx context.Context) ([]PendingFile, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT file_id, business_type, business_id, path, status, created_at
		FROM pending_files WHERE status = ? ORDER BY created_at ASC`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending files: %w", err)
	}
	defer rows.Close()

	var files []PendingFile
	for rows.Next() {
		var f PendingFile
		if err := rows.Scan(&f.FileID, &f.BusinessType, &f.BusinessID,
			&f.Path, &f.Status, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending file: %w", err)
		}
		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending files: %w", err)
	}

	return files, nil
}

// HasPendingFilePath reports whether any pending_files row references the
// given path, regardless of status. The capture watcher uses it to avoid
// re-enqueueing files it already saw.
func (s *Store) HasPendingFilePath(ctx context.Context, path string) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_files WHERE path = ?`, path).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check pending file path: %w", err)
	}
	return count > 0, nil
}

// MarkFileUploaded flips a pending file to status=uploaded.
func (s *Store) MarkFileUploaded(ctx context.Context, fileID string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE pending_files SET status = ? WHERE file_id = ?`, StatusUploaded, fileID)
	if err != nil {
		return fmt.Errorf("failed to mark file %s uploaded: %w", fileID, err)
	}
	return nil
}

// AddPendingRequest enqueues a captured API call with status=pending.
// The timestamp is set to now if unset.
func (s *Store) AddPendingRequest(ctx context.Context, req *PendingRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid pending request: %w", err)
	}

	if req.Status == "" {
		req.Status = StatusPending
	}
	if req.Timestamp == 0 {
		req.Timestamp = nowMillis()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO pending_requests (request_id, url, method, data, params, status, attempts, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.RequestID, req.URL, req.Method, nullIfEmpty(req.Data),
		nullIfEmpty(req.Params), req.Status, req.Attempts, req.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert pending request %s: %w", req.RequestID, err)
	}

	return nil
}

// GetPendingRequests returns requests with status=pending, oldest first.
func (s *Store) GetPendingRequests(ctx context.Context) ([]PendingRequest, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT request_id, url, method, data, params, status, attempts, timestamp
		FROM pending_requests WHERE status = ? ORDER BY timestamp ASC`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending requests: %w", err)
	}
	defer rows.Close()

	var requests []PendingRequest
	for rows.Next() {
		var r PendingRequest
		var data, params sql.NullString
		if err := rows.Scan(&r.RequestID, &r.URL, &r.Method, &data, &params,
			&r.Status, &r.Attempts, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan pending request: %w", err)
		}
		r.Data = data.String
		r.Params = params.String
		requests = append(requests, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending requests: %w", err)
	}

	return requests, nil
}

// MarkRequestSynced flips a pending request to status=synced after the
// server confirmed acceptance. Synced entries stay until retention cleanup.
func (s *Store) MarkRequestSynced(ctx context.Context, requestID string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE pending_requests SET status = ? WHERE request_id = ?`, StatusSynced, requestID)
	if err != nil {
		return fmt.Errorf("failed to mark request %s synced: %w", requestID, err)
	}
	return nil
}

// IncrementRequestAttempts bumps the replay attempt counter. The counter is
// informational; it never gates replay.
func (s *Store) IncrementRequestAttempts(ctx context.Context, requestID string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE pending_requests SET attempts = attempts + 1 WHERE request_id = ?`, requestID)
	if err != nil {
		return fmt.Errorf("failed to bump attempts for request %s: %w", requestID, err)
	}
	return nil
}

// AddSyncLog appends one audit entry for a sync run.
// The timestamp is set to now if unset.
func (s *Store) AddSyncLog(ctx context.Context, entry *SyncLog) error {
	if entry.LogID == "" {
		return fmt.Errorf("invalid sync log: logId is required")
	}

	if entry.Timestamp == 0 {
		entry.Timestamp = nowMillis()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sync_logs (log_id, sync_type, status, error, data_count, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.LogID, entry.SyncType, entry.Status, nullIfEmpty(entry.Error),
		entry.DataCount, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert sync log %s: %w", entry.LogID, err)
	}

	return nil
}

// RecentSyncLogs returns the newest sync log entries, newest first.
func (s *Store) RecentSyncLogs(ctx context.Context, limit int) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT log_id, sync_type, status, error, data_count, timestamp
		FROM sync_logs ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var logs []SyncLog
	for rows.Next() {
		var l SyncLog
		var errMsg sql.NullString
		if err := rows.Scan(&l.LogID, &l.SyncType, &l.Status, &errMsg,
			&l.DataCount, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		l.Error = errMsg.String
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}

	return logs, nil
}

// PendingCounts returns the sizes of the three sync queues: pending
// requests, offline-flagged records, and pending files.
func (s *Store) PendingCounts(ctx context.Context) (requests, records, files int, err error) {
	if err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_requests WHERE status = ?`, StatusPending).Scan(&requests); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count pending requests: %w", err)
	}

	if err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE is_offline = 1`).Scan(&records); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count pending records: %w", err)
	}

	if err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_files WHERE status = ?`, StatusPending).Scan(&files); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count pending files: %w", err)
	}

	return requests, records, files, nil
}

// CleanOldData deletes sync_logs and pending_requests entries whose
// timestamp falls below now - days. A non-positive days keeps the 7-day
// default. Pending entries age out here too: the retention horizon is the
// only path that removes an unsynced request.
func (s *Store) CleanOldData(ctx context.Context, days int) error {
	if days <= 0 {
		days = 7
	}

	cutoff := nowMillis() - int64(days)*24*60*60*1000

	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM sync_logs WHERE timestamp < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to prune sync logs: %w", err)
	}

	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM pending_requests WHERE timestamp < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to prune pending requests: %w", err)
	}

	return nil
}
