// Package syncer provides the sync orchestrator that drains the offline
// queues against the server, plus the pending-count reporter and the
// capture-directory watcher.
//
// The orchestrator is a two-state machine (Idle, Syncing) guarded by a
// single-flight flag: at most one sync run is active at any time, and a
// trigger arriving during an active run is a no-op. A run executes three
// drain phases in sequence - request replay, record reconciliation, file
// upload - then retention cleanup and a pending-count recompute. Per-item
// failures are logged and leave the item pending for the next run;
// phase-level failures are contained per phase so a broken record drain
// never blocks file upload. Every run ends with exactly one sync log entry
// and the guard released.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartsubstation/fieldsync/internal/gateway"
	"github.com/smartsubstation/fieldsync/internal/netmon"
	"github.com/smartsubstation/fieldsync/internal/store"
)

// ErrSyncInProgress is returned when a trigger finds a run already active.
// Callers treat it as a no-op, not a failure.
var ErrSyncInProgress = errors.New("sync already in progress")

// API is the server surface the orchestrator drains against.
type API interface {
	// SubmitRecord posts one stored record payload to the record-submission
	// endpoint.
	SubmitRecord(ctx context.Context, payload json.RawMessage) error

	// UploadFile posts one evidence file to the file endpoint.
	UploadFile(ctx context.Context, filename string, r io.Reader, businessType, businessID string, progress func(percent int)) error
}

// Broadcaster receives sync lifecycle events for UI observers. All methods
// must be non-blocking. A nil Broadcaster disables broadcasting.
type Broadcaster interface {
	SyncStarted()
	SyncCompleted(requests, records, files int, duration time.Duration)
	SyncFailed(errMsg string)
}

// Result summarizes one sync run.
type Result struct {
	// Requests, Records, Files are the per-phase counts of items confirmed
	// by the server during this run.
	Requests int
	Records  int
	Files    int

	// Duration is the wall time of the run.
	Duration time.Duration
}

// Total returns the number of items drained in this run.
func (r *Result) Total() int {
	return r.Requests + r.Records + r.Files
}

// Config holds orchestrator configuration.
type Config struct {
	// RetentionDays bounds the age of sync logs and synced/stale pending
	// requests (default 7).
	RetentionDays int

	// ReplayClient performs raw replay of captured requests. Defaults to a
	// gateway client with a small transient-retry budget.
	ReplayClient *http.Client

	// Events receives lifecycle broadcasts. May be nil.
	Events Broadcaster

	// Logger for orchestrator activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 7,
		Logger:        log.New(os.Stderr, "[syncer] ", log.LstdFlags),
	}
}

// Orchestrator drains the three pending queues against the server.
type Orchestrator struct {
	store    *store.Store
	api      API
	session  gateway.Session
	replay   *http.Client
	reporter *Reporter
	events   Broadcaster
	logger   *log.Logger

	retentionDays int

	// single-flight guard; the sole writer of the Idle/Syncing transition
	syncing chan struct{}
}

// New creates an Orchestrator.
//
// The store must have its schema initialized. session supplies the bearer
// token for request replay, re-read at replay time so refreshed tokens are
// honored. reporter recomputes the pending count after each run.
func New(st *store.Store, apiClient API, session gateway.Session, reporter *Reporter, config *Config) (*Orchestrator, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if apiClient == nil {
		return nil, fmt.Errorf("api client cannot be nil")
	}
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if reporter == nil {
		return nil, fmt.Errorf("reporter cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = 7
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[syncer] ", log.LstdFlags)
	}
	if config.ReplayClient == nil {
		config.ReplayClient = gateway.NewHTTPClient(gateway.WithRetryMax(2))
	}

	guard := make(chan struct{}, 1)
	guard <- struct{}{}

	return &Orchestrator{
		store:         st,
		api:           apiClient,
		session:       session,
		replay:        config.ReplayClient,
		reporter:      reporter,
		events:        config.Events,
		logger:        config.Logger,
		retentionDays: config.RetentionDays,
		syncing:       guard,
	}, nil
}

// IsSyncing reports whether a run is active.
func (o *Orchestrator) IsSyncing() bool {
	return len(o.syncing) == 0
}

// Run consumes connectivity events until ctx is cancelled, starting a sync
// run on each offline→online transition. Triggers landing during an active
// run are dropped by the single-flight guard.
func (o *Orchestrator) Run(ctx context.Context, events <-chan netmon.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Online {
				continue
			}
			if _, err := o.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				o.logger.Printf("Sync run finished with errors: %v", err)
			}
		}
	}
}

// Sync executes one sync run. Returns ErrSyncInProgress when another run
// holds the guard; the caller's trigger is then a no-op.
//
// The returned error aggregates phase-level failures; the result is valid
// even when the error is non-nil (partial progress counts).
func (o *Orchestrator) Sync(ctx context.Context) (*Result, error) {
	select {
	case <-o.syncing:
	default:
		return nil, ErrSyncInProgress
	}
	// guard held; release is unconditional so a failed run never leaves the
	// machine stuck in Syncing
	defer func() { o.syncing <- struct{}{} }()

	start := time.Now()
	o.logger.Printf("Sync run started")
	if o.events != nil {
		o.events.SyncStarted()
	}

	result := &Result{}
	var runErrs []error

	// Phase 1: request replay
	n, err := o.replayRequests(ctx)
	result.Requests = n
	if err != nil {
		o.logger.Printf("Request replay phase failed: %v", err)
		runErrs = append(runErrs, fmt.Errorf("request replay: %w", err))
	}

	// Phase 2: record reconciliation
	n, err = o.reconcileRecords(ctx)
	result.Records = n
	if err != nil {
		o.logger.Printf("Record reconciliation phase failed: %v", err)
		runErrs = append(runErrs, fmt.Errorf("record reconciliation: %w", err))
	}

	// Phase 3: file upload
	n, err = o.uploadFiles(ctx)
	result.Files = n
	if err != nil {
		o.logger.Printf("File upload phase failed: %v", err)
		runErrs = append(runErrs, fmt.Errorf("file upload: %w", err))
	}

	// Retention cleanup and pending-count recompute run regardless of
	// per-phase outcomes.
	if err := o.store.CleanOldData(ctx, o.retentionDays); err != nil {
		o.logger.Printf("Retention cleanup failed: %v", err)
		runErrs = append(runErrs, fmt.Errorf("retention cleanup: %w", err))
	}

	if _, err := o.reporter.Recompute(ctx); err != nil {
		o.logger.Printf("Pending count recompute failed: %v", err)
	}

	result.Duration = time.Since(start)
	runErr := errors.Join(runErrs...)
	o.writeSyncLog(ctx, result, runErr)

	if runErr != nil {
		if o.events != nil {
			o.events.SyncFailed(runErr.Error())
		}
		o.logger.Printf("Sync run finished with errors in %s: %v", result.Duration, runErr)
		return result, runErr
	}

	if o.events != nil {
		o.events.SyncCompleted(result.Requests, result.Records, result.Files, result.Duration)
	}
	o.logger.Printf("Sync run complete in %s: requests=%d records=%d files=%d",
		result.Duration, result.Requests, result.Records, result.Files)

	return result, nil
}

// replayRequests reissues each pending captured request with the current
// bearer token. Confirmed success flips the entry to synced; anything else
// leaves it pending for the next run. Individual request failures are
// logged but don't stop the phase.
func (o *Orchestrator) replayRequests(ctx context.Context) (int, error) {
	// snapshot at phase start; entries added mid-run wait for the next run
	requests, err := o.store.GetPendingRequests(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending requests: %w", err)
	}

	synced := 0
	for _, req := range requests {
		if err := o.replayOne(ctx, &req); err != nil {
			o.logger.Printf("Replay failed for %s %s: %v", req.Method, req.URL, err)
			if err := o.store.IncrementRequestAttempts(ctx, req.RequestID); err != nil {
				o.logger.Printf("Failed to record attempt for %s: %v", req.RequestID, err)
			}
			continue
		}

		if err := o.store.MarkRequestSynced(ctx, req.RequestID); err != nil {
			o.logger.Printf("Failed to mark request %s synced: %v", req.RequestID, err)
			continue
		}
		synced++
	}

	if len(requests) > 0 {
		o.logger.Printf("Replayed %d/%d pending requests", synced, len(requests))
	}
	return synced, nil
}

// replayOne reissues a single captured request verbatim.
func (o *Orchestrator) replayOne(ctx context.Context, req *store.PendingRequest) error {
	replayURL := req.URL
	if req.Params != "" {
		sep := "?"
		if strings.Contains(replayURL, "?") {
			sep = "&"
		}
		replayURL += sep + req.Params
	}

	var body io.Reader
	if req.Data != "" {
		body = bytes.NewReader([]byte(req.Data))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, replayURL, body)
	if err != nil {
		return fmt.Errorf("failed to build replay request: %w", err)
	}
	if req.Data != "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	// token re-read at replay time, not cached from capture time
	if token := o.session.Token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := o.replay.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	return nil
}

// reconcileRecords submits each offline-flagged record to the server and
// clears the flag on acceptance.
func (o *Orchestrator) reconcileRecords(ctx context.Context) (int, error) {
	records, err := o.store.GetPendingRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending records: %w", err)
	}

	synced := 0
	for _, rec := range records {
		payload := json.RawMessage(rec.Payload)
		if len(payload) == 0 {
			o.logger.Printf("Record %s has no payload, skipping", rec.RecordID)
			continue
		}

		if err := o.api.SubmitRecord(ctx, payload); err != nil {
			o.logger.Printf("Failed to submit record %s: %v", rec.RecordID, err)
			continue
		}

		if err := o.store.MarkRecordSynced(ctx, rec.RecordID); err != nil {
			o.logger.Printf("Failed to clear offline flag on record %s: %v", rec.RecordID, err)
			continue
		}
		synced++
	}

	if len(records) > 0 {
		o.logger.Printf("Reconciled %d/%d pending records", synced, len(records))
	}
	return synced, nil
}

// uploadFiles uploads each pending file and flips it to uploaded on success.
// Files missing from disk are logged and left pending.
func (o *Orchestrator) uploadFiles(ctx context.Context) (int, error) {
	files, err := o.store.GetPendingFiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending files: %w", err)
	}

	uploaded := 0
	for _, pf := range files {
		if err := o.uploadOne(ctx, &pf); err != nil {
			o.logger.Printf("Failed to upload file %s (%s): %v", pf.FileID, pf.Path, err)
			continue
		}

		if err := o.store.MarkFileUploaded(ctx, pf.FileID); err != nil {
			o.logger.Printf("Failed to mark file %s uploaded: %v", pf.FileID, err)
			continue
		}
		uploaded++
	}

	if len(files) > 0 {
		o.logger.Printf("Uploaded %d/%d pending files", uploaded, len(files))
	}
	return uploaded, nil
}

func (o *Orchestrator) uploadOne(ctx context.Context, pf *store.PendingFile) error {
	f, err := os.Open(pf.Path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	filename := pf.Path
	if i := strings.LastIndexByte(filename, '/'); i >= 0 {
		filename = filename[i+1:]
	}

	return o.api.UploadFile(ctx, filename, f, pf.BusinessType, pf.BusinessID, nil)
}

// writeSyncLog appends the audit entry for this run. Log write failures are
// logged only; they never affect the run outcome.
func (o *Orchestrator) writeSyncLog(ctx context.Context, result *Result, runErr error) {
	entry := &store.SyncLog{
		LogID:     uuid.NewString(),
		SyncType:  "upload",
		Status:    store.SyncStatusSuccess,
		DataCount: result.Total(),
	}
	if runErr != nil {
		entry.Status = store.SyncStatusFailed
		entry.Error = runErr.Error()
	}

	if err := o.store.AddSyncLog(ctx, entry); err != nil {
		o.logger.Printf("Failed to write sync log: %v", err)
	}
}
