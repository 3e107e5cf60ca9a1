package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/smartsubstation/fieldsync/internal/store"
)

// fakeQueue records captured offline requests in memory
type fakeQueue struct {
	mu      sync.Mutex
	entries []*store.PendingRequest
	fail    bool
}

func (q *fakeQueue) AddPendingRequest(ctx context.Context, req *store.PendingRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return errors.New("disk full")
	}
	q.entries = append(q.entries, req)
	return nil
}

// countingSession counts Clear calls
type countingSession struct {
	mu     sync.Mutex
	token  string
	clears int
}

func (s *countingSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *countingSession) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	s.token = ""
	return nil
}

// collectNotifier collects notification messages
type collectNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *collectNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func newTestGateway(t *testing.T, baseURL string, online bool) (*Gateway, *fakeQueue, *countingSession, *collectNotifier) {
	t.Helper()
	queue := &fakeQueue{}
	session := &countingSession{token: "tok-1"}
	notifier := &collectNotifier{}

	gw, err := New(Config{
		BaseURL:  baseURL,
		Session:  session,
		Queue:    queue,
		Online:   func() bool { return online },
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return gw, queue, session, notifier
}

// TestDo_UnwrapsEnvelope tests that code 200 unwraps to data
func TestDo_UnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"t-1"},"message":"ok"}`))
	}))
	defer srv.Close()

	gw, _, _, _ := newTestGateway(t, srv.URL, true)

	data, err := gw.Do(context.Background(), Request{Method: "GET", Path: "/tasks/t-1"})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}

	var task struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}
	if task.TaskID != "t-1" {
		t.Errorf("TaskID = %q, want t-1", task.TaskID)
	}
}

// TestDo_EnvelopeCodeError tests that a business error code surfaces as
// APIError with the server message
func TestDo_EnvelopeCodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":4001,"message":"task already completed"}`))
	}))
	defer srv.Close()

	gw, _, _, notifier := newTestGateway(t, srv.URL, true)

	_, err := gw.Do(context.Background(), Request{Method: "POST", Path: "/tasks/t-1/complete"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Do() error = %v, want *APIError", err)
	}
	if apiErr.Code != 4001 {
		t.Errorf("Code = %d, want 4001", apiErr.Code)
	}
	if apiErr.Message != "task already completed" {
		t.Errorf("Message = %q, want server message", apiErr.Message)
	}
	if len(notifier.messages) != 1 {
		t.Errorf("Notified %d times, want 1", len(notifier.messages))
	}
}

// TestDo_StatusMapping tests the fixed user-facing messages per status
func TestDo_StatusMapping(t *testing.T) {
	tests := []struct {
		status  int
		message string
	}{
		{http.StatusUnauthorized, msgLoginExpired},
		{http.StatusForbidden, msgForbidden},
		{http.StatusNotFound, msgNotFound},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		gw, _, _, _ := newTestGateway(t, srv.URL, true)
		_, err := gw.Do(context.Background(), Request{Method: "GET", Path: "/x"})
		srv.Close()

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: error = %v, want *APIError", tt.status, err)
		}
		if apiErr.Message != tt.message {
			t.Errorf("status %d: Message = %q, want %q", tt.status, apiErr.Message, tt.message)
		}
	}
}

// TestDo_ServerMessageWinsFor500 tests that the server's message overrides
// the generic 500 text
func TestDo_ServerMessageWinsFor500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":500,"message":"database migration in progress"}`))
	}))
	defer srv.Close()

	gw, _, _, _ := newTestGateway(t, srv.URL, true)

	_, err := gw.Do(context.Background(), Request{Method: "GET", Path: "/x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Message != "database migration in progress" {
		t.Errorf("Message = %q, want server message", apiErr.Message)
	}
}

// TestDo_401ForcesSingleLogout tests the logout latch under concurrency
func TestDo_401ForcesSingleLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	gw, _, session, _ := newTestGateway(t, srv.URL, true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = gw.Do(context.Background(), Request{Method: "GET", Path: "/x"})
		}()
	}
	wg.Wait()

	if session.clears != 1 {
		t.Errorf("Clear() called %d times, want exactly 1", session.clears)
	}
}

// TestDo_OfflineCapture tests that a transport failure while offline queues
// exactly one entry and returns ErrOfflineQueued
func TestDo_OfflineCapture(t *testing.T) {
	// no server: the address refuses connections
	gw, queue, _, notifier := newTestGateway(t, "http://127.0.0.1:1", false)

	params := url.Values{}
	params.Set("taskId", "t-1")

	_, err := gw.Do(context.Background(), Request{
		Method: "post",
		Path:   "/records/submit",
		Body:   map[string]string{"result": "ok"},
		Params: params,
	})
	if !errors.Is(err, ErrOfflineQueued) {
		t.Fatalf("Do() error = %v, want ErrOfflineQueued", err)
	}

	if len(queue.entries) != 1 {
		t.Fatalf("Queued %d entries, want 1", len(queue.entries))
	}

	entry := queue.entries[0]
	if entry.Method != "POST" {
		t.Errorf("Method = %q, want uppercased POST", entry.Method)
	}
	if strings.Contains(entry.URL, "?") {
		t.Errorf("URL = %q, query string must live in Params", entry.URL)
	}
	if entry.Params != "taskId=t-1" {
		t.Errorf("Params = %q, want taskId=t-1", entry.Params)
	}
	if !strings.HasPrefix(entry.RequestID, "post_") {
		t.Errorf("RequestID = %q, want method prefix", entry.RequestID)
	}
	if entry.Status != store.StatusPending {
		t.Errorf("Status = %q, want pending", entry.Status)
	}

	if len(notifier.messages) != 1 || notifier.messages[0] != msgOfflineQueued {
		t.Errorf("notifications = %v, want single offline notice", notifier.messages)
	}
}

// TestDo_OfflineCaptureIDsUnique tests that identical captures get distinct
// request ids
func TestDo_OfflineCaptureIDsUnique(t *testing.T) {
	gw, queue, _, _ := newTestGateway(t, "http://127.0.0.1:1", false)

	for i := 0; i < 2; i++ {
		_, err := gw.Do(context.Background(), Request{Method: "POST", Path: "/records/submit"})
		if !errors.Is(err, ErrOfflineQueued) {
			t.Fatalf("Do() error = %v, want ErrOfflineQueued", err)
		}
	}

	if len(queue.entries) != 2 {
		t.Fatalf("Queued %d entries, want 2", len(queue.entries))
	}
	if queue.entries[0].RequestID == queue.entries[1].RequestID {
		t.Errorf("Identical captures share request id %q", queue.entries[0].RequestID)
	}
}

// TestDo_OfflineStorageFailure tests that a failed queue write still
// returns ErrOfflineQueued and raises the storage notice
func TestDo_OfflineStorageFailure(t *testing.T) {
	gw, queue, _, notifier := newTestGateway(t, "http://127.0.0.1:1", false)
	queue.fail = true

	_, err := gw.Do(context.Background(), Request{Method: "POST", Path: "/records/submit"})
	if !errors.Is(err, ErrOfflineQueued) {
		t.Fatalf("Do() error = %v, want ErrOfflineQueued even on storage failure", err)
	}

	foundStorage := false
	for _, msg := range notifier.messages {
		if msg == msgStorageFailed {
			foundStorage = true
		}
	}
	if !foundStorage {
		t.Errorf("notifications = %v, want storage failure notice", notifier.messages)
	}
}

// TestDo_OnlineFailureNotQueued tests that transport failures while online
// surface as errors instead of queue entries
func TestDo_OnlineFailureNotQueued(t *testing.T) {
	gw, queue, _, _ := newTestGateway(t, "http://127.0.0.1:1", true)

	_, err := gw.Do(context.Background(), Request{Method: "GET", Path: "/tasks/my"})
	if err == nil {
		t.Fatal("Do() succeeded against refused connection")
	}
	if errors.Is(err, ErrOfflineQueued) {
		t.Error("Do() queued a request while online")
	}
	if len(queue.entries) != 0 {
		t.Errorf("Queued %d entries while online, want 0", len(queue.entries))
	}
}

// TestUpload_Multipart tests the multipart upload path with progress
func TestUpload_Multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() failed: %v", err)
		}
		if got := r.FormValue("businessType"); got != "record" {
			t.Errorf("businessType = %q, want record", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() failed: %v", err)
		} else {
			file.Close()
			if header.Filename != "a.jpg" {
				t.Errorf("Filename = %q, want a.jpg", header.Filename)
			}
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"fileId":"f-1"}}`))
	}))
	defer srv.Close()

	gw, _, _, _ := newTestGateway(t, srv.URL, true)

	var lastPercent int
	_, err := gw.Upload(context.Background(), "/files/upload", "file", "a.jpg",
		strings.NewReader("jpegbytes"), map[string]string{"businessType": "record"},
		func(percent int) { lastPercent = percent })
	if err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}
	if lastPercent != 100 {
		t.Errorf("Final progress = %d, want 100", lastPercent)
	}
}
